package gateway

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/message"
)

const batchSchema = `{
  "type": "object",
  "required": ["measurements"],
  "properties": {
    "measurements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["timestamp", "value"],
        "properties": {
          "timestamp": {"type": "integer", "minimum": 0},
          "value": {"type": "number"}
        }
      }
    }
  }
}`

// BatchValidator checks request bodies against the batch schema.
type BatchValidator struct {
	schema *gojsonschema.Schema
}

// NewBatchValidator compiles the batch schema.
func NewBatchValidator() (*BatchValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(batchSchema))
	if err != nil {
		return nil, errors.WrapFatal(err, "BatchValidator", "New", "compile batch schema")
	}
	return &BatchValidator{schema: schema}, nil
}

// Validate checks data and decodes it. All errors are invalid errors.
func (v *BatchValidator) Validate(data []byte) (message.Batch, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return message.Batch{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "BatchValidator", "Validate", "parse body")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return message.Batch{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(msgs, "; ")),
			"BatchValidator", "Validate", "check schema")
	}
	return message.DecodeBatch(data)
}
