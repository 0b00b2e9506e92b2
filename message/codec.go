package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c360/currentlogger/errors"
)

// Batch is the payload posted to the collector.
type Batch struct {
	Measurements []Measurement `json:"measurements"`
}

// EncodeBatch serializes ms as a batch payload.
// A positive maxSize bounds the encoded length; exceeding it returns ErrPayloadTooLarge
// so the caller can retry with a smaller chunk.
func EncodeBatch(ms []Measurement, maxSize int) ([]byte, error) {
	if ms == nil {
		ms = []Measurement{}
	}
	data, err := json.Marshal(Batch{Measurements: ms})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeBatch", "marshal batch")
	}
	if maxSize > 0 && len(data) > maxSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes, limit %d", errors.ErrPayloadTooLarge, len(data), maxSize),
			"Codec", "EncodeBatch", fmt.Sprintf("encode %d measurements", len(ms)))
	}
	return data, nil
}

// EncodeSingle serializes one measurement as a bare object.
func EncodeSingle(m Measurement) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeSingle", "marshal measurement")
	}
	return data, nil
}

// DecodeBatch parses a batch payload. The measurements key must be present.
func DecodeBatch(data []byte) (Batch, error) {
	var raw struct {
		Measurements *[]Measurement `json:"measurements"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return Batch{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Codec", "DecodeBatch", "decode batch")
	}
	if raw.Measurements == nil {
		return Batch{}, errors.WrapInvalid(
			fmt.Errorf("%w: measurements missing", errors.ErrInvalidData), "Codec", "DecodeBatch", "validate batch")
	}
	return Batch{Measurements: *raw.Measurements}, nil
}
