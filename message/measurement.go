package message

import (
	"fmt"
	"math"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/pkg/timestamp"
)

// ValueTolerance is the largest value difference still treated as the same sample
// when two measurements carry no sequence number.
const ValueTolerance = 0.001

// Measurement is one current sample.
type Measurement struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`

	// Seq is assigned by the ring buffer on append. Zero means unassigned.
	Seq uint64 `json:"-"`
}

// New returns a measurement with no sequence number.
func New(value float64, ts int64) Measurement {
	return Measurement{Timestamp: ts, Value: value}
}

// Validate rejects values that cannot be encoded or stored.
func (m Measurement) Validate() error {
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return errors.WrapInvalid(errors.ErrInvalidData, "Measurement", "Validate",
			fmt.Sprintf("value %v", m.Value))
	}
	if err := timestamp.Validate(m.Timestamp); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"Measurement", "Validate", "timestamp")
	}
	return nil
}

// String renders the sample for logs.
func (m Measurement) String() string {
	return fmt.Sprintf("%.3fmA@%s", m.Value, timestamp.Format(m.Timestamp))
}

// Same reports whether a and b identify the same stored sample.
// When both carry a sequence number the sequence decides. Otherwise the timestamps must
// be equal and the values within ValueTolerance.
func Same(a, b Measurement) bool {
	if a.Seq != 0 && b.Seq != 0 {
		return a.Seq == b.Seq
	}
	return a.Timestamp == b.Timestamp && math.Abs(a.Value-b.Value) < ValueTolerance
}
