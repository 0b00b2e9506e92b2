package message

import (
	"strings"
	"testing"

	"github.com/c360/currentlogger/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBatch_WireShape(t *testing.T) {
	ms := []Measurement{
		{Timestamp: 1700000000000, Value: 12.5, Seq: 1},
		{Timestamp: 1700000001000, Value: -0.25, Seq: 2},
	}

	data, err := EncodeBatch(ms, 0)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"measurements":[{"timestamp":1700000000000,"value":12.5},{"timestamp":1700000001000,"value":-0.25}]}`,
		string(data))
	assert.NotContains(t, string(data), "Seq")
}

func TestEncodeBatch_Empty(t *testing.T) {
	data, err := EncodeBatch(nil, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"measurements":[]}`, string(data))
}

func TestEncodeBatch_TooLarge(t *testing.T) {
	ms := make([]Measurement, 50)
	for i := range ms {
		ms[i] = New(float64(i), 1700000000000+int64(i))
	}

	_, err := EncodeBatch(ms, 128)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPayloadTooLarge)
	assert.True(t, errors.IsInvalid(err))

	_, err = EncodeBatch(ms[:1], 128)
	assert.NoError(t, err)
}

func TestEncodeSingle(t *testing.T) {
	data, err := EncodeSingle(Measurement{Timestamp: 42, Value: 1.5, Seq: 9})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":42,"value":1.5}`, string(data))
}

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		count   int
		wantErr error
	}{
		{"valid", `{"measurements":[{"timestamp":1,"value":2.5}]}`, 1, nil},
		{"empty list", `{"measurements":[]}`, 0, nil},
		{"missing key", `{"data":[]}`, 0, errors.ErrInvalidData},
		{"null list", `{"measurements":null}`, 0, errors.ErrInvalidData},
		{"malformed", `{"measurements":[`, 0, errors.ErrParsingFailed},
		{"wrong type", `{"measurements":"x"}`, 0, errors.ErrParsingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := DecodeBatch([]byte(tt.input))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, batch.Measurements, tt.count)
		})
	}
}

func TestDecodeBatch_Roundtrip(t *testing.T) {
	ms := []Measurement{New(1.25, 1700000000000), New(2.5, 1700000001000)}
	data, err := EncodeBatch(ms, 0)
	require.NoError(t, err)

	batch, err := DecodeBatch(data)
	require.NoError(t, err)
	assert.Equal(t, ms, batch.Measurements)
	assert.False(t, strings.Contains(string(data), "seq"))
}
