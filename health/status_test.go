package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	h := Healthy("sensor", "reading")
	assert.True(t, h.Healthy)
	assert.Equal(t, StateHealthy, h.State)
	assert.False(t, h.Timestamp.IsZero())

	d := Degraded("pubsub", "reconnecting")
	assert.False(t, d.Healthy)
	assert.Equal(t, StateDegraded, d.State)

	u := Unhealthy("http", errors.New("dial tcp 10.0.0.5:8443: connection refused"))
	assert.False(t, u.Healthy)
	assert.Equal(t, "dial tcp [IP][PORT]: connection refused", u.Message)

	assert.Equal(t, "unknown error", Unhealthy("x", nil).Message)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"path", "open /sys/class/hwmon/hwmon0/curr1_input: no such file", "open [PATH]: no such file"},
		{"http url", "post https://collector.example.com/api/v1/data failed", "post [URL] failed"},
		{"nats url", "cannot connect to nats://broker:4222", "cannot connect to [URL]"},
		{"credentials", "auth failed with token=abc123", "auth failed with [REDACTED]"},
		{"password", "bad password=hunter2", "bad [REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		input []Status
		want  State
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{Healthy("a", ""), Healthy("b", "")}, StateHealthy},
		{"one degraded", []Status{Healthy("a", ""), Degraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{Degraded("a", ""), Unhealthy("b", nil), Healthy("c", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("agent", tt.input)
			assert.Equal(t, tt.want, agg.State)
			assert.Equal(t, tt.want == StateHealthy, agg.Healthy)
			assert.Len(t, agg.Components, len(tt.input))
		})
	}
}

func TestAggregate_CopiesComponents(t *testing.T) {
	in := []Status{Healthy("a", "")}
	agg := Aggregate("agent", in)
	in[0].Message = "changed"
	assert.Empty(t, agg.Components[0].Message)
}
