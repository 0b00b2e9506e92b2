package pubsub

import (
	"context"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/metric"
	"github.com/c360/currentlogger/testutil"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "dev")
	assert.Error(t, err)

	_, err = New(testutil.NewMockBroker(), "//")
	assert.True(t, errors.IsInvalid(err))

	s, err := New(testutil.NewMockBroker(), "/lab/esp-1/")
	require.NoError(t, err)
	assert.Equal(t, "lab/esp-1/status", s.StatusTopic())
	assert.Equal(t, "lab/esp-1/measurement", s.MeasurementTopic())
}

func TestSink_Publish(t *testing.T) {
	pub := testutil.NewMockBroker()
	s, err := New(pub, "esp-1", WithMeasurements(true))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.PublishStatus(ctx, []byte(`{"device":"esp-1"}`)))
	require.NoError(t, s.PublishMeasurement(ctx, []byte(`{"timestamp":1,"value":2}`)))

	assert.Equal(t, []testutil.Message{
		{Subject: "esp-1/status", Data: []byte(`{"device":"esp-1"}`)},
		{Subject: "esp-1/measurement", Data: []byte(`{"timestamp":1,"value":2}`)},
	}, pub.Messages())
	assert.True(t, s.Connected())
}

func TestSink_MeasurementsDisabledByDefault(t *testing.T) {
	pub := testutil.NewMockBroker()
	s, err := New(pub, "esp-1")
	require.NoError(t, err)

	require.NoError(t, s.PublishMeasurement(context.Background(), []byte(`{}`)))
	assert.Empty(t, pub.Messages())
}

func TestSink_DisconnectedDropsAndCounts(t *testing.T) {
	m := metric.NewMetrics()
	broker := testutil.NewMockBroker()
	broker.SetConnected(false)
	s, err := New(broker, "esp-1", WithMetrics(m), WithMeasurements(true))
	require.NoError(t, err)

	err = s.PublishStatus(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, errors.ErrNotConnected)
	_ = s.PublishMeasurement(context.Background(), []byte(`{}`))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.PublishFailures.WithLabelValues("status")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PublishFailures.WithLabelValues("measurement")))
	assert.False(t, s.Connected())
}
