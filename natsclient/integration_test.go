//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/currentlogger/testutil"
)

func TestIntegration_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	url := testutil.StartNATS(ctx, t)

	c, err := NewClient(url, WithName("currentlogger-it"))
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	defer c.Close(ctx)

	assert.True(t, c.IsConnected())
	assert.Equal(t, StatusConnected, c.Status())

	got := make(chan string, 1)
	require.NoError(t, c.Subscribe("esp-lab-1/measurement", func(_ string, data []byte) {
		got <- string(data)
	}))
	require.NoError(t, c.Flush(ctx))

	require.NoError(t, c.Publish(ctx, "esp-lab-1/measurement", []byte(`{"timestamp":1,"value":2.5}`)))

	select {
	case msg := <-got:
		assert.JSONEq(t, `{"timestamp":1,"value":2.5}`, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestIntegration_StreamForwarding(t *testing.T) {
	ctx := context.Background()
	url := testutil.StartNATS(ctx, t)

	c, err := NewClient(url)
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	defer c.Close(ctx)

	stream, err := c.EnsureStream(ctx, "CURRENT", "current.>")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.PublishToStream(ctx, "current.batch", []byte(`{"measurements":[]}`)))
	}

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.State.Msgs)

	_, err = c.EnsureStream(ctx, "CURRENT", "current.>", "legacy.>")
	assert.NoError(t, err, "existing stream is updated in place")
}

func TestIntegration_CloseDrains(t *testing.T) {
	ctx := context.Background()
	url := testutil.StartNATS(ctx, t)

	c, err := NewClient(url)
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(closeCtx))
	assert.Equal(t, StatusClosed, c.Status())
	assert.ErrorIs(t, c.Publish(ctx, "x", nil), ErrNotConnected)
}
