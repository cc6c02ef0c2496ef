package tasktest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_Advance(t *testing.T) {
	start := time.Now().UTC()
	clock := NewFakeClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), clock.Now())
}

func TestStubAdapter_SendReceiveDelete(t *testing.T) {
	clock := NewFakeClock(time.Now().UTC())
	adapter := NewStubAdapter(clock)

	require.NoError(t, adapter.Send(context.Background(), "greet", map[string]string{"k": "v"}, 0, "exec-1", time.Time{}))
	require.Len(t, adapter.Sent, 1)

	depth, err := adapter.ApproximateDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	msgs, err := adapter.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "greet", msgs[0].TaskName())
	assert.Equal(t, "exec-1", msgs[0].ExecID())
	assert.Equal(t, 1, msgs[0].ReceiveCount())

	// Not yet deleted, so a second receive attempt after the queue's own
	// default invisibility window should still see it.
	clock.Advance(31 * time.Second)
	msgs, err = adapter.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 2, msgs[0].ReceiveCount())

	require.NoError(t, adapter.Delete(context.Background(), msgs[0]))
	depth, err = adapter.ApproximateDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "a deleted message no longer counts toward depth")
}

func TestStubAdapter_ChangeVisibilityDelaysReceive(t *testing.T) {
	clock := NewFakeClock(time.Now().UTC())
	adapter := NewStubAdapter(clock)
	require.NoError(t, adapter.Send(context.Background(), "greet", map[string]string{}, 0, "exec-1", time.Time{}))

	msgs, err := adapter.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.True(t, adapter.ChangeVisibility(context.Background(), msgs[0], time.Minute))
	require.Len(t, adapter.Visibility, 1)
	assert.Equal(t, time.Minute, adapter.Visibility[0].NewTimeout)

	msgs, err = adapter.Receive(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "message must stay invisible until the requested timeout elapses")

	clock.Advance(61 * time.Second)
	msgs, err = adapter.Receive(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStubAdapter_FailChangeVisibility(t *testing.T) {
	clock := NewFakeClock(time.Now().UTC())
	adapter := NewStubAdapter(clock)
	require.NoError(t, adapter.Send(context.Background(), "greet", map[string]string{}, 0, "exec-1", time.Time{}))
	msgs, err := adapter.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	adapter.FailChangeVisibility(true)
	assert.False(t, adapter.ChangeVisibility(context.Background(), msgs[0], time.Minute))
	assert.Empty(t, adapter.Visibility, "a failed call must not be recorded")
}

func TestStubAdapter_DeleteByExecID(t *testing.T) {
	clock := NewFakeClock(time.Now().UTC())
	adapter := NewStubAdapter(clock)
	require.NoError(t, adapter.Send(context.Background(), "noop", map[string]string{}, time.Hour, "depth-1", time.Time{}))

	depth, err := adapter.ApproximateDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	require.NoError(t, adapter.DeleteByExecID("depth-1"))
	depth, err = adapter.ApproximateDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}
