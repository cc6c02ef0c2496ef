package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tasks "github.com/sambatech/gotasks"
	"github.com/sambatech/gotasks/tasktest"
)

func TestProducer_Ready(t *testing.T) {
	registry := tasks.NewRegistry(nil)
	producer := tasks.NewProducer("local", registry)
	assert.Equal(t, "ERROR", producer.Ready(), "no pool registered yet")

	clock := tasktest.NewFakeClock(time.Now().UTC())
	producer.RegisterPool("local", tasktest.NewStubAdapter(clock))
	assert.Equal(t, "OK", producer.Ready())
}

func TestProducer_Run_DefaultsToLocalPool(t *testing.T) {
	clock := tasktest.NewFakeClock(time.Now().UTC())
	adapter := tasktest.NewStubAdapter(clock)
	registry := tasks.NewRegistry(nil)
	producer := tasks.NewProducer("local", registry)
	producer.RegisterPool("local", adapter)

	require.NoError(t, producer.Run(context.Background(), "greet", map[string]string{"name": "x"}))
	require.Len(t, adapter.Sent, 1)
	assert.Equal(t, "greet", adapter.Sent[0].TaskName)
}

// TestProducer_Run_StrictRequiresLocalRegistration checks SPEC_FULL.md §4.6:
// in strict mode, a task sent to the producer's own pool must be registered
// locally first.
func TestProducer_Run_StrictRequiresLocalRegistration(t *testing.T) {
	clock := tasktest.NewFakeClock(time.Now().UTC())
	adapter := tasktest.NewStubAdapter(clock)
	registry := tasks.NewRegistry(nil)
	producer := tasks.NewProducer("local", registry, tasks.WithStrict(true))
	producer.RegisterPool("local", adapter)

	err := producer.Run(context.Background(), "ghost", map[string]string{})
	require.Error(t, err)
	assert.ErrorIs(t, err, tasks.ErrStrictTaskNotRegistered)
	assert.Empty(t, adapter.Sent)

	task, err := tasks.NewTask("ghost", ok, adapter)
	require.NoError(t, err)
	registry.Register(task)

	require.NoError(t, producer.Run(context.Background(), "ghost", map[string]string{}))
	assert.Len(t, adapter.Sent, 1)
}

// TestProducer_Run_CrossPoolSkipsStrictness checks that WithPool targeting a
// pool other than the producer's local one bypasses the strict registration
// check, per SPEC_FULL.md §4.6.
func TestProducer_Run_CrossPoolSkipsStrictness(t *testing.T) {
	clock := tasktest.NewFakeClock(time.Now().UTC())
	localAdapter := tasktest.NewStubAdapter(clock)
	otherAdapter := tasktest.NewStubAdapter(clock)
	registry := tasks.NewRegistry(nil)
	producer := tasks.NewProducer("local", registry, tasks.WithStrict(true))
	producer.RegisterPool("local", localAdapter)
	producer.RegisterPool("other", otherAdapter)

	require.NoError(t, producer.Run(context.Background(), "unregistered-elsewhere", map[string]string{}, tasks.WithPool("other")))
	require.Len(t, otherAdapter.Sent, 1)
	assert.Empty(t, localAdapter.Sent)
}

func TestProducer_Run_UndefinedPool(t *testing.T) {
	registry := tasks.NewRegistry(nil)
	producer := tasks.NewProducer("local", registry)

	err := producer.Run(context.Background(), "greet", map[string]string{}, tasks.WithPool("missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, tasks.ErrUndefinedPool)
}

func TestProducer_Run_PinnedExecID(t *testing.T) {
	clock := tasktest.NewFakeClock(time.Now().UTC())
	adapter := tasktest.NewStubAdapter(clock)
	registry := tasks.NewRegistry(nil)
	producer := tasks.NewProducer("local", registry)
	producer.RegisterPool("local", adapter)

	require.NoError(t, producer.Run(context.Background(), "greet", map[string]string{}, tasks.WithExecID("fixed-id")))
	require.Len(t, adapter.Sent, 1)
	assert.Equal(t, "fixed-id", adapter.Sent[0].ExecID)
}
