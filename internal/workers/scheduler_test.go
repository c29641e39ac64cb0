package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/pkg/errors"
)

type mockWorker struct {
	*BaseWorker
	runCount int32
	runFunc  func(ctx context.Context) error
}

func newMockWorker(name string, interval time.Duration, enabled bool) *mockWorker {
	return &mockWorker{
		BaseWorker: NewBaseWorker(name, interval, enabled),
	}
}

func (m *mockWorker) Run(ctx context.Context) error {
	atomic.AddInt32(&m.runCount, 1)
	if m.runFunc != nil {
		return m.runFunc(ctx)
	}
	return nil
}

func (m *mockWorker) GetRunCount() int {
	return int(atomic.LoadInt32(&m.runCount))
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler := NewScheduler(time.Second)

	worker := newMockWorker("test-worker", 100*time.Millisecond, true)
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.True(t, scheduler.IsRunning())

	time.Sleep(250 * time.Millisecond)

	require.NoError(t, scheduler.Stop())
	assert.False(t, scheduler.IsRunning())

	// immediate run plus at least one tick
	assert.GreaterOrEqual(t, worker.GetRunCount(), 2)
	assert.GreaterOrEqual(t, worker.Health().RunCount, int64(2))
}

func TestScheduler_DisabledWorker(t *testing.T) {
	scheduler := NewScheduler(time.Second)

	enabled := newMockWorker("enabled-worker", 100*time.Millisecond, true)
	disabled := newMockWorker("disabled-worker", 100*time.Millisecond, false)
	scheduler.RegisterWorker(enabled)
	scheduler.RegisterWorker(disabled)

	require.NoError(t, scheduler.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.Greater(t, enabled.GetRunCount(), 0)
	assert.Equal(t, 0, disabled.GetRunCount())
}

func TestScheduler_RecordsErrorsAndPanics(t *testing.T) {
	scheduler := NewScheduler(time.Second)

	failing := newMockWorker("failing-worker", time.Hour, true)
	failing.runFunc = func(context.Context) error { return errors.New("boom") }
	panicking := newMockWorker("panicking-worker", time.Hour, true)
	panicking.runFunc = func(context.Context) error { panic("kaboom") }

	scheduler.RegisterWorker(failing)
	scheduler.RegisterWorker(panicking)

	require.NoError(t, scheduler.Start(context.Background()))
	require.Eventually(t, func() bool {
		return failing.Health().RunCount == 1 && panicking.Health().RunCount == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.EqualError(t, failing.Health().LastError, "boom")
	assert.Equal(t, int64(1), failing.Health().ErrorCount)

	require.Error(t, panicking.Health().LastError)
	assert.True(t, errors.Is(panicking.Health().LastError, errors.ErrInternal))
}

func TestScheduler_StopTimesOut(t *testing.T) {
	scheduler := NewScheduler(50 * time.Millisecond)

	release := make(chan struct{})
	defer close(release)

	stuck := newMockWorker("stuck-worker", time.Hour, true)
	stuck.runFunc = func(context.Context) error {
		<-release
		return nil
	}
	scheduler.RegisterWorker(stuck)

	require.NoError(t, scheduler.Start(context.Background()))
	require.Eventually(t, func() bool { return stuck.GetRunCount() == 1 }, time.Second, 5*time.Millisecond)

	err := scheduler.Stop()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
}

func TestScheduler_ContextCancellation(t *testing.T) {
	scheduler := NewScheduler(time.Second)
	scheduler.RegisterWorker(newMockWorker("test-worker", 100*time.Millisecond, true))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))

	cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, scheduler.Stop())
}

func TestScheduler_CannotStartTwice(t *testing.T) {
	scheduler := NewScheduler(time.Second)
	scheduler.RegisterWorker(newMockWorker("test-worker", time.Hour, true))

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Error(t, scheduler.Start(context.Background()))

	require.NoError(t, scheduler.Stop())
	assert.Error(t, scheduler.Stop())
}

func TestScheduler_RegisterAfterStartIsIgnored(t *testing.T) {
	scheduler := NewScheduler(time.Second)
	scheduler.RegisterWorker(newMockWorker("worker-1", time.Hour, true))

	require.NoError(t, scheduler.Start(context.Background()))
	scheduler.RegisterWorker(newMockWorker("worker-2", time.Hour, true))
	require.NoError(t, scheduler.Stop())

	workers := scheduler.GetWorkers()
	require.Len(t, workers, 1)
	assert.Equal(t, "worker-1", workers[0].Name())
}
