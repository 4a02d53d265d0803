package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"class-booking/internal/broker"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	err   error
	calls int
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) ReleaseLock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

func countingJob(runs *int32, err error) Job {
	return func(ctx context.Context) (int, error) {
		atomic.AddInt32(runs, 1)
		return 1, err
	}
}

func TestRunOnce(t *testing.T) {
	t.Run("runs and releases the lock", func(t *testing.T) {
		var runs int32
		locker := newMemLocker()
		w := NewPeriodicWorker("test", time.Minute, countingJob(&runs, nil), locker)

		w.RunOnce(context.Background())
		w.RunOnce(context.Background())

		assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
		assert.Empty(t, locker.held)
	})

	t.Run("skips while another replica holds the lock", func(t *testing.T) {
		var runs int32
		locker := newMemLocker()
		locker.held["worker:test"] = true
		w := NewPeriodicWorker("test", time.Minute, countingJob(&runs, nil), locker)

		w.RunOnce(context.Background())

		assert.Zero(t, atomic.LoadInt32(&runs))
		assert.True(t, locker.held["worker:test"])
	})

	t.Run("skips when the lock backend fails", func(t *testing.T) {
		var runs int32
		locker := newMemLocker()
		locker.err = errors.New("redis unavailable")
		w := NewPeriodicWorker("test", time.Minute, countingJob(&runs, nil), locker)

		w.RunOnce(context.Background())
		assert.Zero(t, atomic.LoadInt32(&runs))
	})

	t.Run("job errors are absorbed", func(t *testing.T) {
		var runs int32
		locker := newMemLocker()
		w := NewPeriodicWorker("test", time.Minute, countingJob(&runs, errors.New("boom")), locker)

		assert.NotPanics(t, func() { w.RunOnce(context.Background()) })
		assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
		assert.Empty(t, locker.held)
	})

	t.Run("no locker", func(t *testing.T) {
		var runs int32
		w := NewPeriodicWorker("test", time.Minute, countingJob(&runs, nil), nil)
		w.RunOnce(context.Background())
		assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	var runs int32
	w := NewPeriodicWorker("test", 10*time.Millisecond, countingJob(&runs, nil), newMemLocker())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

type stubSource struct {
	handlers chan broker.MessageHandler
	closed   bool
}

func (s *stubSource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	s.handlers <- handler
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

func TestCapacityWorkerLifecycle(t *testing.T) {
	source := &stubSource{handlers: make(chan broker.MessageHandler, 1)}
	w := &CapacityWorker{consumer: source, eventHandler: broker.NewEventHandler(), logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	var handler broker.MessageHandler
	select {
	case handler = <-source.handlers:
	case <-time.After(time.Second):
		t.Fatal("consumer not started")
	}

	// events nobody subscribed to pass through
	err := handler(ctx, kafka.Message{Value: []byte(`{"event_type":"PAYMENT_FAILED","event_id":"e1"}`)})
	assert.NoError(t, err)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	require.NoError(t, w.Stop())
	assert.True(t, source.closed)
}
