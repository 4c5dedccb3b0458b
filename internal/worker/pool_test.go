package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, payload json.RawMessage) error

func (f handlerFunc) Handle(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

func TestPoolRunsJobsOnceAndReports(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	pool := NewPool(map[string]Handler{
		"ok":   handlerFunc(func(context.Context, json.RawMessage) error { calls.Add(1); return nil }),
		"fail": handlerFunc(func(context.Context, json.RawMessage) error { calls.Add(1); return boom }),
	}, 2, 8)

	var mu sync.Mutex
	results := map[string]error{}
	var wg sync.WaitGroup
	wg.Add(3)
	pool.OnResult = func(j Job, err error) {
		mu.Lock()
		results[j.ID] = err
		mu.Unlock()
		wg.Done()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	require.NoError(t, pool.Submit(Job{ID: "1", Type: "ok"}))
	require.NoError(t, pool.Submit(Job{ID: "2", Type: "fail"}))
	require.NoError(t, pool.Submit(Job{ID: "3", Type: "missing"}))
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
	assert.NoError(t, results["1"])
	assert.ErrorIs(t, results["2"], boom)
	assert.Error(t, results["3"])
}

func TestPoolAppliesTimeout(t *testing.T) {
	pool := NewPool(map[string]Handler{
		"slow": handlerFunc(func(ctx context.Context, _ json.RawMessage) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}, 1, 1)
	done := make(chan error, 1)
	pool.OnResult = func(_ Job, err error) { done <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	require.NoError(t, pool.Submit(Job{ID: "s", Type: "slow", Timeout: 20 * time.Millisecond}))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not time out")
	}
}

func TestSubmitReportsFullQueue(t *testing.T) {
	pool := NewPool(nil, 1, 1)
	require.NoError(t, pool.Submit(Job{ID: "a"}))
	assert.ErrorIs(t, pool.Submit(Job{ID: "b"}), ErrQueueFull)
}

func TestStopTwice(t *testing.T) {
	pool := NewPool(nil, 1, 1)
	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()
	pool.Stop()
	assert.NotPanics(t, pool.Stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop")
	}
}
