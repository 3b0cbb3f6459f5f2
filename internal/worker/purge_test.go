package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgePast(context.Context) (int64, error) {
	p.calls.Add(1)
	return 2, p.err
}

func TestRunOnce(t *testing.T) {
	p := &countingPurger{}
	w := NewPurgeWorker(p, time.Hour, nil)

	assert.NoError(t, w.RunOnce(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())

	p.err = errors.New("db down")
	assert.Error(t, w.RunOnce(context.Background()))
}

func TestStartRunsUntilCancelled(t *testing.T) {
	p := &countingPurger{}
	w := NewPurgeWorker(p, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
