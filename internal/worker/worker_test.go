package worker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	due    atomic.Int32
	retry  atomic.Int32
	grace  atomic.Int32
	result error
}

func (s *countingSweeper) ProcessDueInstallments(ctx context.Context) error {
	s.due.Add(1)
	return s.result
}

func (s *countingSweeper) RetryFailedInstallments(ctx context.Context) error {
	s.retry.Add(1)
	return s.result
}

func (s *countingSweeper) CancelExpiredGracePeriods(ctx context.Context) error {
	s.grace.Add(1)
	return s.result
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDueWorker_RunsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewDueWorker(sweeper, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return sweeper.due.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRetryWorker_StopsOnContextCancel(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewRetryWorker(sweeper, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return sweeper.retry.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestGraceWorker_KeepsTickingAfterSweepError(t *testing.T) {
	sweeper := &countingSweeper{result: assert.AnError}
	w := NewGraceWorker(sweeper, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return sweeper.grace.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
