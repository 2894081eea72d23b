package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsTaskImmediately(t *testing.T) {
	var runs int32
	s := NewScheduler("test", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, SchedulerConfig{Interval: time.Hour})

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerRetriesFailedTask(t *testing.T) {
	var attempts int32
	s := NewScheduler("test", func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, SchedulerConfig{Interval: time.Hour, MaxRetries: 3, RetryDelay: time.Millisecond})

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewScheduler("test", func(ctx context.Context) error { return nil }, SchedulerConfig{Interval: time.Hour})
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
