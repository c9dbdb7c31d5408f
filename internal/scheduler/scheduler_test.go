package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvery_RunsImmediatelyAndOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32

	done := make(chan struct{})
	go func() {
		Every(ctx, 10*time.Millisecond, "test", func(context.Context) error {
			n.Add(1)
			return errors.New("logged, not fatal")
		})
		close(done)
	}()

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestEvery_SkipsOverlappingRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, peak atomic.Int32
	release := make(chan struct{})
	go Every(ctx, 5*time.Millisecond, "slow", func(context.Context) error {
		cur := active.Add(1)
		if cur > peak.Load() {
			peak.Store(cur)
		}
		<-release
		active.Add(-1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	close(release)
	assert.Equal(t, int32(1), peak.Load())
}

func TestEvery_ZeroIntervalReturns(t *testing.T) {
	called := false
	Every(context.Background(), 0, "off", func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
}
