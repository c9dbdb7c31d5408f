package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task now and then on every tick until ctx is done. A tick that
// lands while the previous run is still going is skipped. Every blocks.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	if interval <= 0 {
		log.Printf("[%s] not scheduled: interval=%s", name, interval)
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	var running atomic.Bool
	run := func() {
		if !running.CompareAndSwap(false, true) {
			log.Printf("[%s] previous run still active, skipping tick", name)
			return
		}
		defer running.Store(false)
		if err := task(ctx); err != nil {
			log.Printf("[%s] error: %v", name, err)
		}
	}

	go run()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			go run()
		}
	}
}
