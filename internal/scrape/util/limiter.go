package util

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Buckets idle longer than this are dropped once the map grows past
// maxIdleHosts. A long mailbox run touches many one-off hosts.
const (
	hostIdleTTL  = 10 * time.Minute
	maxIdleHosts = 256
)

type hostBucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// HostLimiter gives each job board host its own token bucket, so a bulk
// import of postings from one board is spread out while other hosts proceed.
type HostLimiter struct {
	mu      sync.Mutex
	buckets map[string]*hostBucket
	every   rate.Limit
	burst   int
	now     func() time.Time
}

func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		buckets: make(map[string]*hostBucket),
		every:   rate.Limit(reqPerSec),
		burst:   burst,
		now:     time.Now,
	}
}

// limiterKey folds "www." so www.example.com and example.com share a bucket.
func limiterKey(raw string) string {
	host := strings.TrimPrefix(HostOf(raw), "www.")
	if host == "" {
		return "_"
	}
	return host
}

func (hl *HostLimiter) bucket(key string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	now := hl.now()
	if b, ok := hl.buckets[key]; ok {
		b.lastUsed = now
		return b.lim
	}
	if len(hl.buckets) >= maxIdleHosts {
		for k, b := range hl.buckets {
			if now.Sub(b.lastUsed) > hostIdleTTL {
				delete(hl.buckets, k)
			}
		}
	}
	b := &hostBucket{lim: rate.NewLimiter(hl.every, hl.burst), lastUsed: now}
	hl.buckets[key] = b
	return b.lim
}

// Hosts reports how many host buckets are live.
func (hl *HostLimiter) Hosts() int {
	if hl == nil {
		return 0
	}
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.buckets)
}

// WaitURL blocks until a fetch of raw is allowed for its host. A nil limiter
// never waits.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	if hl == nil {
		return nil
	}
	return hl.bucket(limiterKey(raw)).Wait(ctx)
}
