package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more request from key fits into the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindow keeps a log of request timestamps per key
// and admits at most limit requests during any window.
type SlidingWindow struct {
	hits   map[string][]time.Time
	now    func() time.Time
	window time.Duration
	limit  int
	mu     sync.Mutex
}

var _ Limiter = (*SlidingWindow)(nil)

func NewSlidingWindow(window time.Duration, limit int) *SlidingWindow {
	return &SlidingWindow{
		hits:   make(map[string][]time.Time),
		now:    time.Now,
		window: window,
		limit:  limit,
	}
}

func (sw *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	hits := evict(sw.hits[key], now.Add(-sw.window))

	if len(hits) >= sw.limit {
		sw.hits[key] = hits
		return false, nil
	}

	sw.hits[key] = append(hits, now)
	return true, nil
}

// Run drops idle keys once per window until ctx is done.
func (sw *SlidingWindow) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.cleanup()
		}
	}
}

func (sw *SlidingWindow) cleanup() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := sw.now().Add(-sw.window)
	for key, hits := range sw.hits {
		if hits = evict(hits, cutoff); len(hits) == 0 {
			delete(sw.hits, key)
			continue
		}
		sw.hits[key] = hits
	}
}

// evict removes timestamps not after cutoff. Timestamps are appended in order.
func evict(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
