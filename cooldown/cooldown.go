// Package cooldown rate-limits near-identical change regions by a coarse
// area bucket.
package cooldown

import (
	"math"
	"sync"
	"time"
)

// BucketSize is the area quantum in pixels.
const BucketSize = 5000

// pruneAbove bounds the map before stale keys are swept.
const pruneAbove = 64

type Map struct {
	mu     sync.Mutex
	window time.Duration
	last   map[int64]time.Time
}

func New(window time.Duration) *Map {
	return &Map{
		window: window,
		last:   make(map[int64]time.Time),
	}
}

func Bucket(area float64) int64 {
	return int64(math.Floor(area/BucketSize)) * BucketSize
}

// Allow reports whether a region of this area may be submitted at now. An
// admitted region starts a new window for its bucket; a suppressed one does not.
func (m *Map) Allow(area float64, now time.Time) bool {
	if m.window <= 0 {
		return true
	}

	key := Bucket(area)

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.last[key]; ok && now.Sub(last) < m.window {
		return false
	}
	m.last[key] = now

	if len(m.last) > pruneAbove {
		for k, t := range m.last {
			if now.Sub(t) >= m.window {
				delete(m.last, k)
			}
		}
	}

	return true
}

func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}
