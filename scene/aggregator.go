// Package scene batches completed tracks over a time window and decides
// when a batch is worth a verification call.
package scene

import (
	"sync"
	"time"

	"github.com/khaledhikmat/vs-track/model"
)

// Event is one completed object with its movement narrative.
type Event struct {
	Track      model.CompletedTrack
	Movement   model.MovementSummary
	RecordID   int64
	FinishedAt time.Time
}

type Batch struct {
	Events      []Event
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Crops is the number of stills across all events.
func (b Batch) Crops() int {
	n := 0
	for _, e := range b.Events {
		n += len(e.Track.Crops)
	}
	return n
}

type Option func(*Aggregator)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// Aggregator is a fixed-capacity FIFO ring of events.
type Aggregator struct {
	mu            sync.Mutex
	ring          []Event
	head          int
	size          int
	crops         int
	flushInterval time.Duration
	minCrops      int
	lastFlush     time.Time
	periodStart   time.Time
	now           func() time.Time
}

func New(flushInterval time.Duration, ringCapacity, minCrops int, opts ...Option) *Aggregator {
	if ringCapacity < 1 {
		ringCapacity = 1
	}
	a := &Aggregator{
		ring:          make([]Event, ringCapacity),
		flushInterval: flushInterval,
		minCrops:      minCrops,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lastFlush = a.now()
	a.periodStart = a.lastFlush
	return a
}

// Push appends an event, evicting the oldest one when the ring is full.
// It reports whether an eviction happened.
func (a *Aggregator) Push(ev Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	evicted := false
	if a.size == len(a.ring) {
		a.crops -= len(a.ring[a.head].Track.Crops)
		a.ring[a.head] = Event{}
		a.head = (a.head + 1) % len(a.ring)
		a.size--
		evicted = true
	}

	a.ring[(a.head+a.size)%len(a.ring)] = ev
	a.size++
	a.crops += len(ev.Track.Crops)
	return evicted
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

func (a *Aggregator) Crops() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.crops
}

// ShouldFlush requires a non-empty buffer, enough crops and an elapsed
// flush interval. The crop gate is checked regardless of time.
func (a *Aggregator) ShouldFlush() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.size == 0 || a.crops < a.minCrops {
		return false
	}
	return a.now().Sub(a.lastFlush) >= a.flushInterval
}

// Due reports a non-empty buffer whose flush interval has elapsed, whatever
// its crop count. A due buffer that fails ShouldFlush is discarded by the
// caller.
func (a *Aggregator) Due() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.size > 0 && a.now().Sub(a.lastFlush) >= a.flushInterval
}

// Drain takes every buffered event and restarts the window. It does not
// check the crop gate.
func (a *Aggregator) Drain() (Batch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drainLocked()
}

// ForceDrain is Drain without regard to the flush timer, for shutdown.
func (a *Aggregator) ForceDrain() (Batch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.size == 0 {
		return Batch{}, false
	}
	a.lastFlush = a.now().Add(-a.flushInterval)
	return a.drainLocked()
}

func (a *Aggregator) drainLocked() (Batch, bool) {
	if a.size == 0 {
		return Batch{}, false
	}

	events := make([]Event, a.size)
	for i := 0; i < a.size; i++ {
		idx := (a.head + i) % len(a.ring)
		events[i] = a.ring[idx]
		a.ring[idx] = Event{}
	}

	end := a.now()
	b := Batch{
		Events:      events,
		PeriodStart: a.periodStart,
		PeriodEnd:   end,
	}

	a.head = 0
	a.size = 0
	a.crops = 0
	a.periodStart = end
	a.lastFlush = end

	return b, true
}
