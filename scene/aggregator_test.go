package scene

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-track/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func event(id string, class model.ObjectClass, crops int) Event {
	cs := make([]model.CropSnapshot, crops)
	for i := range cs {
		cs[i] = model.CropSnapshot{JPEG: []byte(id), Timestamp: time.Unix(int64(i), 0)}
	}
	return Event{
		Track:    model.CompletedTrack{ID: id, Class: class, Crops: cs},
		Movement: model.MovementSummary{Description: "moving right, centre-left→centre-right, 2.0s"},
	}
}

func TestShouldFlushCropGate(t *testing.T) {
	clk := newClock()
	a := New(60*time.Second, 10, 3, WithClock(clk.now))

	assert.False(t, a.ShouldFlush(), "empty buffer")

	a.Push(event("a", model.ClassPerson, 1))
	a.Push(event("b", model.ClassPerson, 1))
	clk.advance(10 * time.Minute)
	assert.False(t, a.ShouldFlush(), "two crops never pass a gate of three")

	a.Push(event("c", model.ClassCar, 1))
	assert.True(t, a.ShouldFlush())
}

func TestShouldFlushTimeGate(t *testing.T) {
	clk := newClock()
	a := New(60*time.Second, 10, 1, WithClock(clk.now))

	a.Push(event("a", model.ClassPerson, 2))
	clk.advance(59 * time.Second)
	assert.False(t, a.ShouldFlush())
	clk.advance(time.Second)
	assert.True(t, a.ShouldFlush())
}

func TestDueIgnoresCropGate(t *testing.T) {
	clk := newClock()
	a := New(60*time.Second, 10, 5, WithClock(clk.now))

	assert.False(t, a.Due(), "empty buffer")
	a.Push(event("a", model.ClassPerson, 1))
	assert.False(t, a.Due())

	clk.advance(time.Minute)
	assert.True(t, a.Due())
	assert.False(t, a.ShouldFlush())

	_, ok := a.Drain()
	require.True(t, ok)
	assert.False(t, a.Due())
}

func TestDrainResetsWindow(t *testing.T) {
	clk := newClock()
	start := clk.t
	a := New(60*time.Second, 10, 1, WithClock(clk.now))

	_, ok := a.Drain()
	assert.False(t, ok)

	a.Push(event("a", model.ClassPerson, 1))
	clk.advance(90 * time.Second)
	b, ok := a.Drain()
	require.True(t, ok)
	assert.Len(t, b.Events, 1)
	assert.Equal(t, start, b.PeriodStart)
	assert.Equal(t, clk.t, b.PeriodEnd)
	assert.Zero(t, a.Len())
	assert.Zero(t, a.Crops())

	// The timer restarted at the drain.
	a.Push(event("b", model.ClassPerson, 1))
	assert.False(t, a.ShouldFlush())
	clk.advance(60 * time.Second)
	assert.True(t, a.ShouldFlush())

	b, ok = a.Drain()
	require.True(t, ok)
	assert.Equal(t, start.Add(90*time.Second), b.PeriodStart)
}

func TestDrainSkipsCropGate(t *testing.T) {
	a := New(time.Hour, 10, 5)
	a.Push(event("a", model.ClassPerson, 0))

	b, ok := a.Drain()
	require.True(t, ok)
	assert.Zero(t, b.Crops())
}

func TestForceDrainBelowGates(t *testing.T) {
	clk := newClock()
	a := New(time.Hour, 10, 10, WithClock(clk.now))
	a.Push(event("a", model.ClassPerson, 1))
	a.Push(event("b", model.ClassDog, 1))
	require.False(t, a.ShouldFlush())

	b, ok := a.ForceDrain()
	require.True(t, ok)
	assert.Len(t, b.Events, 2)

	_, ok = a.ForceDrain()
	assert.False(t, ok)
}

func TestForceDrainEmptyKeepsWindow(t *testing.T) {
	clk := newClock()
	a := New(60*time.Second, 10, 1, WithClock(clk.now))

	clk.advance(10 * time.Second)
	_, ok := a.ForceDrain()
	assert.False(t, ok)

	a.Push(event("a", model.ClassPerson, 2))
	assert.False(t, a.ShouldFlush(), "interval has not elapsed")
	assert.False(t, a.Due())
	clk.advance(50 * time.Second)
	assert.True(t, a.ShouldFlush())
}

func TestRingEvictsOldestFirst(t *testing.T) {
	a := New(time.Minute, 3, 1)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		evicted := a.Push(event(id, model.ClassPerson, i))
		assert.Equal(t, i >= 3, evicted)
		assert.LessOrEqual(t, a.Len(), 3)
	}

	// crops 2+3+4 remain after a(0) and b(1) were evicted.
	assert.Equal(t, 9, a.Crops())

	b, ok := a.Drain()
	require.True(t, ok)
	ids := make([]string, len(b.Events))
	for i, e := range b.Events {
		ids[i] = e.Track.ID
	}
	assert.Equal(t, []string{"c", "d", "e"}, ids)
}

func TestTimeline(t *testing.T) {
	clk := newClock()
	a := New(time.Minute, 10, 1, WithClock(clk.now))

	e1 := event("a", model.ClassPerson, 1)
	e1.FinishedAt = clk.t.Add(5 * time.Second)
	e2 := event("b", model.ClassCar, 1)
	e2.FinishedAt = clk.t.Add(20 * time.Second)
	e3 := event("c", model.ClassPerson, 1)
	e3.FinishedAt = clk.t.Add(40 * time.Second)
	a.Push(e1)
	a.Push(e2)
	a.Push(e3)
	clk.advance(time.Minute)

	b, _ := a.Drain()
	text := b.Timeline("porch")
	lines := strings.Split(text, "\n")

	assert.Equal(t, "Camera: porch | 09:00:00 → 09:01:00 UTC | 3 objects", lines[0])
	assert.Equal(t, "Seen: 2×person, 1×car", lines[1])
	assert.Equal(t, "Timeline:", lines[3])
	assert.Equal(t, "  [02] 09:00:20 car: moving right, centre-left→centre-right, 2.0s", lines[5])
}

func TestSelectCrops(t *testing.T) {
	b := Batch{Events: []Event{
		event("a", model.ClassPerson, 3),
		event("b", model.ClassPerson, 3),
		event("c", model.ClassPerson, 3),
		event("d", model.ClassPerson, 3),
		event("e", model.ClassPerson, 3),
	}}

	// 10/5+1 = 3 per event, capped at the overall max.
	got := b.SelectCrops(3, 10)
	assert.Len(t, got, 10)

	// 4/5+1 = 1 per event.
	got = b.SelectCrops(3, 4)
	require.Len(t, got, 4)
	assert.Equal(t, []byte("d"), got[3].JPEG)

	small := Batch{Events: []Event{event("a", model.ClassPerson, 1), event("b", model.ClassPerson, 1)}}
	assert.Len(t, small.SelectCrops(3, 10), 2)
	assert.Nil(t, small.SelectCrops(3, 0))
}
