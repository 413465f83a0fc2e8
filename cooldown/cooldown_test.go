package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucket(t *testing.T) {
	assert.Equal(t, int64(0), Bucket(4999.9))
	assert.Equal(t, int64(5000), Bucket(5000))
	assert.Equal(t, int64(5000), Bucket(9999))
	assert.Equal(t, int64(10000), Bucket(10000))
}

func TestAllowWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	m := New(2 * time.Second)

	assert.True(t, m.Allow(6200, now))
	assert.False(t, m.Allow(7400, now.Add(time.Second)), "same bucket inside window")
	assert.True(t, m.Allow(11000, now.Add(time.Second)), "different bucket")
	assert.True(t, m.Allow(6200, now.Add(2*time.Second)), "window elapsed")

	// Suppressed attempts do not extend the window.
	assert.False(t, m.Allow(6200, now.Add(3*time.Second)))
	assert.True(t, m.Allow(6200, now.Add(4*time.Second)))
}

func TestAllowDisabled(t *testing.T) {
	m := New(0)
	now := time.Now()
	assert.True(t, m.Allow(100, now))
	assert.True(t, m.Allow(100, now))
	assert.Zero(t, m.Len())
}

func TestStaleKeysArePruned(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	m := New(time.Second)

	for i := 0; i <= pruneAbove; i++ {
		m.Allow(float64(i*BucketSize), now)
	}
	assert.Equal(t, pruneAbove+1, m.Len())

	m.Allow(1e9, now.Add(5*time.Second))
	assert.Equal(t, 1, m.Len())
}
