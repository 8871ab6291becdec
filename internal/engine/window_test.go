package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowPrunesStaleEntries(t *testing.T) {
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	w := newWindow(60 * time.Second)

	w.Add(base, "a")
	w.Add(base.Add(30*time.Second), "b")
	w.Add(base.Add(59*time.Second), "c")
	assert.Equal(t, 3, w.Len())

	// The first entry is now older than the window.
	w.Add(base.Add(61*time.Second), "d")
	assert.Equal(t, 3, w.Len())

	for _, e := range w.entries {
		assert.False(t, e.at.Before(base.Add(time.Second)), "retained entry outside the window")
	}
}

func TestWindowDistinctKeys(t *testing.T) {
	base := time.Now()
	w := newWindow(time.Minute)
	w.Add(base, "alice")
	w.Add(base.Add(time.Second), "bob")
	w.Add(base.Add(2*time.Second), "alice")
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 2, w.DistinctKeys())
}

func TestWindowReset(t *testing.T) {
	w := newWindow(time.Minute)
	w.Add(time.Now(), "x")
	w.Reset()
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0, w.DistinctKeys())
}

func TestWindowCountNeverExceedsInsertsInSpan(t *testing.T) {
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	w := newWindow(10 * time.Second)
	inserted := 0
	for i := 0; i < 100; i++ {
		at := base.Add(time.Duration(i) * 3 * time.Second)
		w.Add(at, "")
		inserted++
		assert.LessOrEqual(t, w.Len(), inserted)
		cutoff := at.Add(-10 * time.Second)
		for _, e := range w.entries {
			assert.False(t, e.at.Before(cutoff))
		}
	}
}
