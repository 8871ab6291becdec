package engine

import "time"

type entry struct {
	at  time.Time
	key string
}

// window is a time-bounded ordered collection of (instant, key) pairs.
// Callers prune against the evaluation instant before counting; the
// window is reset only when its rule fires, never on a timer.
type window struct {
	duration time.Duration
	entries  []entry
}

func newWindow(duration time.Duration) *window {
	return &window{duration: duration}
}

// Add records one observation and prunes everything older than the
// window duration relative to at.
func (w *window) Add(at time.Time, key string) {
	w.entries = append(w.entries, entry{at: at, key: key})
	w.prune(at.Add(-w.duration))
}

func (w *window) prune(cutoff time.Time) {
	keep := w.entries[:0]
	for _, e := range w.entries {
		if !e.at.Before(cutoff) {
			keep = append(keep, e)
		}
	}
	w.entries = keep
}

func (w *window) Len() int {
	return len(w.entries)
}

// DistinctKeys counts the unique auxiliary keys currently retained.
func (w *window) DistinctKeys() int {
	seen := make(map[string]struct{}, len(w.entries))
	for _, e := range w.entries {
		seen[e.key] = struct{}{}
	}
	return len(seen)
}

func (w *window) Reset() {
	w.entries = w.entries[:0]
}
