// Package ingest holds the raw-line producers: a directory watcher,
// a journal streamer and an optional kafka source. All of them feed the
// same pipeline entry point and share one cancellation context.
package ingest

import (
	"context"
	"time"
)

// LineHandler receives one complete raw line. Implemented by the
// detection engine.
type LineHandler interface {
	ProcessLine(ctx context.Context, line string)
}

func backoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
