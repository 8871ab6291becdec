package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"authwatch/internal/logging"
)

// Watcher tails *.log files in a single directory (non-recursive).
// Each file carries a byte offset; on a modification event only the new
// complete lines past that offset are forwarded. A partial trailing line
// stays unconsumed until a later write terminates it.
type Watcher struct {
	dir      string
	handler  LineHandler
	notifier *logging.Notifier

	mu      sync.Mutex
	offsets map[string]int64
}

func NewWatcher(dir string, handler LineHandler, notifier *logging.Notifier) *Watcher {
	return &Watcher{
		dir:      dir,
		handler:  handler,
		notifier: notifier,
		offsets:  make(map[string]int64),
	}
}

// Run blocks until ctx is cancelled. Failure to watch the configured
// directory is a startup error; per-file read errors are isolated.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.notifier.Info().Str("dir", w.dir).Msg("directory watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".log") {
				continue
			}
			w.consume(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.notifier.Error().Err(err).Msg("filesystem watcher error")
		}
	}
}

func (w *Watcher) consume(ctx context.Context, path string) {
	lines, err := w.readNewLines(path)
	if err != nil {
		w.notifier.Error().Err(err).Str("file", filepath.Base(path)).Msg("reading log file failed")
		return
	}
	for _, line := range lines {
		if ctx.Err() != nil {
			return
		}
		w.handler.ProcessLine(ctx, line)
	}
}

// readNewLines reads whole lines past the stored offset and advances the
// offset to the end of the last complete line. A truncated file resets
// the offset to zero.
func (w *Watcher) readNewLines(path string) ([]string, error) {
	w.mu.Lock()
	offset := w.offsets[path]
	w.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if stat, err := f.Stat(); err != nil {
		return nil, err
	} else if stat.Size() < offset {
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		return nil, nil
	}
	consumed := data[:last+1]

	var lines []string
	for _, raw := range bytes.Split(consumed, []byte("\n")) {
		if line := strings.TrimSpace(string(raw)); line != "" {
			lines = append(lines, line)
		}
	}

	w.mu.Lock()
	w.offsets[path] = offset + int64(len(consumed))
	w.mu.Unlock()
	return lines, nil
}
