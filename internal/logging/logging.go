// Package logging provides the three-channel notification surface:
// everything is written to system.log, warnings (blocks and alerts) also
// land in alerts.log, errors also land in errors.log. A console writer
// mirrors the system channel.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

type Notifier struct {
	log     zerolog.Logger
	closers []io.Closer
}

// levelFloorWriter forwards only events at or above min.
type levelFloorWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (l levelFloorWriter) Write(p []byte) (int, error) {
	return l.w.Write(p)
}

func (l levelFloorWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < l.min {
		return len(p), nil
	}
	return l.w.Write(p)
}

// NewNotifier creates the monitoring directory and opens the per-severity
// sinks inside it.
func NewNotifier(monitorDir, level string) (*Notifier, error) {
	if err := os.MkdirAll(monitorDir, 0o755); err != nil {
		return nil, err
	}

	system, err := os.OpenFile(filepath.Join(monitorDir, "system.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	alerts, err := os.OpenFile(filepath.Join(monitorDir, "alerts.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		system.Close()
		return nil, err
	}
	errs, err := os.OpenFile(filepath.Join(monitorDir, "errors.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		system.Close()
		alerts.Close()
		return nil, err
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	sink := zerolog.MultiLevelWriter(
		system,
		levelFloorWriter{w: alerts, min: zerolog.WarnLevel},
		levelFloorWriter{w: errs, min: zerolog.ErrorLevel},
		console,
	)

	logger := zerolog.New(sink).Level(parseLevel(level)).With().Timestamp().Logger()
	return &Notifier{
		log:     logger,
		closers: []io.Closer{system, alerts, errs},
	}, nil
}

// NewNopNotifier returns a notifier that discards everything. Used by tests.
func NewNopNotifier() *Notifier {
	return &Notifier{log: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (n *Notifier) Debug() *zerolog.Event { return n.log.Debug() }
func (n *Notifier) Info() *zerolog.Event  { return n.log.Info() }
func (n *Notifier) Warn() *zerolog.Event  { return n.log.Warn() }
func (n *Notifier) Error() *zerolog.Event { return n.log.Error() }

func (n *Notifier) Close() error {
	var first error
	for _, c := range n.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
