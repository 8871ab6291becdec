package ingest

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"sync"

	"authwatch/internal/logging"
)

// Streamer follows the live journal of each configured service with one
// long-lived subprocess per service, starting from "now". Feeds are
// independent: a dead subprocess stops only its own stream.
type Streamer struct {
	services []string
	handler  LineHandler
	notifier *logging.Notifier

	command func(ctx context.Context, service string) *exec.Cmd
}

func NewStreamer(services []string, handler LineHandler, notifier *logging.Notifier) *Streamer {
	return &Streamer{
		services: services,
		handler:  handler,
		notifier: notifier,
		command: func(ctx context.Context, service string) *exec.Cmd {
			return exec.CommandContext(ctx, "journalctl", "-fu", service, "-n", "0")
		},
	}
}

// Run starts one worker per service and blocks until all of them have
// ended, either by subprocess exit or by context cancellation.
func (s *Streamer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, service := range s.services {
		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			s.follow(ctx, service)
		}(service)
	}
	wg.Wait()
	return nil
}

func (s *Streamer) follow(ctx context.Context, service string) {
	cmd := s.command(ctx, service)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.notifier.Error().Err(err).Str("service", service).Msg("journal pipe failed")
		return
	}
	if err := cmd.Start(); err != nil {
		s.notifier.Error().Err(err).Str("service", service).Msg("starting journal stream failed")
		return
	}
	s.notifier.Info().Str("service", service).Msg("journal stream started")

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.handler.ProcessLine(ctx, line)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.notifier.Error().Err(err).Str("service", service).Msg("journal stream read error")
	}

	// Give the subprocess the chance to flush and exit; after cancel
	// this reaps the killed process.
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		s.notifier.Error().Err(err).Str("service", service).Msg("journal stream ended")
	} else {
		s.notifier.Info().Str("service", service).Msg("journal stream stopped")
	}
}
