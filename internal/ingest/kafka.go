package ingest

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"

	"authwatch/internal/config"
	"authwatch/internal/logging"
)

// KafkaSource consumes raw log lines from a broker topic, one line per
// message value, and feeds them into the same pipeline as the file
// adapters.
type KafkaSource struct {
	cfg      config.KafkaConfig
	handler  LineHandler
	notifier *logging.Notifier
}

func NewKafkaSource(cfg config.KafkaConfig, handler LineHandler, notifier *logging.Notifier) *KafkaSource {
	return &KafkaSource{cfg: cfg, handler: handler, notifier: notifier}
}

func (k *KafkaSource) Run(ctx context.Context) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.cfg.Brokers,
		Topic:    k.cfg.Topic,
		GroupID:  k.cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()
	k.notifier.Info().
		Strs("brokers", k.cfg.Brokers).Str("topic", k.cfg.Topic).
		Msg("kafka source started")

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			k.notifier.Error().Err(err).Msg("kafka read error")
			if !backoffSleep(ctx, 0) {
				return nil
			}
			continue
		}
		line := strings.TrimSpace(string(m.Value))
		if line == "" {
			continue
		}
		k.handler.ProcessLine(ctx, line)
	}
}
