package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"authwatch/internal/config"
	"authwatch/internal/engine"
	"authwatch/internal/geo"
	"authwatch/internal/ingest"
	"authwatch/internal/logging"
	"authwatch/internal/storage"
)

var (
	cfgFile = "config.yml"
	mode    = ""
	debug   = false

	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "authwatch",
	Short: "Authentication-log threat detection",
	Long: `Authwatch ingests authentication log lines from watched directories,
live journal streams or a kafka topic, normalizes them across formats
(key-value, Apache/Nginx combined, sshd syslog, Windows CSV export) and
runs continuous detection: country allow-list blocking, brute force,
password spraying, distributed credential attacks and per-user login
geo anomalies. Findings are persisted and deduplicated.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start ingestion and detection",
	RunE:  run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("authwatch %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", cfgFile, "configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", debug, "enable debug logs")
	runCmd.Flags().StringVar(&mode, "mode", "", "override ingestion mode (watch|stream)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration from %s: %w", cfgFile, err)
	}
	if mode != "" {
		cfg.Mode = mode
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	if debug {
		cfg.LogLevel = "debug"
	}

	notifier, err := logging.NewNotifier(cfg.MonitorDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("opening notification sinks: %w", err)
	}
	defer notifier.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	resolver, err := geo.FromConfig(cfg.Geo, notifier)
	if err != nil {
		return err
	}

	eng := engine.New(cfg, notifier, store, resolver)
	if err := eng.Rehydrate(ctx); err != nil {
		return fmt.Errorf("loading blocked ips: %w", err)
	}

	notifier.Info().Str("mode", cfg.Mode).Msg("authwatch starting")

	var wg sync.WaitGroup
	runAdapter := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				notifier.Error().Err(err).Str("adapter", name).Msg("ingestion adapter failed")
				stop()
			}
		}()
	}

	switch cfg.Mode {
	case config.ModeWatch:
		runAdapter("watch", ingest.NewWatcher(cfg.LogDir, eng, notifier).Run)
	case config.ModeStream:
		runAdapter("stream", ingest.NewStreamer(cfg.Services, eng, notifier).Run)
	}
	if cfg.Kafka.Enabled {
		runAdapter("kafka", ingest.NewKafkaSource(cfg.Kafka, eng, notifier).Run)
	}

	<-ctx.Done()
	notifier.Info().Msg("shutting down, waiting for ingestion workers")
	wg.Wait()
	notifier.Info().Msg("authwatch stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
