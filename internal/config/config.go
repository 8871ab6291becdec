package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ModeWatch  = "watch"
	ModeStream = "stream"
)

type Config struct {
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogDir     string `json:"log_dir" yaml:"log_dir"`
	MonitorDir string `json:"monitor_dir" yaml:"monitor_dir"`

	// Mode selects the ingestion adapter: "watch" tails *.log files in
	// LogDir on modification, "stream" follows the journal of Services.
	Mode     string   `json:"mode" yaml:"mode"`
	Services []string `json:"services" yaml:"services"`

	AllowedCountries []string        `json:"allowed_countries" yaml:"allowed_countries"`
	BruteForce       BruteForceConfig `json:"brute_force" yaml:"brute_force"`
	Attack           AttackConfig    `json:"attack" yaml:"attack"`
	Geo              GeoConfig       `json:"geo" yaml:"geo"`
	Storage          StorageConfig   `json:"storage" yaml:"storage"`
	Kafka            KafkaConfig     `json:"kafka" yaml:"kafka"`

	ChannelBuffer int `json:"channel_buffer" yaml:"channel_buffer"`
}

type BruteForceConfig struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
}

type AttackConfig struct {
	Window                 time.Duration `json:"window" yaml:"window"`
	SprayUserThreshold     int           `json:"spray_user_threshold" yaml:"spray_user_threshold"`
	DistributedIPThreshold int           `json:"distributed_ip_threshold" yaml:"distributed_ip_threshold"`
}

type GeoConfig struct {
	Provider string        `json:"provider" yaml:"provider"`
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	MMDBPath string        `json:"mmdb_path" yaml:"mmdb_path"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:   "info",
		LogDir:     "./logs",
		MonitorDir: "./monitoring",
		Mode:       ModeWatch,
		AllowedCountries: []string{
			"BRAZIL", "UNITED STATES", "RUSSIAN FEDERATION", "CHINA", "GERMANY", "INDIA",
		},
		BruteForce: BruteForceConfig{Limit: 5, Window: 60 * time.Second},
		Attack: AttackConfig{
			Window:                 120 * time.Second,
			SprayUserThreshold:     10,
			DistributedIPThreshold: 10,
		},
		Geo: GeoConfig{
			Provider: "http",
			Endpoint: "https://ipinfo.io",
			Timeout:  3 * time.Second,
		},
		Storage:       StorageConfig{Driver: "sqlite", DSN: "file:authwatch.db?_pragma=busy_timeout(5000)"},
		Kafka:         KafkaConfig{Enabled: false},
		ChannelBuffer: 1024,
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeWatch
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1024
	}
	if cfg.BruteForce.Limit <= 0 {
		cfg.BruteForce.Limit = 5
	}
	if cfg.BruteForce.Window <= 0 {
		cfg.BruteForce.Window = 60 * time.Second
	}
	if cfg.Attack.Window <= 0 {
		cfg.Attack.Window = 120 * time.Second
	}
	if cfg.Attack.SprayUserThreshold <= 0 {
		cfg.Attack.SprayUserThreshold = 10
	}
	if cfg.Attack.DistributedIPThreshold <= 0 {
		cfg.Attack.DistributedIPThreshold = 10
	}
	if cfg.Geo.Provider == "" {
		cfg.Geo.Provider = "http"
	}
	if cfg.Geo.Timeout <= 0 {
		cfg.Geo.Timeout = 3 * time.Second
	}
	if cfg.Geo.Provider == "http" && cfg.Geo.Endpoint == "" {
		cfg.Geo.Endpoint = "https://ipinfo.io"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
}

func Validate(cfg *Config) error {
	switch cfg.Mode {
	case ModeWatch:
		if cfg.LogDir == "" {
			return errors.New("log_dir required in watch mode")
		}
	case ModeStream:
		if len(cfg.Services) == 0 {
			return errors.New("services required in stream mode")
		}
	default:
		return fmt.Errorf("unknown mode %q (want %q or %q)", cfg.Mode, ModeWatch, ModeStream)
	}
	if cfg.MonitorDir == "" {
		return errors.New("monitor_dir is required")
	}
	if len(cfg.AllowedCountries) == 0 {
		return errors.New("allowed_countries must not be empty")
	}
	switch cfg.Geo.Provider {
	case "http":
		if cfg.Geo.Endpoint == "" {
			return errors.New("geo.endpoint required when geo.provider is http")
		}
	case "mmdb":
		if cfg.Geo.MMDBPath == "" {
			return errors.New("geo.mmdb_path required when geo.provider is mmdb")
		}
	default:
		return fmt.Errorf("unknown geo.provider %q", cfg.Geo.Provider)
	}
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" || cfg.Kafka.GroupID == "" {
			return errors.New("kafka requires brokers, topic, group_id")
		}
	}
	return nil
}
