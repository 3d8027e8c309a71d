package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Resolution order, highest first:
// command-line flags, BINWATCH_* environment variables, the optional YAML
// config file, built-in defaults.
type Config struct {
	ListenPort     int     `yaml:"listen_port"`
	BrokerURL      string  `yaml:"broker_url"`
	Topic          string  `yaml:"topic"`
	DataDir        string  `yaml:"data_dir"`
	DatabasePath   string  `yaml:"database_path"`
	PushGatewayURL string  `yaml:"push_gateway_url"`
	PushTimeoutSec int     `yaml:"push_timeout_seconds"`
	AlertThreshold float64 `yaml:"alert_threshold"`
}

func defaults() Config {
	return Config{
		ListenPort:     8080,
		BrokerURL:      "tcp://localhost:1883",
		Topic:          "binwatch/telemetry",
		DataDir:        "data",
		DatabasePath:   "data/binwatch.db",
		PushGatewayURL: "http://localhost:9000/send",
		PushTimeoutSec: 10,
		AlertThreshold: 80,
	}
}

// PushTimeout returns the push dispatch bound as a duration.
func (c Config) PushTimeout() time.Duration {
	return time.Duration(c.PushTimeoutSec) * time.Second
}

// Load resolves the configuration from args (without the program name).
func Load(args []string) (Config, error) {
	cfg := defaults()

	fs := pflag.NewFlagSet("binwatchd", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	port := fs.Int("port", cfg.ListenPort, "HTTP listen port")
	broker := fs.String("broker", cfg.BrokerURL, "MQTT broker URL (empty disables MQTT ingest)")
	topic := fs.String("topic", cfg.Topic, "MQTT telemetry topic")
	dataDir := fs.String("data-dir", cfg.DataDir, "directory for the telemetry segment")
	dbPath := fs.String("db", cfg.DatabasePath, "sqlite database path for sessions and tokens")
	pushURL := fs.String("push-gateway", cfg.PushGatewayURL, "push gateway endpoint")
	pushTimeout := fs.Int("push-timeout", cfg.PushTimeoutSec, "push dispatch timeout in seconds")
	threshold := fs.Float64("alert-threshold", cfg.AlertThreshold, "fill level that triggers a bin-full alert")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		if err := loadFile(*configPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	// Flags win, but only the ones actually set.
	if fs.Changed("port") {
		cfg.ListenPort = *port
	}
	if fs.Changed("broker") {
		cfg.BrokerURL = *broker
	}
	if fs.Changed("topic") {
		cfg.Topic = *topic
	}
	if fs.Changed("data-dir") {
		cfg.DataDir = *dataDir
	}
	if fs.Changed("db") {
		cfg.DatabasePath = *dbPath
	}
	if fs.Changed("push-gateway") {
		cfg.PushGatewayURL = *pushURL
	}
	if fs.Changed("push-timeout") {
		cfg.PushTimeoutSec = *pushTimeout
	}
	if fs.Changed("alert-threshold") {
		cfg.AlertThreshold = *threshold
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("BINWATCH_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ListenPort = n
		}
	}
	if v, ok := os.LookupEnv("BINWATCH_BROKER"); ok {
		cfg.BrokerURL = v
	}
	if v, ok := os.LookupEnv("BINWATCH_TOPIC"); ok {
		cfg.Topic = v
	}
	if v, ok := os.LookupEnv("BINWATCH_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("BINWATCH_DB"); ok {
		cfg.DatabasePath = v
	}
	if v, ok := os.LookupEnv("BINWATCH_PUSH_GATEWAY"); ok {
		cfg.PushGatewayURL = v
	}
	if v, ok := os.LookupEnv("BINWATCH_PUSH_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PushTimeoutSec = n
		}
	}
	if v, ok := os.LookupEnv("BINWATCH_ALERT_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AlertThreshold = f
		}
	}
}
