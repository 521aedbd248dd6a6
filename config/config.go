package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Terminal  TerminalConfig  `yaml:"terminal"`
	Logging   LoggingConfig   `yaml:"logging"`
	Backend   BackendConfig   `yaml:"backend"`
	Streaming StreamingConfig `yaml:"streaming"`
	Market    MarketConfig    `yaml:"market"`
	Defaults  SelectionConfig `yaml:"defaults"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type TerminalConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type BackendConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type StreamingConfig struct {
	Enabled           bool              `yaml:"enabled"`
	ReconnectInterval time.Duration     `yaml:"reconnect_interval"`
	Keepalive         time.Duration     `yaml:"keepalive"`
	HandshakeTimeout  time.Duration     `yaml:"handshake_timeout"`
	StaleAfter        time.Duration     `yaml:"stale_after"`
	MaxPairs          int               `yaml:"max_pairs"`
	EventBuffer       int               `yaml:"event_buffer"`
	Endpoints         map[string]string `yaml:"endpoints"`
}

type MarketConfig struct {
	PairsRefreshInterval time.Duration `yaml:"pairs_refresh_interval"`
}

// SelectionConfig seeds the terminal selection at startup.
type SelectionConfig struct {
	Mode         string   `yaml:"mode"`
	MarketType   string   `yaml:"market_type"`
	Exchange     string   `yaml:"exchange"`
	Aggregate    bool     `yaml:"aggregate"`
	AggExchanges []string `yaml:"agg_exchanges"`
	Pair         string   `yaml:"pair"`
	Timeframe    string   `yaml:"timeframe"`
	HistoryDays  int      `yaml:"history_days"`
	VisibleDays  int      `yaml:"visible_days"`
	VolumeFilter string   `yaml:"volume_filter"`
	ChangeFilter string   `yaml:"change_filter"`
}

type DashboardConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"`
	LogHistory     int           `yaml:"log_history"`
	MetricsHistory int           `yaml:"metrics_history"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

type MetricsConfig struct {
	ChannelSize         bool             `yaml:"channel_size"`
	FetchLatency        bool             `yaml:"fetch_latency"`
	ChannelSizeInterval time.Duration    `yaml:"channel_size_interval"`
	ReportInterval      time.Duration    `yaml:"report_interval"`
	CloudWatch          CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

// Default returns the configuration used when a field is absent from the file.
func Default() Config {
	return Config{
		Terminal: TerminalConfig{Name: "cryptoterm", Version: "dev"},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8000",
			Timeout:           10 * time.Second,
			UserAgent:         "cryptoterm/1.0",
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Streaming: StreamingConfig{
			Enabled:           true,
			ReconnectInterval: 5 * time.Second,
			Keepalive:         20 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			MaxPairs:          60,
			EventBuffer:       4096,
		},
		Market: MarketConfig{PairsRefreshInterval: 2 * time.Minute},
		Defaults: SelectionConfig{
			Mode:         "live",
			MarketType:   "perp",
			Exchange:     "binance",
			AggExchanges: []string{"binance", "okx", "bybit"},
			Pair:         "BTC/USDT",
			Timeframe:    "1m",
			HistoryDays:  3,
			VisibleDays:  2,
			VolumeFilter: "all",
			ChangeFilter: "all",
		},
		Dashboard: DashboardConfig{
			Enabled:        true,
			Address:        "127.0.0.1:8080",
			LogHistory:     200,
			MetricsHistory: 200,
			SampleInterval: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			ChannelSize:         true,
			FetchLatency:        true,
			ChannelSizeInterval: 10 * time.Second,
			ReportInterval:      time.Minute,
			CloudWatch:          CloudWatchConfig{Namespace: "CryptoTerm", Dashboard: "CryptoTerm"},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, map[string]string{
		environmentProduction: "config/config.production.yml",
		environmentStaging:    "config/config.staging.yml",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// DefaultPath is the config file read when no -config flag is given.
const DefaultPath = "config/config.yml"

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = strings.TrimSpace(v)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
}

func validateConfig(cfg *Config) error {
	if cfg.Terminal.Name == "" {
		return fmt.Errorf("terminal.name is required")
	}

	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url '%s' is invalid", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be greater than 0")
	}
	if cfg.Backend.RequestsPerSecond <= 0 {
		return fmt.Errorf("backend.requests_per_second must be greater than 0")
	}
	if cfg.Backend.Burst <= 0 {
		return fmt.Errorf("backend.burst must be greater than 0")
	}

	if cfg.Streaming.ReconnectInterval <= 0 {
		return fmt.Errorf("streaming.reconnect_interval must be greater than 0")
	}
	if cfg.Streaming.MaxPairs <= 0 {
		return fmt.Errorf("streaming.max_pairs must be greater than 0")
	}
	if cfg.Streaming.EventBuffer <= 0 {
		return fmt.Errorf("streaming.event_buffer must be greater than 0")
	}
	if cfg.Streaming.StaleAfter < 0 {
		return fmt.Errorf("streaming.stale_after must not be negative")
	}
	for ex, endpoint := range cfg.Streaming.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("streaming.endpoints.%s '%s' must be a ws:// or wss:// url", ex, endpoint)
		}
	}

	if cfg.Market.PairsRefreshInterval <= 0 {
		return fmt.Errorf("market.pairs_refresh_interval must be greater than 0")
	}

	if cfg.Defaults.HistoryDays <= 0 {
		return fmt.Errorf("defaults.history_days must be greater than 0")
	}
	if cfg.Defaults.VisibleDays <= 0 {
		return fmt.Errorf("defaults.visible_days must be greater than 0")
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
	}

	return nil
}
