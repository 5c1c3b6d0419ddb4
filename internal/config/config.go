package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Push      PushConfig      `yaml:"push"`
	Session   SessionConfig   `yaml:"session"`
	State     StateConfig     `yaml:"state"`
	Control   ControlConfig   `yaml:"control"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PushConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type SessionConfig struct {
	TransitionTimeout time.Duration `yaml:"transition_timeout"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	ConsoleHistory    int           `yaml:"console_history"`
	NoticeHistory     int           `yaml:"notice_history"`
	PruneAbsentOrders *bool         `yaml:"prune_absent_orders"`
}

func (s SessionConfig) PruneAbsentOrdersValue() bool {
	if s.PruneAbsentOrders == nil {
		return true
	}
	return *s.PruneAbsentOrders
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type ControlConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

func (c ControlConfig) EnabledValue() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 50
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 14
		}
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://127.0.0.1:5000"
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 10 * time.Second
	}
	if cfg.Push.URL == "" {
		cfg.Push.URL = pushURLFromAPI(cfg.API.BaseURL)
	}
	if cfg.Push.ReconnectDelay == 0 {
		cfg.Push.ReconnectDelay = 3 * time.Second
	}
	if cfg.Push.PingInterval == 0 {
		cfg.Push.PingInterval = 25 * time.Second
	}
	if cfg.Session.TransitionTimeout == 0 {
		cfg.Session.TransitionTimeout = 8 * time.Second
	}
	if cfg.Session.TickInterval == 0 {
		cfg.Session.TickInterval = time.Second
	}
	if cfg.Session.ConsoleHistory == 0 {
		cfg.Session.ConsoleHistory = 500
	}
	if cfg.Session.NoticeHistory == 0 {
		cfg.Session.NoticeHistory = 20
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/bot-panel.db"
	}
	if cfg.Control.ListenAddr == "" {
		cfg.Control.ListenAddr = "127.0.0.1:8080"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if dsn := strings.TrimSpace(os.Getenv("PANEL_TIMESCALE_DSN")); dsn != "" && cfg.Timescale.DSN == "" {
		cfg.Timescale.DSN = dsn
	}
}

func validate(cfg *Config) error {
	if _, err := url.ParseRequestURI(cfg.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if !strings.HasPrefix(cfg.Push.URL, "ws://") && !strings.HasPrefix(cfg.Push.URL, "wss://") {
		return errors.New("push.url must use ws:// or wss://")
	}
	if cfg.API.Timeout < 0 {
		return errors.New("api.timeout must be >= 0")
	}
	if cfg.Push.ReconnectDelay < 0 || cfg.Push.PingInterval < 0 {
		return errors.New("push intervals must be >= 0")
	}
	if cfg.Session.TransitionTimeout <= 0 {
		return errors.New("session.transition_timeout must be > 0")
	}
	if cfg.Session.TickInterval <= 0 {
		return errors.New("session.tick_interval must be > 0")
	}
	if cfg.Session.ConsoleHistory < 0 || cfg.Session.NoticeHistory < 0 {
		return errors.New("session history sizes must be >= 0")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Telegram.OperatorEnabled && !cfg.Telegram.Enabled {
		return errors.New("telegram.operator_enabled requires telegram.enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

func pushURLFromAPI(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base
	}
}
