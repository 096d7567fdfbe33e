package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 儲存 HTTP API、背景 worker 及外部相依的執行設定。
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	DB       DBConfig       `yaml:"db"`
	Auth     AuthConfig     `yaml:"auth"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Notifier NotifierConfig `yaml:"notifier"`
	Sources  []SourceConfig `yaml:"sources"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      int      `yaml:"rate_limit"` // 每分鐘每 IP 請求數，0 代表不限制
}

type DBConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	MaxIdleTime  time.Duration `yaml:"max_idle_time"`
}

type AuthConfig struct {
	TokenTTL time.Duration `yaml:"token_ttl"`
	Secret   string        `yaml:"secret"`
}

type ScannerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	Workers      int           `yaml:"workers"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	DealTTL      time.Duration `yaml:"deal_ttl"`
	Synthetic    bool          `yaml:"synthetic"` // 沒有設定來源時註冊示範來源
}

type AlertsConfig struct {
	DrainInterval  time.Duration `yaml:"drain_interval"`
	BatchSize      int           `yaml:"batch_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	MatchWorkers   int           `yaml:"match_workers"`
	MatchQueue     int           `yaml:"match_queue"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
}

type NotifierConfig struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type TelegramConfig struct {
	Enabled bool             `yaml:"enabled"`
	Token   string           `yaml:"token"`
	ChatID  int64            `yaml:"chat_id"`
	ChatIDs map[string]int64 `yaml:"chat_ids"` // user_id → chat_id
	Prefix  string           `yaml:"prefix"`
}

type WebSocketConfig struct {
	Enabled    bool          `yaml:"enabled"`
	PingPeriod time.Duration `yaml:"ping_period"`
}

// SourceConfig 為啟動時註冊的來源。
type SourceConfig struct {
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind"`
	BaseURL      string            `yaml:"base_url"`
	Endpoint     string            `yaml:"endpoint"`
	Currency     string            `yaml:"currency"`
	Active       *bool             `yaml:"active"`
	Priority     int               `yaml:"priority"`
	Categories   []string          `yaml:"categories"`
	ScanInterval time.Duration     `yaml:"scan_interval"`
	Metadata     map[string]string `yaml:"metadata"`
}

// IsActive 未設定時視為啟用。
func (s SourceConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// LoadFromFile 從 YAML 組態檔載入設定。
func LoadFromFile(path string) (Config, error) {
	// 嘗試載入 .env 檔案（如果存在）
	_ = godotenv.Load()

	cfg := Config{
		Scanner:  ScannerConfig{Enabled: true, Synthetic: true},
		Notifier: NotifierConfig{WebSocket: WebSocketConfig{Enabled: true}},
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg = applyDefaults(cfg)
	cfg = applyEnv(cfg)
	return cfg, nil
}

// WithDefaults 補齊未設定的欄位，供未經 LoadFromFile 建立的設定使用。
func WithDefaults(cfg Config) Config {
	return applyDefaults(cfg)
}

func applyDefaults(cfg Config) Config {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
	if cfg.DB.MaxOpenConns == 0 {
		cfg.DB.MaxOpenConns = 10
	}
	if cfg.DB.MaxIdleConns == 0 {
		cfg.DB.MaxIdleConns = 2
	}
	if cfg.DB.MaxIdleTime == 0 {
		cfg.DB.MaxIdleTime = 15 * time.Minute
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 12 * time.Hour
	}
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = "dev-secret-change-me"
	}
	if cfg.Scanner.Interval == 0 {
		cfg.Scanner.Interval = 30 * time.Minute
	}
	if cfg.Scanner.Workers == 0 {
		cfg.Scanner.Workers = 4
	}
	if cfg.Scanner.FetchTimeout == 0 {
		cfg.Scanner.FetchTimeout = 30 * time.Second
	}
	if cfg.Scanner.DealTTL == 0 {
		cfg.Scanner.DealTTL = 7 * 24 * time.Hour
	}
	if cfg.Alerts.DrainInterval == 0 {
		cfg.Alerts.DrainInterval = 2 * time.Minute
	}
	if cfg.Alerts.BatchSize == 0 {
		cfg.Alerts.BatchSize = 100
	}
	if cfg.Alerts.MaxAttempts == 0 {
		cfg.Alerts.MaxAttempts = 5
	}
	if cfg.Alerts.MatchWorkers == 0 {
		cfg.Alerts.MatchWorkers = 4
	}
	if cfg.Alerts.MatchQueue == 0 {
		cfg.Alerts.MatchQueue = 256
	}
	if cfg.Alerts.EnqueueTimeout == 0 {
		cfg.Alerts.EnqueueTimeout = 5 * time.Second
	}
	if cfg.Notifier.WebSocket.PingPeriod == 0 {
		cfg.Notifier.WebSocket.PingPeriod = 30 * time.Second
	}
	return cfg
}

func applyEnv(cfg Config) Config {
	if val := os.Getenv("HTTP_ADDR"); val != "" {
		cfg.HTTP.Addr = val
	}
	if val := os.Getenv("PORT"); val != "" {
		cfg.HTTP.Addr = ":" + val
	}
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		cfg.HTTP.AllowedOrigins = splitList(val)
	}
	if val := os.Getenv("DB_DSN"); val != "" {
		cfg.DB.DSN = val
	}
	if val := os.Getenv("AUTH_SECRET"); val != "" {
		cfg.Auth.Secret = val
	}
	if val := os.Getenv("SCANNER_ENABLED"); val != "" {
		cfg.Scanner.Enabled = (val == "true")
	}
	if val := os.Getenv("SCAN_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Scanner.Interval = d
		}
	}
	if val := os.Getenv("USE_SYNTHETIC"); val != "" {
		cfg.Scanner.Synthetic = (val == "true")
	}
	if val := os.Getenv("DRAIN_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Alerts.DrainInterval = d
		}
	}
	if val := os.Getenv("TELEGRAM_TOKEN"); val != "" {
		cfg.Notifier.Telegram.Token = val
	}
	if val := os.Getenv("TELEGRAM_CHAT_ID"); val != "" {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Notifier.Telegram.ChatID = id
		}
	}
	if val := os.Getenv("TELEGRAM_ENABLED"); val != "" {
		cfg.Notifier.Telegram.Enabled = (val == "true")
	}
	if val := os.Getenv("WEBSOCKET_ENABLED"); val != "" {
		cfg.Notifier.WebSocket.Enabled = (val == "true")
	}
	return cfg
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
