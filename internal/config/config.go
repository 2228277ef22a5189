package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// SessionStore 種別
const (
	SessionStoreMemory   = "memory"
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// dotEnvFile はローカル開発用に読み込む環境変数ファイル。
const dotEnvFile = ".env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Manifest (BaaS)
	ManifestAPIURL     string        `env:"MANIFEST_API_URL" envDefault:"https://no-code-platform-backend-for-generated.onrender.com/api"`
	ManifestBackendURL string        `env:"MANIFEST_BACKEND_URL" envDefault:"https://no-code-platform-backend-for-generated.onrender.com"`
	ManifestAppID      string        `env:"MANIFEST_APP_ID" envDefault:"app_for_apples"`
	ManifestTimeout    time.Duration `env:"MANIFEST_TIMEOUT" envDefault:"30s"`
	ManifestSSRFGuard  bool          `env:"MANIFEST_SSRF_GUARD" envDefault:"true"`

	// Demo
	DemoEmail    string `env:"DEMO_EMAIL" envDefault:"user@manifest.build"`
	DemoPassword string `env:"DEMO_PASSWORD" envDefault:"password"`

	// Session
	SessionStore           string `env:"SESSION_STORE" envDefault:"memory"`
	SessionMaxAge          int    `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionCleanupSchedule string `env:"SESSION_CLEANUP_SCHEDULE" envDefault:"@every 1h"`
	DatabaseURL            string `env:"DATABASE_URL"`
	RedisURL               string `env:"REDIS_URL"`

	// Rate Limit（req/min）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitLogin   int `env:"RATE_LIMIT_LOGIN" envDefault:"10"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"appledex"`
	OTLPInsecure    bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// CORS（/api/* のみ。空の場合は同一オリジンのみ許可）
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 設定値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.ManifestAPIURL = strings.TrimSuffix(cfg.ManifestAPIURL, "/")
	cfg.ManifestBackendURL = strings.TrimSuffix(cfg.ManifestBackendURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// validate は設定値の組み合わせを検証する。
func (c *Config) validate() error {
	var missing []string

	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStorePostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case SessionStoreRedis:
		if c.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	default:
		return fmt.Errorf("unsupported SESSION_STORE: %q (allowed: memory, postgres, redis)", c.SessionStore)
	}

	if c.ManifestAPIURL == "" {
		missing = append(missing, "MANIFEST_API_URL")
	}
	if c.ManifestAppID == "" {
		missing = append(missing, "MANIFEST_APP_ID")
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive: %d", c.SessionMaxAge)
	}

	return nil
}

// AdminURL はBaaSの管理画面のURLを返す。
func (c *Config) AdminURL() string {
	return c.ManifestBackendURL + "/admin"
}

// SessionTTL はセッションの最大有効期間を返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

// SlogLevel はLOG_LEVELをslog.Levelに変換する。不明な値はInfoとして扱う。
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
