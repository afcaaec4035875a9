// Package config loads and validates profiler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Render  RenderConfig  `mapstructure:"render"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// EngineConfig governs the verification pipeline.
type EngineConfig struct {
	Concurrency           int `mapstructure:"concurrency"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	BatchDeadlineSeconds  int `mapstructure:"batch_deadline_seconds"`
}

// RenderConfig selects and tunes the rendering backend.
type RenderConfig struct {
	// Provider is one of splash, chromedp, probe.
	Provider              string `mapstructure:"provider"`
	SplashURL             string `mapstructure:"splash_url"`
	UserAgent             string `mapstructure:"user_agent"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	MaxParallelBrowsers   int    `mapstructure:"max_parallel_browsers"`
}

// StorageConfig sets the content store backend for captures and bundles.
type StorageConfig struct {
	// Provider is one of local, gcs, memory.
	Provider  string `mapstructure:"provider"`
	DataDir   string `mapstructure:"data_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	// Provider is one of postgres, memory.
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	// Provider is one of pubsub, memory.
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROFILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("engine.concurrency", 8)
	v.SetDefault("engine.request_timeout_seconds", 10)
	v.SetDefault("engine.batch_deadline_seconds", 300)
	v.SetDefault("render.provider", "splash")
	v.SetDefault("render.user_agent",
		"Mozilla/5.0 (Windows NT 6.1; WOW64; rv:40.0) Gecko/20100101 Firefox/40.1")
	v.SetDefault("render.connect_timeout_seconds", 5)
	v.SetDefault("render.max_parallel_browsers", 2)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("pubsub.provider", "memory")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be > 0")
	}
	if c.Engine.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("engine.request_timeout_seconds must be > 0")
	}
	if c.Engine.BatchDeadlineSeconds <= c.Engine.RequestTimeoutSeconds {
		return fmt.Errorf("engine.batch_deadline_seconds must exceed the per-request timeout")
	}
	if c.Render.Provider == "splash" && c.Render.SplashURL == "" {
		return fmt.Errorf("render.splash_url must be set when render.provider is splash")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.PubSub.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
	}
	return nil
}

// RequestTimeout returns the per-site render timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Engine.RequestTimeoutSeconds) * time.Second
}

// BatchDeadline returns the overall orchestrator deadline as a duration.
func (c Config) BatchDeadline() time.Duration {
	return time.Duration(c.Engine.BatchDeadlineSeconds) * time.Second
}

// ConnectTimeout returns the render client connect timeout as a duration.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Render.ConnectTimeoutSeconds) * time.Second
}
