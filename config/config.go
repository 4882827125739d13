// Package config loads the dispatcher's startup configuration. The core is
// entirely environment-variable driven (SPEC_FULL.md §6), so this wraps
// viper's env-binding support rather than its file-based config loading -
// the same library, applied to the surface this service actually needs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved startup configuration for the dispatcher
// process.
type Config struct {
	QueueURL              string
	RecordStoreURL        string
	ScratchVolumeName     string
	ScratchHostPath       string
	SandboxRuntimeSocket  string
	DispatcherConcurrency int
	LogLevel              string
}

// Load reads configuration from the environment, applying the defaults
// named in SPEC_FULL.md §6, and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("scratch_volume_name", "rce-executions")
	v.SetDefault("scratch_host_path", "/tmp/executions")
	v.SetDefault("dispatcher_concurrency", 1)
	v.SetDefault("log_level", "info")

	cfg := &Config{
		QueueURL:              firstNonEmpty(v.GetString("queue_url"), v.GetString("redis_url"), "redis://localhost:6379"),
		RecordStoreURL:        resolveRecordStoreURL(v),
		ScratchVolumeName:     v.GetString("scratch_volume_name"),
		ScratchHostPath:       v.GetString("scratch_host_path"),
		SandboxRuntimeSocket:  v.GetString("sandbox_runtime_socket"),
		DispatcherConcurrency: v.GetInt("dispatcher_concurrency"),
		LogLevel:              v.GetString("log_level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// resolveRecordStoreURL prefers a single connection string, falling back to
// the discrete DB_* variables this codebase's submission API already uses
// so both halves of the platform can share one .env file.
func resolveRecordStoreURL(v *viper.Viper) string {
	if url := v.GetString("record_store_url"); url != "" {
		return url
	}

	host := firstNonEmpty(v.GetString("db_host"), "localhost")
	port := v.GetInt("db_port")
	if port == 0 {
		port = 5432
	}
	user := firstNonEmpty(v.GetString("db_user"), "rce")
	password := v.GetString("db_password")
	dbname := firstNonEmpty(v.GetString("db_name"), "rce")

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

func (c *Config) validate() error {
	if c.DispatcherConcurrency <= 0 {
		return fmt.Errorf("dispatcher_concurrency must be positive, got %d", c.DispatcherConcurrency)
	}
	if c.ScratchHostPath == "" {
		return fmt.Errorf("scratch_host_path must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

// ShutdownGrace is the window in-flight jobs get to unwind through cleanup
// after a termination signal, per SPEC_FULL.md §4.5.
const ShutdownGrace = 2 * time.Second

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
