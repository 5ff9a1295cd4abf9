package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pressleaf/biblio/pkg/observability"
)

// fileOverlay mirrors the subset of Config that can be tuned from the
// overlay file. Pointer fields distinguish absent keys from zero values
// so the file only overrides what it actually sets. Secrets stay in the
// environment.
type fileOverlay struct {
	Server struct {
		Host            *string `yaml:"host"`
		Port            *string `yaml:"port"`
		HealthPort      *string `yaml:"health_port"`
		ReadTimeout     *string `yaml:"read_timeout"`
		WriteTimeout    *string `yaml:"write_timeout"`
		IdleTimeout     *string `yaml:"idle_timeout"`
		ShutdownTimeout *string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	LogLevel *string `yaml:"log_level"`

	RateLimit struct {
		Enabled           *bool `yaml:"enabled"`
		RequestsPerMinute *int  `yaml:"requests_per_minute"`
		Burst             *int  `yaml:"burst"`
	} `yaml:"rate_limit"`

	Stats struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"stats"`

	Audit struct {
		Enabled  *bool   `yaml:"enabled"`
		FilePath *string `yaml:"file_path"`
	} `yaml:"audit"`

	Webhooks struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"webhooks"`
}

// ApplyFile overlays settings from a YAML file onto the configuration.
// Only keys present in the file are applied.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return c.apply(&overlay)
}

func (c *Config) apply(o *fileOverlay) error {
	if o.Server.Host != nil {
		c.Server.Host = *o.Server.Host
	}
	if o.Server.Port != nil {
		c.Server.Port = *o.Server.Port
	}
	if o.Server.HealthPort != nil {
		c.Server.HealthPort = *o.Server.HealthPort
	}
	if err := overlayDuration(&c.Server.ReadTimeout, o.Server.ReadTimeout, "server.read_timeout"); err != nil {
		return err
	}
	if err := overlayDuration(&c.Server.WriteTimeout, o.Server.WriteTimeout, "server.write_timeout"); err != nil {
		return err
	}
	if err := overlayDuration(&c.Server.IdleTimeout, o.Server.IdleTimeout, "server.idle_timeout"); err != nil {
		return err
	}
	if err := overlayDuration(&c.Server.ShutdownTimeout, o.Server.ShutdownTimeout, "server.shutdown_timeout"); err != nil {
		return err
	}

	if o.LogLevel != nil {
		level, err := observability.ParseLevel(*o.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level: %w", err)
		}
		c.Observability.LogLevel = level
	}

	if o.RateLimit.Enabled != nil {
		c.RateLimit.Enabled = *o.RateLimit.Enabled
	}
	if o.RateLimit.RequestsPerMinute != nil {
		c.RateLimit.RequestsPerMinute = *o.RateLimit.RequestsPerMinute
	}
	if o.RateLimit.Burst != nil {
		c.RateLimit.Burst = *o.RateLimit.Burst
	}

	if o.Stats.Enabled != nil {
		c.Stats.Enabled = *o.Stats.Enabled
	}

	if o.Audit.Enabled != nil {
		c.Audit.Enabled = *o.Audit.Enabled
	}
	if o.Audit.FilePath != nil {
		c.Audit.FilePath = *o.Audit.FilePath
	}

	if o.Webhooks.Enabled != nil {
		c.Webhooks.Enabled = *o.Webhooks.Enabled
	}

	return nil
}

// overlayDuration parses a duration string from the overlay file into dst
func overlayDuration(dst *time.Duration, src *string, key string) error {
	if src == nil {
		return nil
	}

	duration, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	*dst = duration
	return nil
}

// FileLogLevel reads only the log_level key from an overlay file. The
// second return value reports whether the key was present.
func FileLogLevel(path string) (observability.LogLevel, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return observability.InfoLevel, false, fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return observability.InfoLevel, false, fmt.Errorf("failed to parse config file: %w", err)
	}

	if overlay.LogLevel == nil {
		return observability.InfoLevel, false, nil
	}

	level, err := observability.ParseLevel(*overlay.LogLevel)
	if err != nil {
		return observability.InfoLevel, false, err
	}

	return level, true, nil
}
