package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/roach88/frontdesk/internal/recordlog"
)

// Validate checks the loaded values. Load calls it automatically.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Data.Dir) == "" {
		return fmt.Errorf("data.dir is required")
	}
	for name, v := range map[string]string{
		"data.log_file":  c.Data.LogFile,
		"data.id_file":   c.Data.IDFile,
		"data.turn_file": c.Data.TurnFile,
	} {
		if err := validateFileName(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Data.IDFile == c.Data.TurnFile {
		return fmt.Errorf("data.id_file and data.turn_file must differ (both %q)", c.Data.IDFile)
	}
	if _, err := recordlog.ParseLoadPolicy(c.Data.LoadPolicy); err != nil {
		return fmt.Errorf("data.load_policy: %w", err)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("desk.timezone: %w", err)
	}

	if err := c.Mirror.validate(); err != nil {
		return fmt.Errorf("mirror: %w", err)
	}

	if c.Ticket.Width < 20 || c.Ticket.Width > 80 {
		return fmt.Errorf("ticket.width must be between 20 and 80 (got %d)", c.Ticket.Width)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

func (m *MirrorConfig) validate() error {
	if !m.Disabled && strings.TrimSpace(m.Outbox) == "" {
		return fmt.Errorf("outbox is required unless disabled")
	}
	if m.URL != "" {
		u, err := url.Parse(m.URL)
		if err != nil {
			return fmt.Errorf("url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("url must be http or https (got %q)", m.URL)
		}
	}
	if m.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %v)", m.Timeout)
	}
	if m.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", m.BatchSize)
	}
	if m.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 (got %v)", m.Interval)
	}
	if m.MaxBackoff < m.Interval {
		return fmt.Errorf("max_backoff must be >= interval (got %v < %v)", m.MaxBackoff, m.Interval)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

func validateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("must not be empty")
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("must be a bare file name (got %q)", name)
	}
	return nil
}
