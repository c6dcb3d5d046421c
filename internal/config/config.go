// Package config loads desk settings from an optional YAML file and the
// environment.
package config

import (
	"path/filepath"
	"time"
)

// EnvPath names the variable that points at the config file.
const EnvPath = "FRONTDESK_CONFIG"

// DefaultPath is tried when neither --config nor EnvPath is set.
const DefaultPath = "./frontdesk.yaml"

// Config is the root configuration.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Desk    DeskConfig    `yaml:"desk"`
	Mirror  MirrorConfig  `yaml:"mirror"`
	Catalog CatalogConfig `yaml:"catalog"`
	Ticket  TicketConfig  `yaml:"ticket"`
	Log     LogConfig     `yaml:"log"`
}

// DataConfig locates the durable state.
type DataConfig struct {
	Dir        string `yaml:"dir"         env:"FRONTDESK_DATA_DIR"    env-default:"./data"`
	LogFile    string `yaml:"log_file"    env:"FRONTDESK_LOG_FILE"    env-default:"registros.tsv"`
	IDFile     string `yaml:"id_file"     env:"FRONTDESK_ID_FILE"     env-default:"last_id"`
	TurnFile   string `yaml:"turn_file"   env:"FRONTDESK_TURN_FILE"   env-default:"turn"`
	LoadPolicy string `yaml:"load_policy" env:"FRONTDESK_LOAD_POLICY" env-default:"strict"`
}

// DeskConfig describes where the desk is.
type DeskConfig struct {
	// Timezone is an IANA name or "Local". Turn dates use it.
	Timezone string `yaml:"timezone" env:"FRONTDESK_TIMEZONE" env-default:"Local"`
}

// MirrorConfig controls the spreadsheet mirror.
type MirrorConfig struct {
	// Disabled stops registrations from being queued. A zero value in YAML
	// cannot override a true default, so the switch is negative.
	Disabled  bool          `yaml:"disabled"    env:"FRONTDESK_MIRROR_DISABLED"`
	Outbox    string        `yaml:"outbox"      env:"FRONTDESK_MIRROR_OUTBOX"      env-default:"outbox.db"`
	URL       string        `yaml:"url"         env:"FRONTDESK_MIRROR_URL"`
	Sheet     string        `yaml:"sheet"       env:"FRONTDESK_MIRROR_SHEET"       env-default:"Hoja1!A:H"`
	Timeout   time.Duration `yaml:"timeout"     env:"FRONTDESK_MIRROR_TIMEOUT"     env-default:"15s"`
	BatchSize int           `yaml:"batch_size"  env:"FRONTDESK_MIRROR_BATCH_SIZE"  env-default:"50"`

	// Interval and MaxBackoff pace "mirror watch": it drains every Interval
	// and backs off up to MaxBackoff while the sheet keeps failing.
	Interval   time.Duration `yaml:"interval"    env:"FRONTDESK_MIRROR_INTERVAL"    env-default:"30s"`
	MaxBackoff time.Duration `yaml:"max_backoff" env:"FRONTDESK_MIRROR_MAX_BACKOFF" env-default:"5m"`
}

// CatalogConfig locates the suggestion lists.
type CatalogConfig struct {
	Path string `yaml:"path" env:"FRONTDESK_CATALOG" env-default:"catalog.yaml"`
}

// TicketConfig controls the printed receipt.
type TicketConfig struct {
	Width  int    `yaml:"width"  env:"FRONTDESK_TICKET_WIDTH"  env-default:"32"`
	Title  string `yaml:"title"  env:"FRONTDESK_TICKET_TITLE"  env-default:"REGISTRO DE PROVEEDORES"`
	Footer string `yaml:"footer" env:"FRONTDESK_TICKET_FOOTER" env-default:"Conserve este ticket"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"FRONTDESK_LOG_LEVEL" env-default:"info"`
}

// Location resolves Desk.Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Desk.Timezone)
}

// OutboxPath returns the outbox database path. A relative Mirror.Outbox is
// resolved against Data.Dir.
func (c *Config) OutboxPath() string {
	if filepath.IsAbs(c.Mirror.Outbox) {
		return c.Mirror.Outbox
	}
	return filepath.Join(c.Data.Dir, c.Mirror.Outbox)
}
