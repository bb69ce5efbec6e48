package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	appLog "calboard/internal/log"
)

// EnvPrefix is the prefix for environment overrides, e.g. CALBOARD_LISTEN.
const EnvPrefix = "CALBOARD"

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for display and date parsing.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DefaultView is the view mode a new session starts in: "month" or "week".
	DefaultView string `yaml:"default_view" json:"default_view"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// driving subscription refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays and BackfillDays bound the window subscriptions are
	// expanded into, relative to now.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Location resolves Timezone, falling back to time.Local when it is empty,
// "Local" or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// envOverrides are read from CALBOARD_* variables; empty values are ignored.
type envOverrides struct {
	Listen      string `envconfig:"LISTEN"`
	Timezone    string `envconfig:"TIMEZONE"`
	DefaultView string `envconfig:"DEFAULT_VIEW"`
	RefreshCron string `envconfig:"REFRESH"`
	CacheDir    string `envconfig:"CACHE_DIR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	HorizonDays int    `envconfig:"HORIZON_DAYS"`
	AuthUser    string `envconfig:"AUTH_USERNAME"`
	AuthPass    string `envconfig:"AUTH_PASSWORD"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "Local",
		DefaultView:  "month",
		RefreshCron:  "*/15 * * * *",
		HorizonDays:  60,
		BackfillDays: 30,
		CacheDir:     "./cache/ics-cache",
		LogLevel:     "info",
		ICS:          []ICSConfig{},
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch c.DefaultView {
	case "month", "week":
		// ok
	default:
		c.DefaultView = def.DefaultView
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// ApplyEnv overlays CALBOARD_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}
	if env.Listen != "" {
		c.Listen = env.Listen
	}
	if env.Timezone != "" {
		c.Timezone = env.Timezone
	}
	if env.DefaultView != "" {
		c.DefaultView = env.DefaultView
	}
	if env.RefreshCron != "" {
		c.RefreshCron = env.RefreshCron
	}
	if env.CacheDir != "" {
		c.CacheDir = env.CacheDir
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	if env.HorizonDays > 0 {
		c.HorizonDays = env.HorizonDays
	}
	if env.AuthUser != "" && env.AuthPass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: env.AuthUser, Password: env.AuthPass}
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path and applies environment
// overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, cfg.ApplyEnv()
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically via
// a temp file and rename, with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calboard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
