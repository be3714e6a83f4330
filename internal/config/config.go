package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	appLog "dayline/internal/log"
)

// FeedConfig describes a vendor calendar (ICS) whose items are synced into
// an event's timeline.
type FeedConfig struct {
	// ID is the source ID stamped on synced entries; it must stay stable so
	// a re-sync replaces the feed's previous entries.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
	// EventID is the event whose timeline receives the feed's items.
	EventID string `yaml:"event_id" json:"event_id"`
	// Color is applied to synced entries.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used when an event has none of its own.
	Timezone string `yaml:"timezone" json:"timezone"`

	// StorePath is the YAML file holding events and timeline entries.
	StorePath string `yaml:"store_path" json:"store_path"`

	// CacheDir holds feed HTTP caches and rendered previews.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron schedules vendor feed syncs (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// PixelsPerHour is the default zoom when a request does not give one.
	PixelsPerHour float64 `yaml:"pixels_per_hour" json:"pixels_per_hour"`

	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if set, guards every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen        = "127.0.0.1:8080"
	defaultTimezone      = "UTC"
	defaultStorePath     = "/var/lib/dayline/store.yaml"
	defaultCacheDir      = "/var/lib/dayline/cache"
	defaultRefreshCron   = "*/15 * * * *"
	defaultLogLevel      = "info"
	defaultPixelsPerHour = 60
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		StorePath:     defaultStorePath,
		CacheDir:      defaultCacheDir,
		RefreshCron:   defaultRefreshCron,
		LogLevel:      defaultLogLevel,
		PixelsPerHour: defaultPixelsPerHour,
		Feeds:         []FeedConfig{},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.StorePath == "" {
		c.StorePath = defaultStorePath
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.PixelsPerHour <= 0 {
		c.PixelsPerHour = defaultPixelsPerHour
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		if c.Feeds[i].ID == "" {
			if c.Feeds[i].Name != "" {
				c.Feeds[i].ID = c.Feeds[i].Name
			} else {
				c.Feeds[i].ID = c.Feeds[i].URL
			}
		}
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// applyEnv overlays DAYLINE_* variables. A .env file in the working
// directory, if any, is loaded first without overriding the real
// environment.
func (c *Config) applyEnv() {
	if err := godotenv.Load(); err == nil {
		appLog.Debug("loaded .env file")
	}
	if v := os.Getenv("DAYLINE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DAYLINE_STORE"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("DAYLINE_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("DAYLINE_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("DAYLINE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DAYLINE_PIXELS_PER_HOUR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.PixelsPerHour = f
		}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is read and normalized.
//   - In both cases DAYLINE_* environment variables (and .env) win.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.applyEnv()
				cfg.Normalize()
				return cfg, err
			}
			cfg.applyEnv()
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".dayline-config-*.tmp")
}

// WriteFileAtomic writes data next to path under a temp name, fsyncs it,
// sets 0600 and renames it over path.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
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

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
