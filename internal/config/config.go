// Package config loads dbbrowse settings.
//
// Precedence, lowest to highest: built-in defaults, the YAML file
// (<data_dir>/config.yaml or an explicit path), DBBROWSE_* environment
// variables, then command-line flags that were explicitly set.
//
// Environment keys nest with a double underscore:
// DBBROWSE_LOG__LEVEL=debug sets log.level, DBBROWSE_DATA_DIR sets data_dir.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/filestore"
	"github.com/koustreak/dbbrowse/internal/logger"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DBBROWSE_"

	// FileName is the config file looked up in the data directory.
	FileName = "config.yaml"

	defaultDirName = ".dbbrowse"
)

// Config is the full application configuration.
type Config struct {
	DataDir string        `koanf:"data_dir"`
	Log     LogConfig     `koanf:"log"`
	Storage StorageConfig `koanf:"storage"`
	Browser BrowserConfig `koanf:"browser"`
	Pool    PoolConfig    `koanf:"pool"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageConfig selects where the JSON documents live.
type StorageConfig struct {
	Backend   string `koanf:"backend"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	Region    string `koanf:"region"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// BrowserConfig tunes paging, refresh throttling and persistence.
type BrowserConfig struct {
	PageSize        int           `koanf:"page_size"`
	RefreshThrottle time.Duration `koanf:"refresh_throttle"`
	DebounceDelay   time.Duration `koanf:"debounce_delay"`
	HistoryLimit    int           `koanf:"history_limit"`
}

// PoolConfig mirrors database.PoolOptions.
type PoolConfig struct {
	MaxConns       int32         `koanf:"max_conns"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
}

func defaults(dataDir string) map[string]interface{} {
	return map[string]interface{}{
		"data_dir":                 dataDir,
		"log.level":                "info",
		"log.format":               "console",
		"storage.backend":          string(filestore.ProviderLocal),
		"storage.use_ssl":          false,
		"browser.page_size":        100,
		"browser.refresh_throttle": 1500 * time.Millisecond,
		"browser.debounce_delay":   500 * time.Millisecond,
		"browser.history_limit":    100,
		"pool.max_conns":           database.DefaultMaxConns,
		"pool.idle_timeout":        database.DefaultIdleTimeout,
		"pool.connect_timeout":     database.DefaultConnectTimeout,
		"pool.close_timeout":       database.DefaultCloseTimeout,
	}
}

// DefaultDataDir returns ~/.dbbrowse, or ./.dbbrowse when there is no home
// directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// Load builds the configuration. path is an explicit config file and may be
// empty; flags may be nil. Flag names map to keys with "-" replaced by "_"
// and "." kept, e.g. --log.level.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(DefaultDataDir()), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = discoverFile(dataDirHint(flags))
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DBBROWSE_LOG__LEVEL to log.level.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// dataDirHint is the data directory as known before the file is read.
func dataDirHint(flags *pflag.FlagSet) string {
	if flags != nil {
		if f := flags.Lookup("data-dir"); f != nil && f.Changed {
			return expandHome(f.Value.String())
		}
	}
	if dir := os.Getenv(EnvPrefix + "DATA_DIR"); dir != "" {
		return expandHome(dir)
	}
	return DefaultDataDir()
}

func discoverFile(dataDir string) string {
	candidate := filepath.Join(dataDir, FileName)
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	switch filestore.Provider(c.Storage.Backend) {
	case filestore.ProviderLocal:
	case filestore.ProviderMinIO:
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return errors.New("storage.endpoint and storage.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q (want local or minio)", c.Storage.Backend)
	}
	if c.Browser.PageSize <= 0 {
		return fmt.Errorf("browser.page_size must be positive, got %d", c.Browser.PageSize)
	}
	return nil
}

// LoggerConfig converts the log section for logger.New. Logs go to stderr.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}

// FileStoreConfig converts the storage section for the document backend.
func (c *Config) FileStoreConfig() *filestore.Config {
	return &filestore.Config{
		Provider:  filestore.Provider(c.Storage.Backend),
		Dir:       c.DataDir,
		Endpoint:  c.Storage.Endpoint,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
		UseSSL:    c.Storage.UseSSL,
		Region:    c.Storage.Region,
		Bucket:    c.Storage.Bucket,
		Prefix:    c.Storage.Prefix,
	}
}

// PoolOptions converts the pool section.
func (c *Config) PoolOptions() database.PoolOptions {
	return database.PoolOptions{
		MaxConns:       c.Pool.MaxConns,
		IdleTimeout:    c.Pool.IdleTimeout,
		ConnectTimeout: c.Pool.ConnectTimeout,
		CloseTimeout:   c.Pool.CloseTimeout,
	}
}
