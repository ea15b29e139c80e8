package common

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. IDSCAN_API_BASE_URL.
const EnvPrefix = "IDSCAN"

// Config holds all application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Store   StoreConfig   `mapstructure:"store"`
	Capture CaptureConfig `mapstructure:"capture"`
	Review  ReviewConfig  `mapstructure:"review"`
	Log     LogConfig     `mapstructure:"log"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
}

// APIConfig points the client at the document backend.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	TokenFile     string        `mapstructure:"token_file"`
}

// StoreConfig holds the local run store configuration. A DSN starting with
// postgres:// or postgresql:// selects PostgreSQL, anything else is a sqlite path.
type StoreConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// CaptureConfig holds image acquisition settings
type CaptureConfig struct {
	CameraDir        string `mapstructure:"camera_dir"`
	HeicConverter    string `mapstructure:"heic_converter"`
	ArtifactCacheDir string `mapstructure:"artifact_cache_dir"`
	MaxImageBytes    int64  `mapstructure:"max_image_bytes"`
}

// ReviewConfig controls which OCR fields get flagged before submit.
type ReviewConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	ReloadAfter   bool    `mapstructure:"reload_after_save"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DaemonConfig holds idscand settings
type DaemonConfig struct {
	InboxDir       string        `mapstructure:"inbox_dir"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	Debounce       time.Duration `mapstructure:"debounce"`
	PairTimeout    time.Duration `mapstructure:"pair_timeout"`
	DefaultType    string        `mapstructure:"default_type"`
	HealthAddr     string        `mapstructure:"health_addr"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"api-url":      "api.base_url",
	"token":        "api.token_file",
	"dsn":          "store.dsn",
	"camera":       "capture.camera_dir",
	"inbox":        "daemon.inbox_dir",
	"workers":      "daemon.workers",
	"health":       "daemon.health_addr",
	"default-type": "daemon.default_type",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// LoadConfig loads configuration from defaults, an optional YAML file,
// IDSCAN_* environment variables and, when given, command line flags.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError(CodeConfig, "failed to read config file", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, NewAppError(CodeConfig, "failed to bind flag "+name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, NewAppError(CodeConfig, "failed to unmarshal config", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.upload_timeout", 2*time.Minute)
	v.SetDefault("api.token_file", defaultTokenFile())

	v.SetDefault("store.dsn", "idscan.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("store.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("store.dial_timeout", 3*time.Second)

	v.SetDefault("capture.camera_dir", "")
	v.SetDefault("capture.heic_converter", "magick")
	v.SetDefault("capture.artifact_cache_dir", filepath.Join(os.TempDir(), "idscan"))
	v.SetDefault("capture.max_image_bytes", 20<<20)

	v.SetDefault("review.min_confidence", 0.6)
	v.SetDefault("review.reload_after_save", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("daemon.inbox_dir", "./inbox")
	v.SetDefault("daemon.workers", 2)
	v.SetDefault("daemon.queue_size", 32)
	v.SetDefault("daemon.process_timeout", 3*time.Minute)
	v.SetDefault("daemon.debounce", 500*time.Millisecond)
	v.SetDefault("daemon.pair_timeout", 10*time.Minute)
	v.SetDefault("daemon.default_type", "")
	v.SetDefault("daemon.health_addr", ":8090")
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".idscan", "token")
	}
	return filepath.Join(dir, "idscan", "token")
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return NewAppError(CodeConfig, "api.base_url is required", ErrInvalidInput)
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewAppError(CodeConfig, fmt.Sprintf("api.base_url %q is not an absolute URL", c.API.BaseURL), ErrInvalidInput)
	}
	if c.API.Timeout <= 0 {
		return NewAppError(CodeConfig, "api.timeout must be positive", ErrInvalidInput)
	}
	if c.Store.DSN == "" {
		return NewAppError(CodeConfig, "store.dsn is required", ErrInvalidInput)
	}
	if c.Review.MinConfidence < 0 || c.Review.MinConfidence > 1 {
		return NewAppError(CodeConfig, "review.min_confidence must be within [0,1]", ErrInvalidInput)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return NewAppError(CodeConfig, "log.format must be text or json", ErrInvalidInput)
	}
	return nil
}

// ValidateDaemon adds the checks only idscand needs.
func (c *Config) ValidateDaemon() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Daemon.InboxDir == "" {
		return NewAppError(CodeConfig, "daemon.inbox_dir is required", ErrInvalidInput)
	}
	if c.Daemon.Workers <= 0 || c.Daemon.QueueSize <= 0 {
		return NewAppError(CodeConfig, "daemon.workers and daemon.queue_size must be positive", ErrInvalidInput)
	}
	if c.Daemon.HealthAddr == "" {
		return NewAppError(CodeConfig, "daemon.health_addr is required", ErrInvalidInput)
	}
	return nil
}
