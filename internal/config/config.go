// Package config loads server configuration from an optional YAML file,
// environment variables (TASKGROVE_ prefix), and defaults, in that
// order of increasing precedence for env over file.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	// ListenAddr is the REST listen address.
	ListenAddr string `mapstructure:"listen_addr"`

	// DBPath is the SQLite database file.
	DBPath string `mapstructure:"db_path"`

	// PageSize is the default page size for listings.
	PageSize int `mapstructure:"page_size"`

	Log Log `mapstructure:"log"`
}

// Log configures logging output.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// File, when set, enables JSON logging to a rotating file instead
	// of text on stderr.
	File string `mapstructure:"file"`

	// MaxSizeMB is the rotation threshold for File.
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `mapstructure:"max_backups"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "taskgrove.db")
	v.SetDefault("page_size", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// Load reads configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("TASKGROVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Watch re-reads the config file on change and invokes onChange with
// the fresh config. Only meaningful when Load was given a file path;
// callers typically use it to adjust the log level without a restart.
func Watch(path string, onChange func(*Config)) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	defaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
	return nil
}
