package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides,
// e.g. THUMBCACHE_MAX_ENTRIES.
const EnvPrefix = "THUMBCACHE"

// Loader reads settings from a config file and the environment.
type Loader struct {
	v      *viper.Viper
	file   string
	logger *slog.Logger
}

// NewLoader creates a loader for file. An empty file name loads defaults
// and environment overrides only.
func NewLoader(file string, logger *slog.Logger) *Loader {
	v := viper.New()
	def := Default()
	v.SetDefault("cache_dir", def.CacheDir)
	v.SetDefault("max_entries", def.MaxEntries)
	v.SetDefault("trim_threshold", def.TrimThreshold)
	v.SetDefault("trim_target", def.TrimTarget)
	v.SetDefault("disk_parallelism", def.DiskParallelism)
	v.SetDefault("decode_parallelism", def.DecodeParallelism)
	v.SetDefault("target_width", def.TargetWidth)
	v.SetDefault("target_height", def.TargetHeight)
	v.SetDefault("stale_after", def.StaleAfter)
	v.SetDefault("persist_timeout", def.PersistTimeout)
	v.SetDefault("disk_max_bytes", def.DiskMaxBytes)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{v: v, file: file, logger: logger}
}

// Viper exposes the underlying viper instance, e.g. for binding CLI flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads and validates the settings.
func (l *Loader) Load() (Settings, error) {
	if l.file != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", l.file, err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (Settings, error) {
	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

// Watch starts watching the config file and calls onChange with every
// reload that validates. Invalid reloads are logged and ignored.
func (l *Loader) Watch(onChange func(Settings)) error {
	if l.file == "" {
		return errors.New("no config file to watch")
	}
	l.v.OnConfigChange(func(ev fsnotify.Event) {
		s, err := l.decode()
		if err != nil {
			l.logger.Warn("ignoring invalid config reload", "file", ev.Name, "error", err)
			return
		}
		l.logger.Info("config reloaded", "file", ev.Name)
		onChange(s)
	})
	l.v.WatchConfig()
	return nil
}

// Load reads settings from file (optional) and the environment.
func Load(file string) (Settings, error) {
	return NewLoader(file, nil).Load()
}
