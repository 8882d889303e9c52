package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReloadFunc receives the freshly reloaded Config.
type ReloadFunc func(cfg *Config)

// Watcher watches configFile for writes and re-parses it into a fresh
// Config, notifying subscribers. It backs the robustness layer's
// hot-config reload: threshold and flag changes take effect without a
// process restart.
type Watcher struct {
	v        *viper.Viper
	logger   *slog.Logger
	onReload []ReloadFunc
}

// NewWatcher starts watching configFile using viper's built-in fsnotify
// integration. It returns nil if configFile is empty (nothing to watch).
func NewWatcher(configFile string, logger *slog.Logger) (*Watcher, error) {
	if configFile == "" {
		return nil, nil
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	w := &Watcher{v: v, logger: logger}
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			w.logger.Error("CONFIG_RELOAD_FAILED", "err", err, "file", e.Name)
			return
		}
		w.logger.Info("CONFIG_RELOADED", "file", e.Name)
		for _, fn := range w.onReload {
			fn(&cfg)
		}
	})
	v.WatchConfig()

	return w, nil
}

func (w *Watcher) OnReload(fn ReloadFunc) {
	w.onReload = append(w.onReload, fn)
}
