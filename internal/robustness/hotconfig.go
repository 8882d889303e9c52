package robustness

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/webitel/im-chat-core/config"
)

// Validator vets a freshly reloaded config before it is delivered to
// subscribers. A rejected config is dropped and the previous values stay
// in force.
type Validator func(cfg *config.Config) error

// HotConfig layers validation and subscriber fan-out over config.Watcher's
// fsnotify-driven reloads.
type HotConfig struct {
	logger *slog.Logger

	mu          sync.RWMutex
	current     *config.Config
	validators  []Validator
	subscribers []config.ReloadFunc
}

// NewHotConfig wires itself into watcher (which may be nil when no config
// file is in use; then Current just returns the boot-time config forever).
func NewHotConfig(boot *config.Config, watcher *config.Watcher, logger *slog.Logger) *HotConfig {
	h := &HotConfig{logger: logger, current: boot}
	if watcher != nil {
		watcher.OnReload(h.handleReload)
	}
	return h
}

// RegisterValidator appends a vetting step; all validators must pass for a
// reload to take effect.
func (h *HotConfig) RegisterValidator(v Validator) {
	h.mu.Lock()
	h.validators = append(h.validators, v)
	h.mu.Unlock()
}

// Subscribe registers a component to receive accepted reloads.
func (h *HotConfig) Subscribe(fn config.ReloadFunc) {
	h.mu.Lock()
	h.subscribers = append(h.subscribers, fn)
	h.mu.Unlock()
}

// Current returns the last accepted config.
func (h *HotConfig) Current() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *HotConfig) handleReload(cfg *config.Config) {
	h.mu.RLock()
	validators := append([]Validator(nil), h.validators...)
	h.mu.RUnlock()

	for _, v := range validators {
		if err := v(cfg); err != nil {
			if h.logger != nil {
				h.logger.Error("CONFIG_REJECTED", "err", err)
			}
			return
		}
	}

	h.mu.Lock()
	h.current = cfg
	subs := append([]config.ReloadFunc(nil), h.subscribers...)
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Info("CONFIG_APPLIED")
	}
	for _, fn := range subs {
		fn(cfg)
	}
}

// ValidateBaseline is the default validator: the structural sanity checks
// every deployment needs regardless of site-specific rules.
func ValidateBaseline(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port out of range")
	}
	if cfg.Server.MaxConnections <= 0 {
		return errors.New("server.max_connections must be positive")
	}
	if cfg.Cache.L1.MaxItems < 0 {
		return errors.New("cache.l1.maxItems must not be negative")
	}
	if cfg.Database.PoolSize <= 0 {
		return errors.New("database.pool_size must be positive")
	}
	return nil
}
