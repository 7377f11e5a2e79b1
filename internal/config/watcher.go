package config

import (
	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch starts watching the config file for changes and reloads
// automatically. An edit that fails validation is logged and the previous
// configuration stays in effect.
func (m *Manager) Watch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watching {
		return
	}

	m.viper.OnConfigChange(m.handleChange)
	m.viper.WatchConfig()
	m.watching = true
}

func (m *Manager) handleChange(e fsnotify.Event) {
	log := logger.WithComponent("config")
	log.Debug().Str("op", e.Op.String()).Str("file", e.Name).Msg("Config change detected")

	m.mu.Lock()
	if err := m.reload(); err != nil {
		m.mu.Unlock()
		log.Warn().Err(err).Msg("Failed to reload config, keeping previous settings")
		return
	}
	m.notifyCallbacksLocked()
}

// notifyCallbacksLocked copies callbacks and config, releases lock, then
// notifies. Must be called with m.mu held for write.
func (m *Manager) notifyCallbacksLocked() {
	cfg := *m.config
	callbacks := make([]func(Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, callback := range callbacks {
		callback(cfg)
	}
}

// OnConfigChange registers a callback called after every successful reload
func (m *Manager) OnConfigChange(callback func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callbacks = append(m.callbacks, callback)
}
