package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults for a new settings file.
const (
	DefaultServerPort    = 8087
	DefaultLogLevel      = "info"
	DefaultTargetPercent = 100
)

// Config represents the user settings. The process table is never stored
// here; it lives only as long as the daemon.
type Config struct {
	// X display to connect to, empty for $DISPLAY
	Display    string `json:"display" yaml:"display" mapstructure:"display"`
	ServerPort int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	// Selection: the monitor used for single writes and full-screen
	// detection, and whether writes go to every monitor.
	DefaultMonitor int  `json:"default_monitor" yaml:"default_monitor" mapstructure:"default_monitor"`
	AffectAll      bool `json:"affect_all" yaml:"affect_all" mapstructure:"affect_all"`

	DefaultTargetPercent int  `json:"default_target_percent" yaml:"default_target_percent" mapstructure:"default_target_percent"`
	SkipZeroOnInactive   bool `json:"skip_zero_on_inactive" yaml:"skip_zero_on_inactive" mapstructure:"skip_zero_on_inactive"`
	ObserverEnabled      bool `json:"observer_enabled" yaml:"observer_enabled" mapstructure:"observer_enabled"`
}

// Defaults returns the default configuration
func Defaults() Config {
	return Config{
		ServerPort:           DefaultServerPort,
		LogLevel:             DefaultLogLevel,
		DefaultTargetPercent: DefaultTargetPercent,
		ObserverEnabled:      true,
	}
}

// Validate checks every field
func (c Config) Validate() error {
	var errs []error
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("server_port %d out of range 1-65535", c.ServerPort))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.DefaultMonitor < 0 {
		errs = append(errs, fmt.Errorf("default_monitor must not be negative, got %d", c.DefaultMonitor))
	}
	if c.DefaultTargetPercent < 0 || c.DefaultTargetPercent > 100 {
		errs = append(errs, fmt.Errorf("default_target_percent %d out of range 0-100", c.DefaultTargetPercent))
	}
	return errors.Join(errs...)
}

// Manager handles configuration
type Manager struct {
	configPath string
	viper      *viper.Viper
	config     *Config
	mu         sync.RWMutex

	// monitors bounds default_monitor once the displays are known; 0 means
	// unknown and only the sign is checked.
	monitors int

	watching  bool
	callbacks []func(Config)
}

// DefaultPath returns $HOME/.config/focusvibrance/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "focusvibrance", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile
// selects the default path. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
		viper:      newViper(actualConfigPath),
	}

	if _, err := os.Stat(m.configPath); errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		cfg := Defaults()
		m.config = &cfg
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	m.mu.Lock()
	err := m.reload()
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	d := Defaults()
	v.SetDefault("display", d.Display)
	v.SetDefault("server_port", d.ServerPort)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("default_monitor", d.DefaultMonitor)
	v.SetDefault("affect_all", d.AffectAll)
	v.SetDefault("default_target_percent", d.DefaultTargetPercent)
	v.SetDefault("skip_zero_on_inactive", d.SkipZeroOnInactive)
	v.SetDefault("observer_enabled", d.ObserverEnabled)
	return v
}

// reload reads the file through viper. Caller must hold the write lock.
func (m *Manager) reload() error {
	if err := m.viper.ReadInConfig(); err != nil {
		return err
	}

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := m.checkMonitor(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	m.config = &cfg
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	return *m.config
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := Defaults()
	if m.config != nil {
		cfg = *m.config
	}
	m.mu.RUnlock()

	log := logger.WithComponent("config")
	log.Debug().Str("path", m.configPath).Msg("Saving config")

	// Ensure the directory exists
	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	log.Debug().Str("path", m.configPath).Msg("Config saved")
	return nil
}

// Update validates cfg, replaces the configuration and saves it
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.checkMonitor(cfg); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = &cfg
	m.mu.Unlock()
	return m.Save()
}

// SetMonitorCount bounds default_monitor by the number of discovered
// monitors. A loaded selection past the end falls back to monitor 0 for
// this process; the file is left alone.
func (m *Manager) SetMonitorCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.monitors = n
	if m.config == nil || n <= 0 || m.config.DefaultMonitor < n {
		return
	}

	logger.WithComponent("config").Warn().
		Int("default_monitor", m.config.DefaultMonitor).
		Int("monitors", n).
		Msg("Selected monitor does not exist, using monitor 0")
	cfg := *m.config
	cfg.DefaultMonitor = 0
	m.config = &cfg
}

// checkMonitor rejects a selection past the known monitors. Caller must
// hold the lock.
func (m *Manager) checkMonitor(cfg Config) error {
	if m.monitors > 0 && cfg.DefaultMonitor >= m.monitors {
		return fmt.Errorf("default_monitor %d out of range: %d monitors", cfg.DefaultMonitor, m.monitors)
	}
	return nil
}

// DefaultMonitor returns the selected monitor index
func (m *Manager) DefaultMonitor() int {
	return m.Get().DefaultMonitor
}

// AffectAll reports whether writes go to every monitor
func (m *Manager) AffectAll() bool {
	return m.Get().AffectAll
}

// SetSelection updates the selected monitor and the affect-all flag
func (m *Manager) SetSelection(monitor int, affectAll bool) error {
	cfg := m.Get()
	cfg.DefaultMonitor = monitor
	cfg.AffectAll = affectAll
	return m.Update(cfg)
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
