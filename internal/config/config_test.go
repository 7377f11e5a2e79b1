package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)
	return m, path
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m, path := newTestManager(t)

	assert.FileExists(t, path)
	assert.Equal(t, Defaults(), m.Get())
	assert.Equal(t, path, m.GetConfigPath())
	assert.Equal(t, 8087, m.Get().ServerPort)
	assert.True(t, m.Get().ObserverEnabled)
}

func TestNewManagerFillsMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_monitor: 1\naffect_all: true\n"), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 1, cfg.DefaultMonitor)
	assert.True(t, cfg.AffectAll)
	assert.Equal(t, DefaultServerPort, cfg.ServerPort)
	assert.Equal(t, DefaultTargetPercent, cfg.DefaultTargetPercent)
}

func TestNewManagerRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_target_percent: 250\n"), 0644))

	_, err := NewManager(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"port zero", func(c *Config) { c.ServerPort = 0 }, false},
		{"port too large", func(c *Config) { c.ServerPort = 70000 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"negative monitor", func(c *Config) { c.DefaultMonitor = -1 }, false},
		{"target above 100", func(c *Config) { c.DefaultTargetPercent = 101 }, false},
		{"target zero", func(c *Config) { c.DefaultTargetPercent = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestSetValuePersists(t *testing.T) {
	m, path := newTestManager(t)

	require.NoError(t, m.SetValue("server_port", "9090"))
	require.NoError(t, m.SetValue("affect_all", "true"))
	require.NoError(t, m.SetValue("display", ":1"))

	v, err := m.GetValue("server_port")
	require.NoError(t, err)
	assert.Equal(t, 9090, v)

	reopened, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, reopened.Get().ServerPort)
	assert.True(t, reopened.AffectAll())
	assert.Equal(t, ":1", reopened.Get().Display)
}

func TestSetValueErrors(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Error(t, m.SetValue("nope", "1"))
	assert.Error(t, m.SetValue("server_port", "abc"))
	assert.Error(t, m.SetValue("affect_all", "maybe"))
	assert.Error(t, m.SetValue("log_level", "loud"))
	assert.Equal(t, Defaults(), m.Get(), "failed sets leave the config untouched")

	_, err := m.GetValue("nope")
	assert.Error(t, err)
}

func TestSetSelection(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.SetSelection(2, true))
	assert.Equal(t, 2, m.DefaultMonitor())
	assert.True(t, m.AffectAll())

	assert.Error(t, m.SetSelection(-1, false))
	assert.Equal(t, 2, m.DefaultMonitor())
}

func TestKeysCoverConfig(t *testing.T) {
	assert.Len(t, Keys(), 9)
	assert.Contains(t, Keys(), "skip_zero_on_inactive")
}

func TestReloadNotifiesCallbacks(t *testing.T) {
	m, path := newTestManager(t)

	var got []Config
	m.OnConfigChange(func(c Config) { got = append(got, c) })

	require.NoError(t, os.WriteFile(path, []byte("default_monitor: 3\nlog_level: debug\n"), 0644))
	m.handleChange(fsnotify.Event{Name: path, Op: fsnotify.Write})

	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].DefaultMonitor)
	assert.Equal(t, "debug", got[0].LogLevel)
	assert.Equal(t, 3, m.DefaultMonitor())
}

func TestReloadKeepsPreviousOnInvalidEdit(t *testing.T) {
	m, path := newTestManager(t)
	require.NoError(t, m.SetSelection(1, false))

	called := false
	m.OnConfigChange(func(Config) { called = true })

	require.NoError(t, os.WriteFile(path, []byte("server_port: -5\n"), 0644))
	m.handleChange(fsnotify.Event{Name: path, Op: fsnotify.Write})

	assert.False(t, called)
	assert.Equal(t, 1, m.DefaultMonitor())
}

func TestMonitorCountBoundsSelection(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetMonitorCount(2)

	require.NoError(t, m.SetSelection(1, false))
	assert.Error(t, m.SetSelection(2, false))
	assert.Error(t, m.SetValue("default_monitor", "7"))
	assert.Equal(t, 1, m.DefaultMonitor())
}

func TestMonitorCountClampsLoadedSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_monitor: 4\n"), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 4, m.DefaultMonitor(), "unknown monitor count accepts any index")

	m.SetMonitorCount(2)
	assert.Equal(t, 0, m.DefaultMonitor())

	m.SetMonitorCount(5)
	assert.Equal(t, 0, m.DefaultMonitor())
}

func TestReloadRejectsSelectionPastMonitors(t *testing.T) {
	m, path := newTestManager(t)
	m.SetMonitorCount(2)
	require.NoError(t, m.SetSelection(1, false))

	called := false
	m.OnConfigChange(func(Config) { called = true })

	require.NoError(t, os.WriteFile(path, []byte("default_monitor: 5\n"), 0644))
	m.handleChange(fsnotify.Event{Name: path, Op: fsnotify.Write})

	assert.False(t, called)
	assert.Equal(t, 1, m.DefaultMonitor())
}
