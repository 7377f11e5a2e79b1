package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type field struct {
	get func(*Config) any
	set func(*Config, string) error
}

func intField(p func(*Config) *int) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("invalid number: %s", s)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(*Config) *bool) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, s string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("invalid boolean: %s (use: true or false)", s)
			}
			*p(c) = b
			return nil
		},
	}
}

func stringField(p func(*Config) *string) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, s string) error {
			*p(c) = s
			return nil
		},
	}
}

var fields = map[string]field{
	"display":                stringField(func(c *Config) *string { return &c.Display }),
	"server_port":            intField(func(c *Config) *int { return &c.ServerPort }),
	"log_level":              stringField(func(c *Config) *string { return &c.LogLevel }),
	"log_pretty":             boolField(func(c *Config) *bool { return &c.LogPretty }),
	"default_monitor":        intField(func(c *Config) *int { return &c.DefaultMonitor }),
	"affect_all":             boolField(func(c *Config) *bool { return &c.AffectAll }),
	"default_target_percent": intField(func(c *Config) *int { return &c.DefaultTargetPercent }),
	"skip_zero_on_inactive":  boolField(func(c *Config) *bool { return &c.SkipZeroOnInactive }),
	"observer_enabled":       boolField(func(c *Config) *bool { return &c.ObserverEnabled }),
}

// Keys lists every settable key in sorted order
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetValue returns the value stored under key
func (m *Manager) GetValue(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	cfg := m.Get()
	return f.get(&cfg), nil
}

// SetValue parses value for key, validates the result and saves it
func (m *Manager) SetValue(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("configuration key not found: %s (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}

	cfg := m.Get()
	if err := f.set(&cfg, value); err != nil {
		return err
	}
	return m.Update(cfg)
}
