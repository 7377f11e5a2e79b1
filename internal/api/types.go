package api

import (
	"github.com/bryanchriswhite/FocusVibrance/internal/apps"
	"github.com/bryanchriswhite/FocusVibrance/internal/display"
)

// MonitorView is a monitor with its last known level as a percentage.
type MonitorView struct {
	display.Monitor
	Percent int `json:"percent"`
}

// VibranceResponse is returned by GET /api/monitors/{index}/vibrance.
type VibranceResponse struct {
	Monitor int `json:"monitor"`
	Value   int `json:"value"`
	Percent int `json:"percent"`
}

// SetVibranceRequest sets either a percentage or a raw device value.
// AffectAll defaults to the current selection.
type SetVibranceRequest struct {
	Percent   *int  `json:"percent,omitempty"`
	Value     *int  `json:"value,omitempty"`
	AffectAll *bool `json:"affect_all,omitempty"`
}

// SetVibranceResponse reports whether any display was written. A value
// outside the monitor's range is not an error; Applied is false.
type SetVibranceResponse struct {
	Monitor   int  `json:"monitor"`
	Value     int  `json:"value"`
	AffectAll bool `json:"affect_all"`
	Applied   bool `json:"applied"`
}

// SelectionBody is the user's monitor selection.
type SelectionBody struct {
	DefaultMonitor int  `json:"default_monitor"`
	AffectAll      bool `json:"affect_all"`
}

// ToggleRequest adds or removes a process. Target only applies when the
// process is added.
type ToggleRequest struct {
	PID    string `json:"pid"`
	Target *int   `json:"target,omitempty"`
}

// ToggleResponse reports the toggle result and the new entry, if any.
type ToggleResponse struct {
	PID    string      `json:"pid"`
	Result string      `json:"result"`
	Entry  *apps.Entry `json:"entry,omitempty"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Screen   int    `json:"screen"`
	Monitors int    `json:"monitors"`
	Tracked  int    `json:"tracked"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
