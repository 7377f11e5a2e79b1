package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
)

var (
	// ErrNoNvScreen means no X screen is driven by an NVIDIA GPU, so
	// vibrance cannot be controlled at all.
	ErrNoNvScreen = errors.New("no NVIDIA X screen found")

	// ErrNoMonitors means the NVIDIA screen reported no enabled displays.
	ErrNoMonitors = errors.New("no enabled displays on NVIDIA X screen")

	// ErrClosed is returned once teardown has started.
	ErrClosed = errors.New("display connection closed")

	// ErrNoMonitor is returned for a monitor index outside the registry.
	ErrNoMonitor = errors.New("no such monitor")
)

// Head is one physical screen area as reported by Xinerama or RandR.
type Head struct {
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

// Server is the display server connection the registry owns.
//
// Implementations are not required to be safe against use after Close;
// the registry's handle lock provides that guarantee.
type Server interface {
	ScreenCount() int
	DefaultScreen() int
	IsNvScreen(screen int) bool

	// EnabledDisplays lists display target ids enabled on screen, in the
	// order the driver reports them.
	EnabledDisplays(screen int) ([]int, error)

	// Heads lists screen geometry in the same order as the displays.
	Heads() ([]Head, error)

	Vibrance(displayID int) (int, error)
	VibranceRange(displayID int) (min, max int, err error)
	SetVibrance(displayID, value int)

	// Flush makes previously issued writes take effect.
	Flush()
	Close()
}

// Monitor is the per-display record built during discovery.
type Monitor struct {
	Index      int    `json:"index"`
	ID         int    `json:"id"`
	Name       string `json:"name,omitempty"`
	Min        int    `json:"min"`
	Max        int    `json:"max"`
	RangeValid bool   `json:"range_valid"`
	Level      int    `json:"level"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Active     bool   `json:"active"`
}

// HasGeometry reports whether the monitor's size is known.
func (m Monitor) HasGeometry() bool {
	return m.Width > 0 && m.Height > 0
}

// InRange reports whether value lies in the closed interval [Min, Max].
// A monitor without a valid range accepts nothing.
func (m Monitor) InRange(value int) bool {
	return m.RangeValid && m.Min <= value && value <= m.Max
}

// Registry owns the display server handle and the monitors discovered on it.
//
// The handle lock is a RWMutex: everything that talks to the server while
// the process is running holds it shared, and Close holds it exclusively.
// TryAcquire fails as soon as Close holds or waits for the lock, which is
// how the focus observer learns that teardown has begun.
type Registry struct {
	server Server

	handle sync.RWMutex
	closed bool

	mu       sync.RWMutex
	screen   int
	monitors []Monitor
}

// NewRegistry wraps an already opened server.
func NewRegistry(server Server) *Registry {
	return &Registry{server: server, screen: -1}
}

// Server returns the underlying connection. Callers must hold the handle
// lock while using it.
func (r *Registry) Server() Server {
	return r.server
}

// FindNvScreen returns the default screen if it is an NVIDIA screen, or the
// first one that is.
func (r *Registry) FindNvScreen() (int, error) {
	log := logger.WithComponent("display")

	def := r.server.DefaultScreen()
	if r.server.IsNvScreen(def) {
		return def, nil
	}

	for screen := 0; screen < r.server.ScreenCount(); screen++ {
		if r.server.IsNvScreen(screen) {
			log.Debug().
				Int("default_screen", def).
				Int("screen", screen).
				Msg("Default X screen is not an NVIDIA screen, using another one")
			return screen, nil
		}
	}

	return 0, ErrNoNvScreen
}

// Discover finds the NVIDIA screen and builds one Monitor per enabled
// display on it. A display whose range query fails is kept but marked
// read-only.
func (r *Registry) Discover() error {
	log := logger.WithComponent("display")

	screen, err := r.FindNvScreen()
	if err != nil {
		return err
	}

	ids, err := r.server.EnabledDisplays(screen)
	if err != nil {
		return fmt.Errorf("failed to list enabled displays: %w", err)
	}
	if len(ids) == 0 {
		return ErrNoMonitors
	}

	heads, err := r.server.Heads()
	if err != nil {
		log.Debug().Err(err).Msg("Screen geometry unavailable, full-screen detection disabled")
	}

	monitors := make([]Monitor, len(ids))
	for i, id := range ids {
		mon := Monitor{Index: i, ID: id}

		if level, err := r.server.Vibrance(id); err == nil {
			mon.Level = level
			mon.Active = level != 0
		} else {
			log.Debug().Err(err).Int("display_id", id).Msg("Failed to query vibrance")
		}

		if lo, hi, err := r.server.VibranceRange(id); err == nil {
			mon.Min, mon.Max = lo, hi
			mon.RangeValid = true
		} else {
			log.Debug().Err(err).Int("display_id", id).Msg("Failed to query vibrance range, display is read-only")
		}

		if i < len(heads) {
			mon.Name = heads[i].Name
			mon.Width = heads[i].Width
			mon.Height = heads[i].Height
		}

		monitors[i] = mon

		log.Debug().
			Int("index", i).
			Int("display_id", id).
			Int("level", mon.Level).
			Int("min", mon.Min).
			Int("max", mon.Max).
			Int("width", mon.Width).
			Int("height", mon.Height).
			Msg("Discovered display")
	}

	r.mu.Lock()
	r.screen = screen
	r.monitors = monitors
	r.mu.Unlock()

	log.Info().Int("screen", screen).Int("displays", len(monitors)).Msg("Display discovery complete")
	return nil
}

// Screen returns the NVIDIA screen chosen by Discover, or -1.
func (r *Registry) Screen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.screen
}

// Count returns the number of discovered monitors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}

// Monitors returns a copy of all monitors in discovery order.
func (r *Registry) Monitors() []Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Monitor, len(r.monitors))
	copy(out, r.monitors)
	return out
}

// Monitor returns the monitor at index.
func (r *Registry) Monitor(index int) (Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.monitors) {
		return Monitor{}, false
	}
	return r.monitors[index], true
}

// SetLevel records the last value successfully written to a monitor.
func (r *Registry) SetLevel(index, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index >= 0 && index < len(r.monitors) {
		r.monitors[index].Level = level
	}
}

// TryAcquire takes the handle lock shared without blocking. It returns
// false if teardown holds or is waiting for the lock, or already finished.
func (r *Registry) TryAcquire() bool {
	if !r.handle.TryRLock() {
		return false
	}
	if r.closed {
		r.handle.RUnlock()
		return false
	}
	return true
}

// Acquire takes the handle lock shared, waiting for teardown if needed.
func (r *Registry) Acquire() error {
	r.handle.RLock()
	if r.closed {
		r.handle.RUnlock()
		return ErrClosed
	}
	return nil
}

// Release gives back a lock taken by Acquire or TryAcquire.
func (r *Registry) Release() {
	r.handle.RUnlock()
}

// Closed reports whether Close has completed.
func (r *Registry) Closed() bool {
	r.handle.RLock()
	defer r.handle.RUnlock()
	return r.closed
}

// Close waits for every in-flight user of the handle, then closes the
// server connection. It is safe to call more than once.
func (r *Registry) Close() {
	r.handle.Lock()
	defer r.handle.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.server.Close()

	r.mu.Lock()
	r.monitors = nil
	r.mu.Unlock()

	logger.WithComponent("display").Debug().Msg("Display connection closed")
}
