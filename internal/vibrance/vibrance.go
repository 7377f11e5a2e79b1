// Package vibrance reads and writes the digital vibrance of the monitors
// held by a display.Registry.
package vibrance

import (
	"errors"
	"fmt"
	"math"

	"github.com/bryanchriswhite/FocusVibrance/internal/display"
	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
)

// Range used for conversions when no monitor is known.
const (
	DefaultMin = -1024
	DefaultMax = 1023
)

// ErrQueryFailed is returned by Get when the current value cannot be read.
var ErrQueryFailed = errors.New("failed to query vibrance")

// PercentageToValue converts a 0-100 percentage into a device value inside
// the monitor's range, rounding toward the lower bound.
func PercentageToValue(pct int, mon *display.Monitor) int {
	lo, hi := bounds(mon)
	return int(math.Floor(float64(lo) + float64(pct)*float64(hi-lo)/100.0))
}

// ValueToPercentage converts a device value into a percentage of the
// monitor's range, rounding down.
func ValueToPercentage(value int, mon *display.Monitor) int {
	lo, hi := bounds(mon)
	if hi == lo {
		return 0
	}
	return floorDiv((value-lo)*100, hi-lo)
}

func bounds(mon *display.Monitor) (int, int) {
	if mon == nil || !mon.RangeValid {
		return DefaultMin, DefaultMax
	}
	return mon.Min, mon.Max
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Options tune how writes are filtered.
type Options struct {
	// SkipZeroOnInactive refuses to write 0 to a monitor whose vibrance
	// was 0 when it was discovered.
	SkipZeroOnInactive bool
}

// Controller performs validated vibrance reads and writes. It does no
// locking of its own: callers hold the registry's handle lock.
type Controller struct {
	registry *display.Registry
	opts     Options
}

// NewController creates a controller over the registry's monitors.
func NewController(registry *display.Registry, opts Options) *Controller {
	return &Controller{registry: registry, opts: opts}
}

// Registry returns the registry the controller writes through.
func (c *Controller) Registry() *display.Registry {
	return c.registry
}

// Get reads the current vibrance of the monitor at index.
func (c *Controller) Get(monitor int) (int, error) {
	mon, ok := c.registry.Monitor(monitor)
	if !ok {
		return 0, fmt.Errorf("monitor %d: %w", monitor, display.ErrNoMonitor)
	}

	v, err := c.registry.Server().Vibrance(mon.ID)
	if err != nil {
		return 0, fmt.Errorf("%w for display %d: %v", ErrQueryFailed, mon.ID, err)
	}
	return v, nil
}

// Set writes value to the monitor at index, or to every monitor when
// affectAll is true. The value is validated against the selected monitor's
// range; an out-of-range value is ignored. Monitors without a valid range
// are never written. It reports whether any write was issued.
func (c *Controller) Set(monitor, value int, affectAll bool) bool {
	log := logger.WithComponent("vibrance")

	mon, ok := c.registry.Monitor(monitor)
	if !ok {
		log.Debug().Int("monitor", monitor).Msg("Set on unknown monitor ignored")
		return false
	}

	// All monitors are assumed to share the selected monitor's range.
	if !mon.InRange(value) {
		log.Debug().
			Int("monitor", monitor).
			Int("value", value).
			Int("min", mon.Min).
			Int("max", mon.Max).
			Msg("Vibrance out of range, ignored")
		return false
	}

	targets := []display.Monitor{mon}
	if affectAll {
		targets = c.registry.Monitors()
	}

	written := c.write(targets, value)
	if written == 0 {
		return false
	}

	log.Debug().
		Int("monitor", monitor).
		Int("value", value).
		Bool("affect_all", affectAll).
		Int("written", written).
		Msg("Vibrance set")
	return true
}

// write sends value to every target with a valid range and flushes once.
// It returns the number of monitors written.
func (c *Controller) write(targets []display.Monitor, value int) int {
	server := c.registry.Server()
	written := 0
	for _, target := range targets {
		if !target.RangeValid {
			continue
		}
		if value == 0 && c.opts.SkipZeroOnInactive && !target.Active {
			continue
		}
		server.SetVibrance(target.ID, value)
		c.registry.SetLevel(target.Index, value)
		written++
	}
	if written > 0 {
		server.Flush()
	}
	return written
}

// Reset sets the monitor back to 0, or every monitor when affectAll is
// true. The broadcast does not depend on the selected monitor.
func (c *Controller) Reset(monitor int, affectAll bool) bool {
	if affectAll {
		return c.ResetAll()
	}
	return c.Set(monitor, 0, false)
}

// ResetAll writes 0 to every monitor whose own range contains it.
func (c *Controller) ResetAll() bool {
	var targets []display.Monitor
	for _, mon := range c.registry.Monitors() {
		if mon.InRange(0) {
			targets = append(targets, mon)
		}
	}
	written := c.write(targets, 0)
	logger.WithComponent("vibrance").Debug().Int("written", written).Msg("Vibrance reset")
	return written > 0
}

// SetPercent converts pct with the selected monitor's range and sets it.
func (c *Controller) SetPercent(monitor, pct int, affectAll bool) bool {
	mon, ok := c.registry.Monitor(monitor)
	if !ok {
		return false
	}
	return c.Set(monitor, PercentageToValue(pct, &mon), affectAll)
}
