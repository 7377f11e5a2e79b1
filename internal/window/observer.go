package window

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusVibrance/internal/apps"
	"github.com/bryanchriswhite/FocusVibrance/internal/display"
	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
	"github.com/bryanchriswhite/FocusVibrance/internal/vibrance"
)

// Outcome is the result of handling one focus change.
type Outcome string

const (
	OutcomeIgnored Outcome = "ignored"
	OutcomeApplied Outcome = "applied"
)

// Reasons a focus change was ignored.
const (
	ReasonNoActiveWindow = "no active window"
	ReasonDesktop        = "desktop window"
	ReasonNoPID          = "window has no pid"
	ReasonUntracked      = "process not tracked"
	ReasonNoMonitor      = "default monitor unknown"
	ReasonNotFullScreen  = "window not full-screen"
	ReasonRejected       = "vibrance value rejected"
)

// Context describes the active window as seen by one observer iteration.
type Context struct {
	Window     uint32    `json:"window"`
	PID        uint32    `json:"pid,omitempty"`
	Tracked    bool      `json:"tracked"`
	FullScreen bool      `json:"full_screen"`
	Value      int       `json:"value,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Time       time.Time `json:"time"`
}

// Selection supplies the monitor whose geometry defines full-screen.
type Selection interface {
	DefaultMonitor() int
}

// Observer applies per-process vibrance whenever the active window
// changes.
type Observer struct {
	desktop    Desktop
	registry   *display.Registry
	controller *vibrance.Controller
	table      *apps.Table
	selection  Selection

	mu        sync.RWMutex
	current   *Context
	listeners []chan Context
}

// NewObserver creates an observer. Run must be called to start it.
func NewObserver(desktop Desktop, controller *vibrance.Controller, table *apps.Table, selection Selection) *Observer {
	return &Observer{
		desktop:    desktop,
		registry:   controller.Registry(),
		controller: controller,
		table:      table,
		selection:  selection,
		listeners:  make([]chan Context, 0),
	}
}

// Run subscribes to focus changes and handles them until the display
// handle is torn down. It returns nil on teardown and ErrNoRootWindow if
// focus changes cannot be observed at all.
func (o *Observer) Run() error {
	log := logger.WithComponent("observer")

	if err := o.registry.Acquire(); err != nil {
		return err
	}
	err := o.desktop.Watch()
	o.registry.Release()
	if err != nil {
		if !errors.Is(err, ErrNoRootWindow) {
			err = fmt.Errorf("%w: %v", ErrNoRootWindow, err)
		}
		return err
	}

	log.Info().Msg("Watching for active window changes")

	for {
		if err := o.desktop.WaitFocusChange(); err != nil {
			if errors.Is(err, ErrDisconnected) {
				log.Debug().Msg("Display connection closed, observer exiting")
				return nil
			}
			return err
		}

		if !o.registry.TryAcquire() {
			log.Debug().Msg("Display teardown in progress, observer exiting")
			return nil
		}
		ctx := o.handle()
		o.registry.Release()

		o.publish(ctx)
	}
}

// handle processes one focus change. The caller holds the handle lock.
func (o *Observer) handle() Context {
	log := logger.WithComponent("observer")

	ctx := Context{Outcome: OutcomeIgnored, Time: time.Now()}
	def := o.selection.DefaultMonitor()

	// Every focus change starts from zero on all displays.
	o.controller.ResetAll()

	win, err := o.desktop.ActiveWindow()
	if err != nil || win == 0 {
		ctx.Reason = ReasonNoActiveWindow
		return ctx
	}
	ctx.Window = win

	if o.desktop.IsDesktop(win) {
		ctx.Reason = ReasonDesktop
		return ctx
	}

	pid, ok := o.desktop.WindowPID(win)
	if !ok || pid == 0 {
		ctx.Reason = ReasonNoPID
		return ctx
	}
	ctx.PID = pid

	entry, ok := o.table.LookupPID(pid)
	if !ok {
		ctx.Reason = ReasonUntracked
		return ctx
	}
	ctx.Tracked = true

	mon, ok := o.registry.Monitor(def)
	if !ok {
		ctx.Reason = ReasonNoMonitor
		return ctx
	}

	width, height, err := o.desktop.WindowSize(win)
	if err != nil {
		log.Debug().Err(err).Uint32("window", win).Msg("Failed to read window geometry")
	}
	ctx.FullScreen = err == nil && mon.HasGeometry() &&
		width == mon.Width && height == mon.Height
	if !ctx.FullScreen {
		ctx.Reason = ReasonNotFullScreen
		return ctx
	}

	ctx.Value = vibrance.PercentageToValue(min(entry.Target, 100), &mon)
	if !o.controller.Set(def, ctx.Value, true) {
		ctx.Reason = ReasonRejected
		return ctx
	}

	ctx.Outcome = OutcomeApplied
	log.Info().
		Uint32("pid", pid).
		Int("target", entry.Target).
		Int("value", ctx.Value).
		Msg("Applied process vibrance")
	return ctx
}

func (o *Observer) publish(ctx Context) {
	o.mu.Lock()
	o.current = &ctx
	o.mu.Unlock()

	logger.WithComponent("observer").Debug().
		Uint32("window", ctx.Window).
		Uint32("pid", ctx.PID).
		Str("outcome", string(ctx.Outcome)).
		Str("reason", ctx.Reason).
		Msg("Focus change handled")

	o.notifyListeners(ctx)
}

// Current returns the context of the last handled focus change.
func (o *Observer) Current() (Context, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return Context{}, false
	}
	return *o.current, true
}

// Subscribe adds a listener for handled focus changes
func (o *Observer) Subscribe() chan Context {
	ch := make(chan Context, 10)
	o.mu.Lock()
	o.listeners = append(o.listeners, ch)
	o.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (o *Observer) Unsubscribe(ch chan Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, listener := range o.listeners {
		if listener == ch {
			o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// notifyListeners notifies all listeners of a handled focus change
func (o *Observer) notifyListeners(ctx Context) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, listener := range o.listeners {
		select {
		case listener <- ctx:
		default:
			// Skip if channel is full
		}
	}
}
