package window

import "errors"

var (
	// ErrNoRootWindow means the desktop root window could not be obtained or
	// subscribed to, so focus changes cannot be observed.
	ErrNoRootWindow = errors.New("desktop root window unavailable")

	// ErrDisconnected is returned by WaitFocusChange once the display
	// connection has been closed.
	ErrDisconnected = errors.New("display connection closed")
)

// MaxPropertyBytes bounds every window property read.
const MaxPropertyBytes = 1024

// Desktop defines what the observer needs from the windowing system.
//
// Only WaitFocusChange may be called without holding the display handle
// lock; every other method talks to the server.
type Desktop interface {
	// Watch subscribes to property changes on the root window
	Watch() error

	// WaitFocusChange blocks until the active window changes. It returns
	// ErrDisconnected when the connection is gone.
	WaitFocusChange() error

	// ActiveWindow returns the currently active window, 0 if none
	ActiveWindow() (uint32, error)

	// IsDesktop reports whether the window is the desktop background
	IsDesktop(win uint32) bool

	// WindowPID returns the owning process id. ok is false when the
	// property is absent, which is distinct from a pid of 0.
	WindowPID(win uint32) (pid uint32, ok bool)

	// WindowSize returns the window's pixel size
	WindowSize(win uint32) (width, height int, err error)
}
