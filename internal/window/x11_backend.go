package window

import (
	"encoding/binary"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
)

const desktopWindowType = "_NET_WM_WINDOW_TYPE_DESKTOP"

// X11Desktop implements Desktop on an existing X connection. It shares
// the connection with the display registry so that closing the registry
// also unblocks WaitFocusChange.
type X11Desktop struct {
	conn       *xgb.Conn
	xu         *xgbutil.XUtil
	root       xproto.Window
	activeAtom xproto.Atom
	pidAtom    xproto.Atom
}

// NewX11Desktop wraps conn. Atoms are interned up front so the event loop
// never has to.
func NewX11Desktop(conn *xgb.Conn) (*X11Desktop, error) {
	xu, err := xgbutil.NewConnXgb(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize EWMH helpers: %w", err)
	}

	d := &X11Desktop{
		conn: conn,
		xu:   xu,
		root: xu.RootWin(),
	}

	if d.activeAtom, err = d.getAtom("_NET_ACTIVE_WINDOW"); err != nil {
		return nil, err
	}
	if d.pidAtom, err = d.getAtom("_NET_WM_PID"); err != nil {
		return nil, err
	}
	return d, nil
}

// Watch subscribes to property changes on the root window
func (d *X11Desktop) Watch() error {
	if d.root == 0 {
		return ErrNoRootWindow
	}

	if err := xproto.ChangeWindowAttributesChecked(
		d.conn,
		d.root,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange},
	).Check(); err != nil {
		return fmt.Errorf("%w: failed to set event mask: %v", ErrNoRootWindow, err)
	}
	return nil
}

// WaitFocusChange blocks until _NET_ACTIVE_WINDOW changes on the root
// window. Other events are discarded.
func (d *X11Desktop) WaitFocusChange() error {
	log := logger.WithComponent("x11-desktop")

	for {
		ev, err := d.conn.WaitForEvent()
		if ev == nil && err == nil {
			return ErrDisconnected
		}
		if err != nil {
			// X errors from earlier unchecked requests arrive here.
			log.Debug().Err(err).Msg("X error while waiting for events")
			continue
		}

		if prop, ok := ev.(xproto.PropertyNotifyEvent); ok &&
			prop.Window == d.root && prop.Atom == d.activeAtom {
			return nil
		}
	}
}

// ActiveWindow returns the window named by _NET_ACTIVE_WINDOW
func (d *X11Desktop) ActiveWindow() (uint32, error) {
	win, err := ewmh.ActiveWindowGet(d.xu)
	if err != nil {
		return 0, err
	}
	return uint32(win), nil
}

// IsDesktop reports whether the window's type includes the desktop type
func (d *X11Desktop) IsDesktop(win uint32) bool {
	types, err := ewmh.WmWindowTypeGet(d.xu, xproto.Window(win))
	if err != nil {
		return false
	}
	for _, t := range types {
		if t == desktopWindowType {
			return true
		}
	}
	return false
}

// WindowPID reads _NET_WM_PID with a bounded property read
func (d *X11Desktop) WindowPID(win uint32) (uint32, bool) {
	reply, err := xproto.GetProperty(
		d.conn,
		false,
		xproto.Window(win),
		d.pidAtom,
		xproto.AtomCardinal,
		0,
		MaxPropertyBytes/4,
	).Reply()
	if err != nil || reply == nil {
		logger.WithComponent("x11-desktop").Debug().
			Err(err).
			Uint32("window", win).
			Msg("Failed to read _NET_WM_PID")
		return 0, false
	}
	return decodeCardinal(reply.Format, reply.Value)
}

// WindowSize returns the window's width and height
func (d *X11Desktop) WindowSize(win uint32) (int, int, error) {
	geom, err := xproto.GetGeometry(d.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return 0, 0, err
	}
	return int(geom.Width), int(geom.Height), nil
}

// getAtom gets an atom ID by name
func (d *X11Desktop) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(d.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern %s: %w", name, err)
	}
	return reply.Atom, nil
}

// decodeCardinal decodes the first 32-bit value of a CARDINAL property.
// ok is false when the property is absent or too short.
func decodeCardinal(format byte, value []byte) (uint32, bool) {
	if format != 32 || len(value) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(value[:4]), true
}
