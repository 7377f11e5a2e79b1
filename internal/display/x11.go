package display

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xinerama"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
	"github.com/bryanchriswhite/FocusVibrance/internal/nvctrl"
)

// XServer implements Server on top of an X11 connection with the
// NV-CONTROL extension.
type XServer struct {
	conn  *xgb.Conn
	setup *xproto.SetupInfo
}

// OpenX connects to the named X display (empty means $DISPLAY) and
// initializes NV-CONTROL on it.
func OpenX(name string) (*XServer, error) {
	conn, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	if err := nvctrl.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoNvScreen, err)
	}

	if major, minor, err := nvctrl.QueryVersion(conn); err == nil {
		logger.WithComponent("display").Debug().
			Int("major", major).
			Int("minor", minor).
			Msg("NV-CONTROL extension available")
	}

	return &XServer{
		conn:  conn,
		setup: xproto.Setup(conn),
	}, nil
}

// Conn returns the X connection, shared with the focus observer.
func (s *XServer) Conn() *xgb.Conn {
	return s.conn
}

func (s *XServer) ScreenCount() int {
	return len(s.setup.Roots)
}

func (s *XServer) DefaultScreen() int {
	return s.conn.DefaultScreen
}

func (s *XServer) IsNvScreen(screen int) bool {
	ok, err := nvctrl.IsNv(s.conn, screen)
	if err != nil {
		logger.WithComponent("display").Debug().Err(err).Int("screen", screen).Msg("IsNv query failed")
		return false
	}
	return ok
}

func (s *XServer) EnabledDisplays(screen int) ([]int, error) {
	data, err := nvctrl.QueryTargetBinaryData(s.conn, nvctrl.TargetXScreen, screen, 0,
		nvctrl.BinaryDisplaysEnabledOnXScreen)
	if err != nil {
		return nil, err
	}
	return nvctrl.DisplayIDs(data), nil
}

func (s *XServer) Vibrance(displayID int) (int, error) {
	v, err := nvctrl.QueryTargetAttribute(s.conn, nvctrl.TargetDisplay, displayID, 0, nvctrl.DigitalVibrance)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func (s *XServer) VibranceRange(displayID int) (int, int, error) {
	vv, err := nvctrl.QueryValidTargetAttributeValues(s.conn, nvctrl.TargetDisplay, displayID, 0,
		nvctrl.DigitalVibrance)
	if err != nil {
		return 0, 0, err
	}
	if !vv.IsRange() {
		return 0, 0, fmt.Errorf("vibrance of display %d is not a range attribute (type %d)", displayID, vv.Type)
	}
	return int(vv.Min), int(vv.Max), nil
}

func (s *XServer) SetVibrance(displayID, value int) {
	nvctrl.SetTargetAttribute(s.conn, nvctrl.TargetDisplay, displayID, 0, nvctrl.DigitalVibrance, int32(value))
}

func (s *XServer) Flush() {
	s.conn.Sync()
}

func (s *XServer) Close() {
	s.conn.Close()
}

// Heads returns per-screen geometry from Xinerama, falling back to the
// active RandR CRTCs. Output names come from RandR when it is available.
func (s *XServer) Heads() ([]Head, error) {
	names := s.randrHeads()

	heads, err := s.xineramaHeads()
	if err != nil || len(heads) == 0 {
		if len(names) == 0 {
			if err == nil {
				err = fmt.Errorf("no screen geometry reported")
			}
			return nil, err
		}
		return names, nil
	}

	for i := range heads {
		if i < len(names) {
			heads[i].Name = names[i].Name
		}
	}
	return heads, nil
}

func (s *XServer) xineramaHeads() ([]Head, error) {
	if err := xinerama.Init(s.conn); err != nil {
		return nil, fmt.Errorf("xinerama init failed: %w", err)
	}

	reply, err := xinerama.QueryScreens(s.conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query xinerama screens: %w", err)
	}

	heads := make([]Head, 0, len(reply.ScreenInfo))
	for _, info := range reply.ScreenInfo {
		heads = append(heads, Head{
			X:      int(info.XOrg),
			Y:      int(info.YOrg),
			Width:  int(info.Width),
			Height: int(info.Height),
		})
	}
	return heads, nil
}

func (s *XServer) randrHeads() []Head {
	log := logger.WithComponent("display")

	if err := randr.Init(s.conn); err != nil {
		log.Debug().Err(err).Msg("randr init failed")
		return nil
	}

	root := s.setup.DefaultScreen(s.conn).Root
	resources, err := randr.GetScreenResources(s.conn, root).Reply()
	if err != nil {
		log.Debug().Err(err).Msg("failed to get screen resources")
		return nil
	}

	var heads []Head
	for i, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(s.conn, crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		if info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}

		name := fmt.Sprintf("Monitor%d", i)
		if out, err := randr.GetOutputInfo(s.conn, info.Outputs[0], resources.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}

		heads = append(heads, Head{
			Name:   name,
			X:      int(info.X),
			Y:      int(info.Y),
			Width:  int(info.Width),
			Height: int(info.Height),
		})
	}

	return heads
}
