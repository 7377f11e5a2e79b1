// Package displaytest provides an in-memory display.Server for tests.
package displaytest

import (
	"errors"
	"sync"

	"github.com/bryanchriswhite/FocusVibrance/internal/display"
)

// ErrQuery is returned by the fake for displays configured to fail.
var ErrQuery = errors.New("displaytest: query failed")

// Write records one SetVibrance call.
type Write struct {
	DisplayID int
	Value     int
}

// Display configures one fake display target.
type Display struct {
	ID        int
	Level     int
	Min       int
	Max       int
	NoRange   bool
	QueryFail bool
}

// Server is a fake NVIDIA X server.
type Server struct {
	mu sync.Mutex

	Screens   int
	Default   int
	NvScreens map[int]bool
	Displays  []Display
	HeadList  []display.Head
	HeadsErr  error
	ListErr   error

	writes  []Write
	flushes int
	closed  bool
}

// New returns a single-screen NVIDIA server with the given displays, all
// sharing the [-1024, 1023] range unless configured otherwise.
func New(displays ...Display) *Server {
	for i := range displays {
		if displays[i].Min == 0 && displays[i].Max == 0 && !displays[i].NoRange {
			displays[i].Min, displays[i].Max = -1024, 1023
		}
	}
	return &Server{
		Screens:   1,
		NvScreens: map[int]bool{0: true},
		Displays:  displays,
	}
}

func (s *Server) find(id int) *Display {
	for i := range s.Displays {
		if s.Displays[i].ID == id {
			return &s.Displays[i]
		}
	}
	return nil
}

func (s *Server) ScreenCount() int   { return s.Screens }
func (s *Server) DefaultScreen() int { return s.Default }

func (s *Server) IsNvScreen(screen int) bool {
	return s.NvScreens[screen]
}

func (s *Server) EnabledDisplays(screen int) ([]int, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	ids := make([]int, 0, len(s.Displays))
	for _, d := range s.Displays {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *Server) Heads() ([]display.Head, error) {
	return s.HeadList, s.HeadsErr
}

func (s *Server) Vibrance(id int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.find(id)
	if d == nil || d.QueryFail {
		return 0, ErrQuery
	}
	return d.Level, nil
}

func (s *Server) VibranceRange(id int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.find(id)
	if d == nil || d.NoRange {
		return 0, 0, ErrQuery
	}
	return d.Min, d.Max, nil
}

func (s *Server) SetVibrance(id, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("displaytest: SetVibrance after Close")
	}
	s.writes = append(s.writes, Write{DisplayID: id, Value: value})
	if d := s.find(id); d != nil {
		d.Level = value
	}
}

func (s *Server) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Writes returns every SetVibrance call so far.
func (s *Server) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// ResetWrites forgets recorded writes and flushes.
func (s *Server) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
	s.flushes = 0
}

// Flushes returns how many times Flush was called.
func (s *Server) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// IsClosed reports whether Close was called.
func (s *Server) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Registry builds and discovers a registry over s.
func (s *Server) Registry() (*display.Registry, error) {
	reg := display.NewRegistry(s)
	if err := reg.Discover(); err != nil {
		return nil, err
	}
	return reg, nil
}
