package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusVibrance/internal/apps"
	"github.com/bryanchriswhite/FocusVibrance/internal/display"
	"github.com/bryanchriswhite/FocusVibrance/internal/display/displaytest"
	"github.com/bryanchriswhite/FocusVibrance/internal/vibrance"
	"github.com/bryanchriswhite/FocusVibrance/internal/window"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSelection struct {
	mu        sync.Mutex
	monitor   int
	affectAll bool
}

func (s *memSelection) DefaultMonitor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor
}

func (s *memSelection) AffectAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.affectAll
}

func (s *memSelection) SetSelection(monitor int, affectAll bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor, s.affectAll = monitor, affectAll
	return nil
}

// stepDesktop reports one full-screen window owned by pid 1234 each time
// step is signalled.
type stepDesktop struct {
	step chan struct{}
}

func (d *stepDesktop) Watch() error { return nil }
func (d *stepDesktop) WaitFocusChange() error {
	if _, ok := <-d.step; !ok {
		return window.ErrDisconnected
	}
	return nil
}
func (d *stepDesktop) ActiveWindow() (uint32, error)       { return 0x100, nil }
func (d *stepDesktop) IsDesktop(uint32) bool               { return false }
func (d *stepDesktop) WindowPID(uint32) (uint32, bool)     { return 1234, true }
func (d *stepDesktop) WindowSize(uint32) (int, int, error) { return 1920, 1080, nil }

type fixture struct {
	srv      *displaytest.Server
	registry *display.Registry
	table    *apps.Table
	sel      *memSelection
	desktop  *stepDesktop
	observer *window.Observer
	api      *Server
	ts       *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := displaytest.New(
		displaytest.Display{ID: 1, Level: 512},
		displaytest.Display{ID: 2},
		displaytest.Display{ID: 3, NoRange: true},
	)
	srv.HeadList = []display.Head{{Name: "DP-0", Width: 1920, Height: 1080}}
	reg, err := srv.Registry()
	require.NoError(t, err)

	f := &fixture{
		srv:      srv,
		registry: reg,
		table:    apps.NewTable(apps.DefaultTarget),
		sel:      &memSelection{},
		desktop:  &stepDesktop{step: make(chan struct{})},
	}
	controller := vibrance.NewController(reg, vibrance.Options{})
	f.observer = window.NewObserver(f.desktop, controller, f.table, f.sel)
	f.api = NewServer(controller, f.table, f.sel, f.observer)
	f.ts = httptest.NewServer(f.api.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.table.Toggle("1")

	rec := f.request(t, "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 0, h.Screen)
	assert.Equal(t, 3, h.Monitors)
	assert.Equal(t, 1, h.Tracked)
}

func TestHealthAfterTeardown(t *testing.T) {
	f := newFixture(t)
	f.registry.Close()

	rec := f.request(t, "GET", "/api/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	h := decode[HealthResponse](t, rec)
	assert.Equal(t, "closed", h.Status)
	assert.Zero(t, h.Monitors)
}

func TestGetMonitors(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, "GET", "/api/monitors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	views := decode[[]MonitorView](t, rec)
	require.Len(t, views, 3)
	assert.Equal(t, "DP-0", views[0].Name)
	assert.Equal(t, 1920, views[0].Width)
	assert.Equal(t, 75, views[0].Percent)
	assert.False(t, views[2].RangeValid)
}

func TestGetVibrance(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, "GET", "/api/monitors/0/vibrance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, VibranceResponse{Monitor: 0, Value: 512, Percent: 75}, decode[VibranceResponse](t, rec))

	rec = f.request(t, "GET", "/api/monitors/7/vibrance", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.srv.Displays[1].QueryFail = true
	rec = f.request(t, "GET", "/api/monitors/1/vibrance", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSetVibrancePercent(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, "PUT", "/api/monitors/1/vibrance", `{"percent": 80}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[SetVibranceResponse](t, rec)
	assert.True(t, resp.Applied)
	assert.Equal(t, 613, resp.Value)
	assert.False(t, resp.AffectAll)
	assert.Equal(t, []displaytest.Write{{DisplayID: 2, Value: 613}}, f.srv.Writes())
}

func TestSetVibranceAffectAllFromSelection(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sel.SetSelection(0, true))

	rec := f.request(t, "PUT", "/api/monitors/0/vibrance", `{"value": -300}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SetVibranceResponse](t, rec).AffectAll)

	// The read-only display is skipped.
	assert.Equal(t, []displaytest.Write{
		{DisplayID: 1, Value: -300},
		{DisplayID: 2, Value: -300},
	}, f.srv.Writes())
}

func TestSetVibranceOutOfRangeIsIgnored(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, "PUT", "/api/monitors/0/vibrance", `{"value": 4000, "affect_all": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[SetVibranceResponse](t, rec).Applied)
	assert.Empty(t, f.srv.Writes())
}

func TestSetVibranceBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path string
		body string
		code int
	}{
		{"/api/monitors/0/vibrance", `{}`, http.StatusBadRequest},
		{"/api/monitors/0/vibrance", `{"percent": 1, "value": 1}`, http.StatusBadRequest},
		{"/api/monitors/0/vibrance", `not json`, http.StatusBadRequest},
		{"/api/monitors/9/vibrance", `{"percent": 1}`, http.StatusNotFound},
		{"/api/monitors/x/vibrance", `{"percent": 1}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := f.request(t, "PUT", tt.path, tt.body)
		assert.Equal(t, tt.code, rec.Code, "%s %s", tt.path, tt.body)
	}
	assert.Empty(t, f.srv.Writes())
}

func TestVibranceAfterTeardown(t *testing.T) {
	f := newFixture(t)
	f.registry.Close()

	rec := f.request(t, "GET", "/api/monitors/0/vibrance", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.request(t, "PUT", "/api/monitors/0/vibrance", `{"value": 1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSelection(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, "PUT", "/api/selection", `{"default_monitor": 1, "affect_all": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, "GET", "/api/selection", "")
	assert.Equal(t, SelectionBody{DefaultMonitor: 1, AffectAll: true}, decode[SelectionBody](t, rec))

	rec = f.request(t, "PUT", "/api/selection", `{"default_monitor": 5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, f.sel.DefaultMonitor())
}

func TestProcessToggle(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, "POST", "/api/processes", `{"pid": "1234", "target": 80}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ToggleResponse](t, rec)
	assert.Equal(t, "added", resp.Result)
	require.NotNil(t, resp.Entry)
	assert.Equal(t, 80, resp.Entry.Target)

	rec = f.request(t, "GET", "/api/processes/1234", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, apps.Entry{PID: "1234", Target: 80}, decode[apps.Entry](t, rec))

	rec = f.request(t, "POST", "/api/processes", `{"pid": "1234"}`)
	assert.Equal(t, "removed", decode[ToggleResponse](t, rec).Result)

	rec = f.request(t, "GET", "/api/processes/1234", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessRejectsNonNumericPID(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{"pid": ""}`, `{"pid": "firefox"}`, `{"pid": "12 34"}`} {
		rec := f.request(t, "POST", "/api/processes", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	rec := f.request(t, "GET", "/api/processes/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.table.Count())
}

func TestProcessList(t *testing.T) {
	f := newFixture(t)
	f.table.Toggle("20")
	f.table.ToggleTarget("3", 40)

	rec := f.request(t, "GET", "/api/processes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []apps.Entry{{PID: "3", Target: 40}, {PID: "20", Target: 100}}, decode[[]apps.Entry](t, rec))
}

func TestObserverCurrentBeforeAnyEvent(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, "GET", "/api/observer/current", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObserverStream(t *testing.T) {
	f := newFixture(t)
	f.table.Toggle("1234")

	done := make(chan error, 1)
	go func() { done <- f.observer.Run() }()
	defer func() {
		close(f.desktop.step)
		<-done
	}()

	// Handle one focus change so the stream has a current state to send.
	f.desktop.step <- struct{}{}
	require.Eventually(t, func() bool {
		_, ok := f.observer.Current()
		return ok
	}, time.Second, 5*time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/observer/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var initial window.Context
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, window.OutcomeApplied, initial.Outcome)
	assert.Equal(t, uint32(1234), initial.PID)
	assert.Equal(t, 1023, initial.Value)

	// The handler subscribed before sending the initial state.
	f.desktop.step <- struct{}{}
	var next window.Context
	require.NoError(t, conn.ReadJSON(&next))
	assert.True(t, next.Time.After(initial.Time) || next.Time.Equal(initial.Time))

	rec := f.request(t, "GET", "/api/observer/current", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClient(t *testing.T) {
	f := newFixture(t)
	c := NewClientURL(f.ts.URL)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, h.Version)

	target := 60
	resp, err := c.ToggleProcess(ctx, "77", &target)
	require.NoError(t, err)
	assert.Equal(t, "added", resp.Result)

	e, err := c.Process(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, 60, e.Target)

	entries, err := c.Processes(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = c.Process(ctx, "78")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = c.ToggleProcess(ctx, "nope", nil)
	assert.ErrorContains(t, err, "digits only")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("OPTIONS", "/api/processes", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
