package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/FocusVibrance/internal/apps"
	"github.com/bryanchriswhite/FocusVibrance/internal/display"
	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
	"github.com/bryanchriswhite/FocusVibrance/internal/vibrance"
	"github.com/bryanchriswhite/FocusVibrance/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Selection is the user's monitor selection.
type Selection interface {
	DefaultMonitor() int
	AffectAll() bool
	SetSelection(monitor int, affectAll bool) error
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	controller *vibrance.Controller
	registry   *display.Registry
	table      *apps.Table
	selection  Selection
	observer   *window.Observer
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates a new API server. observer may be nil when focus
// tracking is disabled.
func NewServer(controller *vibrance.Controller, table *apps.Table, selection Selection, observer *window.Observer) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		controller: controller,
		registry:   controller.Registry(),
		table:      table,
		selection:  selection,
		observer:   observer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local tool, any origin may connect
			},
		},
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Monitors and vibrance
	api.HandleFunc("/monitors", s.handleGetMonitors).Methods("GET")
	api.HandleFunc("/monitors/{index:[0-9]+}/vibrance", s.handleGetVibrance).Methods("GET")
	api.HandleFunc("/monitors/{index:[0-9]+}/vibrance", s.handleSetVibrance).Methods("PUT")

	// Selection
	api.HandleFunc("/selection", s.handleGetSelection).Methods("GET")
	api.HandleFunc("/selection", s.handleSetSelection).Methods("PUT")

	// Process table
	api.HandleFunc("/processes", s.handleGetProcesses).Methods("GET")
	api.HandleFunc("/processes", s.handleToggleProcess).Methods("POST")
	api.HandleFunc("/processes/{pid}", s.handleGetProcess).Methods("GET")

	// Observer state
	api.HandleFunc("/observer/current", s.handleGetCurrent).Methods("GET")
	api.HandleFunc("/observer/stream", s.handleStream)

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown is called
func (s *Server) Serve(ln net.Listener) error {
	logger.WithComponent("api").Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting API server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// acquire takes the display handle for one request. It writes 503 and
// returns false once teardown has started.
func (s *Server) acquire(w http.ResponseWriter) bool {
	if err := s.registry.Acquire(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return false
	}
	return true
}

// HTTP Handlers

func (s *Server) handleGetMonitors(w http.ResponseWriter, r *http.Request) {
	monitors := s.registry.Monitors()
	views := make([]MonitorView, 0, len(monitors))
	for _, mon := range monitors {
		views = append(views, MonitorView{
			Monitor: mon,
			Percent: vibrance.ValueToPercentage(mon.Level, &mon),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func monitorIndex(r *http.Request) int {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return -1
	}
	return index
}

func (s *Server) handleGetVibrance(w http.ResponseWriter, r *http.Request) {
	index := monitorIndex(r)

	if !s.acquire(w) {
		return
	}
	value, err := s.controller.Get(index)
	mon, _ := s.registry.Monitor(index)
	s.registry.Release()

	switch {
	case errors.Is(err, display.ErrNoMonitor):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, VibranceResponse{
			Monitor: index,
			Value:   value,
			Percent: vibrance.ValueToPercentage(value, &mon),
		})
	}
}

func (s *Server) handleSetVibrance(w http.ResponseWriter, r *http.Request) {
	index := monitorIndex(r)

	var req SetVibranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if (req.Percent == nil) == (req.Value == nil) {
		writeError(w, http.StatusBadRequest, "exactly one of percent or value is required")
		return
	}

	affectAll := s.selection.AffectAll()
	if req.AffectAll != nil {
		affectAll = *req.AffectAll
	}

	if !s.acquire(w) {
		return
	}
	defer s.registry.Release()

	mon, ok := s.registry.Monitor(index)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("monitor %d: %v", index, display.ErrNoMonitor))
		return
	}

	var value int
	if req.Percent != nil {
		value = vibrance.PercentageToValue(*req.Percent, &mon)
	} else {
		value = *req.Value
	}

	// Out-of-range values are ignored, not rejected.
	applied := s.controller.Set(index, value, affectAll)

	writeJSON(w, http.StatusOK, SetVibranceResponse{
		Monitor:   index,
		Value:     value,
		AffectAll: affectAll,
		Applied:   applied,
	})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SelectionBody{
		DefaultMonitor: s.selection.DefaultMonitor(),
		AffectAll:      s.selection.AffectAll(),
	})
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, ok := s.registry.Monitor(req.DefaultMonitor); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("monitor %d: %v", req.DefaultMonitor, display.ErrNoMonitor))
		return
	}

	if err := s.selection.SetSelection(req.DefaultMonitor, req.AffectAll); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleGetProcesses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.table.Entries())
}

func (s *Server) handleToggleProcess(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pid := apps.NormalizePID(req.PID)
	if !apps.ValidPID(pid) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid process id %q: digits only", req.PID))
		return
	}

	var result apps.Result
	if req.Target != nil {
		result = s.table.ToggleTarget(pid, *req.Target)
	} else {
		result = s.table.Toggle(pid)
	}

	resp := ToggleResponse{PID: pid, Result: result.String()}
	if e, ok := s.table.Lookup(pid); ok && result == apps.Added {
		resp.Entry = &e
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]
	if !apps.ValidPID(pid) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid process id %q: digits only", pid))
		return
	}

	e, ok := s.table.Lookup(pid)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("process %s not tracked", pid))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleGetCurrent(w http.ResponseWriter, r *http.Request) {
	if s.observer == nil {
		writeError(w, http.StatusNotFound, "focus tracking disabled")
		return
	}

	ctx, ok := s.observer.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no focus change observed yet")
		return
	}
	writeJSON(w, http.StatusOK, ctx)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	if s.observer == nil {
		writeError(w, http.StatusNotFound, "focus tracking disabled")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Subscribe to focus changes
	updates := s.observer.Subscribe()
	defer s.observer.Unsubscribe(updates)

	// Send the last known state first
	if current, ok := s.observer.Current(); ok {
		if err := conn.WriteJSON(current); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	// Detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ctx, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ctx); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if s.registry.Closed() {
		status, code = "closed", http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:   status,
		Version:  Version,
		Screen:   s.registry.Screen(),
		Monitors: s.registry.Count(),
		Tracked:  s.table.Count(),
	})
}
