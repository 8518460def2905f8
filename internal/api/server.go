// Package api serves the engine's REST endpoints, Prometheus metrics and a
// WebSocket feed for dashboards.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go-ict/internal/engine"
	"go-ict/internal/journal"
	"go-ict/internal/model"

	"go.uber.org/zap"
)

const maxBarsBody = 8 << 20

// EngineReader is the engine surface the API needs.
type EngineReader interface {
	Status() engine.Status
	Positions() []model.Position
	PushBar(b model.Bar) error
}

// Options are optional collaborators of the server. A nil Hub gets a new one.
type Options struct {
	Hub           *Hub
	Journal       journal.Recorder
	Metrics       http.Handler
	DefaultSymbol string
}

// Server is the REST API + WebSocket server.
type Server struct {
	engine  EngineReader
	opts    Options
	hub     *Hub
	logger  *zap.Logger
	mux     *http.ServeMux
	srv     *http.Server
	address string
}

// NewServer creates an API server.
func NewServer(address string, eng EngineReader, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(logger.Named("ws"))
	}
	s := &Server{
		engine:  eng,
		opts:    opts,
		hub:     hub,
		logger:  logger,
		mux:     http.NewServeMux(),
		address: address,
	}
	s.registerRoutes()
	return s
}

// Hub returns the WebSocket hub for broadcasting.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/positions", s.handlePositions)
	s.mux.HandleFunc("GET /api/positions/{id}/events", s.handlePositionEvents)
	s.mux.HandleFunc("GET /api/decisions", s.handleDecisions)
	s.mux.HandleFunc("POST /api/bars", s.handleBars)
	s.mux.HandleFunc("GET /ws", s.hub.HandleUpgrade)
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

// Run starts the HTTP server and the WebSocket hub.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.srv = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api_server_started", zap.String("address", s.address))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data:      map[string]any{"status": "ok", "wsClients": s.hub.ClientCount()},
		Timestamp: time.Now(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.APIResponse{Data: s.engine.Status(), Timestamp: time.Now()})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.engine.Positions()
	if sym := r.URL.Query().Get("symbol"); sym != "" {
		filtered := positions[:0]
		for _, p := range positions {
			if p.Symbol == sym {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Data: positions, Timestamp: time.Now()})
}

func (s *Server) handlePositionEvents(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	events, err := s.opts.Journal.Events(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Data: events, Timestamp: time.Now()})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.opts.Journal.RecentDecisions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Data: recs, Timestamp: time.Now()})
}

// handleBars accepts one bar object or an array of bars from the upstream
// indicator pipeline and queues them in order.
func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBarsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	bars, err := decodeBars(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bars: "+err.Error())
		return
	}

	accepted := 0
	for _, b := range bars {
		if b.Symbol == "" {
			b.Symbol = s.opts.DefaultSymbol
		}
		if err := s.engine.PushBar(b); err != nil {
			s.logger.Warn("api_bar_rejected", zap.String("symbol", b.Symbol), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, model.APIResponse{
				Data:      map[string]int{"accepted": accepted},
				Error:     err.Error(),
				Timestamp: time.Now(),
			})
			return
		}
		accepted++
	}

	s.logger.Debug("api_bars_queued", zap.Int("count", accepted))
	writeJSON(w, http.StatusAccepted, model.APIResponse{
		Data:      map[string]int{"accepted": accepted},
		Timestamp: time.Now(),
	})
}

// decodeBars accepts one bar object or an array of them. Every bar is
// checked before any is returned, so a bad element rejects the whole body.
func decodeBars(body []byte) ([]model.Bar, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if body[0] != '[' {
		b, err := model.DecodeBar(body, json.Unmarshal)
		if err != nil {
			return nil, err
		}
		return []model.Bar{b}, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}
	bars := make([]model.Bar, 0, len(raws))
	for i, raw := range raws {
		b, err := model.DecodeBar(raw, json.Unmarshal)
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.APIResponse{Error: msg, Timestamp: time.Now()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
