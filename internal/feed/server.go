// Package feed serves activity pulses to local overlay clients over
// WebSocket, plus a small JSON status API.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"oiiacat/internal/activity"
	"oiiacat/internal/burst"
	"oiiacat/internal/protocol"
	"oiiacat/internal/tally"
)

// StatusSource exposes the detector state reported by the feed
type StatusSource interface {
	Count() uint32
	State() activity.State
}

// DayTotals looks up persisted per-day totals
type DayTotals interface {
	Get(day string) (int64, error)
}

// Options configures a Server
type Options struct {
	// Token, if set, must be presented as a bearer token or ?token= parameter
	Token string

	// Version is reported to clients in the hello message
	Version string

	// Totals, if set, adds today's persisted total to /api/status
	Totals DayTotals

	// Burst is how long the overlay keeps spinning after a pulse
	Burst time.Duration
}

// Server provides the activity feed
type Server struct {
	src   StatusSource
	opts  Options
	log   *slog.Logger
	wsMgr *WSManager

	startOnce sync.Once
	handler   http.Handler

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

// NewServer creates a new feed server
func NewServer(src StatusSource, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Burst <= 0 {
		opts.Burst = burst.DefaultDuration
	}
	s := &Server{
		src:  src,
		opts: opts,
		log:  logger.With("component", "feed"),
	}
	s.wsMgr = newWSManager(s)
	return s
}

// Handler returns the HTTP handler and starts the WebSocket hub on first use
func (s *Server) Handler() http.Handler {
	s.startOnce.Do(func() {
		go s.wsMgr.start()

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
		mux.HandleFunc("/api/status", s.handleStatus)
		mux.HandleFunc("/health", s.handleHealth)
		mux.HandleFunc("/overlay", s.handleOverlay)

		s.handler = s.authMiddleware(s.recoverMiddleware(mux))
	})
	return s.handler
}

// Start serves on addr until Shutdown is called. It blocks. After Shutdown
// it returns nil without serving.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		s.log.Error("feed server failed to listen", "addr", addr, "error", err)
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		s.log.Debug("feed server shut down before it started", "addr", addr)
		return nil
	}
	s.http = srv
	s.mu.Unlock()

	s.log.Info("feed server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("feed server stopped", "error", err)
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and disconnects every client
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.http
	s.mu.Unlock()

	s.wsMgr.stop()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Publish broadcasts one pulse. It never blocks; when the hub is backed up
// the pulse is dropped for feed clients only.
func (s *Server) Publish(count uint32) {
	s.wsMgr.tryBroadcast(protocol.Message{
		Type: protocol.TypePulse,
		Payload: protocol.PulsePayload{
			Count:     count,
			Timestamp: time.Now().UnixMilli(),
		},
	})
}

// PublishState broadcasts a modality change
func (s *Server) PublishState(state activity.State) {
	s.wsMgr.tryBroadcast(protocol.Message{
		Type: protocol.TypeState,
		Payload: protocol.StatePayload{
			Enabled:  state.Enabled,
			Keyboard: state.Keyboard,
			Mouse:    state.Mouse,
		},
	})
}

// Clients returns the number of connected WebSocket clients
func (s *Server) Clients() int {
	return s.wsMgr.clientCount()
}

func (s *Server) hello() protocol.Message {
	state := s.src.State()
	return protocol.Message{
		Type: protocol.TypeHello,
		Payload: protocol.HelloPayload{
			Version:  s.opts.Version,
			Count:    s.src.Count(),
			Keyboard: state.Keyboard,
			Mouse:    state.Mouse,
		},
	}
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("recovered panic in handler", "path", r.URL.Path, "panic", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the feed token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)

		if r.URL.Path == "/health" || s.opts.Token == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.opts.Token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := s.src.State()
	status := map[string]interface{}{
		"count":    s.src.Count(),
		"enabled":  state.Enabled,
		"keyboard": state.Keyboard,
		"mouse":    state.Mouse,
		"clients":  s.Clients(),
	}

	if s.opts.Totals != nil {
		today, err := s.opts.Totals.Get(tally.DayKey(time.Now()))
		if err != nil {
			s.log.Warn("failed to read today's total", "error", err)
		} else {
			status["today"] = today
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
