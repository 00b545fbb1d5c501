// Package transport provides aria's admin/HTTP surface: health and metrics
// endpoints plus a small illustrative set of chat-send and roundtable
// endpoints, enough to exercise the Chat Engine and Roundtable Engine over
// HTTP without reimplementing the teacher's full channel/web-UI gateway.
// Grounded on internal/gateway/http_server.go's stdlib net/http.ServeMux +
// promhttp pattern — not a framework, matching the teacher's own choice.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariaworks/aria/internal/auth"
	"github.com/ariaworks/aria/internal/chatengine"
	"github.com/ariaworks/aria/internal/roundtable"
)

// Server is aria's HTTP surface: a stdlib http.Server wrapping a ServeMux,
// started and stopped the way the teacher's gateway.Server does.
type Server struct {
	addr    string
	auth    *auth.Service
	logger  *slog.Logger
	chat    *chatengine.Engine
	round   *roundtable.Engine
	started time.Time

	httpServer *http.Server
	listener   net.Listener
}

// Config gathers Server's dependencies.
type Config struct {
	Host        string
	Port        int
	Auth        *auth.Service
	Logger      *slog.Logger
	ChatEngine  *chatengine.Engine
	Roundtable  *roundtable.Engine
}

// New constructs a Server. It does not start listening until Start is called.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth:   cfg.Auth,
		logger: logger,
		chat:   cfg.ChatEngine,
		round:  cfg.Roundtable,
	}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	protected := http.NewServeMux()
	protected.HandleFunc("/v1/chat/send", s.handleChatSend)
	protected.HandleFunc("/v1/roundtable/discuss", s.handleRoundtableDiscuss)
	protected.HandleFunc("/v1/roundtable/discuss_async", s.handleRoundtableDiscussAsync)
	protected.HandleFunc("/v1/roundtable/status/", s.handleRoundtableStatus)
	mux.Handle("/v1/", auth.Middleware(s.auth, s.logger)(protected))

	return mux
}

// Start binds the listener and begins serving in the background, returning
// once the listener is bound (mirroring startHTTPServer's synchronous bind
// + async Serve split).
func (s *Server) Start(ctx context.Context) error {
	s.started = time.Now()
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", s.addr)
	return nil
}

// Stop gracefully shuts the server down, bounded by ctx (or a 5s fallback).
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	err := s.httpServer.Shutdown(shutdownCtx)
	s.httpServer = nil
	s.listener = nil
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"uptime_sec": int(time.Since(s.started).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
