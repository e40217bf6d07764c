// Package http implements the daemon's HTTP fallback transport: a single
// POST /rpc route plus a GET /healthz liveness route, for clients that
// can't use the pipe or WebSocket transports. Request/response only, no
// push notifications, matching the original http.rs design.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agentwatch/internal/rpc"
	"agentwatch/internal/transport"
)

const maxBodyBytes = 64 * 1024

// Config configures the HTTP server: the listen port and the token table
// gating admin/non-admin access. An empty AdminToken with an empty Tokens
// list means no authentication is required.
type Config struct {
	Port int
	Auth transport.TokenAuth
}

func DefaultConfig() Config {
	return Config{Port: 3848}
}

// Server runs the HTTP listener.
type Server struct {
	cfg        Config
	dispatcher *rpc.Dispatcher
	rpcCtx     *rpc.Context

	listener net.Listener
	httpSrv  *http.Server
	addr     string
}

func NewServer(cfg Config, dispatcher *rpc.Dispatcher, rpcCtx *rpc.Context) *Server {
	if cfg.Port == 0 {
		cfg.Port = DefaultConfig().Port
	}
	return &Server{cfg: cfg, dispatcher: dispatcher, rpcCtx: rpcCtx}
}

// Addr returns the server's listen address. Only valid after Start succeeds.
func (s *Server) Addr() string { return s.addr }

func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", addr, err)
	}
	s.listener = ln
	s.addr = ln.Addr().String()

	router := chi.NewRouter()
	router.Get("/healthz", s.handleHealthz)
	router.Post("/rpc", s.handleRPC)
	router.Post("/", s.handleRPC)

	s.httpSrv = &http.Server{Handler: router}
	go func() {
		if serveErr := s.httpSrv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("http: server error", "error", serveErr)
		}
	}()

	slog.Info("http: server started", "addr", s.addr)
	return nil
}

func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	token := transport.ExtractBearer(r.Header.Get("Authorization"))
	isAdmin, ok := s.cfg.Auth.Authenticate(token)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32001,"message":"Unauthorized: missing or invalid token"},"id":null}`))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeParseError(w, err.Error())
		return
	}
	if len(body) > maxBodyBytes {
		writeParseError(w, fmt.Sprintf("request exceeds %d bytes", maxBodyBytes))
		return
	}

	clientCtx := *s.rpcCtx
	clientCtx.IsAdmin = isAdmin

	resp := transport.HandleMessage(s.dispatcher, &clientCtx, body)
	if resp == nil {
		// A notification (no id): the original still answers with 200 and an
		// empty body since HTTP has no concept of a response-less call.
		w.WriteHeader(http.StatusOK)
		return
	}

	raw, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal encode error"},"id":null}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func writeParseError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": transport.ParseError, "message": "Invalid JSON: " + message},
		"id":      nil,
	})
	w.Write(body)
}
