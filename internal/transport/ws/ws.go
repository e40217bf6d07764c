// Package ws implements the daemon's WebSocket transport: token-gated,
// multi-client, full duplex JSON-RPC over a single /ws endpoint. Its
// lock-ordering and keepalive discipline extend a single-connection hub
// pattern into a broadcast model — every connected client gets every bus
// notification, each subscribed to a shared notification channel.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agentwatch/internal/bus"
	"agentwatch/internal/rpc"
	"agentwatch/internal/transport"
)

// Keepalive and framing constants, carried over from wsserver.Hub.
const (
	writeDeadline      = 5 * time.Second
	readDeadline       = 90 * time.Second
	pingInterval       = 30 * time.Second
	maxReadMessageSize = 32 * 1024
	sendBuffer         = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Config configures the WebSocket server: the listen port and the token
// table gating admin/non-admin access. An empty AdminToken with an empty
// Tokens list means no authentication is required.
type Config struct {
	Port int
	Auth transport.TokenAuth
}

func DefaultConfig() Config {
	return Config{Port: 3847}
}

// Server runs the WebSocket listener and tracks every connected client so
// bus notifications can be broadcast to all of them.
type Server struct {
	cfg        Config
	dispatcher *rpc.Dispatcher
	rpcCtx     *rpc.Context
	bus        *bus.Bus

	listener net.Listener
	httpSrv  *http.Server
	url      string

	mu      sync.RWMutex
	clients map[*client]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// client is one connected WebSocket peer.
type client struct {
	conn    *websocket.Conn
	isAdmin bool

	writeMu sync.Mutex
	out     chan []byte
}

func NewServer(cfg Config, dispatcher *rpc.Dispatcher, rpcCtx *rpc.Context, b *bus.Bus) *Server {
	if cfg.Port == 0 {
		cfg.Port = DefaultConfig().Port
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		rpcCtx:     rpcCtx,
		bus:        b,
		clients:    make(map[*client]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// URL returns the server's ws:// URL. Only valid after Start succeeds.
func (s *Server) URL() string { return s.url }

func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ws: listen %s: %w", addr, err)
	}
	s.listener = ln
	s.url = fmt.Sprintf("ws://%s/ws", ln.Addr().String())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	s.httpSrv = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if serveErr := s.httpSrv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("ws: server error", "error", serveErr)
		}
	}()

	if s.bus != nil {
		s.wg.Add(3)
		go s.forwardState()
		go s.forwardEvents()
		go s.forwardClients()
	}

	slog.Info("ws: server started", "url", s.url)
	return nil
}

func (s *Server) Stop() error {
	var stopErr error
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		clients := make([]*client, 0, len(s.clients))
		for c := range s.clients {
			clients = append(clients, c)
		}
		s.clients = make(map[*client]struct{})
		s.mu.Unlock()
		for _, c := range clients {
			c.conn.Close()
		}

		if s.httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("ws: shutdown: %w", err)
			}
		}
		s.wg.Wait()
	})
	return stopErr
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = transport.ExtractBearer(r.Header.Get("Authorization"))
	}
	isAdmin, ok := s.cfg.Auth.Authenticate(token)
	if !ok {
		http.Error(w, "Unauthorized: missing or invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	c := &client{conn: conn, isAdmin: isAdmin, out: make(chan []byte, sendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	slog.Info("ws: client connected", "remoteAddr", conn.RemoteAddr(), "isAdmin", isAdmin)

	s.serveClient(c)
}

func (s *Server) serveClient(c *client) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("ws: connection handler recovered from panic", "panic", rec)
		}
	}()

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		c.writeLoop()
	}()

	pingDone := make(chan struct{})
	go s.pingLoop(c, pingDone)

	clientCtx := *s.rpcCtx
	clientCtx.IsAdmin = c.isAdmin

	c.send(frameNotification("core.hello", rpc.HelloPayload(&clientCtx)))

	s.readLoop(c, &clientCtx)

	close(pingDone)
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	close(c.out)
	writerWG.Wait()
	c.conn.Close()
	slog.Info("ws: client disconnected", "remoteAddr", c.conn.RemoteAddr())
}

func (s *Server) readLoop(c *client, clientCtx *rpc.Context) {
	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		resp := transport.HandleMessage(s.dispatcher, clientCtx, msg)
		if resp == nil {
			continue
		}
		raw, marshalErr := json.Marshal(resp)
		if marshalErr != nil {
			continue
		}
		c.send(raw)
	}
}

func (s *Server) pingLoop(c *client, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("ws: pingLoop recovered", "panic", rec)
		}
	}()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				c.writeMu.Unlock()
				return
			}
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) writeLoop() {
	for frame := range c.out {
		c.writeMu.Lock()
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			c.writeMu.Unlock()
			return
		}
		err := c.conn.WriteMessage(websocket.TextMessage, frame)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *client) send(frame []byte) {
	select {
	case c.out <- frame:
	default:
		slog.Debug("ws: outgoing buffer full, dropping frame")
	}
}

func (s *Server) broadcast(frame []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.send(frame)
	}
}

func frameNotification(method string, params any) []byte {
	n := transport.NewNotification(method, params)
	raw, err := json.Marshal(n)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","method":"` + method + `","params":null}`)
	}
	return raw
}

func (s *Server) forwardState() {
	defer s.wg.Done()
	ch, cancel := s.bus.SubscribeState()
	defer cancel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(frameNotification("state", change))
		}
	}
}

func (s *Server) forwardEvents() {
	defer s.wg.Done()
	ch, cancel := s.bus.SubscribeEvents()
	defer cancel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(frameNotification("event", event))
		}
	}
}

func (s *Server) forwardClients() {
	defer s.wg.Done()
	ch, cancel := s.bus.SubscribeClients()
	defer cancel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(frameNotification("client", update))
		}
	}
}
