package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/groqchat/internal/observability"
	"github.com/harun/groqchat/internal/tracing"
	"github.com/harun/groqchat/pkg/session"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultCookieName names the session cookie when Config leaves it empty
	DefaultCookieName = "groqchat_session"
	// DefaultTurnsPerMinute caps turns per session when Config leaves it zero
	DefaultTurnsPerMinute = 30

	maxRPCBody      = 1 << 20
	maxWSMessage    = 64 << 10
	limiterJanitor  = time.Minute
	clientIdleAfter = 5 * time.Minute
	shutdownTimeout = 30 * time.Second
)

// Bootstrapper attaches an agent to a session from a user supplied credential
type Bootstrapper interface {
	Bootstrap(ctx context.Context, sess *session.Session, credential string) error
}

// Config holds server configuration
type Config struct {
	Addr           string
	Title          string
	CookieName     string
	TurnsPerMinute int
	Sessions       *session.Manager
	Bootstrapper   Bootstrapper
	Logger         zerolog.Logger
}

// Server serves the chat pages, the JSON-RPC endpoint and the websocket
type Server struct {
	addr         string
	title        string
	cookieName   string
	sessions     *session.Manager
	bootstrapper Bootstrapper

	server    *http.Server
	listener  net.Listener
	handler   http.Handler
	upgrader  websocket.Upgrader
	templates map[string]*template.Template

	clients     *ClientRegistry
	router      *RPCRouter
	broadcaster *EventBroadcaster
	limiters    *limiterSet
	logger      zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	tickCancel     context.CancelFunc
	tickWG         sync.WaitGroup
}

// NewServer creates a new Server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Bootstrapper == nil {
		return nil, fmt.Errorf("bootstrapper is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8501"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TurnsPerMinute <= 0 {
		cfg.TurnsPerMinute = DefaultTurnsPerMinute
	}

	logger := cfg.Logger.With().Str("component", "gateway").Logger()
	clients := NewClientRegistry()

	s := &Server{
		addr:         cfg.Addr,
		title:        cfg.Title,
		cookieName:   cfg.CookieName,
		sessions:     cfg.Sessions,
		bootstrapper: cfg.Bootstrapper,
		templates:    loadTemplates(),
		clients:      clients,
		router:       NewRPCRouter(),
		broadcaster:  NewEventBroadcaster(clients, logger),
		limiters:     newLimiterSet(cfg.TurnsPerMinute),
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}

	s.registerMethods()
	s.handler = s.routes()

	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /credential", s.handleCredential)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.withRequestTracking(mux)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting chat server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Chat server error")
		}
	}()

	s.startLimiterJanitor()

	return nil
}

// Addr returns the bound listen address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down chat server")
	s.stopLimiterJanitor()

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown deadline reached, forcing close")
	case <-time.After(shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Chat server stopped")
	return nil
}

// startLimiterJanitor drops rate limiters of expired sessions every minute
func (s *Server) startLimiterJanitor() {
	tickCtx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	s.tickWG.Add(1)

	go func() {
		defer s.tickWG.Done()

		ticker := time.NewTicker(limiterJanitor)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				if removed := s.limiters.prune(s.sessions.Exists); removed > 0 {
					s.logger.Debug().Int("removed", removed).Msg("Pruned rate limiters")
				}
			}
		}
	}()
}

func (s *Server) stopLimiterJanitor() {
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	s.tickWG.Wait()
}

// withRequestTracking rejects requests during shutdown, counts in-flight
// requests and logs each request. Form bodies are never logged.
func (s *Server) withRequestTracking(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = tracing.NewTraceID()
		}
		ctx := tracing.WithTraceID(r.Context(), traceID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// resolveSession returns the caller's session and, when a new one had to be
// created, the cookie that binds the browser to it.
func (s *Server) resolveSession(r *http.Request) (*session.Session, *http.Cookie, error) {
	var id string
	if c, err := r.Cookie(s.cookieName); err == nil {
		id = c.Value
	}

	sess, created, err := s.sessions.GetOrCreate(id)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return sess, nil, nil
	}

	return sess, &http.Cookie{
		Name:     s.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// sessionFor resolves the caller's session and sets the cookie on w if needed
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, cookie, err := s.resolveSession(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to resolve session")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return nil, false
	}
	if cookie != nil {
		http.SetCookie(w, cookie)
	}
	return sess, true
}

// handleWebSocket upgrades the connection and binds it to the caller's session
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, cookie, err := s.resolveSession(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to resolve session")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	header := http.Header{}
	if cookie != nil {
		header.Add("Set-Cookie", cookie.String())
	}

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn.SetReadLimit(maxWSMessage)

	clientID, _ := gonanoid.New()
	now := time.Now()
	client := &Client{
		ID:           clientID,
		SessionID:    sess.ID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
	}
	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("session_id", sess.ID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.handleClient(client, sess)
}

// handleClient processes messages from one connection in arrival order
func (s *Server) handleClient(client *Client, sess *session.Session) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().
			Str("clientId", client.ID).
			Str("ip", client.IPAddress).
			Dur("connected_for", time.Since(client.ConnectedAt)).
			Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.UpdateActivity(client.ID)
		sess.Touch(time.Now())
		s.handleMessage(client, sess, message)
	}
}

// handleMessage handles a single RPC message from a websocket client
func (s *Server) handleMessage(client *Client, sess *session.Session, message []byte) {
	req, err := s.router.ParseRequest(message)
	if err != nil {
		s.sendError(client, "", err)
		return
	}

	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		s.sendError(client, req.ID, &RPCError{Code: InternalError, Message: "server is shutting down"})
		return
	}
	s.inFlightReqs.Add(1)
	s.shutdownMu.RUnlock()
	defer s.inFlightReqs.Done()

	ctx := tracing.NewRequestContext(context.Background())
	ctx = withSession(withClientID(ctx, client.ID), sess)

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("clientId", client.ID).
		Str("request_id", req.ID).
		Str("method", req.Method).
		Msg("Gateway received websocket RPC request")

	response := s.router.RouteRequest(ctx, req)
	if err := client.WriteJSON(response); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Str("requestId", req.ID).
			Msg("Failed to send response")
	}
}

// handleRPC handles single-shot HTTP JSON-RPC requests
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRPCBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req, err := s.router.ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, RPCResponse{
			JSONRPC: "2.0",
			Error:   asRPCError(err),
		})
		return
	}

	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	ctx := withSession(r.Context(), sess)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("request_id", req.ID).
		Str("method", req.Method).
		Msg("Gateway received HTTP RPC request")

	writeJSON(w, http.StatusOK, s.router.RouteRequest(ctx, req))
}

// sendError sends an error response to a client
func (s *Server) sendError(client *Client, requestID string, err error) {
	response := RPCResponse{
		ID:      requestID,
		JSONRPC: "2.0",
		Error:   asRPCError(err),
	}

	if err := client.WriteJSON(response); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Msg("Failed to send error response")
	}
}

// HealthReport is the body of GET /healthz
type HealthReport struct {
	Status         string   `json:"status"`
	Sessions       int      `json:"sessions"`
	Clients        int      `json:"clients"`
	IdleClients    int      `json:"idleClients"`
	TurnsPerMinute int      `json:"turnsPerMinute"`
	Methods        []string `json:"methods"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	clients, idle := s.clients.Stats(clientIdleAfter)
	writeJSON(w, http.StatusOK, HealthReport{
		Status:         "ok",
		Sessions:       s.sessions.Count(),
		Clients:        clients,
		IdleClients:    idle,
		TurnsPerMinute: s.limiters.limit(),
		Methods:        s.router.GetMethods(),
	})
}

// SetTurnsPerMinute changes the per-session turn limit at runtime. Values
// below one restore DefaultTurnsPerMinute.
func (s *Server) SetTurnsPerMinute(n int) {
	if n <= 0 {
		n = DefaultTurnsPerMinute
	}
	s.limiters.setLimit(n)
	s.logger.Info().Int("turns_per_minute", n).Msg("Turn rate limit updated")
}

func asRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &RPCError{Code: ParseError, Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sameOrigin accepts websocket handshakes from pages served by this host.
// Non-browser clients send no Origin and are accepted.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader reach the underlying connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
