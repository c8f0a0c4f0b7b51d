// Package gateway is the self-hosted WebSocket front door. It plays the part
// of a managed WebSocket API: it assigns connection handles, turns socket
// lifecycle and frames into coordinator events and keeps the sockets reachable
// through a delivery.Hub.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/securesend/coord/internal/coord"
	"github.com/securesend/coord/internal/delivery"
	"github.com/securesend/coord/internal/metrics"
	"github.com/securesend/coord/internal/origin"
	"github.com/securesend/coord/internal/ratelimit"
)

// Path is where the gateway accepts WebSocket upgrades.
const Path = "/coord"

const eventTimeout = 10 * time.Second

// Handler runs one coordinator event. *coord.Coordinator implements it.
type Handler interface {
	Handle(ctx context.Context, ev coord.Event) coord.Response
}

type Config struct {
	Origins origin.Policy

	// IdleTimeout closes connections that send nothing (not even a pong) for
	// this long. Zero disables it.
	IdleTimeout time.Duration
	// PingInterval is how often the server pings. Zero disables pings.
	PingInterval time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// Clock drives the per-connection rate limiter. Defaults to the real clock.
	Clock ratelimit.Clock
}

// ResponseFrame is sent back on the socket when an event is rejected. It has
// the shape a managed WebSocket API uses for route responses, plus the route
// that was rejected so clients can tell a refused connect from a failed relay.
type ResponseFrame struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
	Route      string `json:"route,omitempty"`
}

type Server struct {
	cfg      Config
	handler  Handler
	hub      *delivery.Hub
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*socket]struct{}
	closed bool
}

func New(cfg Config, handler Handler, hub *delivery.Hub, log *slog.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}
	s := &Server{
		cfg:     cfg,
		handler: handler,
		hub:     hub,
		log:     log,
		metrics: m,
		conns:   make(map[*socket]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			_, ok := cfg.Origins.CheckRequest(r)
			return ok
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET "+Path, s)
}

// NewHandle returns a fresh, URL-safe connection handle.
func NewHandle() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		return
	}
	defer conn.Close()

	sock := &socket{conn: conn}
	if !s.track(sock) {
		writeClose(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(sock)

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	handle := NewHandle()
	log := s.log.With("connection", handle)
	ctx := r.Context()

	s.hub.Register(handle, sock)
	defer s.hub.Unregister(handle, sock)

	resp := s.dispatch(ctx, coord.Event{
		Route:            string(coord.RouteConnect),
		ConnectionHandle: handle,
		Query:            firstValues(r),
	})
	if !succeeded(resp) {
		_ = s.reply(ctx, sock, coord.RouteConnect, resp)
		code := websocket.ClosePolicyViolation
		if resp.StatusCode >= http.StatusInternalServerError {
			code = websocket.CloseInternalServerErr
		}
		writeClose(conn, code, "connect rejected")
		return
	}
	log.Debug("websocket connected")

	defer func() {
		// The request context may already be done; $disconnect still runs.
		s.dispatch(context.WithoutCancel(ctx), coord.Event{
			Route:            string(coord.RouteDisconnect),
			ConnectionHandle: handle,
		})
		log.Debug("websocket disconnected")
	}()

	s.serveFrames(ctx, sock, handle)
}

func (s *Server) serveFrames(ctx context.Context, sock *socket, handle string) {
	conn := sock.conn
	s.extendDeadline(conn)
	conn.SetPongHandler(func(string) error {
		s.extendDeadline(conn)
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	if s.cfg.PingInterval > 0 {
		go s.pingLoop(conn, stop)
	}

	var limiter *ratelimit.TokenBucket
	if s.cfg.MaxMessagesPerSecond > 0 {
		limiter = ratelimit.PerSecond(s.cfg.Clock, s.cfg.MaxMessagesPerSecond)
	}

	for {
		msgType, msgReader, err := conn.NextReader()
		if err != nil {
			if isTimeout(err) {
				writeClose(conn, websocket.CloseNormalClosure, "idle timeout")
			}
			return
		}
		s.extendDeadline(conn)

		if limiter != nil && !limiter.Allow(1) {
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := readLimited(msgReader, s.cfg.MaxMessageBytes)
		if err != nil {
			if errors.Is(err, errMessageTooLarge) {
				writeClose(conn, websocket.CloseMessageTooBig, "message too large")
				return
			}
			writeClose(conn, websocket.CloseInternalServerErr, "failed to read message")
			return
		}

		route := routeOf(msg)
		resp := s.dispatch(ctx, coord.Event{
			Route:            string(route),
			ConnectionHandle: handle,
			Body:             string(msg),
		})
		if succeeded(resp) {
			continue
		}
		if err := s.reply(ctx, sock, route, resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(parent context.Context, ev coord.Event) coord.Response {
	ctx, cancel := context.WithTimeout(parent, eventTimeout)
	defer cancel()
	return s.handler.Handle(ctx, ev)
}

func (s *Server) reply(ctx context.Context, sock *socket, route coord.Route, resp coord.Response) error {
	payload, err := json.Marshal(ResponseFrame{StatusCode: resp.StatusCode, Body: resp.Body, Route: string(route)})
	if err != nil {
		return err
	}
	return sock.WriteText(ctx, payload)
}

func (s *Server) extendDeadline(conn *websocket.Conn) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
}

func (s *Server) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) track(sock *socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[sock] = struct{}{}
	return true
}

func (s *Server) untrack(sock *socket) {
	s.mu.Lock()
	delete(s.conns, sock)
	s.mu.Unlock()
}

// ConnCount returns the number of open sockets.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown refuses new sockets and asks every open one to go away. Each
// connection still runs $disconnect as its read loop exits.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*socket, 0, len(s.conns))
	for sock := range s.conns {
		conns = append(conns, sock)
	}
	s.mu.Unlock()

	for _, sock := range conns {
		writeClose(sock.conn, websocket.CloseGoingAway, "server shutting down")
		_ = sock.Close()
	}
}

// routeOf picks the route for a frame from its action field. Reserved
// lifecycle routes cannot be invoked by clients.
func routeOf(msg []byte) coord.Route {
	var probe struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return coord.RouteDefault
	}
	if strings.HasPrefix(probe.Action, "$") {
		return coord.RouteDefault
	}
	route, _ := coord.ParseRoute(probe.Action)
	return route
}

func succeeded(resp coord.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func firstValues(r *http.Request) map[string]string {
	q := r.URL.Query()
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
