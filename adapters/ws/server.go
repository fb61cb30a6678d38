package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/moosethebrown/drone-ws-bridge/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handler answers inbound frames. core.Core implements it.
type Handler interface {
	HandleText(ctx context.Context, session string, msg []byte) core.Reply
	HandleBinary(session string) core.Reply
}

// Server accepts WebSocket connections and runs one session per connection.
// There is no connection cap and no authentication.
type Server struct {
	handler    Handler
	logger     *zerolog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
	baseCtx    context.Context
	cancel     context.CancelFunc
	sessions   sync.WaitGroup
}

func NewServer(handler Handler, logger *zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.httpServer = &http.Server{Handler: s.Router()}
	return s
}

// Router serves /metrics and /healthz; every other path upgrades to a session.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/*", s.serveWS)
	return r
}

// Listen binds the listening socket.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until Shutdown. Any other return is an
// accept failure and the listener must be considered lost.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("websocket server listening")

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("accept: %w", err)
}

// Shutdown stops accepting, closes every session transport and waits for
// the sessions to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	s.sessions.Wait()
	return err
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.sessions.Add(1)
	defer s.sessions.Done()

	id := uuid.New().String()
	logger := s.logger.With().Str("session", id).Str("peer", r.RemoteAddr).Logger()
	logger.Info().Msg("client connected")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket handshake failed")
		return
	}

	sess := &session{
		id:      id,
		conn:    conn,
		handler: s.handler,
		logger:  logger,
	}
	sess.run(s.baseCtx)

	logger.Info().Msg("client disconnected")
}
