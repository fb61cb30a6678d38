package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/moosethebrown/drone-ws-bridge/core"
	"github.com/moosethebrown/drone-ws-bridge/metrics"
	"github.com/rs/zerolog"
)

// Command frames are small JSON objects; anything larger ends the session.
const maxFrameBytes = 64 << 10

// session serves one client connection. Requests are handled strictly in
// order, so each reply answers the request read just before it.
type session struct {
	id      string
	conn    *websocket.Conn
	handler Handler
	logger  zerolog.Logger
}

func (s *session) run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stop()
	defer s.conn.Close()

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	s.conn.SetReadLimit(maxFrameBytes)
	s.conn.SetPingHandler(func(payload string) error {
		s.logger.Debug().Msg("ping")
		err := s.conn.WriteControl(websocket.PongMessage, []byte(payload), time.Time{})
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	if err := s.conn.WriteMessage(websocket.TextMessage, core.HelloReply().Marshal()); err != nil {
		s.logger.Warn().Err(core.TransportError(err)).Msg("failed to send hello")
		return
	}
	metrics.SessionsTotal.Inc()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logClose(ctx, err)
			return
		}

		var reply core.Reply
		switch msgType {
		case websocket.TextMessage:
			reply = s.handler.HandleText(ctx, s.id, data)
		case websocket.BinaryMessage:
			reply = s.handler.HandleBinary(s.id)
		default:
			continue
		}

		// A failed write means the transport is gone, and with it any reply
		// to a dispatch that was in flight.
		if err := s.conn.WriteMessage(websocket.TextMessage, reply.Marshal()); err != nil {
			s.logger.Warn().Err(core.TransportError(err)).Msg("failed to send reply")
			return
		}
	}
}

func (s *session) logClose(ctx context.Context, err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		s.logger.Info().Msg("client closed")
	case ctx.Err() != nil:
		s.logger.Info().Msg("session closed on shutdown")
	default:
		s.logger.Warn().Err(core.TransportError(err)).Msg("websocket error")
	}
}
