package core

import (
	"context"
	"time"

	"github.com/moosethebrown/drone-ws-bridge/metrics"
	"github.com/rs/zerolog"
)

// Dispatcher hands a validated command to the flight logic.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

// EventSink receives telemetry produced by the core loop.
type EventSink interface {
	PublishEvent(ev *Event)
	Announce()
}

type Core struct {
	dispatcher       Dispatcher
	eventSink        EventSink
	announceInterval int
	logger           *zerolog.Logger
	eventChan        chan *Event
	stopChan         chan bool
	now              func() time.Time
}

func NewCore(dispatcher Dispatcher, eventSink EventSink, announceInterval int,
	eventQueueSize int, logger *zerolog.Logger) *Core {
	return &Core{
		dispatcher:       dispatcher,
		eventSink:        eventSink,
		announceInterval: announceInterval,
		logger:           logger,
		eventChan:        make(chan *Event, eventQueueSize),
		stopChan:         make(chan bool, 1),
		now:              time.Now,
	}
}

func (c *Core) SetDispatcher(dispatcher Dispatcher) {
	c.dispatcher = dispatcher
}

func (c *Core) SetEventSink(sink EventSink) {
	c.eventSink = sink
}

// HandleText runs one text frame through parse, validate and dispatch and
// returns the single reply owed to the client. Parse failures never reach
// validation and validation failures never reach dispatch.
func (c *Core) HandleText(ctx context.Context, session string, msg []byte) Reply {
	ev := &Event{Session: session, At: c.now().Unix()}

	cmd, err := Parse(msg)
	if err != nil {
		c.logger.Debug().Str("session", session).Err(err).Msg("rejected malformed command")
		metrics.RecordCommand("unknown", ResultParse)
		ev.Result = ResultParse
		ev.Reason = ReasonInvalidJSON
		c.emit(ev)
		return replyFor(err)
	}

	ev.Type = cmd.Type()
	if encoded, err := Encode(cmd); err == nil {
		ev.Command = encoded
	}

	if err := cmd.Validate(); err != nil {
		c.logger.Debug().Str("session", session).Str("cmd", cmd.Type()).Err(err).Msg("rejected command")
		metrics.RecordCommand(cmd.Type(), ResultValidation)
		ev.Result = ResultValidation
		reply := replyFor(err)
		ev.Reason = reply.Reason
		c.emit(ev)
		return reply
	}

	start := time.Now()
	err = c.dispatcher.Dispatch(ctx, cmd)
	metrics.ObserveDispatch(cmd.Type(), time.Since(start))
	if err != nil {
		c.logger.Error().Str("session", session).Str("cmd", cmd.Type()).Err(err).Msg("dispatch failed")
		metrics.RecordCommand(cmd.Type(), ResultDispatch)
		ev.Result = ResultDispatch
		ev.Reason = ReasonDispatchFailed
		c.emit(ev)
		if KindOf(err) != KindDispatch {
			err = DispatchError(err)
		}
		return replyFor(err)
	}

	c.logger.Info().Str("session", session).Str("cmd", cmd.Type()).Msg("command dispatched")
	metrics.RecordCommand(cmd.Type(), ResultOk)
	ev.Result = ResultOk
	c.emit(ev)
	return OkReply()
}

// HandleBinary answers a binary frame, which the protocol does not carry.
func (c *Core) HandleBinary(session string) Reply {
	c.logger.Debug().Str("session", session).Msg("rejected binary frame")
	metrics.RecordCommand("unknown", ReasonBinaryNotSupported)
	return replyFor(ErrBinaryUnsupported)
}

// Run forwards events to the sink and drives periodic announces until Stop.
func (c *Core) Run() {
	ticker := time.NewTicker(time.Duration(c.announceInterval) * time.Millisecond)
	defer ticker.Stop()

core_loop:
	for {
		select {
		case ev := <-c.eventChan:
			if c.eventSink != nil {
				c.eventSink.PublishEvent(ev)
			}
		case <-ticker.C:
			if c.eventSink != nil {
				c.eventSink.Announce()
			}
		case <-c.stopChan:
			break core_loop
		}
	}
}

func (c *Core) Stop() {
	c.stopChan <- true
}

// emit never blocks: a full queue drops the event rather than stalling a session.
func (c *Core) emit(ev *Event) {
	if c.eventSink == nil {
		return
	}
	select {
	case c.eventChan <- ev:
	default:
		metrics.EventsDropped.Inc()
		c.logger.Warn().Str("session", ev.Session).Msg("event queue full, dropping event")
	}
}

func replyFor(err error) Reply {
	if e, ok := err.(*Error); ok {
		if reply, ok := e.Reply(); ok {
			return reply
		}
	}
	return ErrorReply(ReasonDispatchFailed, "")
}
