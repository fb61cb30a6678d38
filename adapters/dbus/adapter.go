package dbus

import (
	"context"
	"errors"
	"fmt"

	godbus "github.com/godbus/dbus/v5"
	"github.com/moosethebrown/drone-ws-bridge/core"
	"github.com/rs/zerolog"
)

const (
	ServiceName   = "com.drone.Logic"
	ObjectPath    = "/com/drone/Logic"
	InterfaceName = "com.drone.Logic.Commands"
)

const (
	BusSystem  = "system"
	BusSession = "session"
)

const (
	methodGoTo          = InterfaceName + ".GoTo"
	methodTakePicture   = InterfaceName + ".TakePicture"
	methodRotateAndFilm = InterfaceName + ".RotateAndFilm"
	methodPing          = InterfaceName + ".Ping"
)

var errEmptyReply = errors.New("empty reply body")

// caller is the slice of godbus.BusObject the adapter needs.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags godbus.Flags, args ...interface{}) *godbus.Call
}

// Adapter dispatches commands as method calls on the flight logic object.
// A single Adapter is shared by every session; godbus connections are safe
// for concurrent calls, so no dispatch is serialized here.
type Adapter struct {
	conn   *godbus.Conn
	obj    caller
	logger *zerolog.Logger
}

// New connects to the bus named by address: "system", "session", or an
// explicit D-Bus address such as "unix:path=/run/dbus/system_bus_socket".
func New(address string, logger *zerolog.Logger) (*Adapter, error) {
	conn, err := connect(address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", address, err)
	}

	logger.Info().Str("bus", address).Str("service", ServiceName).Msg("connected")

	return &Adapter{
		conn:   conn,
		obj:    conn.Object(ServiceName, godbus.ObjectPath(ObjectPath)),
		logger: logger,
	}, nil
}

func newWithCaller(obj caller, logger *zerolog.Logger) *Adapter {
	return &Adapter{obj: obj, logger: logger}
}

func connect(address string) (*godbus.Conn, error) {
	switch address {
	case "", BusSystem:
		return godbus.ConnectSystemBus()
	case BusSession:
		return godbus.ConnectSessionBus()
	default:
		return godbus.Connect(address)
	}
}

// Dispatch issues exactly one method call for cmd. Bus failures are reported
// as core.KindDispatch and are never retried: re-sending an actuator command
// is the operator's decision.
func (a *Adapter) Dispatch(ctx context.Context, cmd core.Command) error {
	method, args, err := methodCall(cmd)
	if err != nil {
		return core.DispatchError(err)
	}

	a.logger.Debug().Str("method", method).Msg("calling")

	call := a.obj.CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return core.DispatchError(fmt.Errorf("%s: %w", method, call.Err))
	}

	if method == methodPing {
		// The reply value is opaque, but one must be present.
		if len(call.Body) == 0 {
			return core.DispatchError(fmt.Errorf("%s: %w", method, errEmptyReply))
		}
	}
	return nil
}

// Close releases the bus connection.
func (a *Adapter) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

// methodCall maps a command to its method name and argument tuple. D-Bus has
// neither a maybe type nor single precision floats: optionals travel as arrays
// of zero or one element and float32 values widen to doubles.
func methodCall(cmd core.Command) (string, []interface{}, error) {
	switch c := cmd.(type) {
	case core.GoTo:
		return methodGoTo, []interface{}{c.Lat, c.Lon, float64(c.AltM), maybeFloat(c.SpeedMps)}, nil
	case core.TakePicture:
		return methodTakePicture, []interface{}{maybeString(c.Mode)}, nil
	case core.RotateAndFilm:
		return methodRotateAndFilm, []interface{}{c.Degrees, maybeUint16(c.DurationS), maybeString(c.Quality)}, nil
	case core.Ping:
		return methodPing, nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

func maybeFloat(v *float32) []float64 {
	if v == nil {
		return []float64{}
	}
	return []float64{float64(*v)}
}

func maybeUint16(v *uint16) []uint16 {
	if v == nil {
		return []uint16{}
	}
	return []uint16{*v}
}

func maybeString(v *string) []string {
	if v == nil {
		return []string{}
	}
	return []string{*v}
}
