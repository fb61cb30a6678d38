package dbus

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	godbus "github.com/godbus/dbus/v5"
	"github.com/moosethebrown/drone-ws-bridge/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	method string
	args   []interface{}
}

type mockBusObject struct {
	mu    sync.Mutex
	calls []recordedCall
	err   error
	body  []interface{}
}

func (m *mockBusObject) CallWithContext(_ context.Context, method string, _ godbus.Flags, args ...interface{}) *godbus.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedCall{method: method, args: args})
	return &godbus.Call{Method: method, Args: args, Err: m.err, Body: m.body}
}

func setup(obj caller) *Adapter {
	logger := zerolog.New(io.Discard)
	return newWithCaller(obj, &logger)
}

func f32(v float32) *float32 { return &v }
func u16(v uint16) *uint16   { return &v }
func str(v string) *string   { return &v }

func TestDispatchArguments(t *testing.T) {
	tests := []struct {
		name   string
		cmd    core.Command
		method string
		args   []interface{}
	}{
		{
			name:   "go_to with speed",
			cmd:    core.GoTo{Lat: 37.7749, Lon: -122.4194, AltM: 50, SpeedMps: f32(10)},
			method: "com.drone.Logic.Commands.GoTo",
			args:   []interface{}{37.7749, -122.4194, float64(50), []float64{10}},
		},
		{
			name:   "go_to without speed",
			cmd:    core.GoTo{Lat: 1, Lon: 2, AltM: 3},
			method: "com.drone.Logic.Commands.GoTo",
			args:   []interface{}{float64(1), float64(2), float64(3), []float64{}},
		},
		{
			name:   "take_picture with mode",
			cmd:    core.TakePicture{Mode: str("hdr")},
			method: "com.drone.Logic.Commands.TakePicture",
			args:   []interface{}{[]string{"hdr"}},
		},
		{
			name:   "take_picture without mode",
			cmd:    core.TakePicture{},
			method: "com.drone.Logic.Commands.TakePicture",
			args:   []interface{}{[]string{}},
		},
		{
			name:   "rotate_and_film full",
			cmd:    core.RotateAndFilm{Degrees: 360, DurationS: u16(30), Quality: str("1080p60")},
			method: "com.drone.Logic.Commands.RotateAndFilm",
			args:   []interface{}{uint16(360), []uint16{30}, []string{"1080p60"}},
		},
		{
			name:   "rotate_and_film degrees only",
			cmd:    core.RotateAndFilm{Degrees: 90},
			method: "com.drone.Logic.Commands.RotateAndFilm",
			args:   []interface{}{uint16(90), []uint16{}, []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := &mockBusObject{}
			a := setup(obj)

			require.NoError(t, a.Dispatch(context.Background(), tt.cmd))
			require.Len(t, obj.calls, 1)
			assert.Equal(t, tt.method, obj.calls[0].method)
			assert.Equal(t, tt.args, obj.calls[0].args)
		})
	}
}

func TestDispatchPing(t *testing.T) {
	obj := &mockBusObject{body: []interface{}{"pong"}}
	a := setup(obj)

	require.NoError(t, a.Dispatch(context.Background(), core.Ping{}))
	require.Len(t, obj.calls, 1)
	assert.Equal(t, "com.drone.Logic.Commands.Ping", obj.calls[0].method)
	assert.Empty(t, obj.calls[0].args)
}

func TestDispatchPingEmptyReply(t *testing.T) {
	a := setup(&mockBusObject{})

	err := a.Dispatch(context.Background(), core.Ping{})
	require.Error(t, err)
	assert.Equal(t, core.KindDispatch, core.KindOf(err))
	assert.ErrorIs(t, err, errEmptyReply)
}

func TestDispatchBusErrorIsNotRetried(t *testing.T) {
	busErr := godbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}
	obj := &mockBusObject{err: busErr}
	a := setup(obj)

	err := a.Dispatch(context.Background(), core.GoTo{Lat: 1, Lon: 1, AltM: 1})
	require.Error(t, err)
	assert.Equal(t, core.KindDispatch, core.KindOf(err))

	var dbusErr godbus.Error
	assert.True(t, errors.As(err, &dbusErr))
	assert.Len(t, obj.calls, 1)
}

func TestCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, setup(&mockBusObject{}).Close())
}
