package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Command is one operator instruction. The set of implementations is closed:
// GoTo, TakePicture, RotateAndFilm and Ping.
type Command interface {
	// Type returns the wire tag of the command.
	Type() string
	// Validate checks the command against the flight envelope. It performs no I/O.
	Validate() error

	command()
}

// GoTo flies to a coordinate at the given altitude.
type GoTo struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	AltM     float32  `json:"alt_m"`
	SpeedMps *float32 `json:"speed_mps,omitempty"`
}

// TakePicture captures a still. Mode is free-form ("photo", "hdr", ...).
type TakePicture struct {
	Mode *string `json:"mode,omitempty"`
}

// RotateAndFilm yaws in place while recording.
type RotateAndFilm struct {
	Degrees   uint16  `json:"degrees"`
	DurationS *uint16 `json:"duration_s,omitempty"`
	Quality   *string `json:"quality,omitempty"`
}

// Ping is a round-trip health check against the flight logic.
type Ping struct{}

func (GoTo) Type() string          { return CmdGoTo }
func (TakePicture) Type() string   { return CmdTakePicture }
func (RotateAndFilm) Type() string { return CmdRotateAndFilm }
func (Ping) Type() string          { return CmdPing }

func (GoTo) command()          {}
func (TakePicture) command()   {}
func (RotateAndFilm) command() {}
func (Ping) command()          {}

const (
	maxSpeedMps    = 50
	maxDegrees     = 1080
	maxDurationSec = 600
)

func (c GoTo) Validate() error {
	if !(c.Lat >= -90 && c.Lat <= 90) {
		return validationError("Latitude must be in [-90, 90]")
	}
	if !(c.Lon >= -180 && c.Lon <= 180) {
		return validationError("Longitude must be in [-180, 180]")
	}
	if c.AltM < 0 {
		return validationError("Altitude must be non-negative")
	}
	if c.SpeedMps != nil {
		if s := *c.SpeedMps; !(s > 0 && s <= maxSpeedMps) {
			return validationError("Speed must be in (0, 50] m/s")
		}
	}
	return nil
}

func (TakePicture) Validate() error { return nil }

func (c RotateAndFilm) Validate() error {
	if c.Degrees == 0 || c.Degrees > maxDegrees {
		return validationError("Degrees must be in [1, 1080]")
	}
	if c.DurationS != nil {
		if d := *c.DurationS; d == 0 || d > maxDurationSec {
			return validationError("Duration must be in [1, 600] seconds")
		}
	}
	return nil
}

func (Ping) Validate() error { return nil }

const variants = "`go_to`, `take_picture`, `rotate_and_film`, `ping`"

// object holds a frame's top-level members. Keys are matched exactly, so
// "LAT" is an unknown field rather than an alias of "lat".
type object map[string]json.RawMessage

// Parse decodes a text frame into a Command. Unknown fields are ignored.
// Every failure is a *Error of KindParse whose Msg is safe to show the client.
func Parse(data []byte) (Command, error) {
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, parseError("%s", describeJSONError(err))
	}

	tag, err := required[string](obj, "type")
	if err != nil {
		return nil, err
	}

	switch tag {
	case CmdGoTo:
		var c GoTo
		if c.Lat, err = required[float64](obj, "lat"); err != nil {
			return nil, err
		}
		if c.Lon, err = required[float64](obj, "lon"); err != nil {
			return nil, err
		}
		if c.AltM, err = required[float32](obj, "alt_m"); err != nil {
			return nil, err
		}
		if c.SpeedMps, err = optional[float32](obj, "speed_mps"); err != nil {
			return nil, err
		}
		return c, nil
	case CmdTakePicture:
		var c TakePicture
		if c.Mode, err = optional[string](obj, "mode"); err != nil {
			return nil, err
		}
		return c, nil
	case CmdRotateAndFilm:
		var c RotateAndFilm
		if c.Degrees, err = required[uint16](obj, "degrees"); err != nil {
			return nil, err
		}
		if c.DurationS, err = optional[uint16](obj, "duration_s"); err != nil {
			return nil, err
		}
		if c.Quality, err = optional[string](obj, "quality"); err != nil {
			return nil, err
		}
		return c, nil
	case CmdPing:
		return Ping{}, nil
	default:
		return nil, parseError("unknown variant `%s`, expected one of %s", tag, variants)
	}
}

// required decodes a member that must be present and non-null.
func required[T any](obj object, name string) (T, error) {
	var v T
	raw, ok := obj[name]
	if !ok {
		return v, missingField(name)
	}
	if isNull(raw) {
		return v, parseError("invalid type: null, expected %T for field `%s`", v, name)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fieldError(name, err)
	}
	return v, nil
}

// optional decodes a member that may be absent or null; both yield nil.
func optional[T any](obj object, name string) (*T, error) {
	raw, ok := obj[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fieldError(name, err)
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func fieldError(name string, err error) *Error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return parseError("invalid type: %s, expected %s for field `%s`", typeErr.Value, typeErr.Type, name)
	}
	return parseError("%s for field `%s`", describeJSONError(err), name)
}

// Encode produces the canonical JSON form of cmd, including its type tag.
func Encode(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case GoTo:
		return json.Marshal(struct {
			Type string `json:"type"`
			GoTo
		}{CmdGoTo, c})
	case TakePicture:
		return json.Marshal(struct {
			Type string `json:"type"`
			TakePicture
		}{CmdTakePicture, c})
	case RotateAndFilm:
		return json.Marshal(struct {
			Type string `json:"type"`
			RotateAndFilm
		}{CmdRotateAndFilm, c})
	case Ping:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{CmdPing})
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

func missingField(name string) *Error {
	return parseError("missing field `%s`", name)
}

func describeJSONError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field != "" {
			return fmt.Sprintf("invalid type: %s, expected %s for field `%s`",
				typeErr.Value, typeErr.Type, typeErr.Field)
		}
		return fmt.Sprintf("invalid type: %s, expected a command object", typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("%s at offset %d", syntaxErr.Error(), syntaxErr.Offset)
	}
	return err.Error()
}
