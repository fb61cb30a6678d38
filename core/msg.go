package core

import "encoding/json"

const (
	CmdGoTo          = "go_to"
	CmdTakePicture   = "take_picture"
	CmdRotateAndFilm = "rotate_and_film"
	CmdPing          = "ping"
)

const (
	ReplyTypeHello = "hello"
	ReplyTypeOk    = "ok"
	ReplyTypeError = "error"
)

// ProtocolVersion is announced in the hello frame. It is informational only.
const ProtocolVersion = "1.0"

// Reply is an outbound frame sent to the operator client.
type Reply struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func HelloReply() Reply {
	return Reply{Type: ReplyTypeHello, Version: ProtocolVersion}
}

func OkReply() Reply {
	return Reply{Type: ReplyTypeOk}
}

func ErrorReply(reason string, detail string) Reply {
	return Reply{Type: ReplyTypeError, Reason: reason, Detail: detail}
}

// Marshal encodes the reply as a JSON text frame.
func (r Reply) Marshal() []byte {
	// Reply only holds strings, Marshal cannot fail.
	data, _ := json.Marshal(r)
	return data
}

// Event describes one handled command, reported to telemetry sinks.
type Event struct {
	Session string          `json:"session"`
	Command json.RawMessage `json:"command,omitempty"`
	Type    string          `json:"type,omitempty"`
	Result  string          `json:"result"`
	Reason  string          `json:"reason,omitempty"`
	At      int64           `json:"at"`
}

const (
	ResultOk         = "ok"
	ResultParse      = "invalid_json"
	ResultValidation = "rejected"
	ResultDispatch   = "dispatch_failed"
)
