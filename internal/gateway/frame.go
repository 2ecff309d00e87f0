package gateway

import (
	"encoding/json"
	"errors"
)

// Opcodes.
const (
	OpHello          = "hello"
	OpDispatch       = "dispatch"
	OpHeartbeat      = "heartbeat"
	OpHeartbeatAck   = "heartbeat_ack"
	OpIdentify       = "identify"
	OpResume         = "resume"
	OpReconnect      = "reconnect"
	OpInvalidSession = "invalid_session"
)

// Dispatch event names that drive the lifecycle.
const (
	EventReady   = "READY"
	EventResumed = "RESUMED"
)

var (
	ErrStaleConnection    = errors.New("connection stale (no heartbeat ack)")
	ErrUnexpectedFrame    = errors.New("unexpected frame")
	ErrReconnectRequested = errors.New("server requested reconnect")
	ErrInvalidSession     = errors.New("invalid session")
)

// Frame is the envelope of every gateway message.
type Frame struct {
	Op string          `json:"op"`
	T  string          `json:"t,omitempty"`
	S  int64           `json:"s,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

// Hello is sent by the server when the socket opens.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// Identify starts a fresh session.
type Identify struct {
	Token string `json:"token"`
	Shard [2]int `json:"shard"` // [id, count]
}

// Resume continues an existing session.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// Heartbeat carries the last sequence number seen.
type Heartbeat struct {
	Seq int64 `json:"seq"`
}

// ReadyEvent is the payload of a READY dispatch.
type ReadyEvent struct {
	SessionID string `json:"session_id"`
}

// InvalidSessionEvent tells the shard whether its session survives.
type InvalidSessionEvent struct {
	Resumable bool `json:"resumable"`
}

type objectRef struct {
	ID string `json:"id"`
}

func newFrame(op string, payload any) (Frame, error) {
	d, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Op: op, D: d}, nil
}
