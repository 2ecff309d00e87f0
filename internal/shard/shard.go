package shard

import "errors"

// Status is a shard's connection state.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusHandshaking
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusHandshaking:
		return "handshaking"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Connecting reports whether the status occupies a session-start slot.
// Handshaking counts: the remote service has not granted the session yet.
func (s Status) Connecting() bool {
	return s == StatusConnecting || s == StatusHandshaking
}

// ErrClosed is reported when a shard is closed deliberately.
var ErrClosed = errors.New("shard closed")

// Shard is a single gateway connection as seen by the scheduler and the
// readiness aggregator.
type Shard interface {
	ID() int
	Status() Status
	// SessionID returns the resumable session token, or "" if none.
	SessionID() string
	Connecting() bool
	Ready() bool

	// Connect begins the handshake. It must move the shard to
	// StatusConnecting before returning and must not block or call back
	// into the caller synchronously.
	Connect()
}

// Sink receives lifecycle signals from shards. Implementations must be safe
// for concurrent use; each shard reports from its own goroutine.
type Sink interface {
	ShardReady(id int)
	ShardResumed(id int)
	// ShardDisconnected carries the error that ended the connection, if any.
	ShardDisconnected(id int, err error)
	// SessionStartAcknowledged reports that the remote service granted a
	// fresh session, which opens the next session-start window.
	SessionStartAcknowledged(id int)
}

// Object is a remote object carried by a dispatch payload.
type Object struct {
	ID   string
	Kind string
	Data []byte
}

// ObjectSink receives objects materialized from dispatch payloads.
type ObjectSink interface {
	Dispatch(shardID int, obj Object)
}
