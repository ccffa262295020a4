// Package cqlerr defines the typed error kinds the driver can surface,
// per the error handling design: codec errors, connection failures,
// event-loop backpressure, cluster-level failures, and decoded
// server-side ERROR frames.
package cqlerr

import (
	"errors"
	"fmt"
)

// ErrNoStreamID is returned by a Connection when its stream id space is
// exhausted and no id can be allocated for a new request.
var ErrNoStreamID = errors.New("cqlerr: no stream id available")

// ErrUnsupportedValue is returned when encoding a Value kind whose wire
// format the driver does not implement (decimal, varint).
var ErrUnsupportedValue = errors.New("cqlerr: value kind not supported for encoding")

// ErrConnectionClosed is returned to callers whose completion was still
// outstanding when the owning connection closed.
var ErrConnectionClosed = errors.New("cqlerr: connection closed")

// ErrNoLiveHosts is returned by the load balancer when the available-host
// set is empty.
var ErrNoLiveHosts = errors.New("cqlerr: no live hosts")

// CodecError wraps a failure to encode or decode a frame or value: a
// short read, invalid UTF-8, an unknown type-key, or a mismatched
// fixed-length field.
type CodecError struct {
	Op  string // e.g. "decode header", "read uuid"
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("cqlerr: codec: %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// NewCodec wraps err as a CodecError tagged with op.
func NewCodec(op string, err error) *CodecError {
	return &CodecError{Op: op, Err: err}
}

// ConnectionError marks a socket-level failure as fatal to the
// connection it occurred on. All outstanding completions on that
// connection are resolved with this error.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cqlerr: connection %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NewConnection builds a ConnectionError for host.
func NewConnection(host string, err error) *ConnectionError {
	return &ConnectionError{Host: host, Err: err}
}

// EventLoopError marks a reactor-internal failure: no stream id
// available, the connection slab is full, or an invalid internal
// state was observed. These are non-fatal to the loop itself; they are
// surfaced to the caller that triggered them.
type EventLoopError struct {
	Op  string
	Err error
}

func (e *EventLoopError) Error() string {
	return fmt.Sprintf("cqlerr: event loop: %s: %v", e.Op, e.Err)
}

func (e *EventLoopError) Unwrap() error { return e.Err }

// NewEventLoop builds an EventLoopError tagged with op.
func NewEventLoop(op string, err error) *EventLoopError {
	return &EventLoopError{Op: op, Err: err}
}

// ClusterError marks a Cluster-level failure: already connected, no
// live hosts, or a malformed peers query result.
type ClusterError struct {
	Op  string
	Err error
}

func (e *ClusterError) Error() string {
	return fmt.Sprintf("cqlerr: cluster: %s: %v", e.Op, e.Err)
}

func (e *ClusterError) Unwrap() error { return e.Err }

// NewCluster builds a ClusterError tagged with op.
func NewCluster(op string, err error) *ClusterError {
	return &ClusterError{Op: op, Err: err}
}

// ServerError decodes an opcode=ERROR response frame: a server-assigned
// numeric code plus a human-readable message. Authentication mismatch,
// unsupported protocol version, and "unprepared statement" all arrive
// this way.
type ServerError struct {
	Code    uint32
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("cqlerr: server error 0x%04x: %s", e.Code, e.Message)
}

// Well-known server error codes (subset relevant to driver-level retry
// decisions; the full code space is opaque beyond these).
const (
	ServerErrProtocol    uint32 = 0x000A
	ServerErrUnavailable uint32 = 0x1000
	ServerErrUnprepared  uint32 = 0x2500
	ServerErrAuth        uint32 = 0x0100
)

// IsProtocolMismatch reports whether err is a ServerError indicating the
// negotiated protocol version is unsupported by the server, the signal
// the Cluster uses to retry handshake at a lower version.
func IsProtocolMismatch(err error) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code == ServerErrProtocol
	}
	return false
}
