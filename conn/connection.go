// Package conn implements the duplex connection state machine: one TCP
// socket speaking the frame protocol, a stream-id-multiplexed table of
// in-flight requests, and the startup/authentication handshake.
package conn

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nodestore/cql/completion"
	"github.com/nodestore/cql/cqlerr"
	"github.com/nodestore/cql/frame"
)

// readChunk is the buffer size used to drain socket bytes between parse
// attempts; it bounds a single Read syscall, not a frame.
const readChunk = 4096

// Connection owns one TCP socket. It is created lazily by the pool on
// first request to an unknown host and, once handshaken, accepts
// Enqueue calls from any goroutine: stream allocation and the table of
// outstanding completions are guarded by mu.
type Connection struct {
	host string
	nc   net.Conn
	log  *logrus.Entry

	version uint8 // fixed once the handshake completes

	events chan<- frame.Event

	writeMu sync.Mutex // serializes frame writes onto the socket

	mu          sync.Mutex
	nextStream  int16
	highWater   int16
	maxStream   int16
	highReached bool
	pending     map[int16]*completion.Completion

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// New wraps an already-dialed socket for host at the given protocol
// version and starts its reader goroutine. The caller still must drive
// Handshake before issuing ordinary requests.
func New(host string, nc net.Conn, version uint8, events chan<- frame.Event, log *logrus.Entry) *Connection {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Connection{
		host:      host,
		nc:        nc,
		log:       log.WithField("host", host),
		version:   version,
		events:    events,
		nextStream: 1,
		maxStream: maxStreamFor(version),
		pending:   make(map[int16]*completion.Completion),
		closed:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func maxStreamFor(version uint8) int16 {
	if version >= frame.ProtocolV3 {
		return frame.MaxStreamV3
	}
	return frame.MaxStreamV1V2
}

// Version reports the protocol revision negotiated at handshake.
func (c *Connection) Version() uint8 { return c.version }

// Host returns the address this connection was dialed to.
func (c *Connection) Host() string { return c.host }

// Closed returns a channel closed once the connection has torn down,
// for callers that want to select on connection death.
func (c *Connection) Closed() <-chan struct{} { return c.closed }

// Enqueue assigns a stream id to req, writes its frame, and returns a
// Completion the caller can Wait on for the correlated response. It
// implements the Connection's public "enqueue" contract from a single
// synchronous call rather than a separate on_writable step, since Go's
// net.Conn.Write already blocks until the kernel accepts the bytes —
// there is no non-blocking partial-write state to track across calls.
func (c *Connection) Enqueue(req frame.Request) (*completion.Completion, error) {
	stream, err := c.allocStream()
	if err != nil {
		return nil, err
	}

	comp := completion.New()
	c.mu.Lock()
	c.pending[stream] = comp
	c.mu.Unlock()

	body, encErr := req.Encode(c.version)
	if encErr != nil {
		c.mu.Lock()
		delete(c.pending, stream)
		c.mu.Unlock()
		return nil, encErr
	}
	raw := frame.WriteFrame(c.version, stream, req.Opcode(), 0, body)

	c.writeMu.Lock()
	_, werr := c.nc.Write(raw)
	c.writeMu.Unlock()
	if werr != nil {
		c.mu.Lock()
		delete(c.pending, stream)
		c.mu.Unlock()
		cerr := cqlerr.NewConnection(c.host, werr)
		c.fail(cerr)
		return nil, cerr
	}
	return comp, nil
}

// allocStream implements the id-allocation strategy: monotonically
// increasing while under the high-water mark, then a linear scan of the
// union of in-flight ids for the lowest free slot.
func (c *Connection) allocStream() (int16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.highReached {
		id := c.nextStream
		if id >= c.maxStream {
			c.highReached = true
		} else {
			c.nextStream++
		}
		return id, nil
	}
	for id := int16(1); id <= c.maxStream; id++ {
		if _, busy := c.pending[id]; !busy {
			return id, nil
		}
	}
	return 0, cqlerr.ErrNoStreamID
}

// readLoop drains socket bytes into an accumulating buffer and hands
// the buffer to frame.TryReadFrame after every read, parsing as many
// complete frames as are available — mirroring the reactor's
// on_readable contract (drain then parse-while-possible) even though
// this implementation blocks on net.Conn.Read rather than polling an
// edge-triggered descriptor.
func (c *Connection) readLoop() {
	buf := make([]byte, 0, readChunk)
	tmp := make([]byte, readChunk)
	for {
		n, err := c.nc.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				fr, consumed, perr := frame.TryReadFrame(buf)
				if perr != nil {
					c.log.WithError(perr).Warn("conn: malformed frame, resyncing at next boundary")
					break
				}
				if fr == nil {
					break
				}
				buf = buf[consumed:]
				c.handleFrame(fr)
			}
		}
		if err != nil {
			if err == io.EOF {
				c.fail(cqlerr.NewConnection(c.host, fmt.Errorf("connection closed by peer")))
			} else {
				c.fail(cqlerr.NewConnection(c.host, err))
			}
			return
		}
	}
}

// handleFrame routes one parsed frame: EVENT frames go to the event
// channel, everything else resolves (and removes) its pending
// completion by stream id.
func (c *Connection) handleFrame(fr *frame.Frame) {
	if fr.IsEvent() {
		ev, err := frame.DecodeEvent(fr)
		if err != nil {
			c.log.WithError(err).Warn("conn: failed to decode event frame")
			return
		}
		if c.events != nil {
			select {
			case c.events <- ev:
			default:
				c.log.Warn("conn: event channel full, dropping event")
			}
		}
		return
	}

	c.mu.Lock()
	comp, ok := c.pending[fr.Header.Stream]
	if ok {
		delete(c.pending, fr.Header.Stream)
	}
	c.mu.Unlock()
	if !ok {
		c.log.WithField("stream", fr.Header.Stream).Warn("conn: response for unknown stream id")
		return
	}

	resp, err := frame.DecodeResponse(fr, c.version)
	if err != nil {
		comp.Resolve(completion.Outcome{Err: cqlerr.NewCodec("decode response", err)})
		return
	}
	if errResp, ok := resp.(frame.ErrorResponse); ok {
		comp.Resolve(completion.Outcome{Err: &cqlerr.ServerError{Code: errResp.Code, Message: errResp.Message}})
		return
	}
	comp.Resolve(completion.Outcome{Response: resp})
}

// fail marks the connection dead: every outstanding completion is
// resolved with err and the socket is closed. Safe to call more than
// once (only the first call has effect).
func (c *Connection) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		c.mu.Lock()
		pending := c.pending
		c.pending = make(map[int16]*completion.Completion)
		c.mu.Unlock()
		for _, comp := range pending {
			comp.Resolve(completion.Outcome{Err: err})
		}
		_ = c.nc.Close()
		close(c.closed)
		c.log.WithError(err).Info("conn: connection closed")
	})
}

// Close shuts the connection down gracefully from the pool side,
// resolving any outstanding completions with ErrConnectionClosed.
func (c *Connection) Close() error {
	c.fail(cqlerr.ErrConnectionClosed)
	return nil
}

// DialTCP opens a new TCP socket to host and wraps it, but does not
// perform the handshake — the caller (pool) is expected to call
// Handshake immediately afterward, before any ordinary Enqueue.
func DialTCP(ctx context.Context, host string, version uint8, events chan<- frame.Event, log *logrus.Entry) (*Connection, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, cqlerr.NewConnection(host, err)
	}
	return New(host, nc, version, events, log), nil
}
