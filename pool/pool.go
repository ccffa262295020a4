// Package pool implements the connection-pool reactor: a single
// goroutine that owns every per-host Connection, lazily dialing and
// handshaking new ones, and routes inbound Control messages to them.
package pool

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nodestore/cql/completion"
	"github.com/nodestore/cql/conn"
	"github.com/nodestore/cql/frame"
)

// slabMinCapacity is the minimum number of simultaneously tracked
// connections, per the "implementation minimum 128" capacity note; Go's
// map has no fixed slab, so this only sizes the initial allocation.
const slabMinCapacity = 128

// Kind discriminates the three Control message shapes the pool accepts.
type Kind int

const (
	KindRequest Kind = iota
	KindConnect
	KindShutdown
)

// Control is the single message type submitted on the pool's inbound
// channel. Exactly the fields relevant to Kind are read.
type Control struct {
	Kind       Kind
	Host       string
	Request    frame.Request
	Completion *completion.Completion
}

// Pool owns every Connection exclusively: application code (Node)
// never dereferences a *conn.Connection directly, only ever submits
// Control values on In.
type Pool struct {
	In chan Control

	version uint8
	creds   *conn.Credentials
	events  chan<- frame.Event
	log     *logrus.Entry

	conns   map[string]*conn.Connection
	dialing map[string]bool
	pending map[string][]func(*conn.Connection, error)

	dialDone chan dialResult
}

// dialResult is what an in-flight dial goroutine reports back to the
// loop once DialTCP+Handshake finishes, good or bad.
type dialResult struct {
	host string
	conn *conn.Connection
	err  error
}

// New builds a Pool that dials new connections at version and
// (if non-nil) answers AUTHENTICATE challenges with creds. events is
// forwarded to every Connection created so EVENT frames reach the
// Cluster's event.Handler. The caller must call Run in its own
// goroutine.
func New(version uint8, creds *conn.Credentials, events chan<- frame.Event, log *logrus.Entry) *Pool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{
		In:       make(chan Control, slabMinCapacity),
		version:  version,
		creds:    creds,
		events:   events,
		log:      log,
		conns:    make(map[string]*conn.Connection, slabMinCapacity),
		dialing:  make(map[string]bool),
		pending:  make(map[string][]func(*conn.Connection, error)),
		dialDone: make(chan dialResult, slabMinCapacity),
	}
}

// Run drains In until a Shutdown control arrives or ctx is done. It is
// the pool's entire event loop; call it in its own goroutine. The loop
// itself never blocks on I/O: dialing and handshaking run in their own
// goroutines and report back on dialDone, so a slow or unreachable host
// never stalls Control messages queued for any other host.
func (p *Pool) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			return
		case res := <-p.dialDone:
			p.completeDial(res)
		case ctrl, ok := <-p.In:
			if !ok {
				p.closeAll()
				return
			}
			p.handle(ctx, ctrl)
			if ctrl.Kind == KindShutdown {
				return
			}
		}
	}
}

func (p *Pool) handle(ctx context.Context, ctrl Control) {
	switch ctrl.Kind {
	case KindShutdown:
		p.closeAll()
		if ctrl.Completion != nil {
			ctrl.Completion.Resolve(completion.Outcome{})
		}
	case KindConnect:
		comp := ctrl.Completion
		p.withConnection(ctx, ctrl.Host, func(_ *conn.Connection, err error) {
			if comp == nil {
				return
			}
			if err != nil {
				comp.Resolve(completion.Outcome{Err: err})
				return
			}
			comp.Resolve(completion.Outcome{Response: frame.ReadyResponse{}})
		})
	case KindRequest:
		req := ctrl.Request
		comp := ctrl.Completion
		p.withConnection(ctx, ctrl.Host, func(c *conn.Connection, err error) {
			if err != nil {
				if comp != nil {
					comp.Resolve(completion.Outcome{Err: err})
				}
				return
			}
			inner, err := c.Enqueue(req)
			if err != nil {
				if comp != nil {
					comp.Resolve(completion.Outcome{Err: err})
				}
				return
			}
			if comp != nil {
				go chain(ctx, inner, comp)
			}
		})
	}
}

// chain forwards inner's eventual outcome to outer, in a dedicated
// goroutine so the pool's single loop never blocks on a response.
func chain(ctx context.Context, inner, outer *completion.Completion) {
	out, err := inner.Wait(ctx)
	if err != nil {
		outer.Resolve(completion.Outcome{Err: err})
		return
	}
	outer.Resolve(out)
}

// withConnection invokes cb with the Connection for host once one is
// available, never blocking the calling (loop) goroutine: a cached,
// open connection is delivered synchronously; otherwise cb is queued
// against an in-flight (or newly started) dial and invoked later from
// completeDial, off the loop goroutine. Called only from the loop.
func (p *Pool) withConnection(ctx context.Context, host string, cb func(*conn.Connection, error)) {
	if c, ok := p.conns[host]; ok {
		select {
		case <-c.Closed():
			delete(p.conns, host)
		default:
			cb(c, nil)
			return
		}
	}

	p.pending[host] = append(p.pending[host], cb)
	if p.dialing[host] {
		return
	}
	p.dialing[host] = true
	go p.dial(ctx, host)
}

// dial runs the blocking DialTCP+Handshake round trips for host
// entirely off the loop goroutine, reporting the outcome on dialDone.
// If ctx is already done by the time it finishes, the loop may have
// already exited (and closed every cached connection), so it closes
// its own result instead of leaking an un-tracked open socket.
func (p *Pool) dial(ctx context.Context, host string) {
	c, err := conn.DialTCP(ctx, host, p.version, p.events, p.log)
	if err == nil {
		if herr := c.Handshake(ctx, p.creds); herr != nil {
			_ = c.Close()
			c = nil
			err = fmt.Errorf("pool: handshake %s: %w", host, herr)
		}
	}
	if ctx.Err() != nil {
		if c != nil {
			_ = c.Close()
		}
		return
	}
	p.dialDone <- dialResult{host: host, conn: c, err: err}
}

// completeDial runs in the loop goroutine: it records the dialed
// connection (if any), then releases every Control that queued up
// waiting on it. Callbacks run in their own goroutines since Enqueue
// and completion resolution can themselves block on I/O or a blocked
// reader.
func (p *Pool) completeDial(res dialResult) {
	delete(p.dialing, res.host)
	if res.err == nil {
		p.conns[res.host] = res.conn
		p.log.WithField("host", res.host).Info("pool: connection established")
	}

	waiters := p.pending[res.host]
	delete(p.pending, res.host)
	for _, cb := range waiters {
		go cb(res.conn, res.err)
	}
}

func (p *Pool) closeAll() {
	for host, c := range p.conns {
		_ = c.Close()
		delete(p.conns, host)
	}
}

// Submit is the convenience wrapper Node uses: build a completion,
// send a Request control, and return the completion to wait on.
func (p *Pool) Submit(host string, req frame.Request) *completion.Completion {
	comp := completion.New()
	p.In <- Control{Kind: KindRequest, Host: host, Request: req, Completion: comp}
	return comp
}

// Connect submits a Connect control for host and returns its
// completion, resolved once the handshake finishes (or fails).
func (p *Pool) Connect(host string) *completion.Completion {
	comp := completion.New()
	p.In <- Control{Kind: KindConnect, Host: host, Completion: comp}
	return comp
}

// Shutdown submits a Shutdown control and waits (bounded by ctx) for
// the pool loop to acknowledge it.
func (p *Pool) Shutdown(ctx context.Context) error {
	comp := completion.New()
	select {
	case p.In <- Control{Kind: KindShutdown, Completion: comp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err := comp.Wait(ctx)
	return err
}
