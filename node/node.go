// Package node implements the per-host façade a Cluster routes work
// through: building frame.Request values and submitting them to a pool,
// then decoding the pool's eventual completion into a typed result.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodestore/cql/balancer"
	"github.com/nodestore/cql/frame"
	"github.com/nodestore/cql/pool"
)

// Node is the per-host handle Cluster hands out for routing requests:
// it knows its own address and the shared pool it submits through, but
// owns no Connection itself — the pool does.
type Node struct {
	Host string

	pool *pool.Pool
	log  *logrus.Entry
}

// New returns a Node that routes every request for host through p.
func New(host string, p *pool.Pool, log *logrus.Entry) *Node {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Node{Host: host, pool: p, log: log}
}

// Connect warms this node's connection (dial + handshake) without
// submitting any workload, per spec.md's "connect" operation.
func (n *Node) Connect(ctx context.Context) error {
	out, err := n.pool.Connect(n.Host).Wait(ctx)
	if err != nil {
		return err
	}
	return out.Err
}

// ExecQuery runs a simple (non-prepared) CQL statement.
func (n *Node) ExecQuery(ctx context.Context, query string, consistency frame.Consistency) (frame.ResultResponse, error) {
	return n.execResult(ctx, frame.QueryRequest{Query: query, Consistency: consistency})
}

// PreparedStatement issues a PREPARE and blocks for the server-assigned
// id plus bind/result metadata.
func (n *Node) PreparedStatement(ctx context.Context, query string) (frame.PreparedResult, error) {
	res, err := n.execResult(ctx, frame.PrepareRequest{Query: query})
	if err != nil {
		return frame.PreparedResult{}, err
	}
	if res.Kind != frame.ResultPrepared || res.Prepared == nil {
		return frame.PreparedResult{}, fmt.Errorf("node: PREPARE returned unexpected result kind %d", res.Kind)
	}
	return *res.Prepared, nil
}

// ExecPrepared runs a previously prepared statement, binding values
// positionally.
func (n *Node) ExecPrepared(ctx context.Context, id []byte, values []frame.Value, consistency frame.Consistency) (frame.ResultResponse, error) {
	return n.execResult(ctx, frame.ExecuteRequest{PreparedID: id, Values: values, Consistency: consistency})
}

// ExecBatch runs a BATCH of simple and/or prepared sub-queries.
func (n *Node) ExecBatch(ctx context.Context, batchType frame.BatchType, queries []frame.BatchSubQuery, consistency frame.Consistency) (frame.ResultResponse, error) {
	return n.execResult(ctx, frame.BatchRequest{Type: batchType, Queries: queries, Consistency: consistency})
}

// SendRegister subscribes this node's connection to the named event
// types (TOPOLOGY_CHANGE, STATUS_CHANGE, SCHEMA_CHANGE).
func (n *Node) SendRegister(ctx context.Context, eventTypes []string) error {
	comp := n.pool.Submit(n.Host, frame.RegisterRequest{EventTypes: eventTypes})
	out, err := comp.Wait(ctx)
	if err != nil {
		return err
	}
	return out.Err
}

// dummyQueryLatency is the probe statement timed by GetLatency: cheap
// enough to run on every node without touching user data, but a real
// query round trip rather than a protocol-level no-op.
const dummyQueryLatency = "SELECT now() FROM system.local"

// GetLatency measures a round trip to this node by timing a trivial
// SELECT, suitable for feeding balancer.LatencyAware.Record.
func (n *Node) GetLatency(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	_, err := n.execResult(ctx, frame.QueryRequest{Query: dummyQueryLatency, Consistency: frame.ConsistencyOne})
	if err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Options fetches the server's advertised option multimap (supported
// CQL/compression versions and the like) via an OPTIONS/SUPPORTED
// exchange.
func (n *Node) Options(ctx context.Context) (map[string][]string, error) {
	comp := n.pool.Submit(n.Host, frame.OptionsRequest{})
	out, err := comp.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if out.Err != nil {
		return nil, out.Err
	}
	res, ok := out.Response.(frame.SupportedResponse)
	if !ok {
		return nil, fmt.Errorf("node: unexpected response type %T for OPTIONS", out.Response)
	}
	return res.Options, nil
}

// execResult submits req and type-asserts the decoded response as a
// ResultResponse, the shape every query/prepare/execute/batch reply
// takes per spec.md §4.1.
func (n *Node) execResult(ctx context.Context, req frame.Request) (frame.ResultResponse, error) {
	comp := n.pool.Submit(n.Host, req)
	out, err := comp.Wait(ctx)
	if err != nil {
		return frame.ResultResponse{}, err
	}
	if out.Err != nil {
		return frame.ResultResponse{}, out.Err
	}
	res, ok := out.Response.(frame.ResultResponse)
	if !ok {
		return frame.ResultResponse{}, fmt.Errorf("node: unexpected response type %T for opcode %d", out.Response, req.Opcode())
	}
	return res, nil
}

// RecordLatency measures n's latency and feeds the sample to sel when
// sel is a *balancer.LatencyAware; for any other Selector it does
// nothing and returns nil.
func RecordLatency(ctx context.Context, n *Node, sel balancer.Selector) error {
	la, ok := sel.(*balancer.LatencyAware)
	if !ok {
		return nil
	}
	d, err := n.GetLatency(ctx)
	if err != nil {
		return err
	}
	la.Record(n.Host, d.Nanoseconds())
	return nil
}
