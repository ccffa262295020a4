// Package cluster is the driver's top-level entry point: it negotiates
// a protocol version against a seed host, discovers the rest of the
// ring from system.peers, keeps membership current via pushed events,
// and routes application requests to whichever node the configured
// load-balancing strategy currently favors.
package cluster

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nodestore/cql/balancer"
	"github.com/nodestore/cql/conn"
	"github.com/nodestore/cql/cqlerr"
	"github.com/nodestore/cql/event"
	"github.com/nodestore/cql/frame"
	"github.com/nodestore/cql/node"
	"github.com/nodestore/cql/pool"
)

// DefaultPort is the port appended to a bare host when system.peers'
// rpc_address column carries none. Shared with event.DefaultPort so
// discovery-driven and event-driven host keys always agree.
const DefaultPort = event.DefaultPort

// defaultTickPeriod is how often the ticker re-selects the current node.
const defaultTickPeriod = 3 * time.Second

// peersQuery discovers ring membership; only rpc_address is consumed,
// per spec.md's discovery-query resolution note.
const peersQuery = "SELECT peer,data_center,host_id,rack,rpc_address FROM system.peers;"

// Info is the snapshot ShowClusterInformation returns.
type Info struct {
	Version     uint8
	CurrentNode string
	Available   []string
	Unavailable []string
}

// Cluster owns the pool, the event-driven membership table, the
// current load-balancing strategy, and a background ticker that
// re-selects the current node on each period.
type Cluster struct {
	creds *conn.Credentials
	log   *logrus.Entry

	mu          sync.RWMutex
	version     uint8
	currentNode string
	selector    balancer.Selector
	tickPeriod  time.Duration

	pool    *pool.Pool
	hosts   *event.Hosts[event.Zero]
	handler *event.Handler
	events  chan frame.Event

	eg     *errgroup.Group
	cancel context.CancelFunc
}

// New returns an unconnected Cluster. Call ConnectCluster to negotiate
// a version, discover peers, and start routing.
func New(creds *conn.Credentials, log *logrus.Entry) *Cluster {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	hosts := event.NewHosts[event.Zero]()
	return &Cluster{
		creds:      creds,
		log:        log,
		selector:   balancer.NewRoundRobin(),
		tickPeriod: defaultTickPeriod,
		hosts:      hosts,
		handler:    event.NewHandler(hosts, log),
		events:     make(chan frame.Event, 64),
	}
}

// ConnectCluster negotiates a protocol version against seed (trying
// v3, then v2, then v1, descending only on a detected protocol
// mismatch per spec.md §4.2), starts the pool and event-handler
// goroutines, registers for topology/status events, discovers peers
// from system.peers, and starts the periodic node-selection ticker.
func (c *Cluster) ConnectCluster(ctx context.Context, seed string) error {
	version, err := negotiateVersion(ctx, seed, c.creds, c.log)
	if err != nil {
		return cqlerr.NewCluster("negotiate version", err)
	}
	c.mu.Lock()
	c.version = version
	c.mu.Unlock()

	c.pool = pool.New(version, c.creds, c.events, c.log)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	eg, egCtx := errgroup.WithContext(runCtx)
	c.eg = eg
	eg.Go(func() error {
		c.pool.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		c.handler.Run(egCtx.Done(), c.events)
		return nil
	})

	c.hosts.Put(seed, event.Zero{})

	seedNode := node.New(seed, c.pool, c.log)
	if err := seedNode.Connect(ctx); err != nil {
		return cqlerr.NewCluster("connect seed", err)
	}
	if err := seedNode.SendRegister(ctx, []string{"TOPOLOGY_CHANGE", "STATUS_CHANGE"}); err != nil {
		return cqlerr.NewCluster("register for events", err)
	}

	peers, err := discoverPeers(ctx, seedNode)
	if err != nil {
		return cqlerr.NewCluster("discover peers", err)
	}
	for _, addr := range peers {
		c.hosts.Put(addr, event.Zero{})
	}

	c.mu.Lock()
	c.currentNode = seed
	c.mu.Unlock()

	eg.Go(func() error {
		c.tickLoop(egCtx)
		return nil
	})

	return nil
}

// negotiateVersion tries protocol versions from newest to oldest
// against seed, using scratch connections that are torn down
// immediately after the handshake completes or fails. Only a detected
// protocol mismatch triggers a retry at a lower version; any other
// handshake error is returned immediately.
func negotiateVersion(ctx context.Context, seed string, creds *conn.Credentials, log *logrus.Entry) (uint8, error) {
	var lastErr error
	for v := frame.ProtocolV3; v >= frame.ProtocolV1; v-- {
		c, err := conn.DialTCP(ctx, seed, v, nil, log)
		if err != nil {
			return 0, err
		}
		err = c.Handshake(ctx, creds)
		_ = c.Close()
		if err == nil {
			return v, nil
		}
		if !conn.IsProtocolMismatch(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("cluster: no protocol version accepted by %s: %w", seed, lastErr)
}

// discoverPeers runs the system.peers query and extracts rpc_address
// from every row, appending DefaultPort since the column carries only
// an address.
func discoverPeers(ctx context.Context, n *node.Node) ([]string, error) {
	res, err := n.ExecQuery(ctx, peersQuery, frame.ConsistencyOne)
	if err != nil {
		return nil, err
	}
	if res.Kind != frame.ResultRows || res.Rows == nil {
		return nil, fmt.Errorf("cluster: system.peers query returned unexpected result kind %d", res.Kind)
	}
	idx := -1
	for i, col := range res.Rows.Metadata.Columns {
		if col.Name == "rpc_address" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("cluster: system.peers result has no rpc_address column")
	}
	var peers []string
	for _, row := range res.Rows.Rows {
		ip, ok := row[idx].(frame.Inet)
		if !ok {
			continue // NULL or absent rpc_address: skip this peer
		}
		peers = append(peers, fmt.Sprintf("%s:%s", net.IP(ip).String(), DefaultPort))
	}
	return peers, nil
}

func (c *Cluster) tickLoop(ctx context.Context) {
	c.mu.RLock()
	period := c.tickPeriod
	c.mu.RUnlock()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reselect()
			c.mu.RLock()
			next := c.tickPeriod
			c.mu.RUnlock()
			if next != period {
				period = next
				ticker.Reset(period)
			}
		}
	}
}

func (c *Cluster) reselect() {
	available := c.hosts.Available()
	hosts := make([]string, 0, len(available))
	for h := range available {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	c.mu.Lock()
	defer c.mu.Unlock()
	host, err := c.selector.Select(hosts)
	if err != nil {
		c.log.WithError(err).Warn("cluster: no live host to select")
		return
	}
	c.currentNode = host
}

// node returns a façade for the currently selected host.
func (c *Cluster) node() (*node.Node, error) {
	c.mu.RLock()
	host := c.currentNode
	p := c.pool
	c.mu.RUnlock()
	if host == "" || p == nil {
		return nil, cqlerr.NewCluster("route request", cqlerr.ErrNoLiveHosts)
	}
	return node.New(host, p, c.log), nil
}

// ExecQuery routes a simple CQL statement to the current node.
func (c *Cluster) ExecQuery(ctx context.Context, query string, consistency frame.Consistency) (frame.ResultResponse, error) {
	n, err := c.node()
	if err != nil {
		return frame.ResultResponse{}, err
	}
	return n.ExecQuery(ctx, query, consistency)
}

// ExecPrepared routes a previously prepared statement to the current node.
func (c *Cluster) ExecPrepared(ctx context.Context, id []byte, values []frame.Value, consistency frame.Consistency) (frame.ResultResponse, error) {
	n, err := c.node()
	if err != nil {
		return frame.ResultResponse{}, err
	}
	return n.ExecPrepared(ctx, id, values, consistency)
}

// ExecBatch routes a BATCH to the current node.
func (c *Cluster) ExecBatch(ctx context.Context, batchType frame.BatchType, queries []frame.BatchSubQuery, consistency frame.Consistency) (frame.ResultResponse, error) {
	n, err := c.node()
	if err != nil {
		return frame.ResultResponse{}, err
	}
	return n.ExecBatch(ctx, batchType, queries, consistency)
}

// PreparedStatement issues a PREPARE against the current node.
func (c *Cluster) PreparedStatement(ctx context.Context, query string) (frame.PreparedResult, error) {
	n, err := c.node()
	if err != nil {
		return frame.PreparedResult{}, err
	}
	return n.PreparedStatement(ctx, query)
}

// SetLoadBalancing swaps the active selection strategy and, if period
// is non-zero, the ticker's re-selection interval (effective from the
// next tick onward).
func (c *Cluster) SetLoadBalancing(sel balancer.Selector, period time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selector = sel
	if period > 0 {
		c.tickPeriod = period
	}
}

// ShowClusterInformation returns a snapshot of negotiated version,
// current node, and live/dead host sets.
func (c *Cluster) ShowClusterInformation() Info {
	c.mu.RLock()
	info := Info{Version: c.version, CurrentNode: c.currentNode}
	c.mu.RUnlock()

	avail := c.hosts.Available()
	for h := range avail {
		info.Available = append(info.Available, h)
	}
	unavail := c.hosts.Unavailable()
	for h := range unavail {
		info.Unavailable = append(info.Unavailable, h)
	}
	return info
}

// Close shuts the pool down and stops every background goroutine,
// waiting for them to return.
func (c *Cluster) Close() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	return c.eg.Wait()
}
