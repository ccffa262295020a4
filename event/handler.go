// Package event consumes server-pushed frame.Event notifications and
// keeps a cluster's live/dead host membership current.
package event

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nodestore/cql/frame"
)

// Hosts is the membership table an EventHandler mutates: available and
// unavailable maps from address string to the node value the cluster
// associates with it. The zero value of T is never inspected by this
// package; callers supply whatever per-node state (Node, metadata,
// latency sample, …) they need alongside the address.
type Hosts[T any] struct {
	mu          sync.RWMutex
	available   map[string]T
	unavailable map[string]T
}

// NewHosts returns an empty Hosts table.
func NewHosts[T any]() *Hosts[T] {
	return &Hosts[T]{
		available:   make(map[string]T),
		unavailable: make(map[string]T),
	}
}

// Put inserts or updates addr in the available set, regardless of
// whether it was previously tracked anywhere.
func (h *Hosts[T]) Put(addr string, v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.unavailable, addr)
	h.available[addr] = v
}

// Remove deletes addr from both sets.
func (h *Hosts[T]) Remove(addr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.available, addr)
	delete(h.unavailable, addr)
}

// MarkUp moves addr from unavailable to available if it was tracked as
// unavailable; a no-op (not an error) if absent there.
func (h *Hosts[T]) MarkUp(addr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.unavailable[addr]
	if !ok {
		return
	}
	delete(h.unavailable, addr)
	h.available[addr] = v
}

// MarkDown moves addr from available to unavailable if it was tracked
// as available; a no-op (not an error) if absent there.
func (h *Hosts[T]) MarkDown(addr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.available[addr]
	if !ok {
		return
	}
	delete(h.available, addr)
	h.unavailable[addr] = v
}

// Available returns a snapshot copy of the live host set, safe to range
// over without holding any lock.
func (h *Hosts[T]) Available() map[string]T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]T, len(h.available))
	for k, v := range h.available {
		out[k] = v
	}
	return out
}

// Unavailable returns a snapshot copy of the dead host set.
func (h *Hosts[T]) Unavailable() map[string]T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]T, len(h.unavailable))
	for k, v := range h.unavailable {
		out[k] = v
	}
	return out
}

// DefaultPort is the port assumed for event-pushed addresses, which
// carry no port of their own on the wire: TOPOLOGY_CHANGE and
// STATUS_CHANGE frames encode <node> as a bare inet (length byte plus
// 4 or 16 address bytes), the same convention cluster discovery uses
// when appending a port to system.peers' rpc_address column.
const DefaultPort = "9042"

// Zero is the value Handler inserts for a topology event it has no
// richer node value for yet; callers that need one look it up (or
// create it) separately keyed by address.
type Zero = struct{}

// Handler is the event-loop side of cluster membership tracking: it
// owns no goroutine of its own beyond Run, which drains an inbound
// channel of decoded events until the channel closes or done is closed.
type Handler struct {
	hosts *Hosts[Zero]
	log   *logrus.Entry
}

// NewHandler builds a Handler backed by hosts.
func NewHandler(hosts *Hosts[Zero], log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{hosts: hosts, log: log}
}

// Hosts exposes the membership table this handler mutates, for callers
// (the balancer, show_cluster_information) that only need to read it.
func (h *Handler) Hosts() *Hosts[Zero] { return h.hosts }

// Run drains events until the channel closes or done is closed, applying
// each one's transition to the host tables per the TOPOLOGY_CHANGE and
// STATUS_CHANGE rules. SCHEMA_CHANGE events cause no membership change.
func (h *Handler) Run(done <-chan struct{}, events <-chan frame.Event) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Apply(ev)
		}
	}
}

// Apply mutates the host tables for one decoded event. It is exported
// separately from Run so tests and synchronous callers can drive it
// without a goroutine and a channel.
func (h *Handler) Apply(ev frame.Event) {
	switch ev.Type {
	case frame.EventTopologyChange:
		h.applyTopology(ev.Topology)
	case frame.EventStatusChange:
		h.applyStatus(ev.Status)
	case frame.EventSchemaChange:
		h.log.WithFields(logrus.Fields{
			"change":   ev.Schema.ChangeType,
			"target":   ev.Schema.Target,
			"keyspace": ev.Schema.Keyspace,
		}).Debug("event: schema change observed")
	}
}

func (h *Handler) applyTopology(ev *frame.TopologyChangeEvent) {
	if ev == nil {
		return
	}
	addr := addrKey(ev.Address)
	switch ev.ChangeType {
	case frame.TopologyNewNode, frame.TopologyMovedNode:
		h.hosts.Put(addr, Zero{})
		h.log.WithField("host", addr).Info("event: topology change, host available")
	case frame.TopologyRemovedNode:
		h.hosts.Remove(addr)
		h.log.WithField("host", addr).Info("event: topology change, host removed")
	}
}

func (h *Handler) applyStatus(ev *frame.StatusChangeEvent) {
	if ev == nil {
		return
	}
	addr := addrKey(ev.Address)
	switch ev.ChangeType {
	case frame.StatusUp:
		h.hosts.MarkUp(addr)
		h.log.WithField("host", addr).Info("event: status change, host up")
	case frame.StatusDown:
		h.hosts.MarkDown(addr)
		h.log.WithField("host", addr).Info("event: status change, host down")
	}
}

// addrKey formats ip as the "host:port" key the membership table is
// consistently keyed by, matching cluster discovery's convention so an
// event for an already-tracked host resolves to the same key instead
// of silently no-opping against a bare-IP key nothing else uses.
func addrKey(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return net.JoinHostPort(ip.String(), DefaultPort)
}
