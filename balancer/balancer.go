// Package balancer selects which live host a Cluster should route its
// next request to.
package balancer

import (
	"sort"
	"sync"

	"github.com/nodestore/cql/cqlerr"
)

// Selector is the capability every load-balancing strategy implements:
// pick one address out of the live set. Implementations may be
// stateful (RoundRobin's rotating index, LatencyAware's sample table)
// but must be safe for concurrent use, since the Cluster's periodic
// ticker and application threads can both call Select.
type Selector interface {
	Select(available []string) (string, error)
}

// RoundRobin visits every live host exactly once before repeating,
// using a rotating index modulo the current live-set size.
type RoundRobin struct {
	mu  sync.Mutex
	idx int
}

// NewRoundRobin returns a RoundRobin starting at the first host offered.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

// Select returns available[idx % len(available)] and advances idx.
// available order is expected to be stable across calls for the
// round-robin guarantee to hold — the caller is responsible for
// sorting if a deterministic visiting order matters to it.
func (r *RoundRobin) Select(available []string) (string, error) {
	if len(available) == 0 {
		return "", cqlerr.ErrNoLiveHosts
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	host := available[r.idx%len(available)]
	r.idx++
	return host, nil
}

// LatencyAware returns the host whose most recently recorded
// get_latency probe is lowest, breaking ties by insertion order (the
// order hosts first appeared in Record).
type LatencyAware struct {
	mu      sync.Mutex
	samples map[string]latencySample
	order   []string
	seq     int
}

type latencySample struct {
	nanos    int64
	observed int // insertion sequence, for tie-breaking
}

// NewLatencyAware returns an empty LatencyAware selector.
func NewLatencyAware() *LatencyAware {
	return &LatencyAware{samples: make(map[string]latencySample)}
}

// Record stores host's most recent round-trip latency, as measured by
// Node.GetLatency.
func (l *LatencyAware) Record(host string, latencyNanos int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, seen := l.samples[host]
	if !seen {
		l.order = append(l.order, host)
		l.seq++
		s.observed = l.seq
	}
	s.nanos = latencyNanos
	l.samples[host] = s
}

// Select returns the host in available with the lowest recorded
// latency. Hosts with no recorded sample are treated as having
// infinite latency and are only chosen if every candidate is unsampled
// (in which case the first, by available's order, is chosen).
func (l *LatencyAware) Select(available []string) (string, error) {
	if len(available) == 0 {
		return "", cqlerr.ErrNoLiveHosts
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	type candidate struct {
		host    string
		nanos   int64
		sampled bool
		order   int
	}
	cands := make([]candidate, 0, len(available))
	for _, h := range available {
		s, ok := l.samples[h]
		cands = append(cands, candidate{host: h, nanos: s.nanos, sampled: ok, order: s.observed})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].sampled != cands[j].sampled {
			return cands[i].sampled // sampled hosts sort before unsampled
		}
		if !cands[i].sampled {
			return false // preserve available's original relative order
		}
		if cands[i].nanos != cands[j].nanos {
			return cands[i].nanos < cands[j].nanos
		}
		return cands[i].order < cands[j].order
	})
	return cands[0].host, nil
}
