package monitor

import (
	"context"
	"time"

	"github.com/nodestore/cql/cluster"
)

// Watcher polls a Cluster's status on a fixed interval and publishes
// each snapshot to a Broker, decoupling the HTTP/SSE layer below from
// the Cluster's own ticker period.
type Watcher struct {
	cluster  *cluster.Cluster
	broker   *Broker[cluster.Info]
	interval time.Duration
}

// NewWatcher returns a Watcher publishing c's status to b every
// interval (defaulting to one second if interval is non-positive).
func NewWatcher(c *cluster.Cluster, b *Broker[cluster.Info], interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{cluster: c, broker: b, interval: interval}
}

// Run publishes one snapshot immediately, then one per interval, until
// ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.broker.Publish(w.cluster.ShowClusterInformation())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.broker.Publish(w.cluster.ShowClusterInformation())
		}
	}
}
