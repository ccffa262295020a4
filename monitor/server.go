package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodestore/cql/cluster"
)

// Server serves the status HTTP endpoint and an SSE stream of cluster
// snapshots, mirroring web.go's handler shape (mux, SSE via
// http.Flusher, a single JSON response writer) adapted from query
// events to cluster membership/version snapshots.
type Server struct {
	httpServer *http.Server
	getInfo    func() cluster.Info
	broker     *Broker[cluster.Info]
	log        *logrus.Entry
}

// New builds a Server that answers GET /api/status with c's current
// snapshot and streams every snapshot b publishes over GET /api/events.
func New(c *cluster.Cluster, b *Broker[cluster.Info], log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{getInfo: c.ShowClusterInformation, broker: b, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/events", s.handleSSE)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Serve starts the HTTP server on lis, blocking until it stops.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("monitor: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("monitor: shutdown: %w", err)
	}
	return nil
}

// Handler exposes the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type infoJSON struct {
	Version     uint8    `json:"version"`
	CurrentNode string   `json:"current_node"`
	Available   []string `json:"available"`
	Unavailable []string `json:"unavailable"`
}

func toJSON(info cluster.Info) infoJSON {
	return infoJSON{
		Version:     info.Version,
		CurrentNode: info.CurrentNode,
		Available:   info.Available,
		Unavailable: info.Unavailable,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toJSON(s.getInfo())); err != nil {
		s.log.WithError(err).Warn("monitor: status encode failed")
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before flushing headers: once the client sees headers it
	// may publish immediately, and that value must not be missed.
	ch, unsub := s.broker.Subscribe()
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case info, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(toJSON(info))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
