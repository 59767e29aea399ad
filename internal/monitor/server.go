// Package monitor exposes a read-only HTTP+WebSocket view of registry
// and endpoint state for field debugging a running daemon. It never
// accepts writes and cannot bind/connect/send on behalf of a client.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// InterfaceSnapshot is one interface's registry state, as reported by
// Source.
type InterfaceSnapshot struct {
	Ifindex       int   `json:"ifindex"`
	EndpointCount int   `json:"endpoint_count"`
	InstanceRefs  int32 `json:"instance_refs"`
}

// Snapshot is the full point-in-time view the server publishes.
type Snapshot struct {
	Interfaces []InterfaceSnapshot `json:"interfaces"`
	TakenAt    int64               `json:"taken_at_unix_nano"`
}

// Source supplies the current registry state; the daemon implements it
// over whichever set of interfaces it has bound.
type Source interface {
	Snapshot() Snapshot
}

// Server is a net/http server exposing /registry (a JSON snapshot) and
// /ws (the same snapshot streamed over a gorilla/websocket connection
// whenever it changes).
type Server struct {
	source Source
	log    *logrus.Entry

	upgrader websocket.Upgrader
}

// NewServer builds a Server reading from source.
func NewServer(source Source, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		source: source,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the http.Handler serving /registry and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/registry", s.handleRegistry)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "read-only endpoint", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Snapshot()); err != nil {
		s.log.WithError(err).Error("failed to encode registry snapshot")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var last Snapshot
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			snap := s.source.Snapshot()
			if snapshotsEqual(snap, last) {
				continue
			}
			last = snap
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}

func snapshotsEqual(a, b Snapshot) bool {
	if len(a.Interfaces) != len(b.Interfaces) {
		return false
	}
	for i := range a.Interfaces {
		if a.Interfaces[i] != b.Interfaces[i] {
			return false
		}
	}
	return true
}

// Serve runs the HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
