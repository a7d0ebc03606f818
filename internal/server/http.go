package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/ubxrelay/internal/logging"
	"github.com/muurk/ubxrelay/internal/version"
)

// HTTP paths served by the relay
const (
	PathStream  = "/ubx"
	PathMetrics = "/metrics"
	PathStatus  = "/status"
)

// StatusFunc returns the relay section of the /status document. The value
// must be JSON-encodable.
type StatusFunc func() any

// Status is the document served on /status
type Status struct {
	Version   version.BuildInfo `json:"version"`
	StartedAt time.Time         `json:"started_at"`
	Uptime    string            `json:"uptime"`
	Clients   int               `json:"clients"`
	Relay     any               `json:"relay,omitempty"`
}

// newMux wires the hub, the metrics handler and the status document
func (s *Server) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(PathStream, s.hub)
	if s.metrics != nil {
		mux.Handle(PathMetrics, s.metrics)
	}
	mux.HandleFunc(PathStatus, s.handleStatus)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := Status{
		Version:   version.Info(),
		StartedAt: s.started,
		Uptime:    s.now().Sub(s.started).Truncate(time.Second).String(),
		Clients:   s.hub.Clients(),
	}
	if s.status != nil {
		st.Relay = s.status()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		logging.Warn("Failed to encode status",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
}
