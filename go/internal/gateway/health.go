package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/boardsync"
	"github.com/mcdev12/reelboard/go/internal/docstore"
)

type HealthStatus struct {
	Healthy          bool            `json:"healthy"`
	State            boardsync.State `json:"state"`
	Saving           bool            `json:"saving"`
	Revision         uint64          `json:"revision"`
	SnapshotsApplied int64           `json:"snapshots_applied"`
	WritesFailed     int64           `json:"writes_failed"`
	StoreReachable   bool            `json:"store_reachable"`
	Connections      int             `json:"connections"`
	SinceLastWrite   string          `json:"since_last_write,omitempty"`
	Errors           []string        `json:"errors"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// StoreProber is the part of a document store used to probe connectivity.
type StoreProber interface {
	ReadOnce(ctx context.Context) (docstore.Snapshot, error)
}

type BoardHealthChecker struct {
	syncer BoardSyncer
	store  StoreProber
	cm     *ConnectionManager
	clock  clockwork.Clock
}

// NewHealthChecker builds a checker for the service's board. store may be nil.
func (s *Service) NewHealthChecker(store StoreProber) *BoardHealthChecker {
	return &BoardHealthChecker{
		syncer: s.syncer,
		store:  store,
		cm:     s.connectionManager,
		clock:  s.clock,
	}
}

// Check reports unhealthy before the first snapshot, after the subscription
// is lost, or when the store cannot be read.
func (h *BoardHealthChecker) Check(ctx context.Context) HealthStatus {
	st := h.syncer.Status()
	status := HealthStatus{
		Healthy:          true,
		State:            st.State,
		Saving:           st.Saving,
		Revision:         st.Revision,
		WritesFailed:     st.WritesFailed,
		SnapshotsApplied: st.SnapshotsApplied,
		Connections:      h.cm.GetConnectionStats().TotalConnections,
		Errors:           []string{},
	}
	if !st.LastWriteAt.IsZero() {
		status.SinceLastWrite = h.clock.Since(st.LastWriteAt).Round(time.Second).String()
	}

	switch st.State {
	case boardsync.StateUninitialized:
		status.Healthy = false
		status.Errors = append(status.Errors, "no snapshot received yet")
	case boardsync.StateDisconnected:
		status.Healthy = false
		status.Errors = append(status.Errors, "document subscription lost: "+st.LastSubscriptionError)
	}
	if st.LastWriteError != "" {
		status.Errors = append(status.Errors, "last write failed: "+st.LastWriteError)
	}

	if h.store != nil {
		if _, err := h.store.ReadOnce(ctx); err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("store read failed: %v", err))
		} else {
			status.StoreReachable = true
		}
	}
	return status
}

func (h *BoardHealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}

// MetricsHandler serves the health status and activity counters in the
// Prometheus text format.
func MetricsHandler(checker HealthChecker, metrics MetricsSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if _, err := w.Write([]byte(Export(checker.Check(ctx), metrics))); err != nil {
			log.Error().Err(err).Msg("failed to write metrics")
		}
	})
}

func Export(status HealthStatus, metrics MetricsSource) string {
	var b strings.Builder
	gauge := func(name, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n\n", name, help, name, name, value)
	}
	counter := func(name, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %v\n\n", name, help, name, name, value)
	}

	gauge("reelboard_healthy", "Whether the board is synced and the store reachable", boolToInt(status.Healthy))
	gauge("reelboard_saving", "Whether a whole-document write is pending", boolToInt(status.Saving))
	gauge("reelboard_revision", "Store revision of the last applied snapshot", status.Revision)
	gauge("reelboard_websocket_connections", "Connected websocket clients", status.Connections)
	counter("reelboard_snapshots_applied_total", "Snapshots applied to the local board", status.SnapshotsApplied)
	counter("reelboard_writes_failed_total", "Whole-document writes that failed", status.WritesFailed)

	if metrics != nil {
		snap := metrics.Snapshot()
		var published, failed int64
		for _, n := range snap.Published {
			published += n
		}
		for _, n := range snap.Failed {
			failed += n
		}
		counter("reelboard_activity_published_total", "Activity events published", published)
		counter("reelboard_activity_failed_total", "Activity events that failed to publish", failed)
	}
	return b.String()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
