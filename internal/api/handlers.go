package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steerstack/wansteer/internal/models"
)

// SnapshotSource exposes the loop's most recent status snapshot. It returns
// nil before the first cycle completes.
type SnapshotSource interface {
	Snapshot() *models.StatusSnapshot
}

// NewHandler builds the status-surface mux: the cycle-tagged snapshot, a
// liveness/degradation probe, and Prometheus metrics.
func NewHandler(logger *slog.Logger, source SnapshotSource) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", statusHandler(logger, source))
	mux.HandleFunc("GET /healthz", healthHandler(source))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func statusHandler(logger *slog.Logger, source SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := source.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			logger.Warn("encode status snapshot", slog.Any("error", err))
		}
	}
}

func healthHandler(source SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := source.Snapshot()
		if snap == nil || snap.Degraded {
			http.Error(w, "degraded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
