package metrics

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/open4/dydns/internal/logging"
)

// HealthChecker tracks readiness signals for the watch loop.
type HealthChecker struct {
	mu             sync.RWMutex
	snapshotLoaded bool
	syncCompleted  bool
	logger         *slog.Logger
}

// NewHealthChecker returns a HealthChecker with a logger derived from the shared logging package.
func NewHealthChecker() *HealthChecker {
	logger := logging.GetLogger()
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthChecker{logger: logger}
}

// SetSnapshotLoaded records that the kernel rule table has been listed at least once.
func (h *HealthChecker) SetSnapshotLoaded() {
	h.mu.Lock()
	h.snapshotLoaded = true
	h.mu.Unlock()
}

// SetSyncCompleted records that a full reconcile run has finished at least once.
func (h *HealthChecker) SetSyncCompleted() {
	h.mu.Lock()
	h.syncCompleted = true
	h.mu.Unlock()
}

// IsHealthy reports whether both readiness signals have been satisfied.
func (h *HealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLoaded && h.syncCompleted
}

// Handler produces an HTTP handler for the /healthz endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		snapshotLoaded := h.snapshotLoaded
		syncCompleted := h.syncCompleted
		h.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if snapshotLoaded && syncCompleted {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK\n"))
			return
		}

		h.logger.Warn("health check not yet passing",
			slog.Bool("snapshot_loaded", snapshotLoaded),
			slog.Bool("sync_completed", syncCompleted),
		)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Service Unavailable\n"))
	})
}
