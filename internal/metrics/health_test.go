package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newHealthCheckerForTest() *HealthChecker {
	return &HealthChecker{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestNewHealthCheckerInitialState(t *testing.T) {
	t.Parallel()

	h := newHealthCheckerForTest()

	if h.IsHealthy() {
		t.Fatal("expected IsHealthy to return false initially")
	}
}

func TestHealthCheckerBecomesHealthy(t *testing.T) {
	t.Parallel()

	h := newHealthCheckerForTest()

	h.SetSnapshotLoaded()
	if h.IsHealthy() {
		t.Fatal("expected IsHealthy to remain false before first completed sync")
	}

	h.SetSyncCompleted()
	if !h.IsHealthy() {
		t.Fatal("expected IsHealthy after both signals")
	}

	// Signals are sticky.
	h.SetSnapshotLoaded()
	h.SetSyncCompleted()
	if !h.IsHealthy() {
		t.Fatal("expected IsHealthy to remain true")
	}
}

func TestHealthCheckerHandler(t *testing.T) {
	t.Parallel()

	h := newHealthCheckerForTest()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first sync, got %d", rec.Code)
	}

	h.SetSnapshotLoaded()
	h.SetSyncCompleted()

	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after first sync, got %d", rec.Code)
	}
}
