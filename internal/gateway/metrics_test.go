package gateway

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := &Metrics{}
	m.RecordJobCreated()
	m.RecordStep(false)
	m.RecordStep(true)
	m.RecordStep(false)
	m.RecordDownload()

	snap := m.Snapshot()
	if snap.JobsCreated != 1 {
		t.Errorf("JobsCreated = %d, want 1", snap.JobsCreated)
	}
	if snap.Steps != 3 || snap.StepErrors != 1 {
		t.Errorf("Steps = %d, StepErrors = %d, want 3, 1", snap.Steps, snap.StepErrors)
	}
	if snap.Downloads != 1 {
		t.Errorf("Downloads = %d, want 1", snap.Downloads)
	}
}

func TestMetrics_Middleware(t *testing.T) {
	t.Parallel()

	m := &Metrics{}
	codes := []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable}
	for _, code := range codes {
		h := m.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	snap := m.Snapshot()
	if snap.Requests != 4 || snap.ServerErrors != 2 {
		t.Errorf("Requests = %d, ServerErrors = %d, want 4, 2", snap.Requests, snap.ServerErrors)
	}
}

func TestMetrics_Register(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := &Metrics{}
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	m.RecordStep(true)
	m.RecordStep(true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 6 {
		t.Errorf("families = %d, want 6", len(families))
	}
	values := make(map[string]float64, len(families))
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
	}
	if values["dbpurge_gateway_steps_total"] != 2 || values["dbpurge_gateway_step_errors_total"] != 2 {
		t.Errorf("values = %v", values)
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := &Metrics{}
	var wg sync.WaitGroup

	for range 100 {
		wg.Go(func() {
			m.RecordStep(false)
			m.RecordJobCreated()
			_ = m.Snapshot()
		})
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Steps != 100 || snap.JobsCreated != 100 {
		t.Errorf("snapshot = %+v", snap)
	}
}
