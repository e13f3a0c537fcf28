package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"salonbook/internal/domain"
	"salonbook/internal/ledger"
	"salonbook/internal/metrics"
	"salonbook/internal/service/scheduling"
	"salonbook/internal/store/memory"
)

func newTestRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	mem := memory.New()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := scheduling.NewService(ledger.New(mem, nil), mem,
		scheduling.WithLogger(log),
		scheduling.WithMetrics(m),
		scheduling.WithClock(func() time.Time { return now }),
	)
	res, err := svc.CreateResource(context.Background(), scheduling.CreateResourceInput{
		Name: "R1",
		Template: domain.WeeklyTemplate{
			time.Monday: {{Start: domain.Clock(9, 0), End: domain.Clock(12, 0)}},
		},
	})
	if err != nil {
		t.Fatalf("CreateResource error: %v", err)
	}
	return NewRouter(Config{
		Service: svc,
		Log:     log,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}), res.ID.String()
}

func TestAvailabilityEndpoint(t *testing.T) {
	r, id := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/resources/"+id+"/availability?date=2026-03-02&duration=60", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var view scheduling.AvailabilityView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(view.Slots) != 5 || view.Slots[0].Start != domain.Clock(9, 0) {
		t.Fatalf("slots = %+v", view.Slots)
	}
}

func TestAvailabilityEndpoint_Errors(t *testing.T) {
	r, id := newTestRouter(t)

	cases := []struct {
		name string
		url  string
		code int
	}{
		{"bad id", "/v1/resources/abc/availability?date=2026-03-02&duration=60", http.StatusBadRequest},
		{"bad date", "/v1/resources/" + id + "/availability?date=tomorrow&duration=60", http.StatusBadRequest},
		{"missing duration", "/v1/resources/" + id + "/availability?date=2026-03-02", http.StatusBadRequest},
		{"zero duration", "/v1/resources/" + id + "/availability?date=2026-03-02&duration=0", http.StatusBadRequest},
		{"unknown resource", "/v1/resources/00000000-0000-0000-0000-000000000001/availability?date=2026-03-02&duration=60", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.url, nil))
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestCalendarEndpoint(t *testing.T) {
	r, id := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/resources/"+id+"/calendar?year=2026&month=3&duration=60", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp CalendarResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Month != 3 || len(resp.Days)%7 != 0 {
		t.Fatalf("month = %d, cells = %d", resp.Month, len(resp.Days))
	}
	mondays := 0
	for _, d := range resp.Days {
		if d.InMonth && d.FreeSlots == 5 {
			mondays++
		}
	}
	// March 2026 has five Mondays, all after the fixed clock.
	if mondays != 5 {
		t.Fatalf("days with 5 free slots = %d, want 5", mondays)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/resources/"+id+"/calendar?year=2026&month=13&duration=60", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("month 13: expected 400, got %d", w.Code)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	r, id := newTestRouter(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/resources/"+id+"/availability?date=2026-03-02&duration=60", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics: expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "salonbook_scheduling_availability_seconds") {
		t.Fatalf("metrics output missing availability histogram")
	}
}

func TestReadyzReportsFailure(t *testing.T) {
	r := NewRouter(Config{
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Ready: func(ctx context.Context) error { return errors.New("db down") },
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
