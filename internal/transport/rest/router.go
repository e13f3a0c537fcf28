// Package rest serves the read-only HTTP surface: probes, metrics and the
// availability views used by booking screens.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"salonbook/internal/domain"
	"salonbook/internal/service/scheduling"
	"salonbook/internal/store"
)

type AvailabilityReader interface {
	GetAvailability(ctx context.Context, resourceID uuid.UUID, date time.Time, durationMinutes int) (scheduling.AvailabilityView, error)
	MonthAvailability(ctx context.Context, resourceID uuid.UUID, year, month0, durationMinutes int) ([]scheduling.DayAvailability, error)
}

type Config struct {
	Service AvailabilityReader
	Log     *slog.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CalendarResponse struct {
	ResourceID string                       `json:"resource_id"`
	Year       int                          `json:"year"`
	Month      int                          `json:"month"`
	Days       []scheduling.DayAvailability `json:"days"`
}

func NewRouter(cfg Config) http.Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	h := &handler{svc: cfg.Service, log: log.With(slog.String("component", "http")), ready: cfg.Ready}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Route("/v1/resources/{id}", func(r chi.Router) {
		r.Get("/availability", h.availability)
		r.Get("/calendar", h.calendar)
	})
	return r
}

type handler struct {
	svc   AvailabilityReader
	log   *slog.Logger
	ready func(ctx context.Context) error
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.log.Warn("not ready", slog.Any("err", err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, ErrorResponse{Code: "NOT_READY", Message: "dependencies unavailable"})
			return
		}
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}

// GET /v1/resources/{id}/availability?date=YYYY-MM-DD&duration=60
func (h *handler) availability(w http.ResponseWriter, r *http.Request) {
	const op = "rest.availability"
	log := h.log.With(slog.String("op", op), slog.String("request_id", middleware.GetReqID(r.Context())))

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, r, "id must be a UUID")
		return
	}
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, r, "date must be YYYY-MM-DD")
		return
	}
	duration, err := strconv.Atoi(r.URL.Query().Get("duration"))
	if err != nil {
		badRequest(w, r, "duration must be a number of minutes")
		return
	}

	view, err := h.svc.GetAvailability(r.Context(), id, date, duration)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	render.JSON(w, r, view)
}

// GET /v1/resources/{id}/calendar?year=2026&month=3&duration=60
func (h *handler) calendar(w http.ResponseWriter, r *http.Request) {
	const op = "rest.calendar"
	log := h.log.With(slog.String("op", op), slog.String("request_id", middleware.GetReqID(r.Context())))

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, r, "id must be a UUID")
		return
	}
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		badRequest(w, r, "year is required")
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		badRequest(w, r, "month must be between 1 and 12")
		return
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil {
		badRequest(w, r, "duration must be a number of minutes")
		return
	}

	days, err := h.svc.MonthAvailability(r.Context(), id, year, month-1, duration)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}
	render.JSON(w, r, CalendarResponse{ResourceID: id.String(), Year: year, Month: month, Days: days})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: "BAD_REQUEST", Message: msg})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		badRequest(w, r, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Code: "NOT_FOUND", Message: "resource not found"})
	default:
		log.Error("request failed", slog.Any("err", err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Code: "INTERNAL", Message: "internal error"})
	}
}
