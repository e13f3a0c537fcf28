// Package scheduling is the facade the transports call: it validates input,
// chooses initial statuses, delegates to the ledger and emits status events.
package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/ledger"
	"salonbook/internal/metrics"
	"salonbook/internal/store"
)

var schedulingTracer = otel.Tracer("salonbook.internal.service.scheduling")

// Ledger is the slice of the booking ledger the service depends on.
type Ledger interface {
	StateMachine() *domain.StateMachine
	FreeSlots(ctx context.Context, resourceID uuid.UUID, date time.Time, durationMinutes int) (ledger.Availability, error)
	Reserve(ctx context.Context, req ledger.ReserveRequest) (domain.Booking, error)
	Transition(ctx context.Context, bookingID uuid.UUID, to domain.Status) (domain.Booking, domain.Status, error)
	BlockDate(ctx context.Context, resourceID uuid.UUID, date time.Time) (domain.DateOverride, error)
	SetDateHours(ctx context.Context, resourceID uuid.UUID, date time.Time, intervals []domain.Interval) (domain.DateOverride, error)
	UnblockDate(ctx context.Context, resourceID uuid.UUID, date time.Time) (bool, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	ListBookings(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.Booking, error)
}

var _ Ledger = (*ledger.Ledger)(nil)

type Service struct {
	ledger    Ledger
	resources store.ResourceRepository
	publisher events.Publisher
	metrics   *metrics.SchedulingMetrics
	log       *slog.Logger
	vocab     *domain.Vocabulary
	now       func() time.Time
	cache     *expirable.LRU[uuid.UUID, domain.Resource]
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithVocabulary(v *domain.Vocabulary) Option {
	return func(s *Service) {
		if v != nil {
			s.vocab = v
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResourceCache keeps recently read resources for ttl. Writes made through
// the service invalidate their entry.
func WithResourceCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 && ttl > 0 {
			s.cache = expirable.NewLRU[uuid.UUID, domain.Resource](size, nil, ttl)
		}
	}
}

func NewService(l Ledger, resources store.ResourceRepository, opts ...Option) *Service {
	vocab, _ := domain.NewVocabulary(nil)
	s := &Service{
		ledger:    l,
		resources: resources,
		publisher: events.Discard{},
		log:       slog.Default(),
		vocab:     vocab,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "scheduling"))
	return s
}

func (s *Service) resource(ctx context.Context, id uuid.UUID) (domain.Resource, error) {
	if s.cache != nil {
		if res, ok := s.cache.Get(id); ok {
			return res, nil
		}
	}
	res, err := s.resources.GetResource(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}
	if s.cache != nil {
		s.cache.Add(id, res)
	}
	return res, nil
}

func (s *Service) forget(id uuid.UUID) {
	if s.cache != nil {
		s.cache.Remove(id)
	}
}

// publish never fails the caller; the mutation is already committed.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.metrics.ObservePublishFailure(e.Type)
		s.log.Warn("event publish failed",
			slog.String("type", e.Type),
			slog.String("resource_id", e.ResourceID.String()),
			slog.Any("err", err),
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// outcome labels an error for metrics.
func outcome(err error) string {
	var vErr *domain.ValidationError
	var tErr *domain.InvalidTransitionError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr):
		return "invalid"
	case errors.As(err, &tErr):
		return "invalid_transition"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrBusy):
		return "busy"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrIdempotencyConflict):
		return "idempotency_conflict"
	default:
		return "error"
	}
}

func requireID(id uuid.UUID, name string) error {
	if id == uuid.Nil {
		return domain.NewValidationError("%s is required", name)
	}
	return nil
}
