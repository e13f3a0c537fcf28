package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/ledger"
	"salonbook/internal/store"
)

const maxListDays = 62

type BookInput struct {
	ResourceID      uuid.UUID
	Date            time.Time
	Start           domain.ClockTime
	DurationMinutes int
	ServiceRef      string
	CustomerRef     string
	Actor           domain.Actor
	// WalkIn marks a staff-entered same-day arrival.
	WalkIn         bool
	IdempotencyKey string
}

// BookAppointment validates the request and reserves the slot. Conflicts are
// returned as they are; a different slot is never tried.
func (s *Service) BookAppointment(ctx context.Context, in BookInput) (b domain.Booking, err error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.book_appointment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("salonbook.resource_id", in.ResourceID.String()),
		attribute.String("salonbook.date", domain.DateKey(in.Date)),
	)
	defer func() { s.metrics.ObserveReservation(outcome(err)) }()

	if err := in.Actor.Validate(); err != nil {
		return domain.Booking{}, err
	}
	if err := requireID(in.ResourceID, "resource_id"); err != nil {
		return domain.Booking{}, err
	}
	if in.DurationMinutes <= 0 {
		return domain.Booking{}, domain.NewValidationError("service duration must be positive")
	}
	if in.DurationMinutes > 24*60 {
		return domain.Booking{}, domain.NewValidationError("service duration too long")
	}
	status, err := in.Actor.InitialStatus(in.WalkIn)
	if err != nil {
		return domain.Booking{}, err
	}

	customer := strings.TrimSpace(in.CustomerRef)
	if customer == "" {
		if in.Actor.Role != domain.RoleCustomer {
			return domain.Booking{}, domain.NewValidationError("customer_ref is required")
		}
		customer = in.Actor.ID
	}

	res, err := s.resource(ctx, in.ResourceID)
	if err != nil {
		return domain.Booking{}, err
	}
	date := domain.DateOf(in.Date)
	loc := res.Location()
	now := s.now()
	if date.Before(domain.Today(now, loc)) {
		return domain.Booking{}, domain.NewValidationError("date %s is in the past", domain.DateKey(date))
	}
	if in.Start.On(date, loc).Before(now) {
		return domain.Booking{}, domain.NewValidationError("start %s on %s has already passed", in.Start, domain.DateKey(date))
	}
	if in.WalkIn && !date.Equal(domain.Today(now, loc)) {
		return domain.Booking{}, domain.NewValidationError("walk-ins are booked for today only")
	}

	req := ledger.ReserveRequest{
		ResourceID:      in.ResourceID,
		Date:            date,
		Start:           in.Start,
		DurationMinutes: in.DurationMinutes,
		ServiceRef:      strings.TrimSpace(in.ServiceRef),
		CustomerRef:     customer,
		RequestedBy:     in.Actor.ID,
		Status:          status,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Booking{}, domain.NewValidationError("idempotency_key too long")
		}
		req.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("salonbook:book_appointment:"+in.Actor.ID+":"+key))
		// replays return the stored booking without a second event
		if _, err := s.ledger.GetBooking(ctx, req.ID); err == nil {
			return s.ledger.Reserve(ctx, req)
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.Booking{}, err
		}
	}

	b, err = s.ledger.Reserve(ctx, req)
	if err != nil {
		s.log.Info("booking rejected",
			slog.String("resource_id", in.ResourceID.String()),
			slog.String("date", domain.DateKey(date)),
			slog.String("start", in.Start.String()),
			slog.String("outcome", outcome(err)),
		)
		return domain.Booking{}, err
	}

	s.log.Info("booking created",
		slog.String("booking_id", b.ID.String()),
		slog.String("resource_id", b.ResourceID.String()),
		slog.String("date", domain.DateKey(b.Date)),
		slog.String("start", b.Start.String()),
		slog.String("status", string(b.Status)),
	)
	s.publish(ctx, events.Event{
		Type:       events.BookingCreated,
		ResourceID: b.ResourceID,
		BookingID:  b.ID,
		Date:       domain.DateKey(b.Date),
		To:         string(b.Status),
		ActorID:    in.Actor.ID,
	})
	return b, nil
}

// ChangeStatus applies a status transition. Only structural legality is
// checked; who may perform which transition is decided by the caller.
func (s *Service) ChangeStatus(ctx context.Context, bookingID uuid.UUID, newStatus string, actor domain.Actor) (b domain.Booking, err error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.change_status")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("salonbook.booking_id", bookingID.String()))

	if err := actor.Validate(); err != nil {
		return domain.Booking{}, err
	}
	if err := requireID(bookingID, "booking_id"); err != nil {
		return domain.Booking{}, err
	}
	to, err := s.vocab.Parse(newStatus)
	if err != nil {
		return domain.Booking{}, err
	}

	b, prev, err := s.ledger.Transition(ctx, bookingID, to)
	if err != nil {
		var tErr *domain.InvalidTransitionError
		if errors.As(err, &tErr) || errors.Is(err, store.ErrNotFound) {
			s.log.Warn("status change refused",
				slog.String("booking_id", bookingID.String()),
				slog.String("to", string(to)),
				slog.String("actor_id", actor.ID),
				slog.Any("err", err),
			)
		}
		return domain.Booking{}, err
	}

	s.metrics.ObserveTransition(string(prev), string(to))
	s.log.Info("booking status changed",
		slog.String("booking_id", b.ID.String()),
		slog.String("from", string(prev)),
		slog.String("to", string(to)),
		slog.String("actor_id", actor.ID),
	)
	s.publish(ctx, events.Event{
		Type:       statusEventType(to),
		ResourceID: b.ResourceID,
		BookingID:  b.ID,
		Date:       domain.DateKey(b.Date),
		From:       string(prev),
		To:         string(to),
		ActorID:    actor.ID,
	})
	return b, nil
}

func (s *Service) CancelBooking(ctx context.Context, bookingID uuid.UUID, actor domain.Actor) (domain.Booking, error) {
	return s.ChangeStatus(ctx, bookingID, string(domain.StatusCanceled), actor)
}

func statusEventType(to domain.Status) string {
	switch to {
	case domain.StatusConfirmed:
		return events.BookingConfirmed
	case domain.StatusWaiting:
		return events.BookingWaiting
	case domain.StatusInProgress:
		return events.BookingInProgress
	case domain.StatusCompleted:
		return events.BookingCompleted
	case domain.StatusCanceled:
		return events.BookingCanceled
	default:
		return "booking." + string(to)
	}
}

func (s *Service) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	if err := requireID(bookingID, "booking_id"); err != nil {
		return domain.Booking{}, err
	}
	return s.ledger.GetBooking(ctx, bookingID)
}

// ListBookings returns every booking, canceled ones included, with
// from <= date < to.
func (s *Service) ListBookings(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	if err := requireID(resourceID, "resource_id"); err != nil {
		return nil, err
	}
	from, to = domain.DateOf(from), domain.DateOf(to)
	if !to.After(from) {
		return nil, domain.NewValidationError("to must be after from")
	}
	if to.Sub(from) > maxListDays*24*time.Hour {
		return nil, domain.NewValidationError("range exceeds %d days", maxListDays)
	}
	if _, err := s.resource(ctx, resourceID); err != nil {
		return nil, err
	}
	return s.ledger.ListBookings(ctx, resourceID, from, to)
}
