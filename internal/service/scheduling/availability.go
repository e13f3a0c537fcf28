package scheduling

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"salonbook/internal/calendar"
	"salonbook/internal/domain"
	"salonbook/internal/ledger"
)

// SlotView is a free slot with labels for display.
type SlotView struct {
	Start    domain.ClockTime `json:"start"`
	End      domain.ClockTime `json:"end"`
	StartsAt time.Time        `json:"starts_at"`
	EndsAt   time.Time        `json:"ends_at"`
}

type AvailabilityView struct {
	ResourceID      uuid.UUID  `json:"resource_id"`
	Date            string     `json:"date"`
	Timezone        string     `json:"timezone"`
	DurationMinutes int        `json:"duration_minutes"`
	Overridden      bool       `json:"overridden"`
	Closed          bool       `json:"closed"`
	Slots           []SlotView `json:"slots"`
}

// GetAvailability lists the free slots for a service of the given duration.
// It is read-only and safe to call concurrently.
func (s *Service) GetAvailability(ctx context.Context, resourceID uuid.UUID, date time.Time, durationMinutes int) (view AvailabilityView, err error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.get_availability")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("salonbook.resource_id", resourceID.String()),
		attribute.String("salonbook.date", domain.DateKey(date)),
	)
	started := time.Now()
	defer func() { s.metrics.ObserveAvailability(time.Since(started).Seconds()) }()

	if err := requireID(resourceID, "resource_id"); err != nil {
		return AvailabilityView{}, err
	}
	av, err := s.ledger.FreeSlots(ctx, resourceID, date, durationMinutes)
	if err != nil {
		return AvailabilityView{}, err
	}
	for _, skipped := range av.Skipped {
		s.log.Warn("malformed business hours skipped",
			slog.String("resource_id", resourceID.String()),
			slog.String("date", domain.DateKey(av.Date)),
			slog.Any("err", skipped),
		)
	}
	return s.view(av, durationMinutes), nil
}

// upcoming drops the slots that have already started in the resource's
// timezone; BookAppointment rejects those.
func (s *Service) upcoming(av ledger.Availability) []domain.Slot {
	loc := av.Resource.Location()
	now := s.now()
	out := make([]domain.Slot, 0, len(av.Slots))
	for _, sl := range av.Slots {
		if sl.Start.On(av.Date, loc).Before(now) {
			continue
		}
		out = append(out, sl)
	}
	return out
}

func (s *Service) view(av ledger.Availability, durationMinutes int) AvailabilityView {
	loc := av.Resource.Location()
	out := AvailabilityView{
		ResourceID:      av.Resource.ID,
		Date:            domain.DateKey(av.Date),
		Timezone:        loc.String(),
		DurationMinutes: durationMinutes,
		Overridden:      av.Override != nil,
		Closed:          len(domain.EffectiveIntervals(av.Resource, av.Date, av.Override)) == 0 || !av.Resource.Active,
		Slots:           make([]SlotView, 0, len(av.Slots)),
	}
	for _, sl := range s.upcoming(av) {
		out.Slots = append(out.Slots, SlotView{
			Start:    sl.Start,
			End:      sl.End(),
			StartsAt: sl.Start.On(av.Date, loc),
			EndsAt:   sl.End().On(av.Date, loc),
		})
	}
	return out
}

// DayAvailability decorates a month grid cell for the booking-time screen.
type DayAvailability struct {
	calendar.Cell
	Past      bool `json:"past"`
	Closed    bool `json:"closed"`
	FreeSlots int  `json:"free_slots"`
}

// MonthAvailability returns the Sunday-first grid for the month with the free
// slot count of every in-month day. Days before today are marked past and not
// queried.
func (s *Service) MonthAvailability(ctx context.Context, resourceID uuid.UUID, year, month0, durationMinutes int) (days []DayAvailability, err error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.month_availability")
	defer func() { endSpan(span, err) }()

	if err := requireID(resourceID, "resource_id"); err != nil {
		return nil, err
	}
	if month0 < 0 || month0 > 11 {
		return nil, domain.NewValidationError("month must be between 0 and 11")
	}
	if year < 1 || year > 9999 {
		return nil, domain.NewValidationError("invalid year %d", year)
	}
	if durationMinutes <= 0 {
		return nil, domain.NewValidationError("service duration must be positive")
	}

	res, err := s.resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	today := domain.Today(s.now(), res.Location())

	cells := calendar.Grid(year, month0)
	days = make([]DayAvailability, 0, len(cells))
	for _, c := range cells {
		d := DayAvailability{Cell: c}
		if c.InMonth {
			if c.Date.Before(today) {
				d.Past = true
				d.Closed = true
			} else {
				av, err := s.ledger.FreeSlots(ctx, resourceID, c.Date, durationMinutes)
				if err != nil {
					return nil, err
				}
				d.FreeSlots = len(s.upcoming(av))
				d.Closed = len(domain.EffectiveIntervals(av.Resource, av.Date, av.Override)) == 0 || !av.Resource.Active
			}
		}
		days = append(days, d)
	}
	return days, nil
}
