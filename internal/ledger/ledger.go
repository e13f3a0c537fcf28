// Package ledger is the authoritative record of slot occupancy. Occupancy is
// always derived from active bookings; there is no separate reserved-slot table.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
	"salonbook/internal/store"
)

type Ledger struct {
	backend store.Backend
	sm      *domain.StateMachine
}

func New(backend store.Backend, sm *domain.StateMachine) *Ledger {
	if sm == nil {
		sm = domain.NewStateMachine()
	}
	return &Ledger{backend: backend, sm: sm}
}

func (l *Ledger) StateMachine() *domain.StateMachine {
	return l.sm
}

// Availability is the result of a free-slot query.
type Availability struct {
	Resource domain.Resource
	Date     time.Time
	Override *domain.DateOverride
	Slots    []domain.Slot
	// Skipped holds the malformed intervals that produced no slots.
	Skipped []error
}

// FreeSlots is generateSlots minus the intervals of active bookings. It takes
// no lock and reflects committed state.
func (l *Ledger) FreeSlots(ctx context.Context, resourceID uuid.UUID, date time.Time, durationMinutes int) (Availability, error) {
	date = domain.DateOf(date)
	if durationMinutes <= 0 {
		return Availability{}, domain.NewValidationError("service duration must be positive")
	}

	res, err := l.backend.GetResource(ctx, resourceID)
	if err != nil {
		return Availability{}, err
	}
	override, err := l.backend.GetOverride(ctx, resourceID, date)
	if err != nil {
		return Availability{}, err
	}

	out := Availability{Resource: res, Date: date, Override: override}
	if !res.Active {
		return out, nil
	}

	slots, skipped := domain.GenerateSlots(res, date, override, durationMinutes)
	out.Skipped = skipped
	if len(slots) == 0 {
		return out, nil
	}

	occupied, err := l.backend.ListActiveBookings(ctx, resourceID, date)
	if err != nil {
		return Availability{}, err
	}
	out.Slots = domain.SubtractOccupied(slots, domain.ActiveOnly(occupied))
	return out, nil
}

type ReserveRequest struct {
	// ID is optional; a caller-derived ID makes retries of the same request
	// return the original booking.
	ID              uuid.UUID
	ResourceID      uuid.UUID
	Date            time.Time
	Start           domain.ClockTime
	DurationMinutes int
	ServiceRef      string
	CustomerRef     string
	RequestedBy     string
	Status          domain.Status
}

// Reserve inserts a booking if, under the (resource, date) lock, the interval is
// a generated slot and overlaps no active booking. On any error nothing is
// written.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, err
	}
	if req.DurationMinutes <= 0 {
		return domain.Booking{}, domain.NewValidationError("service duration must be positive")
	}
	if !l.sm.IsInitial(req.Status) {
		return domain.Booking{}, domain.NewValidationError("%s is not a valid initial status", req.Status)
	}
	date := domain.DateOf(req.Date)

	var out domain.Booking
	err := l.backend.InResourceDay(ctx, req.ResourceID, date, func(ctx context.Context, tx store.DayTx) error {
		if req.ID != uuid.Nil {
			existing, err := tx.GetBooking(ctx, req.ID)
			switch {
			case err == nil:
				if !l.sameRequest(existing, req, date) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		res, err := tx.GetResource(ctx, req.ResourceID)
		if err != nil {
			return err
		}
		if !res.Active {
			return domain.NewValidationError("resource %s is disabled", res.ID)
		}
		override, err := tx.GetOverride(ctx, req.ResourceID, date)
		if err != nil {
			return err
		}
		if err := domain.IsGeneratedSlot(res, date, override, req.Start, req.DurationMinutes); err != nil {
			return err
		}

		active, err := tx.ListActiveBookings(ctx, req.ResourceID, date)
		if err != nil {
			return err
		}
		for _, b := range domain.ActiveOnly(active) {
			if domain.Overlaps(b.Start, b.DurationMinutes, req.Start, req.DurationMinutes) {
				return fmt.Errorf("%w: %s-%s overlaps booking %s", store.ErrConflict, req.Start, req.Start.Add(req.DurationMinutes), b.ID)
			}
		}

		b, err := tx.InsertBooking(ctx, domain.Booking{
			ID:              req.ID,
			ResourceID:      req.ResourceID,
			Date:            date,
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			ServiceRef:      req.ServiceRef,
			CustomerRef:     req.CustomerRef,
			RequestedBy:     req.RequestedBy,
			Status:          req.Status,
		})
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

// sameRequest matches a stored booking against a retried request. The booking
// may have moved on since it was created, so its status only has to be
// reachable from the requested initial status.
func (l *Ledger) sameRequest(b domain.Booking, req ReserveRequest, date time.Time) bool {
	return b.ResourceID == req.ResourceID &&
		b.RequestedBy == req.RequestedBy &&
		l.sm.Reachable(req.Status, b.Status) &&
		b.Date.Equal(date) &&
		b.Start == req.Start &&
		b.DurationMinutes == req.DurationMinutes &&
		b.ServiceRef == req.ServiceRef &&
		b.CustomerRef == req.CustomerRef
}

// Transition moves a booking along the state machine. The returned booking
// carries the previous status in prev.
func (l *Ledger) Transition(ctx context.Context, bookingID uuid.UUID, to domain.Status) (updated domain.Booking, prev domain.Status, err error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, "", err
	}
	located, err := l.backend.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, "", err
	}

	err = l.backend.InResourceDay(ctx, located.ResourceID, located.Date, func(ctx context.Context, tx store.DayTx) error {
		cur, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := l.sm.Transition(cur.Status, to); err != nil {
			return err
		}
		b, err := tx.UpdateBookingStatus(ctx, bookingID, to)
		if err != nil {
			return err
		}
		prev = cur.Status
		updated = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, "", err
	}
	return updated, prev, nil
}

// Cancel releases the booking's slot by moving it to canceled.
func (l *Ledger) Cancel(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	b, _, err := l.Transition(ctx, bookingID, domain.StatusCanceled)
	return b, err
}

// BlockDate closes the date for the resource. It refuses while any active
// booking exists on that date.
func (l *Ledger) BlockDate(ctx context.Context, resourceID uuid.UUID, date time.Time) (domain.DateOverride, error) {
	date = domain.DateOf(date)
	var out domain.DateOverride
	err := l.backend.InResourceDay(ctx, resourceID, date, func(ctx context.Context, tx store.DayTx) error {
		if _, err := tx.GetResource(ctx, resourceID); err != nil {
			return err
		}
		active, err := tx.ListActiveBookings(ctx, resourceID, date)
		if err != nil {
			return err
		}
		if n := len(domain.ActiveOnly(active)); n > 0 {
			return fmt.Errorf("%w: %d on %s", store.ErrHasActiveBookings, n, domain.DateKey(date))
		}
		o, err := tx.UpsertOverride(ctx, domain.DateOverride{
			ResourceID: resourceID,
			Date:       date,
			Closed:     true,
			Intervals:  []domain.Interval{},
		})
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.DateOverride{}, err
	}
	return out, nil
}

// SetDateHours replaces the template for one date with explicit hours. Every
// active booking on that date must still fit inside the new hours.
func (l *Ledger) SetDateHours(ctx context.Context, resourceID uuid.UUID, date time.Time, intervals []domain.Interval) (domain.DateOverride, error) {
	date = domain.DateOf(date)
	norm, err := domain.NormalizeIntervals(intervals)
	if err != nil {
		return domain.DateOverride{}, err
	}
	if len(norm) == 0 {
		return l.BlockDate(ctx, resourceID, date)
	}

	var out domain.DateOverride
	err = l.backend.InResourceDay(ctx, resourceID, date, func(ctx context.Context, tx store.DayTx) error {
		if _, err := tx.GetResource(ctx, resourceID); err != nil {
			return err
		}
		active, err := tx.ListActiveBookings(ctx, resourceID, date)
		if err != nil {
			return err
		}
		if stranded := outsideHours(domain.ActiveOnly(active), norm); stranded > 0 {
			return fmt.Errorf("%w: %d outside new hours on %s", store.ErrHasActiveBookings, stranded, domain.DateKey(date))
		}
		o, err := tx.UpsertOverride(ctx, domain.DateOverride{
			ResourceID: resourceID,
			Date:       date,
			Intervals:  norm,
		})
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.DateOverride{}, err
	}
	return out, nil
}

// UnblockDate removes the date's override so the weekly template applies again.
// It reports false when there was nothing to remove.
func (l *Ledger) UnblockDate(ctx context.Context, resourceID uuid.UUID, date time.Time) (bool, error) {
	date = domain.DateOf(date)
	removed := false
	err := l.backend.InResourceDay(ctx, resourceID, date, func(ctx context.Context, tx store.DayTx) error {
		res, err := tx.GetResource(ctx, resourceID)
		if err != nil {
			return err
		}
		o, err := tx.GetOverride(ctx, resourceID, date)
		if err != nil {
			return err
		}
		if o == nil {
			return nil
		}
		active, err := tx.ListActiveBookings(ctx, resourceID, date)
		if err != nil {
			return err
		}
		if stranded := outsideHours(domain.ActiveOnly(active), res.Template[date.Weekday()]); stranded > 0 {
			return fmt.Errorf("%w: %d outside weekly hours on %s", store.ErrHasActiveBookings, stranded, domain.DateKey(date))
		}
		if err := tx.DeleteOverride(ctx, resourceID, date); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

func outsideHours(bookings []domain.Booking, hours []domain.Interval) int {
	n := 0
	for _, b := range bookings {
		fits := false
		for _, iv := range hours {
			if iv.Contains(b.Start, b.DurationMinutes) {
				fits = true
				break
			}
		}
		if !fits {
			n++
		}
	}
	return n
}

func (l *Ledger) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return l.backend.GetBooking(ctx, bookingID)
}

// ListBookings returns bookings of every status with from <= date < to.
func (l *Ledger) ListBookings(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	return l.backend.ListBookings(ctx, resourceID, domain.DateOf(from), domain.DateOf(to))
}

func (l *Ledger) ListOverrides(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.DateOverride, error) {
	return l.backend.ListOverrides(ctx, resourceID, domain.DateOf(from), domain.DateOf(to))
}
