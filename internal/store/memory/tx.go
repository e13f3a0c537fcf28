package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
	"salonbook/internal/store"
)

// dayTx buffers the writes of one partition. Reads see committed state with
// the pending writes applied on top.
type dayTx struct {
	s          *Store
	resourceID uuid.UUID
	date       time.Time

	inserts        []domain.Booking
	updates        map[uuid.UUID]domain.Status
	override       *domain.DateOverride
	deleteOverride bool
}

func (tx *dayTx) inPartition(resourceID uuid.UUID, date time.Time) error {
	if resourceID != tx.resourceID || !domain.DateOf(date).Equal(tx.date) {
		return fmt.Errorf("memory: write to %s outside locked partition %s", dayKey(resourceID, date), dayKey(tx.resourceID, tx.date))
	}
	return nil
}

func (tx *dayTx) GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error) {
	return tx.s.GetResource(ctx, resourceID)
}

func (tx *dayTx) GetOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.DateOverride, error) {
	if resourceID == tx.resourceID && domain.DateOf(date).Equal(tx.date) {
		if tx.override != nil {
			c := cloneOverride(*tx.override)
			return &c, nil
		}
		if tx.deleteOverride {
			return nil, nil
		}
	}
	return tx.s.GetOverride(ctx, resourceID, date)
}

func (tx *dayTx) UpsertOverride(ctx context.Context, o domain.DateOverride) (domain.DateOverride, error) {
	if err := tx.inPartition(o.ResourceID, o.Date); err != nil {
		return domain.DateOverride{}, err
	}
	o.Date = domain.DateOf(o.Date)
	if o.Intervals == nil {
		o.Intervals = []domain.Interval{}
	}

	now := tx.s.now().UTC()
	existing, err := tx.GetOverride(ctx, o.ResourceID, o.Date)
	if err != nil {
		return domain.DateOverride{}, err
	}
	if existing != nil {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.DateOverride{}, err
		}
		o.ID = id
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	c := cloneOverride(o)
	tx.override = &c
	tx.deleteOverride = false
	return o, nil
}

func (tx *dayTx) DeleteOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) error {
	if err := tx.inPartition(resourceID, date); err != nil {
		return err
	}
	tx.override = nil
	tx.deleteOverride = true
	return nil
}

func (tx *dayTx) ListActiveBookings(ctx context.Context, resourceID uuid.UUID, date time.Time) ([]domain.Booking, error) {
	date = domain.DateOf(date)
	tx.s.mu.RLock()
	committed := tx.s.dayBookingsLocked(resourceID, date, false)
	tx.s.mu.RUnlock()

	out := make([]domain.Booking, 0, len(committed)+len(tx.inserts))
	for _, b := range append(committed, tx.inserts...) {
		if b.ResourceID != resourceID || !b.Date.Equal(date) {
			continue
		}
		if st, ok := tx.updates[b.ID]; ok {
			b.Status = st
		}
		if b.Active() {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (tx *dayTx) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	for _, b := range tx.inserts {
		if b.ID == bookingID {
			if st, ok := tx.updates[b.ID]; ok {
				b.Status = st
			}
			return b, nil
		}
	}
	b, err := tx.s.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if st, ok := tx.updates[b.ID]; ok {
		b.Status = st
	}
	return b, nil
}

// InsertBooking mirrors the storage-level exclusion constraint so the memory
// backend cannot hold overlapping active bookings either.
func (tx *dayTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if err := tx.inPartition(b.ResourceID, b.Date); err != nil {
		return domain.Booking{}, err
	}
	b.Date = domain.DateOf(b.Date)

	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		b.ID = id
	} else if _, err := tx.GetBooking(ctx, b.ID); err == nil {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", b.ID, store.ErrIdempotencyConflict)
	}

	if b.Active() {
		active, err := tx.ListActiveBookings(ctx, b.ResourceID, b.Date)
		if err != nil {
			return domain.Booking{}, err
		}
		for _, other := range active {
			if domain.Overlaps(other.Start, other.DurationMinutes, b.Start, b.DurationMinutes) {
				return domain.Booking{}, fmt.Errorf("%w: overlaps booking %s", store.ErrConflict, other.ID)
			}
		}
	}

	now := tx.s.now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	tx.inserts = append(tx.inserts, b)
	return b, nil
}

func (tx *dayTx) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status domain.Status) (domain.Booking, error) {
	b, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := tx.inPartition(b.ResourceID, b.Date); err != nil {
		return domain.Booking{}, err
	}

	for i := range tx.inserts {
		if tx.inserts[i].ID == bookingID {
			tx.inserts[i].Status = status
			b.Status = status
			return b, nil
		}
	}
	tx.updates[bookingID] = status
	b.Status = status
	b.UpdatedAt = tx.s.now().UTC()
	return b, nil
}
