package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Booking is a reservation of one slot. Rows are never deleted; cancellation
// is a status change.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	ResourceID      uuid.UUID `bun:"resource_id,notnull,type:uuid"`
	Date            time.Time `bun:"date,notnull,type:date"`
	Start           ClockTime `bun:"start_minute,notnull"`
	DurationMinutes int       `bun:"duration_minutes,notnull"`
	ServiceRef      string    `bun:"service_ref,notnull"`
	CustomerRef     string    `bun:"customer_ref,notnull"`
	RequestedBy     string    `bun:"requested_by,notnull"`
	Status          Status    `bun:"status,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

func (b Booking) End() ClockTime {
	return b.Start.Add(b.DurationMinutes)
}

// Active bookings occupy their slot. Completed bookings stay occupied for
// history; only cancellation releases the slot.
func (b Booking) Active() bool {
	return b.Status != StatusCanceled
}

func (b Booking) StartsAt(loc *time.Location) time.Time {
	return b.Start.On(b.Date, loc)
}

// ActiveOnly filters out canceled bookings.
func ActiveOnly(bookings []Booking) []Booking {
	out := make([]Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Active() {
			out = append(out, b)
		}
	}
	return out
}
