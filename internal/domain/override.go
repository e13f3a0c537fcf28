package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DateLayout = "2006-01-02"

// DateOverride replaces the weekly template for a single calendar date. A
// closed override, or one without intervals, blocks the whole day.
type DateOverride struct {
	bun.BaseModel `bun:"table:date_overrides"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	ResourceID uuid.UUID  `bun:"resource_id,notnull,type:uuid"`
	Date       time.Time  `bun:"date,notnull,type:date"`
	Closed     bool       `bun:"closed,notnull"`
	Intervals  []Interval `bun:"intervals,type:jsonb,notnull"`
	CreatedAt  time.Time  `bun:"created_at,notnull"`
	UpdatedAt  time.Time  `bun:"updated_at,notnull"`
}

func (o *DateOverride) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if o.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			o.ID = id
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = now
		}
		if o.Intervals == nil {
			o.Intervals = []Interval{}
		}
	case *bun.UpdateQuery:
		o.UpdatedAt = now
	}
	return nil
}

func (o DateOverride) IsClosed() bool {
	return o.Closed || len(o.Intervals) == 0
}

// DateOf truncates t to its calendar date, expressed as midnight UTC. Dates are
// always compared in this form regardless of the resource's timezone.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, validationError("invalid date " + s + ": want YYYY-MM-DD")
	}
	return d, nil
}

func DateKey(d time.Time) string {
	return d.Format(DateLayout)
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return DateOf(now.In(loc))
}
