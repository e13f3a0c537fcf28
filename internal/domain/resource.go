package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DefaultGranularityMinutes = 30

// Resource is a bookable stylist. Resources are soft-disabled, never deleted.
type Resource struct {
	bun.BaseModel `bun:"table:resources"`

	ID                 uuid.UUID      `bun:"id,pk,type:uuid"`
	Name               string         `bun:"name,notnull"`
	GranularityMinutes int            `bun:"granularity_minutes,notnull"`
	Timezone           string         `bun:"timezone,notnull"`
	Template           WeeklyTemplate `bun:"weekly_template,type:jsonb,notnull"`
	Active             bool           `bun:"active,notnull"`
	CreatedAt          time.Time      `bun:"created_at,notnull"`
	UpdatedAt          time.Time      `bun:"updated_at,notnull"`
}

func (r *Resource) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

// Location resolves the resource's timezone, falling back to UTC.
func (r Resource) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (r Resource) Granularity() int {
	if r.GranularityMinutes <= 0 {
		return DefaultGranularityMinutes
	}
	return r.GranularityMinutes
}

// WeeklyTemplate maps a weekday to its open intervals. A missing or empty entry
// means the resource is closed that weekday.
type WeeklyTemplate map[time.Weekday][]Interval

var weekdayKeys = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if len(key) > 3 {
		key = key[:3]
	}
	for i, k := range weekdayKeys {
		if k == key {
			return time.Weekday(i), nil
		}
	}
	return 0, validationError(fmt.Sprintf("invalid weekday %q", s))
}

func WeekdayKey(wd time.Weekday) string {
	return weekdayKeys[wd]
}

// Normalize validates every interval and returns a copy with each weekday's
// intervals sorted ascending. Overlapping intervals are rejected.
func (t WeeklyTemplate) Normalize() (WeeklyTemplate, error) {
	out := make(WeeklyTemplate, len(t))
	for wd, ivs := range t {
		if wd < time.Sunday || wd > time.Saturday {
			return nil, validationError(fmt.Sprintf("invalid weekday %d", wd))
		}
		norm, err := NormalizeIntervals(ivs)
		if err != nil {
			return nil, validationError(fmt.Sprintf("%s: %s", WeekdayKey(wd), err))
		}
		if len(norm) > 0 {
			out[wd] = norm
		}
	}
	return out, nil
}

func NormalizeIntervals(ivs []Interval) ([]Interval, error) {
	out := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if err := iv.Validate(); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			return nil, validationError(fmt.Sprintf("intervals %s and %s overlap", out[i-1], out[i]))
		}
	}
	return out, nil
}

func (t WeeklyTemplate) MarshalJSON() ([]byte, error) {
	m := make(map[string][]Interval, len(t))
	for wd, ivs := range t {
		m[WeekdayKey(wd)] = ivs
	}
	return json.Marshal(m)
}

func (t *WeeklyTemplate) UnmarshalJSON(data []byte) error {
	var m map[string][]Interval
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(WeeklyTemplate, len(m))
	for k, ivs := range m {
		wd, err := ParseWeekday(k)
		if err != nil {
			return err
		}
		out[wd] = ivs
	}
	*t = out
	return nil
}
