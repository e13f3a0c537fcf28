// Package memory is a process-local storage backend. It gives the same
// per-(resource, date) serialization as the PostgreSQL backend and is used for
// development, tests and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
	"salonbook/internal/store"
)

const DefaultLockTimeout = 2 * time.Second

type Option func(*Store)

func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type Store struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]domain.Resource
	overrides map[string]domain.DateOverride
	bookings  map[uuid.UUID]domain.Booking

	locks       *keyLocks
	lockTimeout time.Duration
	now         func() time.Time
}

var (
	_ store.Backend            = (*Store)(nil)
	_ store.ResourceRepository = (*Store)(nil)
)

func New(opts ...Option) *Store {
	s := &Store{
		resources:   make(map[uuid.UUID]domain.Resource),
		overrides:   make(map[string]domain.DateOverride),
		bookings:    make(map[uuid.UUID]domain.Booking),
		locks:       newKeyLocks(),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dayKey(resourceID uuid.UUID, date time.Time) string {
	return resourceID.String() + "/" + domain.DateKey(date)
}

// InResourceDay runs fn while holding the partition lock. Writes made through
// the DayTx are buffered and applied only if fn returns nil. After the lock is
// acquired the caller's cancellation no longer applies.
func (s *Store) InResourceDay(ctx context.Context, resourceID uuid.UUID, date time.Time, fn func(ctx context.Context, tx store.DayTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	date = domain.DateOf(date)

	release, err := s.locks.acquire(ctx, dayKey(resourceID, date), s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	tx := &dayTx{
		s:          s,
		resourceID: resourceID,
		date:       date,
		updates:    make(map[uuid.UUID]domain.Status),
	}
	if err := fn(context.WithoutCancel(ctx), tx); err != nil {
		return err
	}
	return s.commit(tx)
}

// commit applies tx atomically. Booking ids are global while partition locks
// are not, so an id inserted by another partition since the tx read it fails
// the whole commit the way a primary-key violation would.
func (s *Store) commit(tx *dayTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range tx.inserts {
		if _, ok := s.bookings[b.ID]; ok {
			return fmt.Errorf("booking %s: %w", b.ID, store.ErrIdempotencyConflict)
		}
	}

	now := s.now().UTC()
	for _, b := range tx.inserts {
		s.bookings[b.ID] = b
	}
	for id, st := range tx.updates {
		b := s.bookings[id]
		b.Status = st
		b.UpdatedAt = now
		s.bookings[id] = b
	}
	key := dayKey(tx.resourceID, tx.date)
	if tx.deleteOverride {
		delete(s.overrides, key)
	}
	if tx.override != nil {
		s.overrides[key] = *tx.override
	}
	return nil
}

func (s *Store) GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[resourceID]
	if !ok {
		return domain.Resource{}, fmt.Errorf("resource %s: %w", resourceID, store.ErrNotFound)
	}
	return cloneResource(res), nil
}

func (s *Store) GetOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.DateOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[dayKey(resourceID, domain.DateOf(date))]
	if !ok {
		return nil, nil
	}
	c := cloneOverride(o)
	return &c, nil
}

func (s *Store) ListActiveBookings(ctx context.Context, resourceID uuid.UUID, date time.Time) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dayBookingsLocked(resourceID, domain.DateOf(date), true), nil
}

func (s *Store) dayBookingsLocked(resourceID uuid.UUID, date time.Time, activeOnly bool) []domain.Booking {
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.ResourceID != resourceID || !b.Date.Equal(date) {
			continue
		}
		if activeOnly && !b.Active() {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out
}

func (s *Store) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", bookingID, store.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if b.ResourceID != resourceID || b.Date.Before(from) || !b.Date.Before(to) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (s *Store) ListOverrides(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.DateOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DateOverride, 0)
	for _, o := range s.overrides {
		if o.ResourceID != resourceID || o.Date.Before(from) || !o.Date.Before(to) {
			continue
		}
		out = append(out, cloneOverride(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) CreateResource(ctx context.Context, res domain.Resource) (domain.Resource, error) {
	if res.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Resource{}, err
		}
		res.ID = id
	}
	now := s.now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[res.ID]; ok {
		return domain.Resource{}, fmt.Errorf("resource %s: %w", res.ID, store.ErrConflict)
	}
	s.resources[res.ID] = cloneResource(res)
	return res, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, resourceID uuid.UUID, tpl domain.WeeklyTemplate, granularityMinutes int) (domain.Resource, error) {
	return s.updateResource(resourceID, func(r *domain.Resource) {
		r.Template = tpl
		if granularityMinutes > 0 {
			r.GranularityMinutes = granularityMinutes
		}
	})
}

func (s *Store) SetActive(ctx context.Context, resourceID uuid.UUID, active bool) (domain.Resource, error) {
	return s.updateResource(resourceID, func(r *domain.Resource) {
		r.Active = active
	})
}

func (s *Store) updateResource(resourceID uuid.UUID, mutate func(r *domain.Resource)) (domain.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[resourceID]
	if !ok {
		return domain.Resource{}, fmt.Errorf("resource %s: %w", resourceID, store.ErrNotFound)
	}
	mutate(&res)
	res.UpdatedAt = s.now().UTC()
	s.resources[resourceID] = cloneResource(res)
	return cloneResource(res), nil
}

func (s *Store) ListResources(ctx context.Context, includeInactive bool) ([]domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		if !r.Active && !includeInactive {
			continue
		}
		out = append(out, cloneResource(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func sortBookings(bs []domain.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].Date.Equal(bs[j].Date) {
			return bs[i].Date.Before(bs[j].Date)
		}
		if bs[i].Start != bs[j].Start {
			return bs[i].Start < bs[j].Start
		}
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}

func cloneResource(r domain.Resource) domain.Resource {
	if r.Template != nil {
		tpl := make(domain.WeeklyTemplate, len(r.Template))
		for wd, ivs := range r.Template {
			tpl[wd] = append([]domain.Interval(nil), ivs...)
		}
		r.Template = tpl
	}
	return r
}

func cloneOverride(o domain.DateOverride) domain.DateOverride {
	o.Intervals = append([]domain.Interval{}, o.Intervals...)
	return o
}
