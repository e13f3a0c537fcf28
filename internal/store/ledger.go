package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
)

// DayTx is the view of one (resource, date) partition while its lock is held.
// Implementations must not be used after the enclosing InResourceDay returns.
type DayTx interface {
	GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error)
	GetOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.DateOverride, error)
	UpsertOverride(ctx context.Context, o domain.DateOverride) (domain.DateOverride, error)
	DeleteOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) error

	ListActiveBookings(ctx context.Context, resourceID uuid.UUID, date time.Time) ([]domain.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status domain.Status) (domain.Booking, error)
}

// Backend is the persistence a BookingLedger runs on. InResourceDay serializes
// all writers of one (resource, date) and must fail with ErrBusy when the lock
// cannot be obtained within the backend's bounded wait.
type Backend interface {
	InResourceDay(ctx context.Context, resourceID uuid.UUID, date time.Time, fn func(ctx context.Context, tx DayTx) error) error

	GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error)
	GetOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.DateOverride, error)
	ListActiveBookings(ctx context.Context, resourceID uuid.UUID, date time.Time) ([]domain.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	ListBookings(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.Booking, error)
	ListOverrides(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.DateOverride, error)
}

// ResourceRepository manages stylists and their weekly templates.
type ResourceRepository interface {
	CreateResource(ctx context.Context, res domain.Resource) (domain.Resource, error)
	GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error)
	UpdateTemplate(ctx context.Context, resourceID uuid.UUID, tpl domain.WeeklyTemplate, granularityMinutes int) (domain.Resource, error)
	SetActive(ctx context.Context, resourceID uuid.UUID, active bool) (domain.Resource, error)
	ListResources(ctx context.Context, includeInactive bool) ([]domain.Resource, error)
}
