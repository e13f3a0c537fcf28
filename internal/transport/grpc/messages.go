package grpc

import (
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/service/scheduling"
)

// Dates travel as YYYY-MM-DD strings and wall-clock times as "HH:MM".

type GetAvailabilityRequest struct {
	ResourceID      string `json:"resource_id"`
	Date            string `json:"date"`
	DurationMinutes int    `json:"duration_minutes"`
}

type GetAvailabilityResponse struct {
	Availability scheduling.AvailabilityView `json:"availability"`
}

type MonthAvailabilityRequest struct {
	ResourceID string `json:"resource_id"`
	Year       int    `json:"year"`
	// Month is 1-12.
	Month           int `json:"month"`
	DurationMinutes int `json:"duration_minutes"`
}

type MonthAvailabilityResponse struct {
	Days []scheduling.DayAvailability `json:"days"`
}

type BookAppointmentRequest struct {
	ResourceID      string           `json:"resource_id"`
	Date            string           `json:"date"`
	Start           domain.ClockTime `json:"start"`
	DurationMinutes int              `json:"duration_minutes"`
	ServiceRef      string           `json:"service_ref"`
	CustomerRef     string           `json:"customer_ref,omitempty"`
	WalkIn          bool             `json:"walk_in,omitempty"`
}

type ChangeStatusRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type CancelBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type GetBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type BookingResponse struct {
	Booking *Booking `json:"booking"`
}

type ListBookingsRequest struct {
	ResourceID string `json:"resource_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type ListBookingsResponse struct {
	Bookings []*Booking `json:"bookings"`
}

type BlockDateRequest struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
}

type SetDateHoursRequest struct {
	ResourceID string            `json:"resource_id"`
	Date       string            `json:"date"`
	Intervals  []domain.Interval `json:"intervals"`
}

type OverrideResponse struct {
	Override *DateOverride `json:"override"`
}

type UnblockDateRequest struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
}

type UnblockDateResponse struct {
	Removed bool `json:"removed"`
}

type CreateResourceRequest struct {
	Name               string                `json:"name"`
	GranularityMinutes int                   `json:"granularity_minutes,omitempty"`
	Timezone           string                `json:"timezone,omitempty"`
	Template           domain.WeeklyTemplate `json:"template"`
}

type UpdateWeeklyTemplateRequest struct {
	ResourceID         string                `json:"resource_id"`
	Template           domain.WeeklyTemplate `json:"template"`
	GranularityMinutes int                   `json:"granularity_minutes,omitempty"`
}

type ResourceRequest struct {
	ResourceID string `json:"resource_id"`
}

type ResourceResponse struct {
	Resource *Resource `json:"resource"`
}

type ListResourcesRequest struct {
	IncludeInactive bool `json:"include_inactive,omitempty"`
}

type ListResourcesResponse struct {
	Resources []*Resource `json:"resources"`
}

type Booking struct {
	ID              string           `json:"id"`
	ResourceID      string           `json:"resource_id"`
	Date            string           `json:"date"`
	Start           domain.ClockTime `json:"start"`
	End             domain.ClockTime `json:"end"`
	DurationMinutes int              `json:"duration_minutes"`
	ServiceRef      string           `json:"service_ref"`
	CustomerRef     string           `json:"customer_ref"`
	RequestedBy     string           `json:"requested_by"`
	Status          string           `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type DateOverride struct {
	ResourceID string            `json:"resource_id"`
	Date       string            `json:"date"`
	Closed     bool              `json:"closed"`
	Intervals  []domain.Interval `json:"intervals"`
}

type Resource struct {
	ID                 string                `json:"id"`
	Name               string                `json:"name"`
	GranularityMinutes int                   `json:"granularity_minutes"`
	Timezone           string                `json:"timezone"`
	Template           domain.WeeklyTemplate `json:"template"`
	Active             bool                  `json:"active"`
}

func toBooking(b domain.Booking) *Booking {
	return &Booking{
		ID:              b.ID.String(),
		ResourceID:      b.ResourceID.String(),
		Date:            domain.DateKey(b.Date),
		Start:           b.Start,
		End:             b.End(),
		DurationMinutes: b.DurationMinutes,
		ServiceRef:      b.ServiceRef,
		CustomerRef:     b.CustomerRef,
		RequestedBy:     b.RequestedBy,
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func toDateOverride(o domain.DateOverride) *DateOverride {
	ivs := o.Intervals
	if ivs == nil {
		ivs = []domain.Interval{}
	}
	return &DateOverride{
		ResourceID: o.ResourceID.String(),
		Date:       domain.DateKey(o.Date),
		Closed:     o.IsClosed(),
		Intervals:  ivs,
	}
}

func toResource(r domain.Resource) *Resource {
	return &Resource{
		ID:                 r.ID.String(),
		Name:               r.Name,
		GranularityMinutes: r.Granularity(),
		Timezone:           r.Timezone,
		Template:           r.Template,
		Active:             r.Active,
	}
}
