package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"salonbook/internal/domain"
	"salonbook/internal/service/scheduling"
	"salonbook/internal/store"
)

type SchedulingServer struct {
	svc schedulingService
	log *slog.Logger
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

type schedulingService interface {
	GetAvailability(ctx context.Context, resourceID uuid.UUID, date time.Time, durationMinutes int) (scheduling.AvailabilityView, error)
	MonthAvailability(ctx context.Context, resourceID uuid.UUID, year, month0, durationMinutes int) ([]scheduling.DayAvailability, error)
	BookAppointment(ctx context.Context, in scheduling.BookInput) (domain.Booking, error)
	ChangeStatus(ctx context.Context, bookingID uuid.UUID, newStatus string, actor domain.Actor) (domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, actor domain.Actor) (domain.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	ListBookings(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.Booking, error)
	BlockDate(ctx context.Context, resourceID uuid.UUID, date time.Time, actor domain.Actor) (domain.DateOverride, error)
	SetDateHours(ctx context.Context, resourceID uuid.UUID, date time.Time, intervals []domain.Interval, actor domain.Actor) (domain.DateOverride, error)
	UnblockDate(ctx context.Context, resourceID uuid.UUID, date time.Time, actor domain.Actor) (bool, error)
	CreateResource(ctx context.Context, in scheduling.CreateResourceInput) (domain.Resource, error)
	UpdateWeeklyTemplate(ctx context.Context, resourceID uuid.UUID, tpl domain.WeeklyTemplate, granularityMinutes int) (domain.Resource, error)
	DisableResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error)
	GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error)
	ListResources(ctx context.Context, includeInactive bool) ([]domain.Resource, error)
}

func NewSchedulingServer(svc schedulingService, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) GetAvailability(ctx context.Context, req *GetAvailabilityRequest) (*GetAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	resourceID, err := parseID(req.ResourceID, "resource_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	date, err := parseDate(req.Date, "date")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("resource_id", req.ResourceID))
		return nil, err
	}

	view, err := s.svc.GetAvailability(ctx, resourceID, date, req.DurationMinutes)
	if err != nil {
		return nil, s.fail(log, "availability query failed", err, slog.String("resource_id", req.ResourceID))
	}

	log.Debug("availability listed",
		slog.String("resource_id", req.ResourceID),
		slog.String("date", req.Date),
		slog.Int("count", len(view.Slots)),
	)
	return &GetAvailabilityResponse{Availability: view}, nil
}

func (s *SchedulingServer) MonthAvailability(ctx context.Context, req *MonthAvailabilityRequest) (*MonthAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "MonthAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	resourceID, err := parseID(req.ResourceID, "resource_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	if req.Month < 1 || req.Month > 12 {
		log.Warn("invalid request", slog.String("reason", "invalid_month"), slog.Int("month", req.Month))
		return nil, status.Error(codes.InvalidArgument, "month must be between 1 and 12")
	}

	days, err := s.svc.MonthAvailability(ctx, resourceID, req.Year, req.Month-1, req.DurationMinutes)
	if err != nil {
		return nil, s.fail(log, "month availability failed", err, slog.String("resource_id", req.ResourceID))
	}
	return &MonthAvailabilityResponse{Days: days}, nil
}

func (s *SchedulingServer) BookAppointment(ctx context.Context, req *BookAppointmentRequest) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, err := actorFromContext(ctx)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "missing_actor"))
		return nil, err
	}
	resourceID, err := parseID(req.ResourceID, "resource_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("actor_id", actor.ID))
		return nil, err
	}
	date, err := parseDate(req.Date, "date")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("actor_id", actor.ID))
		return nil, err
	}

	b, err := s.svc.BookAppointment(ctx, scheduling.BookInput{
		ResourceID:      resourceID,
		Date:            date,
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		ServiceRef:      req.ServiceRef,
		CustomerRef:     req.CustomerRef,
		Actor:           actor,
		WalkIn:          req.WalkIn,
		IdempotencyKey:  idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.fail(log, "booking failed", err,
			slog.String("resource_id", req.ResourceID),
			slog.String("date", req.Date),
			slog.String("start", req.Start.String()),
			slog.String("actor_id", actor.ID),
		)
	}

	log.Info("booking created",
		slog.String("booking_id", b.ID.String()),
		slog.String("resource_id", req.ResourceID),
		slog.String("status", string(b.Status)),
	)
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *SchedulingServer) ChangeStatus(ctx context.Context, req *ChangeStatusRequest) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "ChangeStatus"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, err := actorFromContext(ctx)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "missing_actor"))
		return nil, err
	}
	id, err := parseID(req.BookingID, "booking_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("actor_id", actor.ID))
		return nil, err
	}

	b, err := s.svc.ChangeStatus(ctx, id, req.Status, actor)
	if err != nil {
		return nil, s.fail(log, "status change failed", err, slog.String("booking_id", req.BookingID), slog.String("status", req.Status))
	}
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *SchedulingServer) CancelBooking(ctx context.Context, req *CancelBookingRequest) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, err := actorFromContext(ctx)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "missing_actor"))
		return nil, err
	}
	id, err := parseID(req.BookingID, "booking_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("actor_id", actor.ID))
		return nil, err
	}

	b, err := s.svc.CancelBooking(ctx, id, actor)
	if err != nil {
		return nil, s.fail(log, "cancel failed", err, slog.String("booking_id", req.BookingID))
	}
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *SchedulingServer) GetBooking(ctx context.Context, req *GetBookingRequest) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "GetBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.BookingID, "booking_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	b, err := s.svc.GetBooking(ctx, id)
	if err != nil {
		return nil, s.fail(log, "booking lookup failed", err, slog.String("booking_id", req.BookingID))
	}
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *SchedulingServer) ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListBookings"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	resourceID, err := parseID(req.ResourceID, "resource_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	from, err := parseDate(req.From, "from")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_window"), slog.String("resource_id", req.ResourceID))
		return nil, err
	}
	to, err := parseDate(req.To, "to")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_window"), slog.String("resource_id", req.ResourceID))
		return nil, err
	}

	bookings, err := s.svc.ListBookings(ctx, resourceID, from, to)
	if err != nil {
		return nil, s.fail(log, "bookings list failed", err, slog.String("resource_id", req.ResourceID))
	}
	out := make([]*Booking, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBooking(b))
	}

	log.Debug("bookings listed",
		slog.String("resource_id", req.ResourceID),
		slog.Int("count", len(out)),
		slog.String("from", req.From),
		slog.String("to", req.To),
	)
	return &ListBookingsResponse{Bookings: out}, nil
}

func (s *SchedulingServer) BlockDate(ctx context.Context, req *BlockDateRequest) (*OverrideResponse, error) {
	log := s.log.With(slog.String("rpc", "BlockDate"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, resourceID, date, err := s.overrideArgs(ctx, log, req.ResourceID, req.Date)
	if err != nil {
		return nil, err
	}
	o, err := s.svc.BlockDate(ctx, resourceID, date, actor)
	if err != nil {
		return nil, s.fail(log, "block date failed", err, slog.String("resource_id", req.ResourceID), slog.String("date", req.Date))
	}
	return &OverrideResponse{Override: toDateOverride(o)}, nil
}

func (s *SchedulingServer) SetDateHours(ctx context.Context, req *SetDateHoursRequest) (*OverrideResponse, error) {
	log := s.log.With(slog.String("rpc", "SetDateHours"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, resourceID, date, err := s.overrideArgs(ctx, log, req.ResourceID, req.Date)
	if err != nil {
		return nil, err
	}
	o, err := s.svc.SetDateHours(ctx, resourceID, date, req.Intervals, actor)
	if err != nil {
		return nil, s.fail(log, "set date hours failed", err, slog.String("resource_id", req.ResourceID), slog.String("date", req.Date))
	}
	return &OverrideResponse{Override: toDateOverride(o)}, nil
}

func (s *SchedulingServer) UnblockDate(ctx context.Context, req *UnblockDateRequest) (*UnblockDateResponse, error) {
	log := s.log.With(slog.String("rpc", "UnblockDate"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, resourceID, date, err := s.overrideArgs(ctx, log, req.ResourceID, req.Date)
	if err != nil {
		return nil, err
	}
	removed, err := s.svc.UnblockDate(ctx, resourceID, date, actor)
	if err != nil {
		return nil, s.fail(log, "unblock date failed", err, slog.String("resource_id", req.ResourceID), slog.String("date", req.Date))
	}
	return &UnblockDateResponse{Removed: removed}, nil
}

func (s *SchedulingServer) overrideArgs(ctx context.Context, log *slog.Logger, rawResourceID, rawDate string) (domain.Actor, uuid.UUID, time.Time, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "missing_actor"))
		return domain.Actor{}, uuid.Nil, time.Time{}, err
	}
	resourceID, err := parseID(rawResourceID, "resource_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("actor_id", actor.ID))
		return domain.Actor{}, uuid.Nil, time.Time{}, err
	}
	date, err := parseDate(rawDate, "date")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("actor_id", actor.ID))
		return domain.Actor{}, uuid.Nil, time.Time{}, err
	}
	return actor, resourceID, date, nil
}

func (s *SchedulingServer) CreateResource(ctx context.Context, req *CreateResourceRequest) (*ResourceResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateResource"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	res, err := s.svc.CreateResource(ctx, scheduling.CreateResourceInput{
		Name:               req.Name,
		GranularityMinutes: req.GranularityMinutes,
		Timezone:           req.Timezone,
		Template:           req.Template,
	})
	if err != nil {
		return nil, s.fail(log, "resource create failed", err, slog.String("name", req.Name))
	}
	return &ResourceResponse{Resource: toResource(res)}, nil
}

func (s *SchedulingServer) UpdateWeeklyTemplate(ctx context.Context, req *UpdateWeeklyTemplateRequest) (*ResourceResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateWeeklyTemplate"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.ResourceID, "resource_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	res, err := s.svc.UpdateWeeklyTemplate(ctx, id, req.Template, req.GranularityMinutes)
	if err != nil {
		return nil, s.fail(log, "template update failed", err, slog.String("resource_id", req.ResourceID))
	}
	return &ResourceResponse{Resource: toResource(res)}, nil
}

func (s *SchedulingServer) DisableResource(ctx context.Context, req *ResourceRequest) (*ResourceResponse, error) {
	log := s.log.With(slog.String("rpc", "DisableResource"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.ResourceID, "resource_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	res, err := s.svc.DisableResource(ctx, id)
	if err != nil {
		return nil, s.fail(log, "resource disable failed", err, slog.String("resource_id", req.ResourceID))
	}
	return &ResourceResponse{Resource: toResource(res)}, nil
}

func (s *SchedulingServer) GetResource(ctx context.Context, req *ResourceRequest) (*ResourceResponse, error) {
	log := s.log.With(slog.String("rpc", "GetResource"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID(req.ResourceID, "resource_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, err
	}
	res, err := s.svc.GetResource(ctx, id)
	if err != nil {
		return nil, s.fail(log, "resource lookup failed", err, slog.String("resource_id", req.ResourceID))
	}
	return &ResourceResponse{Resource: toResource(res)}, nil
}

func (s *SchedulingServer) ListResources(ctx context.Context, req *ListResourcesRequest) (*ListResourcesResponse, error) {
	log := s.log.With(slog.String("rpc", "ListResources"))

	if req == nil {
		req = &ListResourcesRequest{}
	}
	list, err := s.svc.ListResources(ctx, req.IncludeInactive)
	if err != nil {
		return nil, s.fail(log, "resources list failed", err)
	}
	out := make([]*Resource, 0, len(list))
	for _, r := range list {
		out = append(out, toResource(r))
	}
	return &ListResourcesResponse{Resources: out}, nil
}

// fail maps a service error to a status. Client mistakes are logged at warn,
// expected contention at info and everything else at error.
func (s *SchedulingServer) fail(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *domain.ValidationError
	var tErr *domain.InvalidTransitionError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &tErr):
		log.Warn(msg, args...)
		return status.Error(codes.FailedPrecondition, tErr.Error())
	case errors.Is(err, store.ErrConflict):
		log.Info(msg, args...)
		return status.Error(codes.FailedPrecondition, "That time was just taken. Pick a different slot.")
	case errors.Is(err, store.ErrHasActiveBookings):
		log.Info(msg, args...)
		return status.Error(codes.FailedPrecondition, "The date still has active bookings. Cancel or move them first.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(msg, args...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different booking.")
	case errors.Is(err, store.ErrNotFound):
		log.Warn(msg, args...)
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, store.ErrBusy):
		log.Info(msg, args...)
		return status.Error(codes.Unavailable, "The schedule is busy. Try again.")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(msg, args...)
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		log.Info(msg, args...)
		return status.Error(codes.Canceled, "canceled")
	default:
		log.Error(msg, args...)
		return status.Error(codes.Internal, "internal error")
	}
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s must be a UUID", field)
	}
	return id, nil
}

func parseDate(raw, field string) (time.Time, error) {
	d, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s must be YYYY-MM-DD", field)
	}
	return d, nil
}

func actorFromContext(ctx context.Context) (domain.Actor, error) {
	id := firstMetadata(ctx, "x-actor-id")
	if id == "" {
		return domain.Actor{}, status.Error(codes.Unauthenticated, "x-actor-id is required")
	}
	role, err := domain.ParseRole(firstMetadata(ctx, "x-actor-role"))
	if err != nil {
		return domain.Actor{}, status.Error(codes.InvalidArgument, "x-actor-role must be customer or staff")
	}
	return domain.Actor{ID: id, Role: role}, nil
}

func idempotencyKey(ctx context.Context) string {
	if v := firstMetadata(ctx, "idempotency-key"); v != "" {
		return v
	}
	return firstMetadata(ctx, "x-idempotency-key")
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
