package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"salonbook/internal/domain"
	"salonbook/internal/metrics"
	"salonbook/internal/service/scheduling"
	"salonbook/internal/store"
)

type fakeSchedulingService struct {
	schedulingService

	bookFn          func(ctx context.Context, in scheduling.BookInput) (domain.Booking, error)
	changeStatusFn  func(ctx context.Context, bookingID uuid.UUID, newStatus string, actor domain.Actor) (domain.Booking, error)
	blockDateFn     func(ctx context.Context, resourceID uuid.UUID, date time.Time, actor domain.Actor) (domain.DateOverride, error)
	availabilityFn  func(ctx context.Context, resourceID uuid.UUID, date time.Time, durationMinutes int) (scheduling.AvailabilityView, error)
	monthFn         func(ctx context.Context, resourceID uuid.UUID, year, month0, durationMinutes int) ([]scheduling.DayAvailability, error)
	listResourcesFn func(ctx context.Context, includeInactive bool) ([]domain.Resource, error)
}

func (f *fakeSchedulingService) BookAppointment(ctx context.Context, in scheduling.BookInput) (domain.Booking, error) {
	if f.bookFn == nil {
		panic("BookAppointment not configured")
	}
	return f.bookFn(ctx, in)
}

func (f *fakeSchedulingService) ChangeStatus(ctx context.Context, bookingID uuid.UUID, newStatus string, actor domain.Actor) (domain.Booking, error) {
	if f.changeStatusFn == nil {
		panic("ChangeStatus not configured")
	}
	return f.changeStatusFn(ctx, bookingID, newStatus, actor)
}

func (f *fakeSchedulingService) BlockDate(ctx context.Context, resourceID uuid.UUID, date time.Time, actor domain.Actor) (domain.DateOverride, error) {
	if f.blockDateFn == nil {
		panic("BlockDate not configured")
	}
	return f.blockDateFn(ctx, resourceID, date, actor)
}

func (f *fakeSchedulingService) GetAvailability(ctx context.Context, resourceID uuid.UUID, date time.Time, durationMinutes int) (scheduling.AvailabilityView, error) {
	if f.availabilityFn == nil {
		panic("GetAvailability not configured")
	}
	return f.availabilityFn(ctx, resourceID, date, durationMinutes)
}

func (f *fakeSchedulingService) MonthAvailability(ctx context.Context, resourceID uuid.UUID, year, month0, durationMinutes int) ([]scheduling.DayAvailability, error) {
	if f.monthFn == nil {
		panic("MonthAvailability not configured")
	}
	return f.monthFn(ctx, resourceID, year, month0, durationMinutes)
}

func (f *fakeSchedulingService) ListResources(ctx context.Context, includeInactive bool) ([]domain.Resource, error) {
	if f.listResourcesFn == nil {
		panic("ListResources not configured")
	}
	return f.listResourcesFn(ctx, includeInactive)
}

var testResourceID = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func actorContext(id, role string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-actor-id", id, "x-actor-role", role))
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}

	if got := idempotencyKey(context.Background()); got != "" {
		t.Fatalf("idempotencyKey without metadata = %q, want empty", got)
	}
}

func TestActorFromContext(t *testing.T) {
	actor, err := actorFromContext(actorContext("u1", "Staff"))
	if err != nil {
		t.Fatalf("actorFromContext error: %v", err)
	}
	if actor.ID != "u1" || actor.Role != domain.RoleStaff {
		t.Fatalf("actor = %+v", actor)
	}

	if _, err := actorFromContext(context.Background()); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("missing actor: code = %s, want %s", status.Code(err), codes.Unauthenticated)
	}
	if _, err := actorFromContext(actorContext("u1", "owner")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad role: code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestBookAppointment_PassesInputToService(t *testing.T) {
	var got scheduling.BookInput
	srv := NewSchedulingServer(&fakeSchedulingService{
		bookFn: func(ctx context.Context, in scheduling.BookInput) (domain.Booking, error) {
			got = in
			return domain.Booking{
				ID:              uuid.MustParse("00000000-0000-0000-0000-000000000010"),
				ResourceID:      in.ResourceID,
				Date:            in.Date,
				Start:           in.Start,
				DurationMinutes: in.DurationMinutes,
				Status:          domain.StatusRequested,
			}, nil
		},
	}, quietLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"x-actor-id", "cust-1", "x-actor-role", "customer", "idempotency-key", "k1",
	))
	resp, err := srv.BookAppointment(ctx, &BookAppointmentRequest{
		ResourceID:      testResourceID.String(),
		Date:            "2026-03-02",
		Start:           domain.Clock(9, 30),
		DurationMinutes: 60,
		ServiceRef:      "haircut",
	})
	if err != nil {
		t.Fatalf("BookAppointment error: %v", err)
	}
	if got.IdempotencyKey != "k1" || got.Actor.ID != "cust-1" || got.ResourceID != testResourceID {
		t.Fatalf("input = %+v", got)
	}
	if !got.Date.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", got.Date)
	}
	if resp.Booking.End != domain.Clock(10, 30) || resp.Booking.Date != "2026-03-02" || resp.Booking.Status != "requested" {
		t.Fatalf("booking = %+v", resp.Booking)
	}
}

func TestBookAppointment_RejectsBadInput(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{}, quietLogger())
	staffCtx := actorContext("s1", "staff")

	cases := []struct {
		name string
		ctx  context.Context
		req  *BookAppointmentRequest
		code codes.Code
	}{
		{"nil request", staffCtx, nil, codes.InvalidArgument},
		{"no actor", context.Background(), &BookAppointmentRequest{ResourceID: testResourceID.String(), Date: "2026-03-02"}, codes.Unauthenticated},
		{"bad resource id", staffCtx, &BookAppointmentRequest{ResourceID: "r1", Date: "2026-03-02"}, codes.InvalidArgument},
		{"bad date", staffCtx, &BookAppointmentRequest{ResourceID: testResourceID.String(), Date: "03/02/2026"}, codes.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := srv.BookAppointment(tc.ctx, tc.req)
			if status.Code(err) != tc.code {
				t.Fatalf("code = %s, want %s", status.Code(err), tc.code)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", domain.NewValidationError("bad"), codes.InvalidArgument},
		{"transition", &domain.InvalidTransitionError{From: domain.StatusCompleted, To: domain.StatusCanceled}, codes.FailedPrecondition},
		{"conflict", store.ErrConflict, codes.FailedPrecondition},
		{"has active bookings", store.ErrHasActiveBookings, codes.FailedPrecondition},
		{"idempotency", store.ErrIdempotencyConflict, codes.FailedPrecondition},
		{"not found", store.ErrNotFound, codes.NotFound},
		{"busy", store.ErrBusy, codes.Unavailable},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewSchedulingServer(&fakeSchedulingService{
				changeStatusFn: func(ctx context.Context, bookingID uuid.UUID, newStatus string, actor domain.Actor) (domain.Booking, error) {
					return domain.Booking{}, errors.Join(errors.New("wrapped"), tc.err)
				},
			}, quietLogger())

			_, err := srv.ChangeStatus(actorContext("s1", "staff"), &ChangeStatusRequest{
				BookingID: uuid.NewString(),
				Status:    "confirmed",
			})
			if status.Code(err) != tc.code {
				t.Fatalf("code = %s, want %s", status.Code(err), tc.code)
			}
		})
	}
}

func TestBlockDate_PassesActor(t *testing.T) {
	var gotActor domain.Actor
	srv := NewSchedulingServer(&fakeSchedulingService{
		blockDateFn: func(ctx context.Context, resourceID uuid.UUID, date time.Time, actor domain.Actor) (domain.DateOverride, error) {
			gotActor = actor
			return domain.DateOverride{ResourceID: resourceID, Date: date, Closed: true}, nil
		},
	}, quietLogger())

	resp, err := srv.BlockDate(actorContext("s1", "staff"), &BlockDateRequest{ResourceID: testResourceID.String(), Date: "2026-03-05"})
	if err != nil {
		t.Fatalf("BlockDate error: %v", err)
	}
	if gotActor.ID != "s1" {
		t.Fatalf("actor = %+v", gotActor)
	}
	if !resp.Override.Closed || resp.Override.Date != "2026-03-05" || resp.Override.Intervals == nil {
		t.Fatalf("override = %+v", resp.Override)
	}
}

func TestMonthAvailability_MonthIsOneBased(t *testing.T) {
	var gotMonth0 int
	srv := NewSchedulingServer(&fakeSchedulingService{
		monthFn: func(ctx context.Context, resourceID uuid.UUID, year, month0, durationMinutes int) ([]scheduling.DayAvailability, error) {
			gotMonth0 = month0
			return nil, nil
		},
	}, quietLogger())

	if _, err := srv.MonthAvailability(context.Background(), &MonthAvailabilityRequest{
		ResourceID: testResourceID.String(), Year: 2026, Month: 3, DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("MonthAvailability error: %v", err)
	}
	if gotMonth0 != 2 {
		t.Fatalf("month0 = %d, want 2", gotMonth0)
	}

	_, err := srv.MonthAvailability(context.Background(), &MonthAvailabilityRequest{ResourceID: testResourceID.String(), Year: 2026, Month: 0})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("month 0: code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestRateLimitInterceptor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	intercept := RateLimitInterceptor(0.001, 1, m)
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("GetAvailability")}
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	if _, err := intercept(context.Background(), nil, info, handler); err != nil {
		t.Fatalf("first call error: %v", err)
	}
	_, err := intercept(context.Background(), nil, info, handler)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("second call: code = %s, want %s", status.Code(err), codes.ResourceExhausted)
	}
	if n, err := testutil.GatherAndCount(reg, "salonbook_grpc_rate_limited_total"); err != nil || n != 1 {
		t.Fatalf("rate limited series = %d, err = %v", n, err)
	}

	unlimited := RateLimitInterceptor(0, 0, nil)
	for i := 0; i < 5; i++ {
		if _, err := unlimited(context.Background(), nil, info, handler); err != nil {
			t.Fatalf("disabled limiter error: %v", err)
		}
	}
}

func TestRequestTimeoutInterceptor(t *testing.T) {
	intercept := RequestTimeoutInterceptor(time.Second)
	var deadline time.Time
	_, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		deadline, _ = ctx.Deadline()
		return nil, nil
	})
	if err != nil {
		t.Fatalf("intercept error: %v", err)
	}
	if deadline.IsZero() || time.Until(deadline) > time.Second {
		t.Fatalf("deadline = %v, want within 1s", deadline)
	}

	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	want, _ := parent.Deadline()
	_, _ = intercept(parent, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		deadline, _ = ctx.Deadline()
		return nil, nil
	})
	if !deadline.Equal(want) {
		t.Fatalf("existing deadline replaced: %v, want %v", deadline, want)
	}
}
