// Command seed fills a running server with stylists and bookings for demos.
// Slots are picked from the availability the server reports; a slot taken in
// the meantime is reported and skipped.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"salonbook/internal/domain"
	grpcTransport "salonbook/internal/transport/grpc"
)

type options struct {
	addr        string
	stylists    int
	days        int
	perDay      int
	duration    int
	timezone    string
	cancelRatio float64
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", "127.0.0.1:50051", "gRPC address of salonbook-server")
	flag.IntVar(&opts.stylists, "stylists", 3, "stylists to create")
	flag.IntVar(&opts.days, "days", 14, "days ahead to book, starting tomorrow")
	flag.IntVar(&opts.perDay, "per-day", 4, "bookings to attempt per stylist and day")
	flag.IntVar(&opts.duration, "duration", 60, "service duration in minutes")
	flag.StringVar(&opts.timezone, "tz", "UTC", "stylist timezone")
	flag.Float64Var(&opts.cancelRatio, "cancel-ratio", 0.1, "share of created bookings to cancel again")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With(slog.String("service", "salonbook-seed"))

	conn, err := grpc.NewClient(opts.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Error("dial failed", slog.Any("err", err), slog.String("addr", opts.addr))
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := seeder{client: grpcTransport.NewSchedulingClient(conn), log: log, opts: opts}
	if err := s.run(ctx); err != nil {
		log.Error("seed failed", slog.Any("err", err))
		os.Exit(1)
	}
}

type seeder struct {
	client *grpcTransport.SchedulingClient
	log    *slog.Logger
	opts   options

	booked, conflicts, canceled int
}

func defaultTemplate() domain.WeeklyTemplate {
	day := []domain.Interval{
		{Start: domain.Clock(9, 0), End: domain.Clock(12, 0)},
		{Start: domain.Clock(13, 0), End: domain.Clock(18, 0)},
	}
	tpl := domain.WeeklyTemplate{}
	for wd := time.Tuesday; wd <= time.Saturday; wd++ {
		tpl[wd] = day
	}
	return tpl
}

func (s *seeder) run(ctx context.Context) error {
	loc, err := time.LoadLocation(s.opts.timezone)
	if err != nil {
		return err
	}
	staff := metadata.AppendToOutgoingContext(ctx, "x-actor-id", "seed", "x-actor-role", "staff")
	tomorrow := domain.Today(time.Now(), loc).AddDate(0, 0, 1)

	for i := 1; i <= s.opts.stylists; i++ {
		created, err := s.client.CreateResource(ctx, &grpcTransport.CreateResourceRequest{
			Name:     fmt.Sprintf("Stylist %d", i),
			Timezone: s.opts.timezone,
			Template: defaultTemplate(),
		})
		if err != nil {
			return fmt.Errorf("create stylist %d: %w", i, err)
		}
		s.log.Info("stylist created", slog.String("resource_id", created.Resource.ID), slog.String("name", created.Resource.Name))

		for d := 0; d < s.opts.days; d++ {
			if err := s.seedDay(staff, created.Resource.ID, tomorrow.AddDate(0, 0, d)); err != nil {
				return err
			}
		}
	}

	s.log.Info("seed complete",
		slog.Int("booked", s.booked),
		slog.Int("conflicts", s.conflicts),
		slog.Int("canceled", s.canceled),
	)
	return nil
}

func (s *seeder) seedDay(ctx context.Context, resourceID string, date time.Time) error {
	avail, err := s.client.GetAvailability(ctx, &grpcTransport.GetAvailabilityRequest{
		ResourceID:      resourceID,
		Date:            domain.DateKey(date),
		DurationMinutes: s.opts.duration,
	})
	if err != nil {
		return fmt.Errorf("availability %s: %w", domain.DateKey(date), err)
	}
	slots := avail.Availability.Slots
	rand.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

	for n := 0; n < s.opts.perDay && n < len(slots); n++ {
		resp, err := s.client.BookAppointment(ctx, &grpcTransport.BookAppointmentRequest{
			ResourceID:      resourceID,
			Date:            domain.DateKey(date),
			Start:           slots[n].Start,
			DurationMinutes: s.opts.duration,
			ServiceRef:      "seed-haircut",
			CustomerRef:     fmt.Sprintf("customer-%d", rand.IntN(500)),
		})
		switch status.Code(err) {
		case codes.OK:
		case codes.FailedPrecondition:
			// an earlier pick on this day overlaps; the slot list is not refreshed
			s.conflicts++
			s.log.Info("slot taken, skipped",
				slog.String("resource_id", resourceID),
				slog.String("date", domain.DateKey(date)),
				slog.String("start", slots[n].Start.String()),
			)
			continue
		default:
			return fmt.Errorf("book %s %s: %w", domain.DateKey(date), slots[n].Start, err)
		}
		s.booked++

		if rand.Float64() < s.opts.cancelRatio {
			if _, err := s.client.CancelBooking(ctx, &grpcTransport.CancelBookingRequest{BookingID: resp.Booking.ID}); err != nil {
				return fmt.Errorf("cancel %s: %w", resp.Booking.ID, err)
			}
			s.canceled++
		}
	}
	return nil
}
