package scheduling

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
	"salonbook/internal/events"
)

type CreateResourceInput struct {
	Name               string
	GranularityMinutes int
	Timezone           string
	Template           domain.WeeklyTemplate
}

func (s *Service) CreateResource(ctx context.Context, in CreateResourceInput) (domain.Resource, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Resource{}, domain.NewValidationError("name is required")
	}
	granularity, err := validGranularity(in.GranularityMinutes)
	if err != nil {
		return domain.Resource{}, err
	}
	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return domain.Resource{}, domain.NewValidationError("invalid timezone %q", in.Timezone)
	}
	tpl, err := in.Template.Normalize()
	if err != nil {
		return domain.Resource{}, err
	}

	res, err := s.resources.CreateResource(ctx, domain.Resource{
		Name:               name,
		GranularityMinutes: granularity,
		Timezone:           tz,
		Template:           tpl,
		Active:             true,
	})
	if err != nil {
		return domain.Resource{}, err
	}
	s.log.Info("resource created", slog.String("resource_id", res.ID.String()), slog.String("name", res.Name))
	return res, nil
}

func validGranularity(minutes int) (int, error) {
	if minutes == 0 {
		return domain.DefaultGranularityMinutes, nil
	}
	if minutes < 5 || minutes > 240 {
		return 0, domain.NewValidationError("granularity must be between 5 and 240 minutes")
	}
	return minutes, nil
}

// UpdateWeeklyTemplate replaces the recurring hours. Existing bookings are
// records and stay as they are. A zero granularity keeps the current one.
func (s *Service) UpdateWeeklyTemplate(ctx context.Context, resourceID uuid.UUID, tpl domain.WeeklyTemplate, granularityMinutes int) (domain.Resource, error) {
	if err := requireID(resourceID, "resource_id"); err != nil {
		return domain.Resource{}, err
	}
	if granularityMinutes != 0 {
		if _, err := validGranularity(granularityMinutes); err != nil {
			return domain.Resource{}, err
		}
	}
	norm, err := tpl.Normalize()
	if err != nil {
		return domain.Resource{}, err
	}
	res, err := s.resources.UpdateTemplate(ctx, resourceID, norm, granularityMinutes)
	s.forget(resourceID)
	if err != nil {
		return domain.Resource{}, err
	}
	s.log.Info("weekly template updated", slog.String("resource_id", resourceID.String()))
	return res, nil
}

// DisableResource soft-disables a stylist. Bookings keep referencing it and no
// new slots are offered.
func (s *Service) DisableResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error) {
	if err := requireID(resourceID, "resource_id"); err != nil {
		return domain.Resource{}, err
	}
	res, err := s.resources.SetActive(ctx, resourceID, false)
	s.forget(resourceID)
	if err != nil {
		return domain.Resource{}, err
	}
	s.log.Info("resource disabled", slog.String("resource_id", resourceID.String()))
	return res, nil
}

func (s *Service) GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error) {
	if err := requireID(resourceID, "resource_id"); err != nil {
		return domain.Resource{}, err
	}
	return s.resource(ctx, resourceID)
}

func (s *Service) ListResources(ctx context.Context, includeInactive bool) ([]domain.Resource, error) {
	return s.resources.ListResources(ctx, includeInactive)
}

// BlockDate closes a date. It fails with ErrHasActiveBookings while any active
// booking exists on it.
func (s *Service) BlockDate(ctx context.Context, resourceID uuid.UUID, date time.Time, actor domain.Actor) (domain.DateOverride, error) {
	if err := s.checkOverrideInput(resourceID, actor); err != nil {
		return domain.DateOverride{}, err
	}
	o, err := s.ledger.BlockDate(ctx, resourceID, date)
	if err != nil {
		return domain.DateOverride{}, err
	}
	s.overrideChanged(ctx, events.DateBlocked, "blocked", o.ResourceID, o.Date, actor)
	return o, nil
}

// SetDateHours replaces the weekly hours for one date, e.g. extended hours
// before a holiday. An empty interval list blocks the date.
func (s *Service) SetDateHours(ctx context.Context, resourceID uuid.UUID, date time.Time, intervals []domain.Interval, actor domain.Actor) (domain.DateOverride, error) {
	if err := s.checkOverrideInput(resourceID, actor); err != nil {
		return domain.DateOverride{}, err
	}
	o, err := s.ledger.SetDateHours(ctx, resourceID, date, intervals)
	if err != nil {
		return domain.DateOverride{}, err
	}
	if o.IsClosed() {
		s.overrideChanged(ctx, events.DateBlocked, "blocked", o.ResourceID, o.Date, actor)
	} else {
		s.overrideChanged(ctx, events.DateHoursSet, "hours_set", o.ResourceID, o.Date, actor)
	}
	return o, nil
}

// UnblockDate removes the override for a date. It reports false when the date
// had none.
func (s *Service) UnblockDate(ctx context.Context, resourceID uuid.UUID, date time.Time, actor domain.Actor) (bool, error) {
	if err := s.checkOverrideInput(resourceID, actor); err != nil {
		return false, err
	}
	removed, err := s.ledger.UnblockDate(ctx, resourceID, date)
	if err != nil {
		return false, err
	}
	if removed {
		s.overrideChanged(ctx, events.DateUnblocked, "unblocked", resourceID, domain.DateOf(date), actor)
	}
	return removed, nil
}

func (s *Service) checkOverrideInput(resourceID uuid.UUID, actor domain.Actor) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	return requireID(resourceID, "resource_id")
}

func (s *Service) overrideChanged(ctx context.Context, eventType, action string, resourceID uuid.UUID, date time.Time, actor domain.Actor) {
	s.metrics.ObserveOverride(action)
	s.log.Info("date override changed",
		slog.String("resource_id", resourceID.String()),
		slog.String("date", domain.DateKey(date)),
		slog.String("action", action),
		slog.String("actor_id", actor.ID),
	)
	s.publish(ctx, events.Event{
		Type:       eventType,
		ResourceID: resourceID,
		Date:       domain.DateKey(date),
		ActorID:    actor.ID,
	})
}
