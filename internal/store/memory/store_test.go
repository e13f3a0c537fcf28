package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonbook/internal/domain"
	"salonbook/internal/store"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func seedResource(t *testing.T, s *Store) domain.Resource {
	t.Helper()
	res, err := s.CreateResource(context.Background(), domain.Resource{
		Name:               "R1",
		GranularityMinutes: 30,
		Timezone:           "UTC",
		Template: domain.WeeklyTemplate{
			time.Monday: {{Start: domain.Clock(9, 0), End: domain.Clock(12, 0)}},
		},
		Active: true,
	})
	require.NoError(t, err)
	return res
}

func TestKeyLocks_TimesOutWithErrBusy(t *testing.T) {
	k := newKeyLocks()
	release, err := k.acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)

	_, err = k.acquire(context.Background(), "a", 20*time.Millisecond)
	assert.ErrorIs(t, err, store.ErrBusy)

	other, err := k.acquire(context.Background(), "b", 20*time.Millisecond)
	require.NoError(t, err, "distinct keys must not contend")
	other()

	release()
	assert.Equal(t, 0, k.size())
}

func TestKeyLocks_ContextCanceled(t *testing.T) {
	k := newKeyLocks()
	release, err := k.acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = k.acquire(ctx, "a", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInResourceDay_DiscardsWritesOnError(t *testing.T) {
	s := New()
	res := seedResource(t, s)
	boom := errors.New("boom")

	err := s.InResourceDay(context.Background(), res.ID, day, func(ctx context.Context, tx store.DayTx) error {
		_, err := tx.InsertBooking(ctx, domain.Booking{
			ResourceID: res.ID, Date: day, Start: domain.Clock(9, 0), DurationMinutes: 60, Status: domain.StatusRequested,
		})
		require.NoError(t, err)
		_, err = tx.UpsertOverride(ctx, domain.DateOverride{ResourceID: res.ID, Date: day, Closed: true})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	active, err := s.ListActiveBookings(context.Background(), res.ID, day)
	require.NoError(t, err)
	assert.Empty(t, active)
	o, err := s.GetOverride(context.Background(), res.ID, day)
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestInResourceDay_ReadsOwnWrites(t *testing.T) {
	s := New()
	res := seedResource(t, s)

	err := s.InResourceDay(context.Background(), res.ID, day, func(ctx context.Context, tx store.DayTx) error {
		b, err := tx.InsertBooking(ctx, domain.Booking{
			ResourceID: res.ID, Date: day, Start: domain.Clock(9, 0), DurationMinutes: 60, Status: domain.StatusRequested,
		})
		require.NoError(t, err)

		active, err := tx.ListActiveBookings(ctx, res.ID, day)
		require.NoError(t, err)
		require.Len(t, active, 1)

		_, err = tx.InsertBooking(ctx, domain.Booking{
			ResourceID: res.ID, Date: day, Start: domain.Clock(9, 30), DurationMinutes: 60, Status: domain.StatusRequested,
		})
		require.ErrorIs(t, err, store.ErrConflict)

		_, err = tx.UpdateBookingStatus(ctx, b.ID, domain.StatusCanceled)
		require.NoError(t, err)
		active, err = tx.ListActiveBookings(ctx, res.ID, day)
		require.NoError(t, err)
		assert.Empty(t, active)
		return nil
	})
	require.NoError(t, err)

	all, err := s.ListBookings(context.Background(), res.ID, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.StatusCanceled, all[0].Status)
}

func TestInResourceDay_SameIDAcrossPartitions(t *testing.T) {
	s := New()
	res := seedResource(t, s)
	id := uuid.New()
	thursday := day.AddDate(0, 0, 3)

	var innerErr error
	outerErr := s.InResourceDay(context.Background(), res.ID, day, func(ctx context.Context, tx store.DayTx) error {
		_, err := tx.InsertBooking(ctx, domain.Booking{
			ID: id, ResourceID: res.ID, Date: day, Start: domain.Clock(9, 0), DurationMinutes: 60, Status: domain.StatusRequested,
		})
		require.NoError(t, err)

		innerErr = s.InResourceDay(ctx, res.ID, thursday, func(ctx context.Context, tx store.DayTx) error {
			_, err := tx.InsertBooking(ctx, domain.Booking{
				ID: id, ResourceID: res.ID, Date: thursday, Start: domain.Clock(10, 0), DurationMinutes: 60, Status: domain.StatusRequested,
			})
			return err
		})
		return nil
	})
	require.NoError(t, innerErr)
	require.ErrorIs(t, outerErr, store.ErrIdempotencyConflict)

	got, err := s.GetBooking(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, got.Date.Equal(thursday), "committed booking must not be overwritten")

	monday, err := s.ListBookings(context.Background(), res.ID, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, monday)
}

func TestInResourceDay_RejectsWritesOutsidePartition(t *testing.T) {
	s := New()
	res := seedResource(t, s)

	err := s.InResourceDay(context.Background(), res.ID, day, func(ctx context.Context, tx store.DayTx) error {
		_, err := tx.InsertBooking(ctx, domain.Booking{
			ResourceID: res.ID, Date: day.AddDate(0, 0, 7), Start: domain.Clock(9, 0), DurationMinutes: 60, Status: domain.StatusRequested,
		})
		return err
	})
	assert.Error(t, err)
}

func TestInResourceDay_BusyWhileHeld(t *testing.T) {
	s := New(WithLockTimeout(20 * time.Millisecond))
	res := seedResource(t, s)

	held := make(chan struct{})
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.InResourceDay(context.Background(), res.ID, day, func(ctx context.Context, tx store.DayTx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := s.InResourceDay(context.Background(), res.ID, day, func(ctx context.Context, tx store.DayTx) error {
		return nil
	})
	assert.ErrorIs(t, err, store.ErrBusy)

	err = s.InResourceDay(context.Background(), res.ID, day.AddDate(0, 0, 1), func(ctx context.Context, tx store.DayTx) error {
		return nil
	})
	assert.NoError(t, err, "another date is a different partition")

	close(done)
	wg.Wait()
}

func TestInResourceDay_CanceledBeforeLock(t *testing.T) {
	s := New()
	res := seedResource(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InResourceDay(ctx, res.ID, day, func(ctx context.Context, tx store.DayTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestUpsertOverride_KeepsIdentity(t *testing.T) {
	s := New()
	res := seedResource(t, s)
	ctx := context.Background()

	var first domain.DateOverride
	require.NoError(t, s.InResourceDay(ctx, res.ID, day, func(ctx context.Context, tx store.DayTx) error {
		o, err := tx.UpsertOverride(ctx, domain.DateOverride{ResourceID: res.ID, Date: day, Closed: true})
		first = o
		return err
	}))
	require.NoError(t, s.InResourceDay(ctx, res.ID, day, func(ctx context.Context, tx store.DayTx) error {
		o, err := tx.UpsertOverride(ctx, domain.DateOverride{
			ResourceID: res.ID, Date: day,
			Intervals: []domain.Interval{{Start: domain.Clock(10, 0), End: domain.Clock(11, 0)}},
		})
		assert.Equal(t, first.ID, o.ID)
		return err
	}))

	got, err := s.GetOverride(ctx, res.ID, day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsClosed())

	list, err := s.ListOverrides(ctx, res.ID, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResources(t *testing.T) {
	s := New()
	ctx := context.Background()
	res := seedResource(t, s)

	_, err := s.GetResource(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	updated, err := s.UpdateTemplate(ctx, res.ID, domain.WeeklyTemplate{
		time.Tuesday: {{Start: domain.Clock(10, 0), End: domain.Clock(14, 0)}},
	}, 15)
	require.NoError(t, err)
	assert.Equal(t, 15, updated.GranularityMinutes)
	assert.Empty(t, updated.Template[time.Monday])

	_, err = s.SetActive(ctx, res.ID, false)
	require.NoError(t, err)

	active, err := s.ListResources(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := s.ListResources(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetResource_ReturnsCopy(t *testing.T) {
	s := New()
	res := seedResource(t, s)

	got, err := s.GetResource(context.Background(), res.ID)
	require.NoError(t, err)
	got.Template[time.Monday][0].End = domain.Clock(18, 0)

	again, err := s.GetResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Clock(12, 0), again.Template[time.Monday][0].End)
}
