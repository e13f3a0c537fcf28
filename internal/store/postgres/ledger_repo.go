package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"salonbook/internal/domain"
	"salonbook/internal/store"
)

const DefaultLockTimeout = 2 * time.Second

type LedgerRepo struct {
	db          *bun.DB
	lockTimeout time.Duration
}

var _ store.Backend = (*LedgerRepo)(nil)

func NewLedgerRepo(db *bun.DB, lockTimeout time.Duration) *LedgerRepo {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &LedgerRepo{db: db, lockTimeout: lockTimeout}
}

// dayTx runs queries against either the pool or an open transaction.
type dayTx struct {
	db bun.IDB
}

// InResourceDay takes a pooled connection, opens a transaction, takes the
// (resource, date) advisory lock and runs fn. Both waits are bounded by the
// lock timeout and can be abandoned through ctx; once the lock is held the
// transaction no longer observes ctx.
func (r *LedgerRepo) InResourceDay(ctx context.Context, resourceID uuid.UUID, date time.Time, fn func(ctx context.Context, tx store.DayTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	detached := context.WithoutCancel(ctx)
	err = conn.RunInTx(detached, nil, func(txCtx context.Context, tx bun.Tx) error {
		if err := lockResourceDay(ctx, tx, resourceID, date, r.lockTimeout); err != nil {
			return err
		}
		return fn(txCtx, dayTx{db: tx})
	})
	return mapError(err)
}

func (r *LedgerRepo) conn(ctx context.Context) (bun.Conn, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()
	conn, err := r.db.Conn(waitCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return bun.Conn{}, fmt.Errorf("waiting for connection: %w", store.ErrBusy)
		}
		return bun.Conn{}, err
	}
	return conn, nil
}

func lockResourceDay(ctx context.Context, tx bun.Tx, resourceID uuid.UUID, date time.Time, timeout time.Duration) error {
	if _, err := tx.NewRaw(fmt.Sprintf("SET LOCAL lock_timeout = %d", timeout.Milliseconds())).Exec(ctx); err != nil {
		return err
	}
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", lockKey(resourceID, date)).Exec(ctx)
	return err
}

func lockKey(resourceID uuid.UUID, date time.Time) string {
	return resourceID.String() + "/" + domain.DateKey(date)
}

// mapError turns PostgreSQL conditions into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			if pgErr.ConstraintName == "bookings_no_overlap" {
				return store.ErrConflict
			}
		case "55P03", "40001", "40P01":
			return store.ErrBusy
		}
	}
	return err
}

func (r *LedgerRepo) GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error) {
	return dayTx{db: r.db}.GetResource(ctx, resourceID)
}

func (r *LedgerRepo) GetOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.DateOverride, error) {
	return dayTx{db: r.db}.GetOverride(ctx, resourceID, date)
}

func (r *LedgerRepo) ListActiveBookings(ctx context.Context, resourceID uuid.UUID, date time.Time) ([]domain.Booking, error) {
	return dayTx{db: r.db}.ListActiveBookings(ctx, resourceID, date)
}

func (r *LedgerRepo) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return dayTx{db: r.db}.GetBooking(ctx, bookingID)
}

func (r *LedgerRepo) ListBookings(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	rows := make([]domain.Booking, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("resource_id = ?", resourceID).
		Where("date >= ?", domain.DateKey(from)).
		Where("date < ?", domain.DateKey(to)).
		OrderExpr("date ASC, start_minute ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LedgerRepo) ListOverrides(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.DateOverride, error) {
	rows := make([]domain.DateOverride, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("resource_id = ?", resourceID).
		Where("date >= ?", domain.DateKey(from)).
		Where("date < ?", domain.DateKey(to)).
		OrderExpr("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r dayTx) GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error) {
	var res domain.Resource
	err := r.db.NewSelect().
		Model(&res).
		Where("id = ?", resourceID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Resource{}, fmt.Errorf("resource %s: %w", resourceID, store.ErrNotFound)
	}
	if err != nil {
		return domain.Resource{}, err
	}
	return res, nil
}

func (r dayTx) GetOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.DateOverride, error) {
	var o domain.DateOverride
	err := r.db.NewSelect().
		Model(&o).
		Where("resource_id = ?", resourceID).
		Where("date = ?", domain.DateKey(date)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r dayTx) UpsertOverride(ctx context.Context, o domain.DateOverride) (domain.DateOverride, error) {
	m := domain.DateOverride{
		ResourceID: o.ResourceID,
		Date:       domain.DateOf(o.Date),
		Closed:     o.Closed,
		Intervals:  o.Intervals,
	}
	err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (resource_id, date) DO UPDATE").
		Set("closed = EXCLUDED.closed").
		Set("intervals = EXCLUDED.intervals").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.DateOverride{}, err
	}
	return m, nil
}

func (r dayTx) DeleteOverride(ctx context.Context, resourceID uuid.UUID, date time.Time) error {
	_, err := r.db.NewDelete().
		Model((*domain.DateOverride)(nil)).
		Where("resource_id = ?", resourceID).
		Where("date = ?", domain.DateKey(date)).
		Exec(ctx)
	return err
}

func (r dayTx) ListActiveBookings(ctx context.Context, resourceID uuid.UUID, date time.Time) ([]domain.Booking, error) {
	rows := make([]domain.Booking, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("resource_id = ?", resourceID).
		Where("date = ?", domain.DateKey(date)).
		Where("status <> ?", domain.StatusCanceled).
		OrderExpr("start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r dayTx) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	var b domain.Booking
	err := r.db.NewSelect().
		Model(&b).
		Where("id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", bookingID, store.ErrNotFound)
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

// InsertBooking relies on the bookings_no_overlap exclusion constraint as the
// last line against double booking.
func (r dayTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := domain.Booking{
		ID:              b.ID,
		ResourceID:      b.ResourceID,
		Date:            domain.DateOf(b.Date),
		Start:           b.Start,
		DurationMinutes: b.DurationMinutes,
		ServiceRef:      b.ServiceRef,
		CustomerRef:     b.CustomerRef,
		RequestedBy:     b.RequestedBy,
		Status:          b.Status,
	}

	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23P01" && pgErr.ConstraintName == "bookings_no_overlap" {
				return domain.Booking{}, store.ErrConflict
			}
			if pgErr.Code == "23505" {
				return domain.Booking{}, store.ErrIdempotencyConflict
			}
		}
		return domain.Booking{}, err
	}
	return m, nil
}

func (r dayTx) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status domain.Status) (domain.Booking, error) {
	b, err := r.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Status = status

	res, err := r.db.NewUpdate().
		Model(&b).
		Column("status", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Booking{}, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Booking{}, err
	}
	if affected == 0 {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", bookingID, store.ErrNotFound)
	}
	return b, nil
}
