package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"salonbook/internal/domain"
	"salonbook/internal/store"
	"salonbook/migrations"
)

func TestPostgresIntegration_BookingOverlapAndDuplicateID(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("SALONBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("SALONBOOK_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	// the schema is created inside the transaction and vanishes with its rollback
	schema := "salonbook_test_" + randomHex(t, 8)

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema + ", public").Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}

		res := domain.Resource{
			Name:               "R1",
			GranularityMinutes: 30,
			Timezone:           "UTC",
			Template: domain.WeeklyTemplate{
				time.Thursday: {{Start: domain.Clock(9, 0), End: domain.Clock(12, 0)}},
			},
			Active: true,
		}
		if _, err := tx.NewInsert().Model(&res).Exec(ctx); err != nil {
			return err
		}

		d := dayTx{db: tx}
		date := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

		got, err := d.GetResource(ctx, res.ID)
		if err != nil {
			return err
		}
		if len(got.Template[time.Thursday]) != 1 {
			return fmt.Errorf("template = %+v", got.Template)
		}

		b1, err := d.InsertBooking(ctx, domain.Booking{
			ID:              uuid.MustParse("00000000-0000-0000-0000-000000000901"),
			ResourceID:      res.ID,
			Date:            date,
			Start:           domain.Clock(9, 30),
			DurationMinutes: 60,
			Status:          domain.StatusConfirmed,
		})
		if err != nil {
			return err
		}

		// the failed insert aborts the transaction; the savepoint keeps it usable
		if _, err := tx.NewRaw("SAVEPOINT before_overlap").Exec(ctx); err != nil {
			return err
		}
		_, err = d.InsertBooking(ctx, domain.Booking{
			ResourceID:      res.ID,
			Date:            date,
			Start:           domain.Clock(10, 0),
			DurationMinutes: 60,
			Status:          domain.StatusRequested,
		})
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("overlap err = %v, want %v", err, store.ErrConflict)
		}
		if _, err := tx.NewRaw("ROLLBACK TO SAVEPOINT before_overlap").Exec(ctx); err != nil {
			return err
		}

		if _, err := d.InsertBooking(ctx, domain.Booking{
			ResourceID:      res.ID,
			Date:            date,
			Start:           domain.Clock(10, 30),
			DurationMinutes: 60,
			Status:          domain.StatusRequested,
		}); err != nil {
			return fmt.Errorf("adjacent insert: %w", err)
		}

		if _, err := tx.NewRaw("SAVEPOINT before_duplicate").Exec(ctx); err != nil {
			return err
		}
		_, err = d.InsertBooking(ctx, domain.Booking{
			ID:              b1.ID,
			ResourceID:      res.ID,
			Date:            date.AddDate(0, 0, 7),
			Start:           domain.Clock(9, 0),
			DurationMinutes: 30,
			Status:          domain.StatusRequested,
		})
		if !errors.Is(err, store.ErrIdempotencyConflict) {
			return fmt.Errorf("duplicate id err = %v, want %v", err, store.ErrIdempotencyConflict)
		}
		if _, err := tx.NewRaw("ROLLBACK TO SAVEPOINT before_duplicate").Exec(ctx); err != nil {
			return err
		}

		active, err := d.ListActiveBookings(ctx, res.ID, date)
		if err != nil {
			return err
		}
		if len(active) != 2 || active[0].ID != b1.ID {
			return fmt.Errorf("active = %+v", active)
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("tx error: %v", err)
	}
}

func TestPostgresIntegration_OverridesAndStatus(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("SALONBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("SALONBOOK_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "salonbook_test_" + randomHex(t, 8)

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema + ", public").Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}

		res := domain.Resource{Name: "R1", GranularityMinutes: 30, Timezone: "UTC", Template: domain.WeeklyTemplate{}, Active: true}
		if _, err := tx.NewInsert().Model(&res).Exec(ctx); err != nil {
			return err
		}

		d := dayTx{db: tx}
		date := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

		first, err := d.UpsertOverride(ctx, domain.DateOverride{ResourceID: res.ID, Date: date, Closed: true})
		if err != nil {
			return err
		}
		second, err := d.UpsertOverride(ctx, domain.DateOverride{
			ResourceID: res.ID,
			Date:       date,
			Intervals:  []domain.Interval{{Start: domain.Clock(14, 0), End: domain.Clock(16, 0)}},
		})
		if err != nil {
			return err
		}
		if first.ID != second.ID {
			return fmt.Errorf("upsert changed id %s -> %s", first.ID, second.ID)
		}

		o, err := d.GetOverride(ctx, res.ID, date)
		if err != nil {
			return err
		}
		if o == nil || o.IsClosed() || len(o.Intervals) != 1 || o.Intervals[0].Start != domain.Clock(14, 0) {
			return fmt.Errorf("override = %+v", o)
		}

		b, err := d.InsertBooking(ctx, domain.Booking{
			ResourceID: res.ID, Date: date, Start: domain.Clock(14, 0), DurationMinutes: 60, Status: domain.StatusRequested,
		})
		if err != nil {
			return err
		}
		if _, err := d.UpdateBookingStatus(ctx, b.ID, domain.StatusCanceled); err != nil {
			return err
		}
		active, err := d.ListActiveBookings(ctx, res.ID, date)
		if err != nil {
			return err
		}
		if len(active) != 0 {
			return fmt.Errorf("active = %d, want 0", len(active))
		}

		// the canceled row no longer participates in the exclusion constraint
		if _, err := d.InsertBooking(ctx, domain.Booking{
			ResourceID: res.ID, Date: date, Start: domain.Clock(14, 0), DurationMinutes: 60, Status: domain.StatusConfirmed,
		}); err != nil {
			return err
		}

		if err := d.DeleteOverride(ctx, res.ID, date); err != nil {
			return err
		}
		o, err = d.GetOverride(ctx, res.ID, date)
		if err != nil {
			return err
		}
		if o != nil {
			return fmt.Errorf("override still present")
		}

		// roll back so nothing outlives the test
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("tx error: %v", err)
	}
}

var errRollback = errors.New("rollback")

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	names, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		for _, stmt := range splitSQLStatements(string(b)) {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
