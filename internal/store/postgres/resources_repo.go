package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"salonbook/internal/domain"
	"salonbook/internal/store"
)

type ResourceRepo struct {
	db *bun.DB
}

var _ store.ResourceRepository = (*ResourceRepo)(nil)

func NewResourceRepo(db *bun.DB) *ResourceRepo {
	return &ResourceRepo{db: db}
}

func (r *ResourceRepo) CreateResource(ctx context.Context, res domain.Resource) (domain.Resource, error) {
	m := domain.Resource{
		ID:                 res.ID,
		Name:               res.Name,
		GranularityMinutes: res.GranularityMinutes,
		Timezone:           res.Timezone,
		Template:           res.Template,
		Active:             res.Active,
	}
	if m.Template == nil {
		m.Template = domain.WeeklyTemplate{}
	}

	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Resource{}, fmt.Errorf("resource %s: %w", m.ID, store.ErrConflict)
		}
		return domain.Resource{}, err
	}
	return m, nil
}

func (r *ResourceRepo) GetResource(ctx context.Context, resourceID uuid.UUID) (domain.Resource, error) {
	return dayTx{db: r.db}.GetResource(ctx, resourceID)
}

func (r *ResourceRepo) UpdateTemplate(ctx context.Context, resourceID uuid.UUID, tpl domain.WeeklyTemplate, granularityMinutes int) (domain.Resource, error) {
	return r.update(ctx, resourceID, func(res *domain.Resource) []string {
		res.Template = tpl
		cols := []string{"weekly_template", "updated_at"}
		if granularityMinutes > 0 {
			res.GranularityMinutes = granularityMinutes
			cols = append(cols, "granularity_minutes")
		}
		return cols
	})
}

func (r *ResourceRepo) SetActive(ctx context.Context, resourceID uuid.UUID, active bool) (domain.Resource, error) {
	return r.update(ctx, resourceID, func(res *domain.Resource) []string {
		res.Active = active
		return []string{"active", "updated_at"}
	})
}

func (r *ResourceRepo) update(ctx context.Context, resourceID uuid.UUID, mutate func(res *domain.Resource) []string) (domain.Resource, error) {
	var out domain.Resource
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := dayTx{db: tx}.GetResource(ctx, resourceID)
		if err != nil {
			return err
		}
		cols := mutate(&res)
		if _, err := tx.NewUpdate().Model(&res).Column(cols...).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return domain.Resource{}, err
	}
	return out, nil
}

func (r *ResourceRepo) ListResources(ctx context.Context, includeInactive bool) ([]domain.Resource, error) {
	rows := make([]domain.Resource, 0)
	q := r.db.NewSelect().Model(&rows)
	if !includeInactive {
		q = q.Where("active")
	}
	if err := q.OrderExpr("name ASC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}
