package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

const ticketTypeColumns = `id, name, price_cents, total, committed, is_bundle, bundle_size, visible, stage_group, stage_order, created_at`

// TicketTypeRepository owns the ticket_types table: capacity reads, the
// committed counter, visibility for stage cutovers, and the organizer CRUD.
type TicketTypeRepository struct {
	pool *pgxpool.Pool
}

func NewTicketTypeRepository(pool *pgxpool.Pool) *TicketTypeRepository {
	return &TicketTypeRepository{pool: pool}
}

func (r *TicketTypeRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *TicketTypeRepository) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1`
	return scanTicketType(db(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *TicketTypeRepository) GetTicketTypeForUpdate(ctx context.Context, id string) (domain.TicketType, error) {
	return getTicketTypeForUpdate(ctx, db(ctx, r.pool), id)
}

func (r *TicketTypeRepository) AddCommitted(ctx context.Context, id string, delta int) error {
	return addCommitted(ctx, db(ctx, r.pool), id, delta)
}

func (r *TicketTypeRepository) SetVisibility(ctx context.Context, id string, visible bool) error {
	const stmt = `UPDATE ticket_types SET visible = $2 WHERE id = $1`
	tag, err := db(ctx, r.pool).Exec(ctx, stmt, id, visible)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("set visibility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}
	return nil
}

func (r *TicketTypeRepository) ListStageGroup(ctx context.Context, stageGroup string) ([]domain.TicketType, error) {
	query := `
SELECT ` + ticketTypeColumns + `
FROM ticket_types
WHERE stage_group = $1
ORDER BY stage_order ASC`
	return r.list(ctx, query, stageGroup)
}

func (r *TicketTypeRepository) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	const stmt = `
INSERT INTO ticket_types (id, name, price_cents, total, committed, is_bundle, bundle_size, visible, stage_group, stage_order, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := db(ctx, r.pool).Exec(ctx, stmt,
		tt.ID, tt.Name, tt.PriceCents, tt.Total, tt.Committed,
		tt.IsBundle, tt.BundleSize, tt.Visible, tt.StageGroup, tt.StageOrder, tt.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create ticket type: %w", err)
	}
	return nil
}

func (r *TicketTypeRepository) ListTicketTypes(ctx context.Context) ([]domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types ORDER BY created_at ASC`
	return r.list(ctx, query)
}

func (r *TicketTypeRepository) list(ctx context.Context, query string, args ...any) ([]domain.TicketType, error) {
	rows, err := db(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()

	var types []domain.TicketType
	for rows.Next() {
		var tt domain.TicketType
		if err := rows.Scan(
			&tt.ID, &tt.Name, &tt.PriceCents, &tt.Total, &tt.Committed,
			&tt.IsBundle, &tt.BundleSize, &tt.Visible, &tt.StageGroup, &tt.StageOrder, &tt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		types = append(types, tt)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate ticket types: %w", rows.Err())
	}
	return types, nil
}

// getTicketTypeForUpdate and addCommitted are shared with OrderRepository: an
// order transaction touches the same row the stage and reservation paths read.

func getTicketTypeForUpdate(ctx context.Context, q querier, id string) (domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1 FOR UPDATE`
	return scanTicketType(q.QueryRow(ctx, query, id))
}

// addCommitted lets the database enforce the counter range: an update that
// would leave 0..total matches no row, and the caller learns whether the row
// was missing or the adjustment was out of bounds.
func addCommitted(ctx context.Context, q querier, id string, delta int) error {
	const stmt = `
UPDATE ticket_types
SET committed = committed + $2
WHERE id = $1 AND committed + $2 BETWEEN 0 AND total`

	tag, err := q.Exec(ctx, stmt, id, delta)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("add committed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticket_types WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check ticket type: %w", err)
		}
		if !exists {
			return domain.ErrTicketTypeNotFound
		}
		return domain.ErrInvariantViolation
	}
	return nil
}

func scanTicketType(row pgx.Row) (domain.TicketType, error) {
	var tt domain.TicketType
	err := row.Scan(
		&tt.ID, &tt.Name, &tt.PriceCents, &tt.Total, &tt.Committed,
		&tt.IsBundle, &tt.BundleSize, &tt.Visible, &tt.StageGroup, &tt.StageOrder, &tt.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TicketType{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.TicketType{}, domain.ErrTicketTypeNotFound
		}
		return domain.TicketType{}, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}
