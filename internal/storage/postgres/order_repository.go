package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

// OrderRepository persists orders and their issued tickets. It shares the
// ticket_types row helpers with TicketTypeRepository because an order
// transaction locks and adjusts the same counters.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *OrderRepository) GetTicketTypeForUpdate(ctx context.Context, id string) (domain.TicketType, error) {
	return getTicketTypeForUpdate(ctx, db(ctx, r.pool), id)
}

func (r *OrderRepository) AddCommitted(ctx context.Context, id string, delta int) error {
	return addCommitted(ctx, db(ctx, r.pool), id, delta)
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (id, session_id, buyer_email, status, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := db(ctx, r.pool).Exec(ctx, stmt,
		order.ID, order.SessionID, order.BuyerEmail, order.Status, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	const query = `SELECT id, session_id, buyer_email, status, created_at FROM orders WHERE id = $1`

	var o domain.Order
	var status string
	err := db(ctx, r.pool).QueryRow(ctx, query, id).
		Scan(&o.ID, &o.SessionID, &o.BuyerEmail, &status, &o.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	const stmt = `UPDATE orders SET status = $2 WHERE id = $1`

	tag, err := db(ctx, r.pool).Exec(ctx, stmt, id, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) CreateTickets(ctx context.Context, tickets []domain.IssuedTicket) error {
	const stmt = `
INSERT INTO issued_tickets (id, ticket_type_id, order_id, assistant_id, code, status, bundle_ref, created_at)
VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, NULLIF($7, '')::uuid, $8)`

	batch := &pgx.Batch{}
	for _, tk := range tickets {
		batch.Queue(stmt,
			tk.ID, tk.TicketTypeID, tk.OrderID, tk.AssistantID,
			tk.Code, tk.Status, tk.BundleRef, tk.CreatedAt,
		)
	}

	var results pgx.BatchResults
	if tx := txFromContext(ctx); tx != nil {
		results = tx.SendBatch(ctx, batch)
	} else {
		results = r.pool.SendBatch(ctx, batch)
	}
	defer results.Close()

	for range tickets {
		if _, err := results.Exec(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("ticket code collision: %w", err)
			}
			return fmt.Errorf("create tickets: %w", err)
		}
	}
	return results.Close()
}

func (r *OrderRepository) TicketsByOrder(ctx context.Context, orderID string) ([]domain.IssuedTicket, error) {
	const query = `
SELECT id, ticket_type_id, COALESCE(order_id::text, ''), assistant_id, code, status, COALESCE(bundle_ref::text, ''), created_at
FROM issued_tickets
WHERE order_id = $1
ORDER BY created_at ASC, id ASC`

	rows, err := db(ctx, r.pool).Query(ctx, query, orderID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.IssuedTicket
	for rows.Next() {
		var tk domain.IssuedTicket
		var status string
		if err := rows.Scan(
			&tk.ID, &tk.TicketTypeID, &tk.OrderID, &tk.AssistantID,
			&tk.Code, &status, &tk.BundleRef, &tk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tk.Status = domain.TicketStatus(status)
		tickets = append(tickets, tk)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate tickets: %w", rows.Err())
	}
	return tickets, nil
}

func (r *OrderRepository) CancelTicketsByOrder(ctx context.Context, orderID string) error {
	const stmt = `UPDATE issued_tickets SET status = $2 WHERE order_id = $1`

	_, err := db(ctx, r.pool).Exec(ctx, stmt, orderID, domain.TicketStatusCancelled)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("cancel tickets: %w", err)
	}
	return nil
}
