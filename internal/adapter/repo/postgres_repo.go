package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/kitchen-order-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresOrderRepo struct {
	Pool      *pgxpool.Pool
	TxTimeout time.Duration
}

func NewPostgresOrderRepo(pool *pgxpool.Pool, txTimeout time.Duration) *PostgresOrderRepo {
	return &PostgresOrderRepo{Pool: pool, TxTimeout: txTimeout}
}

func (r *PostgresOrderRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.Pool, r.TxTimeout, fn)
}

// InsertOrders writes the whole batch with one INSERT over unnest'ed arrays.
func (r *PostgresOrderRepo) InsertOrders(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	customers := make([]string, len(orders))
	statuses := make([]int32, len(orders))
	created := make([]time.Time, len(orders))
	updated := make([]time.Time, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		customers[i] = o.CustomerID
		statuses[i] = int32(o.StatusID)
		created[i] = o.CreatedAt
		updated[i] = o.UpdatedAt
	}

	const stmt = `
INSERT INTO orders (id, customer_id, status_id, created_at, updated_at)
SELECT t.id::uuid, t.customer_id::uuid, t.status_id, t.created_at, t.updated_at
FROM unnest($1::text[], $2::text[], $3::int4[], $4::timestamptz[], $5::timestamptz[])
  AS t(id, customer_id, status_id, created_at, updated_at)`

	tag, err := r.exec(ctx, stmt, ids, customers, statuses, created, updated)
	if err != nil {
		switch pgErrorCode(err) {
		case codeUniqueViolation:
			return fmt.Errorf("insert orders: duplicate id: %w", err)
		case codeForeignKeyViolation:
			return fmt.Errorf("insert orders: unknown status: %w", err)
		case codeInvalidText:
			return fmt.Errorf("insert orders: malformed identifier: %w", err)
		}
		return fmt.Errorf("insert orders: %w", err)
	}
	if int(tag.RowsAffected()) != len(orders) {
		return fmt.Errorf("insert orders: wrote %d of %d rows", tag.RowsAffected(), len(orders))
	}
	return nil
}

// UpdateStatus sets status_id and, when present on the update, recipe_name.
// The written row is returned so callers can refresh derived copies.
func (r *PostgresOrderRepo) UpdateStatus(ctx context.Context, u domain.StatusUpdate) (domain.Order, bool, error) {
	const stmt = `
UPDATE orders
SET status_id   = $2,
    recipe_name = CASE WHEN $3::boolean THEN $4::text ELSE recipe_name END,
    updated_at  = $5
WHERE id = $1
RETURNING ` + orderColumns

	o, err := scanOrder(r.queryRow(ctx, stmt, u.OrderID, u.StatusID, u.RecipeName.Set, u.RecipeName.Value, u.UpdatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, false, nil
		}
		if pgErrorCode(err) == codeForeignKeyViolation {
			return domain.Order{}, false, fmt.Errorf("update order %s: unknown status %d: %w", u.OrderID, u.StatusID, err)
		}
		return domain.Order{}, false, fmt.Errorf("update order %s: %w", u.OrderID, err)
	}
	return o, true, nil
}

const orderColumns = `id, customer_id, status_id, recipe_name, created_at, updated_at`

func (r *PostgresOrderRepo) GetByID(ctx context.Context, id string) (domain.Order, bool, error) {
	row := r.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgErrorCode(err) == codeInvalidText {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, fmt.Errorf("get order: %w", err)
	}
	return o, true, nil
}

func (r *PostgresOrderRepo) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int, error) {
	var (
		where []string
		args  []any
	)
	if f.StatusID > 0 {
		args = append(args, f.StatusID)
		where = append(where, fmt.Sprintf("status_id = $%d", len(args)))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, clause, len(args)-1, len(args))

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, f.Limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

func (r *PostgresOrderRepo) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	rows, err := r.query(ctx, `SELECT id, name FROM status ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()
	var out []domain.Status
	for rows.Next() {
		var s domain.Status
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.StatusID, &o.RecipeName, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (r *PostgresOrderRepo) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.Pool.Exec(ctx, sql, args...)
}

func (r *PostgresOrderRepo) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.Pool.QueryRow(ctx, sql, args...)
}

func (r *PostgresOrderRepo) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.Pool.Query(ctx, sql, args...)
}

var _ domain.OrderRepository = (*PostgresOrderRepo)(nil)
