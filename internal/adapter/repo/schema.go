package repo

import (
	"context"
	"fmt"

	"github.com/example/kitchen-order-service/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the order tables if missing and seeds the status vocabulary.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS status (
  id   integer PRIMARY KEY,
  name text    NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS orders (
  id          uuid        PRIMARY KEY,
  customer_id uuid        NOT NULL,
  status_id   integer     NOT NULL DEFAULT 1 REFERENCES status(id),
  recipe_name text,
  created_at  timestamptz NOT NULL DEFAULT now(),
  updated_at  timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_customer_created ON orders (customer_id, created_at DESC);`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	for _, s := range domain.DefaultStatuses {
		if _, err := pool.Exec(ctx,
			`INSERT INTO status (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			s.ID, s.Name,
		); err != nil {
			return fmt.Errorf("seed status %s: %w", s.Name, err)
		}
	}
	return nil
}
