package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  customer_email TEXT NOT NULL,
  shipping_address TEXT NOT NULL DEFAULT '',
  total NUMERIC(12,2) NOT NULL,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'PENDING',
  tracking_number TEXT NULL,
  tracking_url TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS supplier_orders (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id),
  supplier_code TEXT NOT NULL,
  supplier_order_ref TEXT NULL,
  status TEXT NOT NULL,
  carrier TEXT NULL,
  tracking_number TEXT NULL,
  tracking_url TEXT NULL,
  shipped_at TIMESTAMPTZ NULL,
  last_checked_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_supplier_orders_order_id ON supplier_orders(order_id)`,
		// Partial index matching the in-flight filter of the reconciliation pass.
		`
CREATE INDEX IF NOT EXISTS idx_supplier_orders_in_flight
ON supplier_orders(id)
WHERE status IN ('PLACED','PROCESSING','SHIPPED') AND supplier_order_ref IS NOT NULL`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
