package pgorders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CaseHive/fulfillsync/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func newOrderNumber() string {
	// Short, human-quotable, never reused.
	return "SO-" + strings.ToUpper(uuid.NewString()[:8])
}

func (s *Storage) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	now := time.Now().UTC()

	var o models.Order
	err := s.db.QueryRow(ctx, `
INSERT INTO orders (
  order_number, customer_email, shipping_address, total, status, payment_status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
RETURNING id, order_number, created_at, updated_at
`, newOrderNumber(), in.CustomerEmail, in.ShippingAddress, in.Total,
		models.StatusPending, models.PaymentPending, now,
	).Scan(&o.ID, &o.OrderNumber, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}

	o.CustomerEmail = in.CustomerEmail
	o.ShippingAddress = in.ShippingAddress
	o.Total = in.Total
	o.Status = models.StatusPending
	o.PaymentStatus = models.PaymentPending
	return &o, nil
}

// CreateSupplierOrder records the portion of an order placed with one
// supplier and promotes the parent to PLACED if it is still behind.
func (s *Storage) CreateSupplierOrder(ctx context.Context, in models.SupplierOrderCreateInput) (*models.SupplierOrder, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var so models.SupplierOrder
	err = tx.QueryRow(ctx, `
INSERT INTO supplier_orders (
  order_id, supplier_code, supplier_order_ref, status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$5)
RETURNING id, created_at, updated_at
`, in.OrderID, in.SupplierCode, in.SupplierOrderRef, models.StatusPlaced, now,
	).Scan(&so.ID, &so.CreatedAt, &so.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert supplier order")
	}
	so.OrderID = in.OrderID
	so.SupplierCode = in.SupplierCode
	so.SupplierOrderRef = in.SupplierOrderRef
	so.Status = models.StatusPlaced

	_, err = tx.Exec(ctx, `
UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1 AND status IN ($3, $4)
`, in.OrderID, models.StatusPlaced, models.StatusPending, models.StatusConfirmed)
	if err != nil {
		return nil, errors.Wrap(err, "promote order to placed")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &so, nil
}

func (s *Storage) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, []*models.SupplierOrder, error) {
	var o models.Order
	err := s.db.QueryRow(ctx, `
SELECT id, order_number, customer_email, shipping_address, total,
       status, payment_status, tracking_number, tracking_url, created_at, updated_at
FROM orders
WHERE order_number = $1
`, orderNumber).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerEmail, &o.ShippingAddress, &o.Total,
		&o.Status, &o.PaymentStatus, &o.TrackingNumber, &o.TrackingURL, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "select order")
	}

	rows, err := s.db.Query(ctx, supplierOrderColumns+`
FROM supplier_orders
WHERE order_id = $1
ORDER BY id
`, o.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "select supplier orders")
	}
	defer rows.Close()

	children, err := scanSupplierOrders(rows)
	if err != nil {
		return nil, nil, err
	}
	return &o, children, nil
}

// ConfirmPayment is the write path of the payment webhook: it marks the
// order paid and moves PENDING to CONFIRMED, leaving any further-along
// status untouched.
func (s *Storage) ConfirmPayment(ctx context.Context, orderNumber string) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRow(ctx, `
UPDATE orders
SET payment_status = $2,
    status = CASE WHEN status = $3 THEN $4 ELSE status END,
    updated_at = now()
WHERE order_number = $1
RETURNING id, order_number, customer_email, shipping_address, total,
          status, payment_status, tracking_number, tracking_url, created_at, updated_at
`, orderNumber, models.PaymentPaid, models.StatusPending, models.StatusConfirmed).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerEmail, &o.ShippingAddress, &o.Total,
		&o.Status, &o.PaymentStatus, &o.TrackingNumber, &o.TrackingURL, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}
	return &o, nil
}

const supplierOrderColumns = `
SELECT id, order_id, supplier_code, supplier_order_ref, status,
       carrier, tracking_number, tracking_url, shipped_at, last_checked_at,
       created_at, updated_at
`

// FindInFlight pages through supplier orders that still need polling:
// non-terminal status, a supplier ref, and a tracking-capable supplier.
// Keyset pagination by id; each pass starts from afterID=0 for a fresh
// snapshot.
func (s *Storage) FindInFlight(ctx context.Context, supplierCodes []string, afterID uint64, limit int) ([]*models.SupplierOrder, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := s.db.Query(ctx, supplierOrderColumns+`
FROM supplier_orders
WHERE id > $1
  AND status = ANY($2)
  AND supplier_order_ref IS NOT NULL
  AND supplier_code = ANY($3)
ORDER BY id
LIMIT $4
`, afterID,
		[]string{string(models.StatusPlaced), string(models.StatusProcessing), string(models.StatusShipped)},
		supplierCodes, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select in-flight supplier orders")
	}
	defer rows.Close()

	return scanSupplierOrders(rows)
}

type ReconcileUpdate struct {
	SupplierOrderID uint64

	// The status the caller observed before deciding to write. The write is
	// refused with ErrConflict if the row no longer matches.
	ExpectedStatus models.FulfillmentStatus

	// NewStatus may equal ExpectedStatus when only tracking fields arrived.
	NewStatus models.FulfillmentStatus

	Carrier        *string
	TrackingNumber *string
	TrackingURL    *string
	ShippedAt      *time.Time

	CheckedAt time.Time
}

type ApplyResult struct {
	OrderID            uint64
	OrderNumber        string
	OrderStatus        models.FulfillmentStatus
	OrderStatusChanged bool
}

// ApplyReconciliation conditionally updates one supplier order and recomputes
// the parent order's derived status in the same transaction.
func (s *Storage) ApplyReconciliation(ctx context.Context, upd ReconcileUpdate) (ApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stored models.FulfillmentStatus
	var orderID uint64
	err = tx.QueryRow(ctx, `
SELECT status, order_id FROM supplier_orders WHERE id = $1 FOR UPDATE
`, upd.SupplierOrderID).Scan(&stored, &orderID)
	if err == pgx.ErrNoRows {
		return ApplyResult{}, errors.Wrapf(ErrConflict, "supplier order %d is gone", upd.SupplierOrderID)
	}
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "lock supplier order")
	}
	if stored != upd.ExpectedStatus {
		return ApplyResult{}, errors.Wrapf(ErrConflict, "expected %s, stored %s", upd.ExpectedStatus, stored)
	}

	_, err = tx.Exec(ctx, `
UPDATE supplier_orders
SET status = $2,
    carrier = COALESCE($3, carrier),
    tracking_number = COALESCE($4, tracking_number),
    tracking_url = COALESCE($5, tracking_url),
    shipped_at = COALESCE($6, shipped_at),
    last_checked_at = $7,
    updated_at = now()
WHERE id = $1
`, upd.SupplierOrderID, upd.NewStatus,
		upd.Carrier, upd.TrackingNumber, upd.TrackingURL, upd.ShippedAt, upd.CheckedAt.UTC())
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "update supplier order")
	}

	res, err := recomputeOrder(ctx, tx, orderID, upd)
	if err != nil {
		return ApplyResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ApplyResult{}, errors.Wrap(err, "commit tx")
	}
	return res, nil
}

func recomputeOrder(ctx context.Context, tx pgx.Tx, orderID uint64, upd ReconcileUpdate) (ApplyResult, error) {
	var current models.FulfillmentStatus
	var orderNumber string
	err := tx.QueryRow(ctx, `
SELECT status, order_number FROM orders WHERE id = $1 FOR UPDATE
`, orderID).Scan(&current, &orderNumber)
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "lock order")
	}

	rows, err := tx.Query(ctx, `SELECT status FROM supplier_orders WHERE order_id = $1`, orderID)
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "select child statuses")
	}
	var children []models.FulfillmentStatus
	for rows.Next() {
		var st models.FulfillmentStatus
		if err := rows.Scan(&st); err != nil {
			rows.Close()
			return ApplyResult{}, errors.Wrap(err, "scan child status")
		}
		children = append(children, st)
	}
	rows.Close()
	if rows.Err() != nil {
		return ApplyResult{}, errors.Wrap(rows.Err(), "rows")
	}

	derived := models.DeriveOrderStatus(current, children)

	_, err = tx.Exec(ctx, `
UPDATE orders
SET status = $2,
    tracking_number = COALESCE(tracking_number, $3),
    tracking_url = COALESCE(tracking_url, $4),
    updated_at = now()
WHERE id = $1
`, orderID, derived, upd.TrackingNumber, upd.TrackingURL)
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "update order")
	}

	return ApplyResult{
		OrderID:            orderID,
		OrderNumber:        orderNumber,
		OrderStatus:        derived,
		OrderStatusChanged: derived != current,
	}, nil
}

func scanSupplierOrders(rows pgx.Rows) ([]*models.SupplierOrder, error) {
	var out []*models.SupplierOrder
	for rows.Next() {
		var so models.SupplierOrder
		if err := rows.Scan(
			&so.ID, &so.OrderID, &so.SupplierCode, &so.SupplierOrderRef, &so.Status,
			&so.Carrier, &so.TrackingNumber, &so.TrackingURL, &so.ShippedAt, &so.LastCheckedAt,
			&so.CreatedAt, &so.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan supplier order")
		}
		out = append(out, &so)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// SetSupplierOrderStatus is the admin override path (cancel upstream, force a
// state). It bypasses the merge rule on purpose but still recomputes the
// parent.
func (s *Storage) SetSupplierOrderStatus(ctx context.Context, supplierOrderID uint64, status models.FulfillmentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderID uint64
	err = tx.QueryRow(ctx, `
UPDATE supplier_orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING order_id
`, supplierOrderID, status).Scan(&orderID)
	if err != nil {
		return errors.Wrap(err, "set supplier order status")
	}

	if _, err := recomputeOrder(ctx, tx, orderID, ReconcileUpdate{}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
