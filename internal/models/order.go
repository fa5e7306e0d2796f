package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supplier codes we can place dropship orders with.
const (
	SupplierAliExpress = "ALIEXPRESS"
	SupplierCJDropship = "CJDROPSHIP"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

type Order struct {
	ID          uint64
	OrderNumber string

	CustomerEmail   string
	ShippingAddress string

	Total decimal.Decimal

	Status        FulfillmentStatus
	PaymentStatus PaymentStatus

	TrackingNumber *string
	TrackingURL    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type SupplierOrder struct {
	ID           uint64
	OrderID      uint64
	SupplierCode string

	// The supplier's own order id. Absent until the order is actually
	// placed upstream; such records are never polled.
	SupplierOrderRef *string

	Status FulfillmentStatus

	Carrier        *string
	TrackingNumber *string
	TrackingURL    *string
	ShippedAt      *time.Time

	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderCreateInput struct {
	CustomerEmail   string
	ShippingAddress string
	Total           decimal.Decimal
}

type SupplierOrderCreateInput struct {
	OrderID          uint64
	SupplierCode     string
	SupplierOrderRef *string
}
