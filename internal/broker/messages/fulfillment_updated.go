package messages

import (
	"time"

	"github.com/CaseHive/fulfillsync/internal/models"
)

// FulfillmentUpdated is published after a reconciliation write was applied.
// Consumers (the storefront API, notification senders) treat it as a hint to
// re-read; the store remains the source of truth.
type FulfillmentUpdated struct {
	OrderID     uint64 `json:"order_id"`
	OrderNumber string `json:"order_number"`

	SupplierOrderID uint64 `json:"supplier_order_id"`
	SupplierCode    string `json:"supplier_code"`

	SupplierStatus models.FulfillmentStatus `json:"supplier_status"`
	OrderStatus    models.FulfillmentStatus `json:"order_status"`

	TrackingNumber *string `json:"tracking_number,omitempty"`
	Carrier        *string `json:"carrier,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}
