package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CaseHive/fulfillsync/internal/broker/messages"
	"github.com/CaseHive/fulfillsync/internal/cache"
	"github.com/CaseHive/fulfillsync/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
	CreateSupplierOrder(ctx context.Context, in models.SupplierOrderCreateInput) (*models.SupplierOrder, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, []*models.SupplierOrder, error)
	ConfirmPayment(ctx context.Context, orderNumber string) (*models.Order, error)
	SetSupplierOrderStatus(ctx context.Context, supplierOrderID uint64, status models.FulfillmentStatus) error
}

// OrderView is what the storefront shows: the order plus its supplier legs.
type OrderView struct {
	Order          *models.Order           `json:"order"`
	SupplierOrders []*models.SupplierOrder `json:"supplierOrders"`
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL}
}

func (s *Service) PlaceOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	if in.CustomerEmail == "" {
		return nil, errors.New("customerEmail is required")
	}
	if in.Total.IsNegative() || in.Total.IsZero() {
		return nil, errors.New("total must be positive")
	}
	return s.repo.CreateOrder(ctx, in)
}

func (s *Service) AddSupplierOrder(ctx context.Context, in models.SupplierOrderCreateInput) (*models.SupplierOrder, error) {
	if in.OrderID == 0 {
		return nil, errors.New("orderId is required")
	}
	if in.SupplierCode == "" {
		return nil, errors.New("supplierCode is required")
	}
	return s.repo.CreateSupplierOrder(ctx, in)
}

// GetOrderByNumber serves the customer-visible order view. The cache is best
// effort; a miss or a broken entry just falls through to the store.
func (s *Service) GetOrderByNumber(ctx context.Context, orderNumber string) (*OrderView, error) {
	if orderNumber == "" {
		return nil, errors.New("orderNumber is required")
	}

	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, currentKey(orderNumber)); err == nil && ok {
			var v OrderView
			if json.Unmarshal(b, &v) == nil {
				return &v, nil
			}
		}
	}

	o, children, err := s.repo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, nil
	}

	v := &OrderView{Order: o, SupplierOrders: children}
	if s.cacheEnabled() {
		if b, err := json.Marshal(v); err == nil {
			_ = s.cache.Set(ctx, currentKey(orderNumber), b, s.currentTTL)
		}
	}
	return v, nil
}

// ConfirmPayment is the payment webhook's effect: mark paid, move a PENDING
// order to CONFIRMED, refresh the cached view.
func (s *Service) ConfirmPayment(ctx context.Context, orderNumber string) (*models.Order, error) {
	if orderNumber == "" {
		return nil, errors.New("orderNumber is required")
	}
	o, err := s.repo.ConfirmPayment(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if o != nil && s.cacheEnabled() {
		_ = s.cache.Delete(ctx, currentKey(orderNumber))
	}
	return o, nil
}

// OverrideSupplierOrderStatus is the support/ops path: force a supplier leg
// into a state (usually CANCELLED after cancelling upstream), skipping the
// forward-only rule. The parent order is recomputed by the store.
func (s *Service) OverrideSupplierOrderStatus(ctx context.Context, supplierOrderID uint64, status models.FulfillmentStatus) error {
	if supplierOrderID == 0 {
		return errors.New("supplierOrderId is required")
	}
	if !status.Valid() {
		return errors.Errorf("invalid status %q", status)
	}
	return s.repo.SetSupplierOrderStatus(ctx, supplierOrderID, status)
}

// HandleFulfillmentUpdated is the kafka consumer path: a reconciliation write
// landed somewhere, so the cached view for that order is stale.
func (s *Service) HandleFulfillmentUpdated(ctx context.Context, msg messages.FulfillmentUpdated) error {
	if msg.OrderNumber == "" {
		return errors.New("order_number is required")
	}
	if !s.cacheEnabled() {
		return nil
	}

	o, children, err := s.repo.GetOrderByNumber(ctx, msg.OrderNumber)
	if err != nil || o == nil {
		// Eviction is the safe fallback; the next read repopulates.
		_ = s.cache.Delete(ctx, currentKey(msg.OrderNumber))
		return err
	}
	b, merr := json.Marshal(&OrderView{Order: o, SupplierOrders: children})
	if merr != nil {
		return errors.Wrap(merr, "marshal order view")
	}
	return s.cache.Set(ctx, currentKey(msg.OrderNumber), b, s.currentTTL)
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

func currentKey(orderNumber string) string {
	return fmt.Sprintf("order:%s:current", orderNumber)
}
