package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/CaseHive/fulfillsync/internal/broker/messages"
	"github.com/CaseHive/fulfillsync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	createIn  models.OrderCreateInput
	createOut *models.Order
	createErr error

	soIn  models.SupplierOrderCreateInput
	soOut *models.SupplierOrder

	getNumber   string
	getOut      *models.Order
	getChildren []*models.SupplierOrder
	getErr      error
	getCalls    int

	confirmNumber string
	confirmOut    *models.Order

	overrideID     uint64
	overrideStatus models.FulfillmentStatus
}

func (f *fakeRepo) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	f.createIn = in
	return f.createOut, f.createErr
}

func (f *fakeRepo) CreateSupplierOrder(ctx context.Context, in models.SupplierOrderCreateInput) (*models.SupplierOrder, error) {
	f.soIn = in
	return f.soOut, nil
}

func (f *fakeRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, []*models.SupplierOrder, error) {
	f.getNumber = orderNumber
	f.getCalls++
	return f.getOut, f.getChildren, f.getErr
}

func (f *fakeRepo) ConfirmPayment(ctx context.Context, orderNumber string) (*models.Order, error) {
	f.confirmNumber = orderNumber
	return f.confirmOut, nil
}

func (f *fakeRepo) SetSupplierOrderStatus(ctx context.Context, supplierOrderID uint64, status models.FulfillmentStatus) error {
	f.overrideID = supplierOrderID
	f.overrideStatus = status
	return nil
}

type fakeCache struct {
	m map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.m, key)
	return nil
}

func TestService_PlaceOrder_Validate(t *testing.T) {
	s := New(&fakeRepo{}, nil, 0)

	_, err := s.PlaceOrder(context.Background(), models.OrderCreateInput{Total: decimal.NewFromInt(1)})
	require.Error(t, err)

	_, err = s.PlaceOrder(context.Background(), models.OrderCreateInput{CustomerEmail: "a@b.c"})
	require.Error(t, err)

	r := &fakeRepo{createOut: &models.Order{ID: 1, OrderNumber: "SO-AB12CD34"}}
	s = New(r, nil, 0)
	o, err := s.PlaceOrder(context.Background(), models.OrderCreateInput{
		CustomerEmail: "a@b.c",
		Total:         decimal.RequireFromString("24.99"),
	})
	require.NoError(t, err)
	require.Equal(t, "SO-AB12CD34", o.OrderNumber)
}

func TestService_AddSupplierOrder_Validate(t *testing.T) {
	s := New(&fakeRepo{}, nil, 0)

	_, err := s.AddSupplierOrder(context.Background(), models.SupplierOrderCreateInput{SupplierCode: "X"})
	require.Error(t, err)

	_, err = s.AddSupplierOrder(context.Background(), models.SupplierOrderCreateInput{OrderID: 1})
	require.Error(t, err)
}

func TestService_OverrideSupplierOrderStatus(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, 0)

	require.Error(t, s.OverrideSupplierOrderStatus(context.Background(), 0, models.StatusCancelled))
	require.Error(t, s.OverrideSupplierOrderStatus(context.Background(), 5, "BOGUS"))

	require.NoError(t, s.OverrideSupplierOrderStatus(context.Background(), 5, models.StatusCancelled))
	require.Equal(t, uint64(5), r.overrideID)
	require.Equal(t, models.StatusCancelled, r.overrideStatus)
}

func TestService_GetOrderByNumber_CacheHit(t *testing.T) {
	r := &fakeRepo{}
	c := newFakeCache()
	s := New(r, c, 10*time.Minute)

	want := &OrderView{Order: &models.Order{ID: 7, OrderNumber: "SO-1", Status: models.StatusShipped}}
	b, _ := json.Marshal(want)
	c.m["order:SO-1:current"] = b

	v, err := s.GetOrderByNumber(context.Background(), "SO-1")
	require.NoError(t, err)
	require.Equal(t, uint64(7), v.Order.ID)
	require.Zero(t, r.getCalls)
}

func TestService_GetOrderByNumber_MissPopulatesCache(t *testing.T) {
	r := &fakeRepo{
		getOut:      &models.Order{ID: 7, OrderNumber: "SO-1", Status: models.StatusProcessing},
		getChildren: []*models.SupplierOrder{{ID: 1, OrderID: 7}},
	}
	c := newFakeCache()
	s := New(r, c, 10*time.Minute)

	v, err := s.GetOrderByNumber(context.Background(), "SO-1")
	require.NoError(t, err)
	require.Len(t, v.SupplierOrders, 1)
	require.Contains(t, c.m, "order:SO-1:current")
}

func TestService_GetOrderByNumber_NotFound(t *testing.T) {
	s := New(&fakeRepo{}, nil, 0)
	v, err := s.GetOrderByNumber(context.Background(), "SO-NOPE")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestService_ConfirmPayment_EvictsCache(t *testing.T) {
	r := &fakeRepo{confirmOut: &models.Order{ID: 7, OrderNumber: "SO-1", Status: models.StatusConfirmed}}
	c := newFakeCache()
	c.m["order:SO-1:current"] = []byte("stale")
	s := New(r, c, 10*time.Minute)

	o, err := s.ConfirmPayment(context.Background(), "SO-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, o.Status)
	require.NotContains(t, c.m, "order:SO-1:current")
}

func TestService_HandleFulfillmentUpdated_RefreshesCache(t *testing.T) {
	r := &fakeRepo{
		getOut: &models.Order{ID: 7, OrderNumber: "SO-1", Status: models.StatusShipped},
	}
	c := newFakeCache()
	c.m["order:SO-1:current"] = []byte("stale")
	s := New(r, c, 10*time.Minute)

	err := s.HandleFulfillmentUpdated(context.Background(), messages.FulfillmentUpdated{
		OrderID:     7,
		OrderNumber: "SO-1",
		OrderStatus: models.StatusShipped,
	})
	require.NoError(t, err)

	var v OrderView
	require.NoError(t, json.Unmarshal(c.m["order:SO-1:current"], &v))
	require.Equal(t, models.StatusShipped, v.Order.Status)
}

func TestService_HandleFulfillmentUpdated_MissingOrderEvicts(t *testing.T) {
	c := newFakeCache()
	c.m["order:SO-2:current"] = []byte("stale")
	s := New(&fakeRepo{}, c, 10*time.Minute)

	err := s.HandleFulfillmentUpdated(context.Background(), messages.FulfillmentUpdated{OrderNumber: "SO-2"})
	require.NoError(t, err)
	require.NotContains(t, c.m, "order:SO-2:current")
}
