package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/CaseHive/fulfillsync/internal/models"
	"github.com/CaseHive/fulfillsync/internal/services/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	confirmed  []string
	overridden map[uint64]models.FulfillmentStatus
}

func (r *fakeRepo) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	return &models.Order{
		ID:            1,
		OrderNumber:   "SO-AB12CD34",
		CustomerEmail: in.CustomerEmail,
		Total:         in.Total,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
	}, nil
}

func (r *fakeRepo) CreateSupplierOrder(ctx context.Context, in models.SupplierOrderCreateInput) (*models.SupplierOrder, error) {
	return &models.SupplierOrder{
		ID:           10,
		OrderID:      in.OrderID,
		SupplierCode: in.SupplierCode,
		Status:       models.StatusPlaced,
	}, nil
}

func (r *fakeRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, []*models.SupplierOrder, error) {
	if orderNumber != "SO-AB12CD34" {
		return nil, nil, nil
	}
	return &models.Order{ID: 1, OrderNumber: orderNumber, Status: models.StatusShipped},
		[]*models.SupplierOrder{{ID: 10, OrderID: 1, SupplierCode: models.SupplierAliExpress, Status: models.StatusShipped}},
		nil
}

func (r *fakeRepo) ConfirmPayment(ctx context.Context, orderNumber string) (*models.Order, error) {
	if orderNumber != "SO-AB12CD34" {
		return nil, nil
	}
	r.confirmed = append(r.confirmed, orderNumber)
	return &models.Order{ID: 1, OrderNumber: orderNumber, Status: models.StatusConfirmed, PaymentStatus: models.PaymentPaid}, nil
}

func (r *fakeRepo) SetSupplierOrderStatus(ctx context.Context, supplierOrderID uint64, status models.FulfillmentStatus) error {
	if r.overridden == nil {
		r.overridden = map[uint64]models.FulfillmentStatus{}
	}
	r.overridden[supplierOrderID] = status
	return nil
}

type fakeConsumer struct{}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func startShopAPI(t *testing.T, repo *fakeRepo) string {
	t.Helper()

	svc := orders.New(repo, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runShopAPI(ctx, shopAPIOpts{
			httpAddr:      "127.0.0.1:0",
			topic:         "order.fulfillment.updated",
			consumerGroup: "shop-api-test",
			onListen:      func(addr string) { addrCh <- addr },
		}, svc, fakeConsumer{})
	}()

	select {
	case addr := <-addrCh:
		return addr
	case err := <-errCh:
		t.Fatalf("shop API failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting shop API to start")
	}
	return ""
}

func TestShopAPI_GetOrder(t *testing.T) {
	addr := startShopAPI(t, &fakeRepo{})

	resp, err := http.Get("http://" + addr + "/orders/SO-AB12CD34")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view orders.OrderView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.Equal(t, "SO-AB12CD34", view.Order.OrderNumber)
	require.Equal(t, models.StatusShipped, view.Order.Status)
	require.Len(t, view.SupplierOrders, 1)
}

func TestShopAPI_GetOrder_NotFound(t *testing.T) {
	addr := startShopAPI(t, &fakeRepo{})

	resp, err := http.Get("http://" + addr + "/orders/SO-MISSING")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShopAPI_PlaceOrder_Validation(t *testing.T) {
	addr := startShopAPI(t, &fakeRepo{})

	body := bytes.NewBufferString(`{"shippingAddress":"nowhere","total":"10.00"}`)
	resp, err := http.Post("http://"+addr+"/orders", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShopAPI_PlaceOrder(t *testing.T) {
	addr := startShopAPI(t, &fakeRepo{})

	body := bytes.NewBufferString(`{"customerEmail":"a@b.c","shippingAddress":"nowhere","total":"19.99"}`)
	resp, err := http.Post("http://"+addr+"/orders", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order models.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	require.Equal(t, "SO-AB12CD34", order.OrderNumber)
	require.True(t, order.Total.Equal(decimal.RequireFromString("19.99")))
}

func TestShopAPI_PaymentWebhook(t *testing.T) {
	repo := &fakeRepo{}
	addr := startShopAPI(t, repo)

	body := bytes.NewBufferString(`{"orderNumber":"SO-AB12CD34","status":"paid"}`)
	resp, err := http.Post("http://"+addr+"/webhooks/payment", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"SO-AB12CD34"}, repo.confirmed)

	var order models.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	require.Equal(t, models.PaymentPaid, order.PaymentStatus)
}

func TestShopAPI_OverrideSupplierOrderStatus(t *testing.T) {
	repo := &fakeRepo{}
	addr := startShopAPI(t, repo)

	body := bytes.NewBufferString(`{"status":"CANCELLED"}`)
	resp, err := http.Post("http://"+addr+"/supplier-orders/10/status", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, models.StatusCancelled, repo.overridden[10])

	body = bytes.NewBufferString(`{"status":"BOGUS"}`)
	resp2, err := http.Post("http://"+addr+"/supplier-orders/10/status", "application/json", body)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestShopAPI_PaymentWebhook_IgnoresNonPaid(t *testing.T) {
	repo := &fakeRepo{}
	addr := startShopAPI(t, repo)

	body := bytes.NewBufferString(`{"orderNumber":"SO-AB12CD34","status":"failed"}`)
	resp, err := http.Post("http://"+addr+"/webhooks/payment", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, repo.confirmed)
}
