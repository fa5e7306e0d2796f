package aliexpresshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/CaseHive/fulfillsync/internal/integrations/supplier"
	"github.com/CaseHive/fulfillsync/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	appKey  string
	httpc   *http.Client
}

func New(baseURL, appKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api-sg.aliexpress.com"
	}
	return &Client{
		baseURL: baseURL,
		appKey:  appKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type orderResp struct {
	Result struct {
		OrderStatus     string `json:"order_status"`
		LogisticsStatus string `json:"logistics_status"`
		Logistics       []struct {
			LogisticsNo      string `json:"logistics_no"`
			LogisticsService string `json:"logistics_service"`
			TrackingURL      string `json:"tracking_url"`
			GmtSendGoodsTime string `json:"gmt_send_goods_time"`
		} `json:"logistics_list"`
	} `json:"aliexpress_trade_ds_order_get_response"`
	ErrorResponse *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error_response"`
}

func (c *Client) FetchTracking(ctx context.Context, supplierOrderRef string) (supplier.TrackingSnapshot, error) {
	if c.appKey == "" {
		return supplier.TrackingSnapshot{}, supplier.Unsupported(errors.New("aliexpress app key is not configured"))
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return supplier.TrackingSnapshot{}, supplier.Unsupported(errors.Wrap(err, "parse base url"))
	}
	u.Path = "/sync"
	q := u.Query()
	q.Set("method", "aliexpress.trade.ds.order.get")
	q.Set("app_key", c.appKey)
	q.Set("order_id", supplierOrderRef)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return supplier.TrackingSnapshot{}, supplier.Transient(errors.Wrap(err, "new request"))
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return supplier.TrackingSnapshot{}, supplier.Transient(errors.Wrap(err, "do request"))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return supplier.TrackingSnapshot{}, supplier.NotFound(fmt.Errorf("aliexpress http %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return supplier.TrackingSnapshot{}, supplier.Unsupported(fmt.Errorf("aliexpress http %d", resp.StatusCode))
	case resp.StatusCode/100 != 2:
		return supplier.TrackingSnapshot{}, supplier.Transient(fmt.Errorf("aliexpress http %d", resp.StatusCode))
	}

	var r orderResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return supplier.TrackingSnapshot{}, supplier.Transient(errors.Wrap(err, "decode"))
	}
	if r.ErrorResponse != nil {
		return supplier.TrackingSnapshot{}, supplier.NotFound(fmt.Errorf("aliexpress error %d: %s", r.ErrorResponse.Code, r.ErrorResponse.Msg))
	}

	snap := supplier.TrackingSnapshot{
		NativeStatus: r.Result.OrderStatus,
	}
	if len(r.Result.Logistics) > 0 {
		lg := r.Result.Logistics[0]
		if lg.LogisticsNo != "" {
			snap.TrackingNumber = strPtr(lg.LogisticsNo)
		}
		if lg.LogisticsService != "" {
			snap.Carrier = strPtr(lg.LogisticsService)
		}
		if lg.TrackingURL != "" {
			snap.TrackingURL = strPtr(lg.TrackingURL)
		}
		// Example: "2025-06-02 19:16:00" (supplier local time, treated as UTC).
		if lg.GmtSendGoodsTime != "" {
			if t, err := time.ParseInLocation("2006-01-02 15:04:05", lg.GmtSendGoodsTime, time.UTC); err == nil {
				tt := t.UTC()
				snap.ShippedAt = &tt
			}
		}
	}
	return snap, nil
}

// MapStatus translates AliExpress dropship order statuses. Anything outside
// the table is treated as no information.
func MapStatus(native string) (models.FulfillmentStatus, bool) {
	switch native {
	case "PLACE_ORDER_SUCCESS":
		return models.StatusPlaced, true
	case "WAIT_SELLER_SEND_GOODS":
		return models.StatusProcessing, true
	case "SELLER_PART_SEND_GOODS", "WAIT_BUYER_ACCEPT_GOODS":
		return models.StatusShipped, true
	case "FINISH":
		return models.StatusDelivered, true
	case "IN_CANCEL", "ORDER_CLOSED":
		return models.StatusCancelled, true
	}
	return "", false
}

func strPtr(s string) *string { return &s }
