package cjhttp

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
	baseURL     string
	accessToken string
	httpc       *http.Client
}

func New(baseURL, accessToken string) *Client {
	if baseURL == "" {
		baseURL = "https://developers.cjdropshipping.com/api2.0/v1"
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type orderDetailResp struct {
	Code    int    `json:"code"`
	Result  bool   `json:"result"`
	Message string `json:"message"`
	Data    *struct {
		OrderID      string `json:"orderId"`
		OrderStatus  string `json:"orderStatus"`
		TrackNumber  string `json:"trackNumber"`
		LogisticName string `json:"logisticName"`
		ShippedDate  string `json:"shippedDate"`
	} `json:"data"`
}

func (c *Client) FetchTracking(ctx context.Context, supplierOrderRef string) (supplier.TrackingSnapshot, error) {
	if c.accessToken == "" {
		return supplier.TrackingSnapshot{}, supplier.Unsupported(errors.New("cj access token is not configured"))
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return supplier.TrackingSnapshot{}, supplier.Unsupported(errors.Wrap(err, "parse base url"))
	}
	u.Path = u.Path + "/shopping/order/getOrderDetail"
	q := u.Query()
	q.Set("orderId", supplierOrderRef)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return supplier.TrackingSnapshot{}, supplier.Transient(errors.Wrap(err, "new request"))
	}
	req.Header.Set("CJ-Access-Token", c.accessToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return supplier.TrackingSnapshot{}, supplier.Transient(errors.Wrap(err, "do request"))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return supplier.TrackingSnapshot{}, supplier.Unsupported(fmt.Errorf("cj http %d", resp.StatusCode))
	case resp.StatusCode/100 != 2:
		return supplier.TrackingSnapshot{}, supplier.Transient(fmt.Errorf("cj http %d", resp.StatusCode))
	}

	var r orderDetailResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return supplier.TrackingSnapshot{}, supplier.Transient(errors.Wrap(err, "decode"))
	}
	if !r.Result || r.Data == nil {
		// CJ answers result=false both for unknown orders and for orders
		// that have not propagated yet; either way there is nothing to read.
		return supplier.TrackingSnapshot{}, supplier.NotFound(fmt.Errorf("cj code %d: %s", r.Code, r.Message))
	}

	snap := supplier.TrackingSnapshot{
		NativeStatus: r.Data.OrderStatus,
	}
	if r.Data.TrackNumber != "" {
		snap.TrackingNumber = strPtr(r.Data.TrackNumber)
		u := "https://www.cjpacket.com/track?number=" + url.QueryEscape(r.Data.TrackNumber)
		snap.TrackingURL = &u
	}
	if r.Data.LogisticName != "" {
		snap.Carrier = strPtr(r.Data.LogisticName)
	}
	if r.Data.ShippedDate != "" {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", r.Data.ShippedDate, time.UTC); err == nil {
			tt := t.UTC()
			snap.ShippedAt = &tt
		}
	}
	return snap, nil
}

// MapStatus translates CJ Dropshipping order statuses.
func MapStatus(native string) (models.FulfillmentStatus, bool) {
	switch native {
	case "CREATED":
		return models.StatusPlaced, true
	case "UNSHIPPED":
		return models.StatusProcessing, true
	case "SHIPPED":
		return models.StatusShipped, true
	case "DELIVERED":
		return models.StatusDelivered, true
	case "CANCELLED":
		return models.StatusCancelled, true
	}
	return "", false
}

func strPtr(s string) *string { return &s }
