package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/CaseHive/fulfillsync/internal/broker/messages"
	"github.com/CaseHive/fulfillsync/internal/models"
	"github.com/CaseHive/fulfillsync/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	httpSwagger "github.com/swaggo/http-swagger"
)

type shopAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runShopAPI(ctx context.Context, opts shopAPIOpts, svc *orders.Service, consumer kafkaConsumer) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.FulfillmentUpdated
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			return svc.HandleFulfillmentUpdated(ctx, m)
		})
	}()

	r := newShopRouter(svc, opts.swaggerPath)

	srv := &http.Server{Handler: r}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("shop API listening", "addr", lis.Addr().String())
		httpErr <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

func newShopRouter(svc *orders.Service, swaggerPath string) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CustomerEmail   string          `json:"customerEmail"`
			ShippingAddress string          `json:"shippingAddress"`
			Total           decimal.Decimal `json:"total"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		order, err := svc.PlaceOrder(r.Context(), models.OrderCreateInput{
			CustomerEmail:   req.CustomerEmail,
			ShippingAddress: req.ShippingAddress,
			Total:           req.Total,
		})
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, order)
	})

	r.Post("/supplier-orders", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderID          uint64  `json:"orderId"`
			SupplierCode     string  `json:"supplierCode"`
			SupplierOrderRef *string `json:"supplierOrderRef"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		so, err := svc.AddSupplierOrder(r.Context(), models.SupplierOrderCreateInput{
			OrderID:          req.OrderID,
			SupplierCode:     req.SupplierCode,
			SupplierOrderRef: req.SupplierOrderRef,
		})
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, so)
	})

	r.Post("/supplier-orders/{supplierOrderID}/status", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "supplierOrderID"), 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid supplier order id")
			return
		}
		var req struct {
			Status models.FulfillmentStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := svc.OverrideSupplierOrderStatus(r.Context(), id, req.Status); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
	})

	r.Get("/orders/{orderNumber}", func(w http.ResponseWriter, r *http.Request) {
		orderNumber := chi.URLParam(r, "orderNumber")
		view, err := svc.GetOrderByNumber(r.Context(), orderNumber)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if view == nil {
			writeJSONError(w, http.StatusNotFound, "order not found")
			return
		}
		writeJSON(w, http.StatusOK, view)
	})

	// Payment provider callback. Anything other than a paid event is
	// acknowledged and dropped.
	r.Post("/webhooks/payment", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderNumber string `json:"orderNumber"`
			Status      string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.OrderNumber == "" {
			writeJSONError(w, http.StatusBadRequest, "orderNumber is required")
			return
		}
		if req.Status != "" && req.Status != "paid" {
			writeJSON(w, http.StatusOK, map[string]bool{"ignored": true})
			return
		}
		order, err := svc.ConfirmPayment(r.Context(), req.OrderNumber)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if order == nil {
			writeJSONError(w, http.StatusNotFound, "order not found")
			return
		}
		writeJSON(w, http.StatusOK, order)
	})

	if swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, swaggerPath)
		})

		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
