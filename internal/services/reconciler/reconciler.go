package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CaseHive/fulfillsync/internal/broker/messages"
	"github.com/CaseHive/fulfillsync/internal/integrations/supplier"
	"github.com/CaseHive/fulfillsync/internal/models"
	"github.com/CaseHive/fulfillsync/internal/storage/pgorders"
	"github.com/pkg/errors"
)

type Store interface {
	FindInFlight(ctx context.Context, supplierCodes []string, afterID uint64, limit int) ([]*models.SupplierOrder, error)
	ApplyReconciliation(ctx context.Context, upd pgorders.ReconcileUpdate) (pgorders.ApplyResult, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Engine runs one reconciliation pass over all in-flight supplier orders.
type Engine struct {
	store    Store
	registry supplier.Registry
	producer Producer
	rl       RateLimiter

	topic string

	pageSize    int
	concurrency int

	rateLimitPerMinute int64
	supplierRateLimits map[string]int64
}

func New(store Store, registry supplier.Registry, producer Producer, rl RateLimiter, topic string) *Engine {
	return &Engine{
		store:              store,
		registry:           registry,
		producer:           producer,
		rl:                 rl,
		topic:              topic,
		pageSize:           200,
		concurrency:        8,
		rateLimitPerMinute: 120,
		supplierRateLimits: map[string]int64{},
	}
}

func (e *Engine) WithSettings(pageSize, concurrency int, rlPerMin int64) *Engine {
	if pageSize > 0 {
		e.pageSize = pageSize
	}
	if concurrency > 0 {
		e.concurrency = concurrency
	}
	if rlPerMin > 0 {
		e.rateLimitPerMinute = rlPerMin
	}
	return e
}

func (e *Engine) WithSupplierRateLimit(supplierCode string, perMin int64) *Engine {
	if perMin > 0 {
		e.supplierRateLimits[supplierCode] = perMin
	}
	return e
}

type RunError struct {
	SupplierOrderID uint64 `json:"supplierOrderId"`
	SupplierCode    string `json:"supplierCode"`
	Error           string `json:"error"`
}

type RunSummary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Attempted int `json:"attempted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`

	Errors []RunError `json:"errors,omitempty"`
}

type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeUnchanged
	outcomeFailed
)

// passState carries the mutable tallies of one pass. Records are processed in
// parallel; everything here is guarded by mu.
type passState struct {
	mu              sync.Mutex
	summary         RunSummary
	unsupportedSeen map[string]bool
	notFoundSeen    map[string]bool
}

func (ps *passState) record(so *models.SupplierOrder, out outcome, err error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.summary.Attempted++
	switch out {
	case outcomeUpdated:
		ps.summary.Updated++
	case outcomeUnchanged:
		ps.summary.Unchanged++
	case outcomeFailed:
		ps.summary.Failed++
		ps.summary.Errors = append(ps.summary.Errors, RunError{
			SupplierOrderID: so.ID,
			SupplierCode:    so.SupplierCode,
			Error:           err.Error(),
		})
	}
}

// firstForSupplier reports whether this is the first time the pass sees the
// given condition for a supplier, so noisy per-record conditions get logged
// once per pass per supplier.
func (ps *passState) firstForSupplier(seen map[string]bool, supplierCode string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if seen[supplierCode] {
		return false
	}
	seen[supplierCode] = true
	return true
}

// RunPass executes one full reconciliation pass. Per-record failures are
// contained in the summary; only a store failure before any work starts is
// returned as an error.
func (e *Engine) RunPass(ctx context.Context) (RunSummary, error) {
	ps := &passState{
		summary:         RunSummary{StartedAt: time.Now().UTC()},
		unsupportedSeen: map[string]bool{},
		notFoundSeen:    map[string]bool{},
	}
	codes := e.registry.Codes()

	var afterID uint64
	firstPage := true
	for {
		if ctx.Err() != nil {
			break
		}

		items, err := e.store.FindInFlight(ctx, codes, afterID, e.pageSize)
		if err != nil {
			if firstPage {
				return ps.summary, errors.Wrap(err, "find in-flight supplier orders")
			}
			slog.Error("find in-flight supplier orders", "error", err.Error())
			break
		}
		firstPage = false
		if len(items) == 0 {
			break
		}
		afterID = items[len(items)-1].ID

		sem := make(chan struct{}, e.concurrency)
		var wg sync.WaitGroup
		for _, so := range items {
			sem <- struct{}{}
			wg.Add(1)
			soCopy := so
			go func() {
				defer func() {
					<-sem
					wg.Done()
				}()
				e.processOne(ctx, ps, soCopy)
			}()
		}
		wg.Wait()

		if len(items) < e.pageSize {
			break
		}
	}

	ps.summary.FinishedAt = time.Now().UTC()
	return ps.summary, nil
}

func (e *Engine) processOne(ctx context.Context, ps *passState, so *models.SupplierOrder) {
	// Records without an upstream ref have nothing to query; FindInFlight
	// filters them out, this is the engine-side guarantee.
	if so.SupplierOrderRef == nil || *so.SupplierOrderRef == "" {
		return
	}
	entry, ok := e.registry.Lookup(so.SupplierCode)
	if !ok {
		return
	}
	if !so.Status.Valid() {
		// Corrupt row; nothing sane can be merged into it.
		slog.Error("invalid stored supplier order status",
			"supplier_order_id", so.ID, "status", string(so.Status))
		ps.record(so, outcomeFailed, fmt.Errorf("invalid stored status %q", so.Status))
		return
	}

	now := time.Now().UTC()

	if e.rl != nil && e.rateLimitPerMinute > 0 {
		limit := e.rateLimitPerMinute
		if perSupplier, ok := e.supplierRateLimits[so.SupplierCode]; ok {
			limit = perSupplier
		}
		minuteKey := fmt.Sprintf("rl:supplier:%s:%s", so.SupplierCode, now.Format("200601021504"))
		allowed, n, err := e.rl.Allow(ctx, minuteKey, limit, 70*time.Second)
		if err != nil {
			ps.record(so, outcomeFailed, err)
			return
		}
		if !allowed {
			// Over budget for this supplier this minute; back off briefly.
			slog.Warn("supplier rate limit exceeded", "supplier", so.SupplierCode, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	snap, err := entry.Client.FetchTracking(ctx, *so.SupplierOrderRef)
	if err != nil {
		var fe *supplier.FetchError
		if errors.As(err, &fe) {
			switch fe.Kind {
			case supplier.ErrNotFound:
				// The supplier simply has no record yet; not a failure.
				if ps.firstForSupplier(ps.notFoundSeen, so.SupplierCode) {
					slog.Debug("supplier order not found upstream",
						"supplier", so.SupplierCode, "supplier_order_id", so.ID)
				}
				ps.record(so, outcomeUnchanged, nil)
				return
			case supplier.ErrUnsupported:
				if ps.firstForSupplier(ps.unsupportedSeen, so.SupplierCode) {
					slog.Warn("supplier adapter unavailable",
						"supplier", so.SupplierCode, "error", err.Error())
				}
				ps.record(so, outcomeFailed, err)
				return
			}
		}
		slog.Error("fetch supplier tracking",
			"supplier", so.SupplierCode, "supplier_order_id", so.ID, "error", err.Error())
		ps.record(so, outcomeFailed, err)
		return
	}

	candidate := so.Status
	advance := false
	if mapped, known := entry.MapStatus(snap.NativeStatus); known && models.ShouldApply(so.Status, mapped) {
		candidate = mapped
		advance = true
	}
	newTracking := (snap.TrackingNumber != nil && so.TrackingNumber == nil) ||
		(snap.Carrier != nil && so.Carrier == nil) ||
		(snap.TrackingURL != nil && so.TrackingURL == nil) ||
		(snap.ShippedAt != nil && so.ShippedAt == nil)

	if !advance && !newTracking {
		ps.record(so, outcomeUnchanged, nil)
		return
	}

	res, err := e.store.ApplyReconciliation(ctx, pgorders.ReconcileUpdate{
		SupplierOrderID: so.ID,
		ExpectedStatus:  so.Status,
		NewStatus:       candidate,
		Carrier:         snap.Carrier,
		TrackingNumber:  snap.TrackingNumber,
		TrackingURL:     snap.TrackingURL,
		ShippedAt:       snap.ShippedAt,
		CheckedAt:       now,
	})
	if err != nil {
		if errors.Is(err, pgorders.ErrConflict) {
			// Someone else moved the record first; the next pass will see
			// the fresh state.
			slog.Debug("reconciliation write conflict",
				"supplier_order_id", so.ID, "error", err.Error())
			ps.record(so, outcomeUnchanged, nil)
			return
		}
		slog.Error("apply reconciliation",
			"supplier_order_id", so.ID, "error", err.Error())
		ps.record(so, outcomeFailed, err)
		return
	}

	ps.record(so, outcomeUpdated, nil)
	e.publishUpdated(ctx, so, candidate, snap, res, now)
}

func (e *Engine) publishUpdated(ctx context.Context, so *models.SupplierOrder, status models.FulfillmentStatus, snap supplier.TrackingSnapshot, res pgorders.ApplyResult, now time.Time) {
	if e.producer == nil {
		return
	}
	msg := messages.FulfillmentUpdated{
		OrderID:         res.OrderID,
		OrderNumber:     res.OrderNumber,
		SupplierOrderID: so.ID,
		SupplierCode:    so.SupplierCode,
		SupplierStatus:  status,
		OrderStatus:     res.OrderStatus,
		TrackingNumber:  snap.TrackingNumber,
		Carrier:         snap.Carrier,
		CheckedAt:       now,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal fulfillment event", "error", err.Error())
		return
	}
	key := []byte(fmt.Sprintf("%d", res.OrderID))
	if err := e.producer.Publish(ctx, e.topic, key, b); err != nil {
		// The store write already landed; the event is best-effort.
		slog.Warn("publish fulfillment event", "order_id", res.OrderID, "error", err.Error())
	}
}
