package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/CaseHive/fulfillsync/internal/integrations/supplier"
	"github.com/CaseHive/fulfillsync/internal/models"
)

// FakeClient is a local stand-in for a real supplier API. The status is
// deterministic per ref so repeated passes see a stable pipeline.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) FetchTracking(ctx context.Context, supplierOrderRef string) (supplier.TrackingSnapshot, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(supplierOrderRef))
	v := h.Sum32()

	// Roughly: 20% delivered, 40% shipped, the rest still processing.
	native := "processing"
	switch v % 5 {
	case 0:
		native = "delivered"
	case 1, 2:
		native = "in_transit"
	}

	snap := supplier.TrackingSnapshot{NativeStatus: native}
	if native != "processing" {
		tn := fmt.Sprintf("FAKE%08d", v%100_000_000)
		carrier := "FakePost"
		shipped := time.Now().UTC().Add(-24 * time.Hour)
		snap.TrackingNumber = &tn
		snap.Carrier = &carrier
		snap.ShippedAt = &shipped
	}
	return snap, nil
}

func MapStatus(native string) (models.FulfillmentStatus, bool) {
	switch native {
	case "processing":
		return models.StatusProcessing, true
	case "in_transit":
		return models.StatusShipped, true
	case "delivered":
		return models.StatusDelivered, true
	case "cancelled":
		return models.StatusCancelled, true
	}
	return "", false
}
