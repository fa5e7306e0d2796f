package models

// Canonical fulfillment statuses shared across all suppliers.
type FulfillmentStatus string

const (
	StatusPending    FulfillmentStatus = "PENDING"
	StatusConfirmed  FulfillmentStatus = "CONFIRMED"
	StatusPlaced     FulfillmentStatus = "PLACED"
	StatusProcessing FulfillmentStatus = "PROCESSING"
	StatusShipped    FulfillmentStatus = "SHIPPED"
	StatusDelivered  FulfillmentStatus = "DELIVERED"
	StatusCancelled  FulfillmentStatus = "CANCELLED"
)

var statusRank = map[FulfillmentStatus]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusPlaced:     2,
	StatusProcessing: 3,
	StatusShipped:    4,
	StatusDelivered:  5,
}

// Rank returns the position of s in the forward ordering.
// CANCELLED is terminal but outside the ordering; it reports -1.
func (s FulfillmentStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

func (s FulfillmentStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

func (s FulfillmentStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ShouldApply decides whether a newly observed status replaces the stored one.
// Statuses only move forward; CANCELLED absorbs anything not yet delivered.
func ShouldApply(stored, observed FulfillmentStatus) bool {
	if observed == StatusCancelled {
		return stored != StatusDelivered && stored != StatusCancelled
	}
	if stored == StatusCancelled {
		return false
	}
	return observed.Rank() > stored.Rank()
}

// DeriveOrderStatus computes the parent order status from its supplier orders.
// The order is DELIVERED only when every child is delivered, CANCELLED only
// when every child is cancelled; a single delivered child among undelivered
// ones counts as SHIPPED. The result never regresses below current.
func DeriveOrderStatus(current FulfillmentStatus, children []FulfillmentStatus) FulfillmentStatus {
	if len(children) == 0 {
		return current
	}

	allDelivered := true
	allCancelled := true
	best := -1
	for _, c := range children {
		if c != StatusDelivered {
			allDelivered = false
		}
		if c != StatusCancelled {
			allCancelled = false
			if r := c.Rank(); r > best {
				best = r
			}
		}
	}

	switch {
	case allDelivered:
		return StatusDelivered
	case allCancelled:
		if current == StatusDelivered {
			return current
		}
		return StatusCancelled
	}

	candidate := current
	for s, r := range statusRank {
		if r == best {
			candidate = s
			break
		}
	}
	// Mixed fleet with a delivered child: the order as a whole is still in flight.
	if candidate == StatusDelivered {
		candidate = StatusShipped
	}
	if current != StatusCancelled && candidate.Rank() > current.Rank() {
		return candidate
	}
	return current
}
