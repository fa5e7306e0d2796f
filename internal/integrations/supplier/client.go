package supplier

import (
	"context"
	"fmt"
	"time"

	"github.com/CaseHive/fulfillsync/internal/models"
)

// TrackingSnapshot is a supplier's answer to a tracking query at one instant.
// Treated as untrusted input: any field may be absent even on success.
type TrackingSnapshot struct {
	NativeStatus   string
	TrackingNumber *string
	Carrier        *string
	TrackingURL    *string
	ShippedAt      *time.Time
}

type ErrorKind string

const (
	// ErrTransient: timeout / 5xx / connection reset. Retried on the next pass.
	ErrTransient ErrorKind = "TRANSIENT"
	// ErrNotFound: the supplier has no record of this order yet.
	ErrNotFound ErrorKind = "NOT_FOUND"
	// ErrUnsupported: the adapter cannot service this ref (missing credentials etc).
	ErrUnsupported ErrorKind = "UNSUPPORTED"
)

type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch tracking: %s", e.Kind)
	}
	return fmt.Sprintf("fetch tracking: %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func Transient(err error) *FetchError   { return &FetchError{Kind: ErrTransient, Err: err} }
func NotFound(err error) *FetchError    { return &FetchError{Kind: ErrNotFound, Err: err} }
func Unsupported(err error) *FetchError { return &FetchError{Kind: ErrUnsupported, Err: err} }

type Client interface {
	FetchTracking(ctx context.Context, supplierOrderRef string) (TrackingSnapshot, error)
}

// Mapper translates a supplier's native status vocabulary into the canonical
// one. ok=false means "no information": the stored status must not change.
type Mapper func(native string) (status models.FulfillmentStatus, ok bool)

type Entry struct {
	Client    Client
	MapStatus Mapper
}

// Registry selects the adapter for a stored supplier code. A supplier with
// no entry is not tracking-capable and is excluded from reconciliation.
type Registry map[string]Entry

func (r Registry) Lookup(supplierCode string) (Entry, bool) {
	e, ok := r[supplierCode]
	return e, ok
}

func (r Registry) Codes() []string {
	out := make([]string, 0, len(r))
	for code := range r {
		out = append(out, code)
	}
	return out
}
