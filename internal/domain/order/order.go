package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/shop-bot/internal/catalog"
	"github.com/example/shop-bot/internal/payment"
	"github.com/google/uuid"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusShipped Status = "shipped"
)

var (
	ErrItemNotFound     = catalog.ErrItemNotFound
	ErrGateway          = payment.ErrGateway
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderExists      = errors.New("order id already in use")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrInvalidStatus    = errors.New("invalid order status transition")
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	ErrOrderNotPaid     = errors.New("order must be paid before shipping")
	ErrOrderShipped     = errors.New("order is already shipped")
	ErrNotYetShipped    = errors.New("order not yet shipped")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending: {StatusPaid},
	StatusPaid:    {StatusShipped},
	StatusShipped: {}, // terminal state
}

type Order struct {
	ID          string    `json:"id"`
	RequesterID int64     `json:"requester_id"`
	ItemID      int       `json:"item_id"`
	Status      Status    `json:"status"`
	TrackingRef string    `json:"tracking_ref,omitempty"`
	PaymentRef  string    `json:"payment_ref,omitempty"`
	InvoiceURL  string    `json:"invoice_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int       `json:"version"`
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusShipped:
		return ErrOrderShipped
	case o.Status == StatusPaid && target == StatusPaid:
		return ErrOrderAlreadyPaid
	case o.Status == StatusPending && target == StatusShipped:
		return ErrOrderNotPaid
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

// Clone returns a copy safe to hand out of a store.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}

// NewID derives an order identifier from the creation time. The random
// suffix keeps identifiers unique within the same second.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return now.UTC().Format("20060102150405") + "-" + suffix
}
