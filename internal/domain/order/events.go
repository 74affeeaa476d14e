package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced  = "OrderPlaced"
	EventOrderPaid    = "OrderPaid"
	EventOrderShipped = "OrderShipped"
)

// Event is the envelope published for every lifecycle change.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

func NewEvent(o *Order, eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   o.ID,
		AggregateType: AggregateType,
		EventType:     eventType,
		Data:          raw,
		Timestamp:     o.UpdatedAt,
		Version:       o.Version,
	}, nil
}

type OrderPlaced struct {
	OrderID     string    `json:"order_id"`
	RequesterID int64     `json:"requester_id"`
	ItemID      int       `json:"item_id"`
	Amount      string    `json:"amount"`
	PaymentRef  string    `json:"payment_ref,omitempty"`
	PlacedAt    time.Time `json:"placed_at"`
}

type OrderPaid struct {
	OrderID string    `json:"order_id"`
	PaidAt  time.Time `json:"paid_at"`
}

type OrderShipped struct {
	OrderID     string    `json:"order_id"`
	TrackingRef string    `json:"tracking_ref"`
	ShippedAt   time.Time `json:"shipped_at"`
}
