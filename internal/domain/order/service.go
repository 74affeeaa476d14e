package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/shop-bot/internal/catalog"
	"github.com/example/shop-bot/internal/metrics"
	"github.com/example/shop-bot/internal/payment"
	"github.com/shopspring/decimal"
)

type Catalog interface {
	Lookup(id int) (catalog.Item, error)
}

type Gateway interface {
	CreateInvoice(ctx context.Context, amount decimal.Decimal, orderRef, description string) (*payment.Invoice, error)
}

// Store holds orders. Update runs fn under single-writer discipline for the
// given key and writes nothing if fn returns an error.
type Store interface {
	Put(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, id string, fn func(*Order) error) (*Order, error)
	Count(ctx context.Context) (int, error)
}

// Notifier delivers a direct message to a chat user.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Option func(*Service)

// WithLenientTransitions makes ConfirmPayment and Ship overwrite the status
// unconditionally instead of enforcing pending -> paid -> shipped.
func WithLenientTransitions() Option {
	return func(s *Service) { s.lenient = true }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	catalog   Catalog
	gateway   Gateway
	store     Store
	notifier  Notifier
	publisher EventPublisher
	metrics   *metrics.Metrics
	lenient   bool
	now       func() time.Time
}

func NewService(cat Catalog, gw Gateway, st Store, n Notifier, opts ...Option) *Service {
	s := &Service{
		catalog:  cat,
		gateway:  gw,
		store:    st,
		notifier: n,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Place requests an invoice for the item and stores the order as pending once
// the invoice exists. Nothing is stored when invoice creation fails.
func (s *Service) Place(ctx context.Context, requesterID int64, itemID int) (*Order, error) {
	item, err := s.catalog.Lookup(itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:          NewID(now),
		RequesterID: requesterID,
		ItemID:      item.ID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	inv, err := s.gateway.CreateInvoice(ctx, item.Price, o.ID, item.Name)
	if err != nil {
		if errors.Is(err, ErrGateway) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	o.InvoiceURL = inv.URL
	o.PaymentRef = inv.ID

	if err := s.store.Put(ctx, o); err != nil {
		log.Printf("[Order] Invoice %s issued but order %s was not stored: %v", inv.ID, o.ID, err)
		return nil, err
	}

	s.metrics.ObserveTransition(string(StatusPending))
	s.publish(ctx, o, EventOrderPlaced, OrderPlaced{
		OrderID:     o.ID,
		RequesterID: o.RequesterID,
		ItemID:      o.ItemID,
		Amount:      item.Price.StringFixed(2),
		PaymentRef:  o.PaymentRef,
		PlacedAt:    o.CreatedAt,
	})
	return o, nil
}

// ConfirmPayment marks an order as paid. It is a manual administrator action;
// nothing here checks with the gateway that money actually arrived.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.store.Update(ctx, orderID, func(o *Order) error {
		if err := s.checkTransition(o, StatusPaid); err != nil {
			return err
		}
		o.Status = StatusPaid
		o.UpdatedAt = s.now()
		o.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(StatusPaid))
	s.publish(ctx, o, EventOrderPaid, OrderPaid{OrderID: o.ID, PaidAt: o.UpdatedAt})
	return o, nil
}

// Ship marks an order as shipped, records the tracking reference and tells the
// requester about it.
func (s *Service) Ship(ctx context.Context, orderID, trackingRef string) (*Order, error) {
	trackingRef = strings.TrimSpace(trackingRef)
	if trackingRef == "" {
		return nil, fmt.Errorf("%w: tracking reference required", ErrInvalidArguments)
	}

	o, err := s.store.Update(ctx, orderID, func(o *Order) error {
		if err := s.checkTransition(o, StatusShipped); err != nil {
			return err
		}
		o.Status = StatusShipped
		o.TrackingRef = trackingRef
		o.UpdatedAt = s.now()
		o.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(StatusShipped))
	s.publish(ctx, o, EventOrderShipped, OrderShipped{OrderID: o.ID, TrackingRef: o.TrackingRef, ShippedAt: o.UpdatedAt})

	text := fmt.Sprintf("Your order %s has shipped.\nTracking reference: %s", o.ID, o.TrackingRef)
	if err := s.notifier.Notify(ctx, o.RequesterID, text); err != nil {
		log.Printf("[Order] Failed to notify requester %d for order %s: %v", o.RequesterID, o.ID, err)
	}
	return o, nil
}

// Track returns the tracking reference, or ErrNotYetShipped when none is set.
func (s *Service) Track(ctx context.Context, orderID string) (string, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.TrackingRef == "" {
		return "", ErrNotYetShipped
	}
	return o.TrackingRef, nil
}

func (s *Service) checkTransition(o *Order, target Status) error {
	if s.lenient || o.CanTransitionTo(target) {
		return nil
	}
	return o.transitionError(target)
}

func (s *Service) publish(ctx context.Context, o *Order, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	event, err := NewEvent(o, eventType, data)
	if err != nil {
		log.Printf("[Order] Failed to build %s event for order %s: %v", eventType, o.ID, err)
		return
	}
	if err := s.publisher.Publish(ctx, o.ID, event); err != nil {
		log.Printf("[Order] Failed to publish %s for order %s: %v", eventType, o.ID, err)
	}
}
