package mocks

import (
	"context"
	"sync"

	"github.com/example/shop-bot/internal/payment"
	"github.com/shopspring/decimal"
)

// MockGateway is a mock payment gateway for testing
type MockGateway struct {
	mu sync.Mutex

	// For tracking calls in tests
	CreateInvoiceCalls []CreateInvoiceCall
	Invoice            *payment.Invoice
	Err                error
}

// CreateInvoiceCall records parameters passed to CreateInvoice
type CreateInvoiceCall struct {
	Amount      decimal.Decimal
	OrderRef    string
	Description string
}

func NewMockGateway(url string) *MockGateway {
	return &MockGateway{Invoice: &payment.Invoice{ID: "inv-" + url, URL: url}}
}

func (m *MockGateway) CreateInvoice(ctx context.Context, amount decimal.Decimal, orderRef, description string) (*payment.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateInvoiceCalls = append(m.CreateInvoiceCalls, CreateInvoiceCall{
		Amount:      amount,
		OrderRef:    orderRef,
		Description: description,
	})
	if m.Err != nil {
		return nil, m.Err
	}
	inv := *m.Invoice
	return &inv, nil
}

// MockNotifier records direct messages instead of sending them
type MockNotifier struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
}

type Message struct {
	ChatID int64
	Text   string
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, Message{ChatID: chatID, Text: text})
	return m.Err
}

// Sent returns a snapshot of recorded messages.
func (m *MockNotifier) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.Messages))
	copy(out, m.Messages)
	return out
}

// MockPublisher records published events
type MockPublisher struct {
	mu     sync.Mutex
	Events []PublishCall
	Err    error
}

type PublishCall struct {
	Key   string
	Event any
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, key string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishCall{Key: key, Event: event})
	return m.Err
}

func (m *MockPublisher) Published() []PublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishCall, len(m.Events))
	copy(out, m.Events)
	return out
}
