package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/shop-bot/internal/catalog"
	"github.com/example/shop-bot/internal/domain/order"
	"github.com/example/shop-bot/internal/infrastructure/store"
	"github.com/example/shop-bot/internal/mocks"
	"github.com/example/shop-bot/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDeps struct {
	store     *store.MemoryOrderStore
	gateway   *mocks.MockGateway
	notifier  *mocks.MockNotifier
	publisher *mocks.MockPublisher
}

func testCatalog() *catalog.Catalog {
	return catalog.New(
		catalog.Item{ID: 1, Name: "Premium", Kind: catalog.KindVirtual, Price: decimal.RequireFromString("9.99")},
		catalog.Item{ID: 2, Name: "T-Shirt", Kind: catalog.KindPhysical, Price: decimal.RequireFromString("25")},
	)
}

func newTestOrderService(opts ...order.Option) (*order.Service, testDeps) {
	deps := testDeps{
		store:     store.NewMemoryOrderStore(),
		gateway:   mocks.NewMockGateway("https://pay/abc"),
		notifier:  mocks.NewMockNotifier(),
		publisher: mocks.NewMockPublisher(),
	}
	opts = append([]order.Option{order.WithPublisher(deps.publisher)}, opts...)
	service := order.NewService(testCatalog(), deps.gateway, deps.store, deps.notifier, opts...)
	return service, deps
}

func count(t *testing.T, s *store.MemoryOrderStore) int {
	t.Helper()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	return n
}

// seed stores an order in the given status, bypassing Place.
func seed(t *testing.T, s *store.MemoryOrderStore, id string, status order.Status) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), &order.Order{
		ID:          id,
		RequesterID: 42,
		ItemID:      2,
		Status:      status,
		Version:     1,
	}))
}

// ============================================
// Place Order Tests
// ============================================

func TestService_Place_Success(t *testing.T) {
	service, deps := newTestOrderService()
	ctx := context.Background()

	o, err := service.Place(ctx, 42, 1)

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, int64(42), o.RequesterID)
	assert.Equal(t, 1, o.ItemID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "https://pay/abc", o.InvoiceURL)
	assert.Equal(t, "inv-https://pay/abc", o.PaymentRef)
	assert.Empty(t, o.TrackingRef)

	// Invoice requested for the catalog price with the order ID as reference
	require.Len(t, deps.gateway.CreateInvoiceCalls, 1)
	call := deps.gateway.CreateInvoiceCalls[0]
	assert.True(t, decimal.RequireFromString("9.99").Equal(call.Amount))
	assert.Equal(t, o.ID, call.OrderRef)
	assert.Equal(t, "Premium", call.Description)

	stored, err := deps.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, stored.Status)

	published := deps.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, o.ID, published[0].Key)
	assert.Equal(t, order.EventOrderPlaced, published[0].Event.(order.Event).EventType)
}

func TestService_Place_ItemNotFound(t *testing.T) {
	service, deps := newTestOrderService()

	o, err := service.Place(context.Background(), 7, 999)

	assert.ErrorIs(t, err, order.ErrItemNotFound)
	assert.Nil(t, o)
	assert.Zero(t, count(t, deps.store))
	assert.Empty(t, deps.gateway.CreateInvoiceCalls)
	assert.Empty(t, deps.publisher.Published())
}

func TestService_Place_ItemNotFound_StoreUnchanged(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "existing", order.StatusPaid)

	for _, itemID := range []int{0, -1, 3, 999} {
		_, err := service.Place(context.Background(), 7, itemID)
		assert.ErrorIs(t, err, order.ErrItemNotFound)
	}

	assert.Equal(t, 1, count(t, deps.store))
}

func TestService_Place_GatewayFailure_NothingStored(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "existing", order.StatusPending)
	deps.gateway.Err = fmt.Errorf("%w: connection refused", payment.ErrGateway)
	before := count(t, deps.store)

	o, err := service.Place(context.Background(), 42, 1)

	assert.ErrorIs(t, err, order.ErrGateway)
	assert.Nil(t, o)
	assert.Equal(t, before, count(t, deps.store))

	require.Len(t, deps.gateway.CreateInvoiceCalls, 1)
	_, getErr := deps.store.Get(context.Background(), deps.gateway.CreateInvoiceCalls[0].OrderRef)
	assert.ErrorIs(t, getErr, order.ErrOrderNotFound)
	assert.Empty(t, deps.publisher.Published())
}

// invoiceFunc adapts a function to order.Gateway.
type invoiceFunc func(ctx context.Context, amount decimal.Decimal, orderRef, description string) (*payment.Invoice, error)

func (f invoiceFunc) CreateInvoice(ctx context.Context, amount decimal.Decimal, orderRef, description string) (*payment.Invoice, error) {
	return f(ctx, amount, orderRef, description)
}

// flakyStore fails Put or Update on demand.
type flakyStore struct {
	*store.MemoryOrderStore
	putErr    error
	updateErr error
}

func (s *flakyStore) Put(ctx context.Context, o *order.Order) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryOrderStore.Put(ctx, o)
}

func (s *flakyStore) Update(ctx context.Context, id string, fn func(*order.Order) error) (*order.Order, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.MemoryOrderStore.Update(ctx, id, fn)
}

func TestService_Place_OrderInvisibleUntilInvoiceIssued(t *testing.T) {
	st := store.NewMemoryOrderStore()
	var (
		service    *order.Service
		confirmErr error
		trackErr   error
	)
	gw := invoiceFunc(func(ctx context.Context, amount decimal.Decimal, orderRef, description string) (*payment.Invoice, error) {
		_, confirmErr = service.ConfirmPayment(ctx, orderRef)
		_, trackErr = service.Track(ctx, orderRef)
		return nil, fmt.Errorf("%w: status 503", payment.ErrGateway)
	})
	service = order.NewService(testCatalog(), gw, st, mocks.NewMockNotifier())

	_, err := service.Place(context.Background(), 42, 1)

	assert.ErrorIs(t, err, order.ErrGateway)
	assert.ErrorIs(t, confirmErr, order.ErrOrderNotFound)
	assert.ErrorIs(t, trackErr, order.ErrOrderNotFound)
	assert.Zero(t, count(t, st))
}

func TestService_Place_StoredWithInvoiceInSingleWrite(t *testing.T) {
	st := &flakyStore{MemoryOrderStore: store.NewMemoryOrderStore(), updateErr: errors.New("connection reset")}
	service := order.NewService(testCatalog(), mocks.NewMockGateway("https://pay/abc"), st, mocks.NewMockNotifier())

	o, err := service.Place(context.Background(), 42, 1)

	require.NoError(t, err)
	stored, err := st.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay/abc", stored.InvoiceURL)
	assert.Equal(t, "inv-https://pay/abc", stored.PaymentRef)
	assert.Equal(t, order.StatusPending, stored.Status)
}

func TestService_Place_StoreFailure_NoOrphan(t *testing.T) {
	st := &flakyStore{MemoryOrderStore: store.NewMemoryOrderStore(), putErr: errors.New("connection reset")}
	publisher := mocks.NewMockPublisher()
	service := order.NewService(testCatalog(), mocks.NewMockGateway("https://pay/abc"), st, mocks.NewMockNotifier(), order.WithPublisher(publisher))

	o, err := service.Place(context.Background(), 42, 1)

	assert.Error(t, err)
	assert.Nil(t, o)
	assert.Zero(t, count(t, st.MemoryOrderStore))
	assert.Empty(t, publisher.Published())
}

func TestService_Place_UnwrappedGatewayError_ReportedAsGatewayError(t *testing.T) {
	service, deps := newTestOrderService()
	deps.gateway.Err = errors.New("tls handshake timeout")

	_, err := service.Place(context.Background(), 42, 1)

	assert.ErrorIs(t, err, order.ErrGateway)
	assert.Zero(t, count(t, deps.store))
}

func TestService_Place_ConcurrentSameSecond_UniqueIDs(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	service, deps := newTestOrderService(order.WithClock(func() time.Time { return fixed }))

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			o, err := service.Place(context.Background(), user, 1)
			if assert.NoError(t, err) {
				ids <- o.ID
			}
		}(int64(i))
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, count(t, deps.store))
}

// ============================================
// Confirm Payment Tests - State Transitions
// ============================================

func TestService_ConfirmPayment_FromPending_Success(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPending)

	o, err := service.ConfirmPayment(context.Background(), "o-1")

	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, 2, o.Version)
	require.Len(t, deps.publisher.Published(), 1)
	assert.Equal(t, order.EventOrderPaid, deps.publisher.Published()[0].Event.(order.Event).EventType)
}

func TestService_ConfirmPayment_OrderNotFound(t *testing.T) {
	service, _ := newTestOrderService()

	_, err := service.ConfirmPayment(context.Background(), "non-existent-order")

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestService_ConfirmPayment_AlreadyPaid(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPaid)

	_, err := service.ConfirmPayment(context.Background(), "o-1")

	assert.ErrorIs(t, err, order.ErrOrderAlreadyPaid)
	assert.Empty(t, deps.publisher.Published())
}

func TestService_ConfirmPayment_AlreadyShipped(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusShipped)

	_, err := service.ConfirmPayment(context.Background(), "o-1")

	assert.ErrorIs(t, err, order.ErrOrderShipped)
	stored, _ := deps.store.Get(context.Background(), "o-1")
	assert.Equal(t, order.StatusShipped, stored.Status)
}

func TestService_ConfirmPayment_Lenient_AlwaysPaid(t *testing.T) {
	for _, from := range []order.Status{order.StatusPending, order.StatusPaid, order.StatusShipped} {
		t.Run(string(from), func(t *testing.T) {
			service, deps := newTestOrderService(order.WithLenientTransitions())
			seed(t, deps.store, "o-1", from)

			o, err := service.ConfirmPayment(context.Background(), "o-1")

			require.NoError(t, err)
			assert.Equal(t, order.StatusPaid, o.Status)
		})
	}
}

// ============================================
// Ship Order Tests - State Transitions
// ============================================

func TestService_Ship_FromPaid_Success(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPaid)

	o, err := service.Ship(context.Background(), "o-1", "TRACK1")

	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Equal(t, "TRACK1", o.TrackingRef)

	sent := deps.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].ChatID)
	assert.Contains(t, sent[0].Text, "TRACK1")
	assert.Contains(t, sent[0].Text, "o-1")
}

func TestService_Ship_OrderNotFound(t *testing.T) {
	service, deps := newTestOrderService()

	_, err := service.Ship(context.Background(), "non-existent-order", "TRACK1")

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Empty(t, deps.notifier.Sent())
}

func TestService_Ship_FromPending(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPending)

	_, err := service.Ship(context.Background(), "o-1", "TRACK1")

	assert.ErrorIs(t, err, order.ErrOrderNotPaid)
	assert.Empty(t, deps.notifier.Sent())
	stored, _ := deps.store.Get(context.Background(), "o-1")
	assert.Empty(t, stored.TrackingRef)
}

func TestService_Ship_AlreadyShipped(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusShipped)

	_, err := service.Ship(context.Background(), "o-1", "TRACK2")

	assert.ErrorIs(t, err, order.ErrOrderShipped)
	assert.Empty(t, deps.notifier.Sent())
}

func TestService_Ship_EmptyTrackingRef(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPaid)

	_, err := service.Ship(context.Background(), "o-1", "  ")

	assert.ErrorIs(t, err, order.ErrInvalidArguments)
	stored, _ := deps.store.Get(context.Background(), "o-1")
	assert.Equal(t, order.StatusPaid, stored.Status)
}

func TestService_Ship_Lenient_FromPending(t *testing.T) {
	service, deps := newTestOrderService(order.WithLenientTransitions())
	seed(t, deps.store, "o-1", order.StatusPending)

	o, err := service.Ship(context.Background(), "o-1", "TRACK1")

	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Equal(t, "TRACK1", o.TrackingRef)
	assert.Len(t, deps.notifier.Sent(), 1)
}

func TestService_Ship_NotifyFailure_TransitionStands(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPaid)
	deps.notifier.Err = errors.New("bot was blocked by the user")

	o, err := service.Ship(context.Background(), "o-1", "TRACK1")

	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Len(t, deps.notifier.Sent(), 1)
}

func TestService_Ship_PublishFailure_DoesNotFail(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPaid)
	deps.publisher.Err = errors.New("broker unavailable")

	o, err := service.Ship(context.Background(), "o-1", "TRACK1")

	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
}

func TestService_Ship_ConcurrentDoubleInvoke_NotifiesOnce(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPaid)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Ship(context.Background(), "o-1", "TRACK1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, order.ErrOrderShipped)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, deps.notifier.Sent(), 1)
}

// ============================================
// Track Tests
// ============================================

func TestService_Track_NotYetShipped(t *testing.T) {
	service, deps := newTestOrderService()
	seed(t, deps.store, "o-1", order.StatusPaid)

	ref, err := service.Track(context.Background(), "o-1")

	assert.ErrorIs(t, err, order.ErrNotYetShipped)
	assert.NotErrorIs(t, err, order.ErrOrderNotFound)
	assert.Empty(t, ref)
}

func TestService_Track_OrderNotFound(t *testing.T) {
	service, _ := newTestOrderService()

	_, err := service.Track(context.Background(), "missing")

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

// ============================================
// Full Order Lifecycle Test
// ============================================

func TestOrderLifecycle_HappyPath(t *testing.T) {
	service, deps := newTestOrderService()
	ctx := context.Background()

	// 1. Place order
	o, err := service.Place(ctx, 42, 1)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "https://pay/abc", o.InvoiceURL)

	// 2. Confirm payment
	o, err = service.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)

	// 3. Ship order
	o, err = service.Ship(ctx, o.ID, "TRACK1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Equal(t, "TRACK1", o.TrackingRef)
	sent := deps.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].ChatID)
	assert.Contains(t, sent[0].Text, "TRACK1")

	// 4. Track
	ref, err := service.Track(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "TRACK1", ref)

	// Every transition published in order
	published := deps.publisher.Published()
	require.Len(t, published, 3)
	for i, eventType := range []string{order.EventOrderPlaced, order.EventOrderPaid, order.EventOrderShipped} {
		event := published[i].Event.(order.Event)
		assert.Equal(t, eventType, event.EventType)
		assert.Equal(t, i+1, event.Version)
	}
}
