package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/shop-bot/internal/auth"
	"github.com/example/shop-bot/internal/catalog"
	"github.com/example/shop-bot/internal/domain/order"
	"github.com/example/shop-bot/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	usageOrder   = "Usage: /order <item_id>"
	usageConfirm = "Usage: /confirm <order_id>"
	usageShip    = "Usage: /ship <order_id> <tracking_ref>"
	usageTrack   = "Usage: /track <order_id>"

	replyGatewayError = "Could not create an invoice right now. Please try again later."
	replyUnauthorized = "This command is for administrators only."
	replyRateLimited  = "Too many orders in a short time. Please wait a minute and try again."
	replyInternal     = "Something went wrong. Please try again later."
	replyUnknown      = "Unknown command. Send /start to see what I can do."
)

const helpText = `Welcome to the shop!

/menu - list available items
/order <item_id> - place an order and get a payment link
/track <order_id> - look up the tracking reference of a shipped order

Administrators:
/confirm <order_id> - mark an order as paid
/ship <order_id> <tracking_ref> - mark an order as shipped`

// OrderService is the part of the lifecycle controller the router drives.
type OrderService interface {
	Place(ctx context.Context, requesterID int64, itemID int) (*order.Order, error)
	ConfirmPayment(ctx context.Context, orderID string) (*order.Order, error)
	Ship(ctx context.Context, orderID, trackingRef string) (*order.Order, error)
	Track(ctx context.Context, orderID string) (string, error)
}

type Menu interface {
	Lookup(id int) (catalog.Item, error)
	List() []catalog.Item
}

// Request is one inbound chat command.
type Request struct {
	ChatID int64
	UserID int64
	Text   string
}

type RouterConfig struct {
	Orders   OrderService
	Menu     Menu
	Admins   *auth.Admins
	Metrics  *metrics.Metrics
	Currency string
	// OrdersPerMinute limits /order per user; 0 disables the limit.
	OrdersPerMinute int
}

type Router struct {
	orders   OrderService
	menu     Menu
	admins   *auth.Admins
	metrics  *metrics.Metrics
	currency string

	perMinute   int
	maxLimiters int
	mu          sync.Mutex
	limiters    map[int64]*rate.Limiter
}

// defaultMaxLimiters caps tracked users before idle limiters are swept.
const defaultMaxLimiters = 10000

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		orders:      cfg.Orders,
		menu:        cfg.Menu,
		admins:      cfg.Admins,
		metrics:     cfg.Metrics,
		currency:    cfg.Currency,
		perMinute:   cfg.OrdersPerMinute,
		maxLimiters: defaultMaxLimiters,
		limiters:    make(map[int64]*rate.Limiter),
	}
}

// Handle runs one command and returns the reply text. Non-command messages
// yield an empty reply.
func (r *Router) Handle(ctx context.Context, req Request) string {
	name, args, ok := parseCommand(req.Text)
	if !ok {
		return ""
	}

	var (
		reply   string
		outcome = "ok"
	)
	switch name {
	case "start", "help":
		reply = helpText
	case "menu":
		reply = r.handleMenu()
	case "order":
		reply, outcome = r.handleOrder(ctx, req, args)
	case "confirm":
		reply, outcome = r.requireAdmin(name, req, func() (string, string) { return r.handleConfirm(ctx, args) })
	case "ship":
		reply, outcome = r.requireAdmin(name, req, func() (string, string) { return r.handleShip(ctx, args) })
	case "track":
		reply, outcome = r.handleTrack(ctx, args)
	default:
		name = "unknown"
		reply, outcome = replyUnknown, "invalid"
	}

	r.metrics.ObserveCommand(name, outcome)
	return reply
}

// parseCommand splits "/cmd@bot a b" into ("cmd", ["a", "b"]).
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:], name != ""
}

func (r *Router) requireAdmin(command string, req Request, next func() (string, string)) (string, string) {
	if err := r.admins.RequireAdmin(req.UserID); err != nil {
		log.Printf("[Bot] Rejected /%s from user %d (role %s)", command, req.UserID, r.admins.Role(req.UserID))
		return replyUnauthorized, "unauthorized"
	}
	return next()
}

func (r *Router) handleMenu() string {
	items := r.menu.List()
	if len(items) == 0 {
		return "The catalog is empty."
	}
	var b strings.Builder
	b.WriteString("Available items:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "\n%d. %s - %s %s\n   %s", item.ID, item.Name, item.Price.StringFixed(2), r.currency, item.Description)
	}
	b.WriteString("\n\nOrder with /order <item_id>")
	return b.String()
}

func (r *Router) handleOrder(ctx context.Context, req Request, args []string) (string, string) {
	if len(args) != 1 {
		return usageOrder, "invalid"
	}
	itemID, err := strconv.Atoi(args[0])
	if err != nil {
		return usageOrder, "invalid"
	}
	// Unknown items never reach the gateway, so they cost no token.
	if _, err := r.menu.Lookup(itemID); errors.Is(err, catalog.ErrItemNotFound) {
		return itemNotFound(itemID), "not_found"
	}
	if !r.allowOrder(req.UserID) {
		return replyRateLimited, "rate_limited"
	}

	o, err := r.orders.Place(ctx, req.UserID, itemID)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrItemNotFound):
			return itemNotFound(itemID), "not_found"
		case errors.Is(err, order.ErrGateway):
			return replyGatewayError, "error"
		}
		return r.internalError("order", err)
	}
	return fmt.Sprintf("Order %s created.\nPay here: %s\n\nUse /track %s once it ships.", o.ID, o.InvoiceURL, o.ID), "ok"
}

func itemNotFound(itemID int) string {
	return fmt.Sprintf("Item %d not found. Check /menu for available items.", itemID)
}

func (r *Router) handleConfirm(ctx context.Context, args []string) (string, string) {
	if len(args) != 1 {
		return usageConfirm, "invalid"
	}
	o, err := r.orders.ConfirmPayment(ctx, args[0])
	if err != nil {
		return r.lifecycleError("confirm", args[0], err)
	}
	return fmt.Sprintf("Order %s marked as paid.", o.ID), "ok"
}

func (r *Router) handleShip(ctx context.Context, args []string) (string, string) {
	if len(args) != 2 {
		return usageShip, "invalid"
	}
	o, err := r.orders.Ship(ctx, args[0], args[1])
	if err != nil {
		if errors.Is(err, order.ErrInvalidArguments) {
			return usageShip, "invalid"
		}
		return r.lifecycleError("ship", args[0], err)
	}
	return fmt.Sprintf("Order %s marked as shipped with tracking reference %s. The customer has been notified.", o.ID, o.TrackingRef), "ok"
}

func (r *Router) handleTrack(ctx context.Context, args []string) (string, string) {
	if len(args) != 1 {
		return usageTrack, "invalid"
	}
	ref, err := r.orders.Track(ctx, args[0])
	switch {
	case errors.Is(err, order.ErrNotYetShipped):
		return fmt.Sprintf("Order %s has not shipped yet.", args[0]), "ok"
	case err != nil:
		return r.lifecycleError("track", args[0], err)
	}
	return fmt.Sprintf("Tracking reference for order %s: %s", args[0], ref), "ok"
}

func (r *Router) lifecycleError(command, orderID string, err error) (string, string) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return fmt.Sprintf("Order %s not found.", orderID), "not_found"
	case errors.Is(err, order.ErrOrderAlreadyPaid),
		errors.Is(err, order.ErrOrderNotPaid),
		errors.Is(err, order.ErrOrderShipped),
		errors.Is(err, order.ErrInvalidStatus):
		return fmt.Sprintf("Cannot %s order %s: %v.", command, orderID, err), "rejected"
	}
	return r.internalError(command, err)
}

func (r *Router) internalError(command string, err error) (string, string) {
	log.Printf("[Bot] /%s failed: %v", command, err)
	return replyInternal, "error"
}

func (r *Router) allowOrder(userID int64) bool {
	if r.perMinute <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[userID]
	if !ok {
		if len(r.limiters) >= r.maxLimiters {
			r.sweepLimiters()
		}
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMinute)), r.perMinute)
		r.limiters[userID] = l
	}
	return l.Allow()
}

// sweepLimiters drops limiters whose bucket has refilled. A full bucket
// behaves exactly like a new limiter, so no user state is lost.
func (r *Router) sweepLimiters() {
	burst := float64(r.perMinute)
	for id, l := range r.limiters {
		if l.Tokens() >= burst {
			delete(r.limiters, id)
		}
	}
}
