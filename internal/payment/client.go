package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/example/shop-bot/internal/metrics"
	"github.com/shopspring/decimal"
)

// ErrGateway is returned for every invoice creation failure. Callers cannot
// tell network, auth and malformed-response failures apart.
var ErrGateway = errors.New("payment gateway error")

const (
	DefaultBaseURL  = "https://api.cryptocloud.plus/v2"
	DefaultCurrency = "USDT"
	DefaultTimeout  = 10 * time.Second
)

// Invoice is a gateway-issued payment request.
type Invoice struct {
	ID  string
	URL string
}

type Client struct {
	BaseURL       string
	APIKey        string
	WalletAddress string
	Currency      string
	Timeout       time.Duration
	HTTP          *http.Client
	Metrics       *metrics.Metrics
}

type createInvoiceReq struct {
	APIKey      string `json:"api_key"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Address     string `json:"address"`
	OrderID     string `json:"order_id"`
	Description string `json:"description"`
}

type createInvoiceResp struct {
	Status string `json:"status"`
	Result struct {
		UUID string `json:"uuid"`
		URL  string `json:"url"`
	} `json:"result"`
}

// CreateInvoice issues a single invoice request. No retry is attempted and no
// idempotency key is sent.
func (c *Client) CreateInvoice(ctx context.Context, amount decimal.Decimal, orderRef, description string) (*Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}
	if strings.TrimSpace(orderRef) == "" {
		return nil, fmt.Errorf("%w: order reference required", ErrGateway)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	inv, err := c.createInvoice(ctx, amount, orderRef, description)
	if err != nil {
		c.Metrics.ObserveGateway("error", time.Since(start))
		log.Printf("[Payment] Invoice creation failed for order %s: %v", orderRef, err)
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	c.Metrics.ObserveGateway("ok", time.Since(start))
	return inv, nil
}

func (c *Client) createInvoice(ctx context.Context, amount decimal.Decimal, orderRef, description string) (*Invoice, error) {
	currency := c.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	raw, err := json.Marshal(createInvoiceReq{
		APIKey:      c.APIKey,
		Amount:      amount.StringFixed(2),
		Currency:    currency,
		Address:     c.WalletAddress,
		OrderID:     orderRef,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/invoice/create", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.APIKey)

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createInvoiceResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Result.URL) == "" {
		return nil, errors.New("missing result.url")
	}
	return &Invoice{ID: out.Result.UUID, URL: out.Result.URL}, nil
}
