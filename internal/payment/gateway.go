// Package payment talks to the Razorpay-style payment gateway: it creates
// remote orders (payment intents) and authenticates callbacks.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")
	ErrSignatureInvalid   = errors.New("invalid payment signature")
)

// Intent is the remote order created at the gateway.
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway is what the order flow needs from the payment provider.
type Gateway interface {
	// CreateIntent creates a remote order for amount in minor units. reference is
	// sent as the receipt so retries can be matched on the gateway side.
	CreateIntent(ctx context.Context, amountMinor int64, currency, reference string) (*Intent, error)
	// VerifyCallback checks a webhook signature over the raw request body.
	VerifyCallback(raw []byte, signature string) bool
	// VerifyPaymentSignature checks the signature the checkout widget returns to the client.
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool
}

// Config holds gateway credentials.
type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient returns a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

type createOrderReq struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type errorResp struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateIntent implements Gateway. Network failures, 5xx and 429 return
// ErrGatewayUnavailable; other 4xx and invalid input return ErrGatewayRejected.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, reference string) (*Intent, error) {
	if amountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGatewayRejected)
	}
	if len(currency) != 3 || strings.ToUpper(currency) != currency {
		return nil, fmt.Errorf("%w: invalid currency %q", ErrGatewayRejected, currency)
	}

	raw, err := json.Marshal(createOrderReq{
		Amount:         amountMinor,
		Currency:       currency,
		Receipt:        reference,
		PaymentCapture: 1,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("gateway unavailable", zap.Int("status", resp.StatusCode), zap.String("receipt", reference))
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var e errorResp
		_ = json.Unmarshal(body, &e)
		return nil, fmt.Errorf("%w: %s %s", ErrGatewayRejected, e.Error.Code, strings.TrimSpace(e.Error.Description))
	}

	var out Intent
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrGatewayUnavailable)
	}
	return &out, nil
}

// VerifyCallback implements Gateway.
func (c *Client) VerifyCallback(raw []byte, signature string) bool {
	return verify(c.cfg.WebhookSecret, raw, signature)
}

// VerifyPaymentSignature implements Gateway.
func (c *Client) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return verify(c.cfg.KeySecret, []byte(gatewayOrderID+"|"+paymentID), signature)
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(strings.TrimSpace(signature)))
}
