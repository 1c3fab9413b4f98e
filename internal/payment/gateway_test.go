package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, KeyID: "key_id", KeySecret: "key_secret", WebhookSecret: "whsec"}, nil, nil)
}

func TestCreateIntent_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if u, p, ok := r.BasicAuth(); !ok || u != "key_id" || p != "key_secret" {
			t.Errorf("missing basic auth")
		}
		var req createOrderReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Amount != 45000 || req.Currency != "INR" || req.Receipt != "st-1" {
			t.Errorf("unexpected body %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Intent{ID: "order_gw1", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"})
	})

	in, err := c.CreateIntent(context.Background(), 45000, "INR", "st-1")
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if in.ID != "order_gw1" || in.Amount != 45000 {
		t.Fatalf("unexpected intent %+v", in)
	}
}

func TestCreateIntent_ErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusInternalServerError, ErrGatewayUnavailable},
		{http.StatusBadGateway, ErrGatewayUnavailable},
		{http.StatusTooManyRequests, ErrGatewayUnavailable},
		{http.StatusBadRequest, ErrGatewayRejected},
		{http.StatusUnauthorized, ErrGatewayRejected},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"nope"}}`))
		})
		if _, err := c.CreateIntent(context.Background(), 100, "INR", "ref"); !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestCreateIntent_NetworkFailureAndValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	c := NewClient(Config{BaseURL: url}, nil, nil)

	if _, err := c.CreateIntent(context.Background(), 100, "INR", "ref"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected unavailable on closed server, got %v", err)
	}
	if _, err := c.CreateIntent(context.Background(), 0, "INR", "ref"); !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected rejected for zero amount, got %v", err)
	}
	if _, err := c.CreateIntent(context.Background(), 100, "rupees", "ref"); !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected rejected for bad currency, got %v", err)
	}
}

func TestVerifyCallback(t *testing.T) {
	c := NewClient(Config{WebhookSecret: "whsec", KeySecret: "key_secret"}, nil, nil)
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign("whsec", body)

	if !c.VerifyCallback(body, sig) {
		t.Fatalf("valid signature rejected")
	}
	if c.VerifyCallback([]byte(`{"event":"payment.captured" }`), sig) {
		t.Fatalf("signature must cover the exact raw bytes")
	}
	if c.VerifyCallback(body, "") || c.VerifyCallback(body, Sign("other", body)) {
		t.Fatalf("bad signatures accepted")
	}

	if !c.VerifyPaymentSignature("order_1", "pay_1", Sign("key_secret", []byte("order_1|pay_1"))) {
		t.Fatalf("payment signature rejected")
	}
	if c.VerifyPaymentSignature("order_1", "pay_2", Sign("key_secret", []byte("order_1|pay_1"))) {
		t.Fatalf("payment signature for another payment accepted")
	}
}

func TestParseEvent(t *testing.T) {
	raw := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_gw1","amount":45000,"currency":"INR","method":"upi"}}}}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if !ev.Succeeded() || ev.PaymentID != "pay_1" || ev.GatewayOrderID != "order_gw1" || ev.Amount != 45000 {
		t.Fatalf("unexpected event %+v", ev)
	}

	ev, err = ParseEvent([]byte(`{"event":"refund.created","payload":{}}`))
	if err != nil || ev.Succeeded() || ev.Failed() {
		t.Fatalf("unknown events should parse as neutral, got %+v %v", ev, err)
	}

	if _, err := ParseEvent([]byte(`{"event":"payment.failed","payload":{}}`)); err == nil {
		t.Fatalf("failure event without ids must not parse")
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMinorUnits(t *testing.T) {
	if got := ToMinorUnits(decimal.RequireFromString("450.005")); got != 45001 {
		t.Fatalf("expected 45001, got %d", got)
	}
	if got := ToMinorUnits(decimal.NewFromInt(450)); got != 45000 {
		t.Fatalf("expected 45000, got %d", got)
	}
	if !FromMinorUnits(45050).Equal(decimal.RequireFromString("450.50")) {
		t.Fatalf("FromMinorUnits mismatch")
	}
}
