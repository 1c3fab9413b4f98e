package orderflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imrishuroy/go-idempotent-checkout/internal/catalog"
	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/dynamotest"
	"github.com/imrishuroy/go-idempotent-checkout/internal/events"
	"github.com/imrishuroy/go-idempotent-checkout/internal/history"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/staging"
	"github.com/imrishuroy/go-idempotent-checkout/internal/transactions"
)

const (
	tCoupons      = "coupons"
	tOrders       = "orders"
	tStaging      = "staging"
	tIntents      = "payment-intents"
	tHistory      = "order-history"
	tTransactions = "transactions"
	tIdempotency  = "idempotency"

	webhookSecret = "whsec"
	keySecret     = "keysecret"
)

type fakeGateway struct {
	mu       sync.Mutex
	err      error
	calls    int
	onCreate func()
	intentID string // fixed id for every intent when set
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency, reference string) (*payment.Intent, error) {
	g.mu.Lock()
	g.calls++
	err, hook, id := g.err, g.onCreate, g.intentID
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = "gw_" + reference
	}
	return &payment.Intent{ID: id, Amount: amountMinor, Currency: currency, Receipt: reference, Status: "created"}, nil
}

func (g *fakeGateway) VerifyCallback(raw []byte, signature string) bool {
	return payment.Sign(webhookSecret, raw) == signature
}

func (g *fakeGateway) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return payment.Sign(keySecret, []byte(gatewayOrderID+"|"+paymentID)) == signature
}

type recordingCart struct {
	mu      sync.Mutex
	cleared map[string]int
}

func (c *recordingCart) Clear(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared[userID]++
	return nil
}

func (c *recordingCart) count(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared[userID]
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []events.Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, note events.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func (n *recordingNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Status)
	}
	return out
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *recordingMetrics) Incr(ctx context.Context, name string, dims map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
}

func (m *recordingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type harness struct {
	db      *dynamotest.Fake
	svc     *Service
	ledger  *coupons.Ledger
	gw      *fakeGateway
	cart    *recordingCart
	notes   *recordingNotifier
	metrics *recordingMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dynamotest.New().
		CreateTable(tCoupons, "code").
		CreateTable(tOrders, "order_id").
		CreateTable(tStaging, "order_id").
		CreateTable(tIntents, "gateway_order_id").
		CreateTable(tHistory, "original_order_id").
		CreateTable(tTransactions, "payment_id").
		CreateTable(tIdempotency, "idempotency_key")

	h := &harness{
		db:      db,
		ledger:  coupons.NewLedger(db, tCoupons, nil),
		gw:      &fakeGateway{},
		cart:    &recordingCart{cleared: map[string]int{}},
		notes:   &recordingNotifier{},
		metrics: &recordingMetrics{counts: map[string]int{}},
	}
	h.svc = New(Deps{
		DB:           db,
		Coupons:      h.ledger,
		Orders:       orders.NewStore(db, tOrders),
		Staging:      staging.NewStore(db, tStaging, tIntents, 24*time.Hour),
		History:      history.NewStore(db, tHistory, 0),
		Transactions: transactions.NewStore(db, tTransactions),
		Idempotency:  idempotency.NewStore(db, tIdempotency, 48*time.Hour),
		Gateway:      h.gw,
		Catalog: catalog.Static{
			"p1": {ID: "p1", Name: "Mug", Price: 250, Stock: 10, Active: true},
			"p2": {ID: "p2", Name: "Cap", Price: 100, Stock: 0, Active: true},
		},
		Cart:     h.cart,
		Notifier: h.notes,
		Metrics:  h.metrics,
		Currency: "INR",
	})
	var seq int64
	h.svc.newID = func() string { return fmt.Sprintf("ord-%d", atomic.AddInt64(&seq, 1)) }
	return h
}

func (h *harness) coupon(t *testing.T, code string, uses int) {
	t.Helper()
	_, err := h.ledger.Create(context.Background(), coupons.Coupon{
		Code:            code,
		DiscountPercent: 10,
		MinPurchase:     100,
		MaxPurchase:     1000,
		RemainingUses:   uses,
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}
}

func (h *harness) remaining(t *testing.T, code string) int {
	t.Helper()
	c, err := h.ledger.Get(context.Background(), code)
	if err != nil || c == nil {
		t.Fatalf("get coupon %s: %v", code, err)
	}
	return c.RemainingUses
}

func checkout(user, method, coupon string) CreateOrderInput {
	return CreateOrderInput{
		UserID:        user,
		Items:         []LineItem{{ProductID: "p1", Quantity: 2}},
		PaymentMethod: method,
		CouponCode:    coupon,
		ShippingAddress: orders.Address{
			Name: "Asha", Street: "1 MG Road", City: "Pune", State: "MH", PostalCode: "411001", Country: "IN",
		},
	}
}

func webhookBody(event, paymentID, gatewayOrderID string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":%d,"currency":"INR","method":"card","error_description":"declined"}}}}`,
		event, paymentID, gatewayOrderID, amount))
}

func (h *harness) deliver(t *testing.T, raw []byte) *Reconciliation {
	t.Helper()
	res, err := h.svc.HandleWebhook(context.Background(), raw, payment.Sign(webhookSecret, raw))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	return res
}
