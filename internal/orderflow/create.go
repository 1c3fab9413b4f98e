package orderflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/events"
	"github.com/imrishuroy/go-idempotent-checkout/internal/metrics"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LineItem is a requested product and quantity. Prices come from the catalog.
type LineItem struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput is a checkout request from an authenticated user.
type CreateOrderInput struct {
	UserID          string
	Items           []LineItem
	ShippingAddress orders.Address
	PaymentMethod   string
	CouponCode      string
}

// CreateOrderResult is a confirmed COD order, or a staged order with the
// gateway intent the client completes payment against.
type CreateOrderResult struct {
	Order  orders.Order    `json:"order"`
	Staged bool            `json:"staged"`
	Intent *payment.Intent `json:"intent,omitempty"`
}

// CreateOrder prices the items, reserves the coupon and creates the order.
// COD orders are confirmed directly. Other methods are staged and a gateway
// intent is created; if the gateway call or linking its intent fails the
// staged order is removed and the coupon released before the error is
// returned.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if err := validateCreate(&in); err != nil {
		return nil, err
	}
	lines, subtotal, err := s.price(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	total := subtotal
	if in.CouponCode != "" {
		c, err := s.coupons.Check(ctx, in.CouponCode, subtotal)
		if err != nil {
			if errors.Is(err, coupons.ErrCouponRejected) {
				s.metrics.Incr(ctx, metrics.CouponsRejected, nil)
			}
			return nil, err
		}
		total = c.DiscountedTotal(subtotal)
	}

	order := orders.Order{
		OrderID:         s.newID(),
		UserID:          in.UserID,
		Items:           lines,
		Currency:        s.currency,
		ShippingAddress: in.ShippingAddress,
		OrderStatus:     orders.StatusPending,
		PaymentStatus:   orders.PaymentPending,
		PaymentMethod:   in.PaymentMethod,
		CouponCode:      in.CouponCode,
		CreatedAt:       s.nowFunc().UTC(),
	}
	log := s.logger.With(zap.String("order_id", order.OrderID), zap.String("user_id", in.UserID))

	if order.IsCOD() {
		order.TotalAmount = total.Add(s.codSurcharge).Round(2).InexactFloat64()
		put, err := s.orders.PutItem(order)
		if err != nil {
			return nil, err
		}
		if err := s.commitWithReservation(ctx, in.CouponCode, subtotal, put); err != nil {
			return nil, err
		}
		log.Info("cod order created", zap.Float64("total", order.TotalAmount))
		s.metrics.Incr(ctx, metrics.OrdersCreated, map[string]string{"method": orders.MethodCOD})
		s.afterCommit(ctx, &order, events.StatusPlaced, true)
		return &CreateOrderResult{Order: order}, nil
	}

	order.TotalAmount = total.Round(2).InexactFloat64()
	rec := s.staging.NewRecord(order)
	put, err := s.staging.PutItem(rec)
	if err != nil {
		return nil, err
	}
	if err := s.commitWithReservation(ctx, in.CouponCode, subtotal, put); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, payment.ToMinorUnits(total), s.currency, rec.OrderID)
	if err != nil {
		s.metrics.Incr(ctx, metrics.GatewayErrors, nil)
		if _, derr := s.dropStaged(ctx, s.staging.DeleteUnlinkedItem(rec.OrderID), rec.CouponCode); derr != nil {
			// the record expires on its own and the coupon comes back then
			log.Error("roll back staged order failed", zap.Error(derr))
		}
		log.Warn("create payment intent failed", zap.Error(err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	attach, err := s.staging.AttachIntentItems(rec, intent.ID)
	if err == nil {
		err = aws.TransactWrite(ctx, s.db, attach...)
	}
	if err != nil {
		log.Error("link payment intent failed", zap.String("gateway_order_id", intent.ID), zap.Error(err))
		if _, derr := s.dropStaged(ctx, s.staging.DeleteUnlinkedItem(rec.OrderID), rec.CouponCode); derr != nil {
			// left to TTL expiry and the sweeper
			log.Error("roll back staged order failed", zap.Error(derr))
		}
		return nil, fmt.Errorf("link payment intent: %w", err)
	}

	rec.GatewayOrderID = intent.ID
	log.Info("order staged for payment", zap.String("gateway_order_id", intent.ID), zap.Float64("total", rec.TotalAmount))
	s.metrics.Incr(ctx, metrics.OrdersStaged, map[string]string{"method": in.PaymentMethod})
	return &CreateOrderResult{Order: rec.Order, Staged: true, Intent: intent}, nil
}

// commitWithReservation writes item and, when code is set, the coupon
// reservation in one transaction.
func (s *Service) commitWithReservation(ctx context.Context, code string, subtotal decimal.Decimal, item types.TransactWriteItem) error {
	var items []types.TransactWriteItem
	if code != "" {
		items = append(items, s.coupons.ReserveItem(code, subtotal))
	}
	items = append(items, item)
	err := aws.TransactWrite(ctx, s.db, items...)
	if err == nil {
		return nil
	}
	if code != "" && aws.ConditionFailedAt(err, 0) {
		s.metrics.Incr(ctx, metrics.CouponsRejected, nil)
		return s.coupons.Explain(ctx, code, subtotal)
	}
	if aws.IsTransactionCanceled(err) {
		return fmt.Errorf("%w: order id already in use", ErrConflict)
	}
	return err
}

// price resolves items against the catalog and returns the order lines and subtotal.
func (s *Service) price(ctx context.Context, items []LineItem) ([]orders.Item, decimal.Decimal, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.catalog.Lookup(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}

	want := map[string]int{}
	for _, it := range items {
		want[it.ProductID] += it.Quantity
	}

	lines := make([]orders.Item, 0, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, decimal.Zero, invalid("items", "product %s not found", it.ProductID)
		}
		if !p.InStock() || p.Stock < want[it.ProductID] {
			return nil, decimal.Zero, invalid("items", "product %s is out of stock", it.ProductID)
		}
		price := decimal.NewFromFloat(p.Price)
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		lines = append(lines, orders.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
		})
	}
	return lines, subtotal, nil
}

func validateCreate(in *CreateOrderInput) error {
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.CouponCode = coupons.NormalizeCode(in.CouponCode)
	a := in.ShippingAddress
	switch {
	case in.UserID == "":
		return invalid("user", "is required")
	case len(in.Items) == 0:
		return invalid("items", "cart is empty")
	case in.PaymentMethod == "":
		return invalid("paymentMethod", "is required")
	case a.Name == "" || a.Street == "" || a.City == "" || a.State == "" || a.PostalCode == "" || a.Country == "":
		return invalid("shippingAddress", "name, street, city, state, postal code and country are required")
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return invalid("items", "product id is required")
		}
		if it.Quantity < 1 {
			return invalid("items", "quantity of %s must be at least 1", it.ProductID)
		}
	}
	if strings.EqualFold(in.PaymentMethod, orders.MethodCOD) {
		in.PaymentMethod = orders.MethodCOD
	}
	return nil
}
