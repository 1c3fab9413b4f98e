package orderflow

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/events"
	"github.com/imrishuroy/go-idempotent-checkout/internal/metrics"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/staging"
	"github.com/imrishuroy/go-idempotent-checkout/internal/transactions"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciliation is the result of applying one payment event.
type Reconciliation struct {
	Outcome Outcome `json:"outcome"`
	OrderID string  `json:"orderId,omitempty"`
}

// HandleWebhook verifies a raw gateway callback and reconciles it. Nothing is
// parsed before the signature over the raw bytes has been checked.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte, signature string) (*Reconciliation, error) {
	if !s.gateway.VerifyCallback(raw, signature) {
		return nil, payment.ErrSignatureInvalid
	}
	ev, err := payment.ParseEvent(raw)
	if err != nil {
		return nil, invalid("payload", "%v", err)
	}
	return s.ReconcilePaymentCallback(ctx, ev)
}

// ReconcilePaymentCallback applies a verified gateway event. Replays of the same
// payment are reported as duplicates and change nothing.
func (s *Service) ReconcilePaymentCallback(ctx context.Context, ev *payment.Event) (*Reconciliation, error) {
	switch {
	case ev.Succeeded():
		return s.capture(ctx, capture{
			gatewayOrderID: ev.GatewayOrderID,
			paymentID:      ev.PaymentID,
			method:         ev.Method,
			amountMinor:    ev.Amount,
		})
	case ev.Failed():
		return s.fail(ctx, ev)
	default:
		s.logger.Debug("ignoring payment event", zap.String("event", ev.Type))
		return &Reconciliation{Outcome: OutcomeIgnored}, nil
	}
}

// ConfirmPayment handles the client side confirmation returned by the checkout
// widget. It is idempotent with the payment.captured webhook for the same payment.
func (s *Service) ConfirmPayment(ctx context.Context, userID, gatewayOrderID, paymentID, signature string) (*Reconciliation, error) {
	if gatewayOrderID == "" || paymentID == "" {
		return nil, invalid("payment", "gateway order id and payment id are required")
	}
	if !s.gateway.VerifyPaymentSignature(gatewayOrderID, paymentID, signature) {
		return nil, payment.ErrSignatureInvalid
	}
	return s.capture(ctx, capture{
		gatewayOrderID: gatewayOrderID,
		paymentID:      paymentID,
		userID:         userID,
	})
}

type capture struct {
	gatewayOrderID string
	paymentID      string
	method         string
	amountMinor    int64  // 0 when unknown
	userID         string // when set, the intent must belong to this user
}

func (s *Service) capture(ctx context.Context, c capture) (*Reconciliation, error) {
	log := s.logger.With(zap.String("payment_id", c.paymentID), zap.String("gateway_order_id", c.gatewayOrderID))

	tx, err := s.transactions.Get(ctx, c.paymentID)
	if err != nil {
		return nil, err
	}
	if tx != nil {
		return s.duplicate(ctx, log, tx.OrderID), nil
	}

	ref, err := s.staging.LookupIntent(ctx, c.gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return s.expired(ctx, log, ""), nil
	}
	if c.userID != "" && ref.UserID != c.userID {
		return nil, ErrForbidden
	}

	rec, err := s.staging.Get(ctx, ref.OrderID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		paid, err := s.alreadyPaid(ctx, ref.OrderID)
		if err != nil {
			return nil, err
		}
		if paid {
			return s.duplicate(ctx, log, ref.OrderID), nil
		}
		return s.expired(ctx, log, ref.OrderID), nil
	}

	if c.amountMinor > 0 {
		captured := payment.FromMinorUnits(c.amountMinor)
		if want := decimal.NewFromFloat(rec.TotalAmount).Round(2); !captured.Equal(want) {
			log.Warn("captured amount differs from order total",
				zap.String("captured", captured.StringFixed(2)), zap.String("expected", want.StringFixed(2)))
		}
	}

	order := rec.Order
	order.GatewayOrderID = c.gatewayOrderID
	order.PaymentStatus = orders.PaymentPaid
	order.TransactionID = c.paymentID
	method := c.method
	if method == "" {
		method = order.PaymentMethod
	}

	putOrder, err := s.orders.PutItem(order)
	if err != nil {
		return nil, err
	}
	putTx, err := s.transactions.PutItem(transactions.Transaction{
		PaymentID:      c.paymentID,
		OrderID:        order.OrderID,
		UserID:         order.UserID,
		Items:          order.Items,
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		PaymentMethod:  method,
		Status:         transactions.StatusSuccess,
		GatewayOrderID: c.gatewayOrderID,
		CreatedAt:      s.nowFunc().UTC(),
	})
	if err != nil {
		return nil, err
	}

	err = aws.TransactWrite(ctx, s.db, putOrder, putTx, s.staging.ConsumeItem(order.OrderID))
	if err != nil {
		switch {
		case aws.ConditionFailedAt(err, 0), aws.ConditionFailedAt(err, 1):
			// a concurrent delivery of the same payment won
			return s.duplicate(ctx, log, order.OrderID), nil
		case aws.ConditionFailedAt(err, 2):
			return s.expired(ctx, log, order.OrderID), nil
		}
		return nil, fmt.Errorf("promote staged order: %w", err)
	}

	log.Info("payment captured", zap.String("order_id", order.OrderID))
	s.metrics.Incr(ctx, metrics.PaymentsCaptured, map[string]string{"method": method})
	s.afterCommit(ctx, &order, events.StatusPlaced, true)
	return &Reconciliation{Outcome: OutcomeProcessed, OrderID: order.OrderID}, nil
}

func (s *Service) fail(ctx context.Context, ev *payment.Event) (*Reconciliation, error) {
	log := s.logger.With(zap.String("payment_id", ev.PaymentID), zap.String("gateway_order_id", ev.GatewayOrderID))

	ref, err := s.staging.LookupIntent(ctx, ev.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return s.expired(ctx, log, ""), nil
	}
	rec, err := s.staging.Get(ctx, ref.OrderID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		paid, err := s.alreadyPaid(ctx, ref.OrderID)
		if err != nil {
			return nil, err
		}
		if paid {
			log.Info("failure reported for an order that is already paid", zap.String("order_id", ref.OrderID))
			return &Reconciliation{Outcome: OutcomeIgnored, OrderID: ref.OrderID}, nil
		}
		return s.expired(ctx, log, ref.OrderID), nil
	}

	deleted, err := s.dropStaged(ctx, s.staging.DeleteItem(rec.OrderID), rec.CouponCode)
	if err != nil {
		return nil, fmt.Errorf("discard staged order: %w", err)
	}
	if !deleted {
		return s.duplicate(ctx, log, rec.OrderID), nil
	}
	log.Info("payment failed, staged order discarded", zap.String("order_id", rec.OrderID), zap.String("reason", ev.ErrorReason))
	s.metrics.Incr(ctx, metrics.PaymentsFailed, nil)
	return &Reconciliation{Outcome: OutcomeProcessed, OrderID: rec.OrderID}, nil
}

// alreadyPaid reports whether orderID was confirmed as paid, live or archived.
func (s *Service) alreadyPaid(ctx context.Context, orderID string) (bool, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o != nil {
		return o.PaymentStatus == orders.PaymentPaid, nil
	}
	h, err := s.history.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	return h != nil && h.TransactionID != "", nil
}

func (s *Service) duplicate(ctx context.Context, log *zap.Logger, orderID string) *Reconciliation {
	log.Info("duplicate payment callback", zap.String("order_id", orderID))
	s.metrics.Incr(ctx, metrics.DuplicateCallbacks, nil)
	return &Reconciliation{Outcome: OutcomeDuplicate, OrderID: orderID}
}

func (s *Service) expired(ctx context.Context, log *zap.Logger, orderID string) *Reconciliation {
	log.Warn("payment callback for an expired or unknown order", zap.String("order_id", orderID))
	s.metrics.Incr(ctx, metrics.ExpiredCallbacks, nil)
	return &Reconciliation{Outcome: OutcomeExpired, OrderID: orderID}
}

// ReleaseExpired gives back the coupon of a staging record that expired without
// payment. It is driven by the table stream and may see the same record more
// than once; a marker written in the same transaction makes the release happen
// exactly once. It reports whether a use was given back.
func (s *Service) ReleaseExpired(ctx context.Context, rec staging.Record) (bool, error) {
	if rec.CouponCode == "" {
		return false, nil
	}
	log := s.logger.With(zap.String("order_id", rec.OrderID), zap.String("coupon", rec.CouponCode))

	marker, err := s.idempotency.MarkerItem(releaseKey(rec.OrderID))
	if err != nil {
		return false, err
	}
	err = aws.TransactWrite(ctx, s.db, marker, s.coupons.ReleaseItem(rec.CouponCode))
	switch {
	case err == nil:
		log.Info("released coupon of expired staged order")
		s.metrics.Incr(ctx, metrics.CouponsReleased, nil)
		return true, nil
	case aws.ConditionFailedAt(err, 0):
		log.Debug("coupon of expired staged order already released")
		return false, nil
	case aws.ConditionFailedAt(err, 1):
		log.Warn("coupon no longer exists, nothing to release")
		return false, nil
	}
	return false, fmt.Errorf("release expired reservation: %w", err)
}

func releaseKey(stagingID string) string { return "release:" + stagingID }
