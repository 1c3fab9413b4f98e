// Package orderflow coordinates coupon reservation, order creation, payment
// reconciliation and archival. Every step that touches more than one record
// commits as a single DynamoDB transaction; no transaction spans a gateway call.
package orderflow

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/cart"
	"github.com/imrishuroy/go-idempotent-checkout/internal/catalog"
	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/events"
	"github.com/imrishuroy/go-idempotent-checkout/internal/history"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/metrics"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/staging"
	"github.com/imrishuroy/go-idempotent-checkout/internal/transactions"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultCurrency is used when Deps.Currency is empty.
const DefaultCurrency = "INR"

// Deps groups the collaborators of a Service. DB, the stores, Gateway and
// Catalog are required; the rest default to no-ops.
type Deps struct {
	DB           aws.DynamoDBAPI
	Coupons      *coupons.Ledger
	Orders       *orders.Store
	Staging      *staging.Store
	History      *history.Store
	Transactions *transactions.Store
	Idempotency  *idempotency.Store
	Gateway      payment.Gateway
	Catalog      catalog.Catalog
	Cart         cart.Clearer
	Notifier     events.Notifier
	Metrics      metrics.Recorder
	Logger       *zap.Logger

	Currency     string
	CODSurcharge float64
}

// Service is the order lifecycle orchestrator.
type Service struct {
	db           aws.DynamoDBAPI
	coupons      *coupons.Ledger
	orders       *orders.Store
	staging      *staging.Store
	history      *history.Store
	transactions *transactions.Store
	idempotency  *idempotency.Store
	gateway      payment.Gateway
	catalog      catalog.Catalog
	cart         cart.Clearer
	notifier     events.Notifier
	metrics      metrics.Recorder
	logger       *zap.Logger

	currency     string
	codSurcharge decimal.Decimal

	nowFunc func() time.Time
	newID   func() string
}

// New returns a Service.
func New(d Deps) *Service {
	s := &Service{
		db:           d.DB,
		coupons:      d.Coupons,
		orders:       d.Orders,
		staging:      d.Staging,
		history:      d.History,
		transactions: d.Transactions,
		idempotency:  d.Idempotency,
		gateway:      d.Gateway,
		catalog:      d.Catalog,
		cart:         d.Cart,
		notifier:     d.Notifier,
		metrics:      d.Metrics,
		logger:       d.Logger,
		currency:     d.Currency,
		codSurcharge: decimal.NewFromFloat(d.CODSurcharge),
		nowFunc:      time.Now,
		newID:        uuid.NewString,
	}
	if s.cart == nil {
		s.cart = cart.Nop{}
	}
	if s.notifier == nil {
		s.notifier = events.Discard{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.currency == "" {
		s.currency = DefaultCurrency
	}
	return s
}

// dropStaged deletes a staging record with del and gives back its coupon in the
// same transaction. If the coupon has been deleted the record is removed alone.
// It reports false when del's condition failed, i.e. someone else already
// promoted or removed the record.
func (s *Service) dropStaged(ctx context.Context, del types.TransactWriteItem, couponCode string) (bool, error) {
	items := []types.TransactWriteItem{del}
	if couponCode != "" {
		items = append(items, s.coupons.ReleaseItem(couponCode))
	}
	err := aws.TransactWrite(ctx, s.db, items...)
	if err != nil && couponCode != "" && aws.ConditionFailedAt(err, 1) && !aws.ConditionFailedAt(err, 0) {
		s.logger.Warn("coupon no longer exists, dropping staged order without release", zap.String("coupon", couponCode))
		couponCode = ""
		err = aws.TransactWrite(ctx, s.db, del)
	}
	if err != nil {
		if aws.ConditionFailedAt(err, 0) {
			return false, nil
		}
		return false, err
	}
	if couponCode != "" {
		s.metrics.Incr(ctx, metrics.CouponsReleased, nil)
	}
	return true, nil
}

// afterCommit runs the best effort side effects of a committed state change.
func (s *Service) afterCommit(ctx context.Context, o *orders.Order, status string, clearCart bool) {
	log := s.logger.With(zap.String("order_id", o.OrderID), zap.String("user_id", o.UserID))
	if clearCart {
		if err := s.cart.Clear(ctx, o.UserID); err != nil {
			log.Warn("clear cart failed", zap.Error(err))
		}
	}
	n := events.Notification{
		UserID:     o.UserID,
		OrderID:    o.OrderID,
		Amount:     o.TotalAmount,
		Status:     status,
		OccurredAt: s.nowFunc().UTC(),
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		log.Warn("notify failed", zap.String("status", status), zap.Error(err))
	}
}
