package orderflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/history"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/shopspring/decimal"
)

// OrderView is an order as shown to users: live orders and archived ones share
// one shape, archived ones are flagged completed.
type OrderView struct {
	orders.Order
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func fromHistory(r history.Record) OrderView {
	completed := r.CompletedAt
	return OrderView{
		Order: orders.Order{
			OrderID:         r.OriginalOrderID,
			UserID:          r.UserID,
			Items:           r.Items,
			TotalAmount:     r.TotalAmount,
			Currency:        r.Currency,
			ShippingAddress: r.ShippingAddress,
			OrderStatus:     r.OrderStatus,
			PaymentStatus:   r.PaymentStatus,
			PaymentMethod:   r.PaymentMethod,
			CouponCode:      r.CouponCode,
			TransactionID:   r.TransactionID,
			CreatedAt:       r.OrderedAt,
			UpdatedAt:       r.CompletedAt,
		},
		Completed:   true,
		CompletedAt: &completed,
	}
}

// ListUserOrders returns the user's live and archived orders, newest first.
// Orders still waiting for payment are not included.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]OrderView, error) {
	live, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	done, err := s.history.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]OrderView, 0, len(live)+len(done))
	for _, o := range live {
		out = append(out, OrderView{Order: o})
	}
	for _, r := range done {
		out = append(out, fromHistory(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetOrder returns a live or archived order. A non-empty userID restricts the
// lookup to that user's orders; other users' orders are reported as not found.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*OrderView, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var v *OrderView
	if o != nil {
		v = &OrderView{Order: *o}
	} else {
		h, err := s.history.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if h != nil {
			hv := fromHistory(*h)
			v = &hv
		}
	}
	if v == nil || (userID != "" && v.UserID != userID) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return v, nil
}

// ListOrders returns every live order, newest first.
func (s *Service) ListOrders(ctx context.Context) ([]orders.Order, error) {
	return s.orders.List(ctx)
}

// ListHistory returns every archived order, most recently completed first.
func (s *Service) ListHistory(ctx context.Context) ([]history.Record, error) {
	return s.history.List(ctx)
}

// CouponQuote is the result of a coupon pre-check.
type CouponQuote struct {
	Code            string  `json:"code"`
	DiscountPercent float64 `json:"discountPercent"`
	Total           float64 `json:"total"`
	Discount        float64 `json:"discount"`
	DiscountedTotal float64 `json:"discountedTotal"`
}

// VerifyCoupon reports whether code applies to total and what the order would
// cost. Nothing is reserved.
func (s *Service) VerifyCoupon(ctx context.Context, code string, total float64) (*CouponQuote, error) {
	if coupons.NormalizeCode(code) == "" {
		return nil, invalid("code", "is required")
	}
	if total <= 0 {
		return nil, invalid("total", "must be positive")
	}
	t := decimal.NewFromFloat(total)
	c, err := s.coupons.Check(ctx, code, t)
	if err != nil {
		return nil, err
	}
	discounted := c.DiscountedTotal(t)
	return &CouponQuote{
		Code:            c.Code,
		DiscountPercent: c.DiscountPercent,
		Total:           t.Round(2).InexactFloat64(),
		Discount:        t.Sub(discounted).Round(2).InexactFloat64(),
		DiscountedTotal: discounted.InexactFloat64(),
	}, nil
}
