package orderflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/metrics"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"go.uber.org/zap"
)

// StatusChange is the result of UpdateOrderStatus.
type StatusChange struct {
	Order    OrderView `json:"order"`
	Changed  bool      `json:"changed"`
	Archived bool      `json:"archived"`
}

// UpdateOrderStatus moves an order to status. Delivered and Cancelled move the
// order to history and delete it from the live table in one transaction; a COD
// order becomes Paid when delivered. Repeating a terminal update is a no-op.
// Cancelling a confirmed order does not give its coupon back.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, status string) (*StatusChange, error) {
	if !orders.ValidStatus(status) {
		return nil, invalid("status", "unknown order status %q", status)
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return s.archivedStatus(ctx, orderID, status)
	}
	if o.OrderStatus == status {
		return &StatusChange{Order: OrderView{Order: *o}}, nil
	}

	paymentStatus := ""
	if o.IsCOD() && status == orders.StatusDelivered {
		paymentStatus = orders.PaymentPaid
	}
	log := s.logger.With(zap.String("order_id", orderID), zap.String("from", o.OrderStatus), zap.String("to", status))

	if orders.IsTerminal(status) {
		return s.archive(ctx, log, o, status, paymentStatus)
	}

	err = s.orders.UpdateStatus(ctx, orderID, o.OrderStatus, status, paymentStatus)
	if errors.Is(err, orders.ErrStatusMismatch) {
		return nil, fmt.Errorf("%w: order %s was updated concurrently", ErrConflict, orderID)
	}
	if err != nil {
		return nil, err
	}
	o.OrderStatus = status
	if paymentStatus != "" {
		o.PaymentStatus = paymentStatus
	}
	o.UpdatedAt = s.nowFunc().UTC()
	log.Info("order status updated")
	s.afterCommit(ctx, o, status, false)
	return &StatusChange{Order: OrderView{Order: *o}, Changed: true}, nil
}

func (s *Service) archive(ctx context.Context, log *zap.Logger, o *orders.Order, status, paymentStatus string) (*StatusChange, error) {
	ps := o.PaymentStatus
	if paymentStatus != "" {
		ps = paymentStatus
	}
	rec := s.history.NewRecord(*o, status, ps)
	put, err := s.history.PutItem(rec)
	if err != nil {
		return nil, err
	}

	err = aws.TransactWrite(ctx, s.db, put, s.orders.DeleteItem(o.OrderID, o.OrderStatus))
	switch {
	case err == nil:
	case aws.ConditionFailedAt(err, 0) && !aws.ConditionFailedAt(err, 1):
		// archived earlier but the live copy survived; finish the move
		if _, err := s.orders.Delete(ctx, o.OrderID); err != nil {
			return nil, fmt.Errorf("remove archived order: %w", err)
		}
		log.Warn("order was already archived, removed live copy")
		return s.archivedStatus(ctx, o.OrderID, status)
	case aws.ConditionFailedAt(err, 1):
		h, herr := s.history.Get(ctx, o.OrderID)
		if herr == nil && h != nil && h.OrderStatus == status {
			// a concurrent identical update archived it first
			return &StatusChange{Order: fromHistory(*h), Archived: true}, nil
		}
		return nil, fmt.Errorf("%w: order %s was updated concurrently", ErrConflict, o.OrderID)
	default:
		return nil, fmt.Errorf("archive order: %w", err)
	}

	log.Info("order archived")
	s.metrics.Incr(ctx, metrics.OrdersArchived, map[string]string{"status": status})
	o.OrderStatus = status
	o.PaymentStatus = ps
	s.afterCommit(ctx, o, status, false)
	return &StatusChange{Order: fromHistory(rec), Changed: true, Archived: true}, nil
}

// archivedStatus answers a status update for an order that is no longer live.
func (s *Service) archivedStatus(ctx context.Context, orderID, status string) (*StatusChange, error) {
	h, err := s.history.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if h.OrderStatus != status {
		return nil, fmt.Errorf("%w: order %s is already %s", ErrConflict, orderID, h.OrderStatus)
	}
	return &StatusChange{Order: fromHistory(*h), Archived: true}, nil
}
