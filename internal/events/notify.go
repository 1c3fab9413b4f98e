// Package events carries post-commit order notifications. The order flow emits
// them after a state change is durable; delivery is best effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"go.uber.org/zap"
)

// StatusPlaced is sent when an order is confirmed (COD creation or captured payment).
const StatusPlaced = "Placed"

// Notification is one status change for a user's order.
type Notification struct {
	UserID     string    `json:"user_id"`
	OrderID    string    `json:"order_id"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier hands a notification off for delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Sender delivers a notification to the user's contact channel (email, SMS).
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SQSNotifier enqueues notifications for the worker.
type SQSNotifier struct {
	publisher *aws.Publisher
}

// NewSQSNotifier returns a Notifier backed by an SQS queue.
func NewSQSNotifier(p *aws.Publisher) *SQSNotifier {
	return &SQSNotifier{publisher: p}
}

// Notify implements Notifier.
func (s *SQSNotifier) Notify(ctx context.Context, n Notification) error {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.publisher.SendMessage(ctx, string(body), map[string]string{
		"event_type": "order_status",
		"order_id":   n.OrderID,
		"status":     n.Status,
	})
}

// LogSender writes notifications to the log. It is the default sender when no
// email or SMS provider is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (l *LogSender) Send(ctx context.Context, n Notification) error {
	l.logger.Info("order notification",
		zap.String("user_id", n.UserID),
		zap.String("order_id", n.OrderID),
		zap.String("amount", strconv.FormatFloat(n.Amount, 'f', 2, 64)),
		zap.String("status", n.Status),
	)
	return nil
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) error { return nil }
