package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	orderevents "github.com/imrishuroy/go-idempotent-checkout/internal/events"
	"go.uber.org/zap"
)

// Processor delivers order notifications read from SQS.
type Processor struct {
	sender orderevents.Sender
	logger *zap.Logger
}

// NewProcessor creates a processor that hands each notification to sender.
func NewProcessor(sender orderevents.Sender, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sender: sender, logger: logger}
}

// Handle processes an SQS batch. Messages that fail to send are reported as
// batch item failures so only they are redelivered; a body that does not decode
// is dropped since redelivery would not fix it.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("notification failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var n orderevents.Notification
	if err := json.Unmarshal([]byte(rec.Body), &n); err != nil {
		p.logger.Warn("dropping malformed notification", zap.String("message_id", rec.MessageId), zap.Error(err))
		return nil
	}
	if n.OrderID == "" || n.UserID == "" {
		p.logger.Warn("dropping notification without order or user", zap.String("message_id", rec.MessageId))
		return nil
	}

	if err := p.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("send notification for order %s: %w", n.OrderID, err)
	}
	p.logger.Debug("notification sent",
		zap.String("order_id", n.OrderID),
		zap.String("status", n.Status),
		zap.Int("receive_count", receiveCount(rec)),
	)
	return nil
}

func receiveCount(rec events.SQSMessage) int {
	var n int
	_, _ = fmt.Sscanf(rec.Attributes["ApproximateReceiveCount"], "%d", &n)
	return n
}
