package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/imrishuroy/go-idempotent-checkout/internal/staging"
	"go.uber.org/zap"
)

// ttlPrincipal is the identity DynamoDB uses for deletions made by TTL.
const ttlPrincipal = "dynamodb.amazonaws.com"

type releaser interface {
	ReleaseExpired(ctx context.Context, rec staging.Record) (bool, error)
}

// Handler releases the coupons of staged orders removed by TTL.
type Handler struct {
	orders releaser
	logger *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(r releaser, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orders: r, logger: logger}
}

// Handle processes one stream batch. Records are handled in order and the
// first failure is reported so the batch resumes from it.
func (h *Handler) Handle(ctx context.Context, ev events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for _, rec := range ev.Records {
		if !expiredByTTL(rec) {
			continue
		}
		if err := h.release(ctx, rec); err != nil {
			h.logger.Error("release failed",
				zap.String("event_id", rec.EventID),
				zap.String("sequence", rec.Change.SequenceNumber),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.DynamoDBBatchItemFailure{ItemIdentifier: rec.Change.SequenceNumber})
			return resp, nil
		}
	}
	return resp, nil
}

func (h *Handler) release(ctx context.Context, rec events.DynamoDBEventRecord) error {
	item, err := toAttributeMap(rec.Change.OldImage)
	if err != nil {
		return err
	}
	var staged staging.Record
	if err := attributevalue.UnmarshalMap(item, &staged); err != nil {
		return fmt.Errorf("unmarshal staged order: %w", err)
	}
	if staged.OrderID == "" {
		// stream view without old images
		h.logger.Warn("REMOVE record carries no old image", zap.String("event_id", rec.EventID))
		return nil
	}

	released, err := h.orders.ReleaseExpired(ctx, staged)
	if err != nil {
		return err
	}
	h.logger.Info("expired staged order",
		zap.String("order_id", staged.OrderID),
		zap.String("coupon", staged.CouponCode),
		zap.Bool("released", released))
	return nil
}

// expiredByTTL reports whether rec is a deletion made by the TTL process.
// Deletions made by the order flow itself carry no service identity.
func expiredByTTL(rec events.DynamoDBEventRecord) bool {
	if rec.EventName != string(events.DynamoDBOperationTypeRemove) {
		return false
	}
	id := rec.UserIdentity
	return id != nil && id.Type == "Service" && id.PrincipalID == ttlPrincipal
}
