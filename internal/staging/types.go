// Package staging holds orders that are waiting for gateway payment confirmation.
// Records carry an absolute expiry; once it passes they are invisible to reads
// and cannot be promoted, and DynamoDB TTL removes them later.
package staging

import (
	"time"

	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
)

// Record is a provisional order. Its OrderID becomes the id of the confirmed order.
type Record struct {
	orders.Order
	ExpiresAt int64 `dynamodbav:"expires_at" json:"expiresAt"` // TTL epoch seconds
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt <= now.Unix()
}

// IntentRef maps a gateway order id to the staging record it was created for.
// The table is keyed by gateway_order_id, so a gateway id can be attached to at
// most one order.
type IntentRef struct {
	GatewayOrderID string    `dynamodbav:"gateway_order_id"` // PK
	OrderID        string    `dynamodbav:"order_id"`
	UserID         string    `dynamodbav:"user_id"`
	Amount         float64   `dynamodbav:"amount"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"`
}
