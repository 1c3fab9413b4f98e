package transactions

import (
	"context"
	"testing"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/dynamotest"
)

func TestPutItem_AtMostOncePerPayment(t *testing.T) {
	db := dynamotest.New().CreateTable("transactions", "payment_id")
	s := NewStore(db, "transactions")
	ctx := context.Background()

	item, err := s.PutItem(Transaction{PaymentID: "pay_1", OrderID: "o1", UserID: "u1", Amount: 450, Status: StatusSuccess})
	if err != nil {
		t.Fatalf("PutItem: %v", err)
	}
	if err := aws.TransactWrite(ctx, db, item); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := aws.TransactWrite(ctx, db, item); !aws.ConditionFailedAt(err, 0) {
		t.Fatalf("duplicate payment id must be rejected, got %v", err)
	}

	tx, err := s.Get(ctx, "pay_1")
	if err != nil || tx == nil {
		t.Fatalf("Get: %v", err)
	}
	if tx.OrderID != "o1" || tx.CreatedAt.IsZero() {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if tx, _ := s.Get(ctx, "pay_2"); tx != nil {
		t.Fatalf("expected nil for unknown payment")
	}
}
