package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/dynamotest"
)

const ordersTable = "orders"

func newStore(t *testing.T) (*Store, *dynamotest.Fake) {
	t.Helper()
	db := dynamotest.New().CreateTable(ordersTable, "order_id")
	return NewStore(db, ordersTable), db
}

func sampleOrder(id, user string, created time.Time) Order {
	return Order{
		OrderID:       id,
		UserID:        user,
		Items:         []Item{{ProductID: "p1", Name: "Mug", Price: 250, Quantity: 2}},
		TotalAmount:   500,
		OrderStatus:   StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: MethodCOD,
		ShippingAddress: Address{
			Name: "A", Street: "1 Main", City: "Pune", State: "MH", PostalCode: "411001", Country: "IN",
		},
		CreatedAt: created,
	}
}

func TestPutItem_CreatesOnce(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	item, err := store.PutItem(sampleOrder("order-1", "u1", time.Time{}))
	if err != nil {
		t.Fatalf("PutItem: %v", err)
	}
	if err := aws.TransactWrite(ctx, db, item); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// same id again must cancel the transaction
	err = aws.TransactWrite(ctx, db, item)
	if !aws.ConditionFailedAt(err, 0) {
		t.Fatalf("expected condition failure on duplicate order, got %v", err)
	}

	got, err := store.Get(ctx, "order-1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 2 {
		t.Fatalf("items not round-tripped: %+v", got.Items)
	}
}

func TestGet_Missing(t *testing.T) {
	store, _ := newStore(t)
	got, err := store.Get(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

func TestUpdateStatus_Condition_SuccessAndFail(t *testing.T) {
	store, db := newStore(t)
	db.Seed(t, ordersTable, sampleOrder("order-10", "u10", time.Now()))
	ctx := context.Background()

	// success: Pending -> Processing
	if err := store.UpdateStatus(ctx, "order-10", StatusPending, StatusProcessing, ""); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// failure: current is Processing
	err := store.UpdateStatus(ctx, "order-10", StatusPending, StatusShipped, "")
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	if err := store.UpdateStatus(ctx, "order-10", StatusProcessing, StatusShipped, PaymentPaid); err != nil {
		t.Fatalf("update with payment status: %v", err)
	}
	got, _ := store.Get(ctx, "order-10")
	if got.OrderStatus != StatusShipped || got.PaymentStatus != PaymentPaid {
		t.Fatalf("unexpected state %s/%s", got.OrderStatus, got.PaymentStatus)
	}

	if err := store.UpdateStatus(ctx, "missing", StatusPending, StatusShipped, ""); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("missing order should fail the condition, got %v", err)
	}
}

func TestDeleteItem_RequiresExpectedStatus(t *testing.T) {
	store, db := newStore(t)
	db.Seed(t, ordersTable, sampleOrder("order-20", "u20", time.Now()))
	ctx := context.Background()

	err := aws.TransactWrite(ctx, db, store.DeleteItem("order-20", StatusShipped))
	if !aws.ConditionFailedAt(err, 0) {
		t.Fatalf("expected condition failure, got %v", err)
	}
	if err := aws.TransactWrite(ctx, db, store.DeleteItem("order-20", StatusPending)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if db.Count(ordersTable) != 0 {
		t.Fatalf("order still present")
	}

	deleted, err := store.Delete(ctx, "order-20")
	if err != nil || deleted {
		t.Fatalf("second delete should report nothing deleted, got (%v, %v)", deleted, err)
	}
}

func TestListByUser_NewestFirst(t *testing.T) {
	store, db := newStore(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	db.Seed(t, ordersTable, sampleOrder("a", "u1", base))
	db.Seed(t, ordersTable, sampleOrder("b", "u1", base.Add(2*time.Hour)))
	db.Seed(t, ordersTable, sampleOrder("c", "u2", base.Add(time.Hour)))

	list, err := store.ListByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 2 || list[0].OrderID != "b" || list[1].OrderID != "a" {
		t.Fatalf("unexpected list %+v", list)
	}

	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].OrderID != "b" || all[2].OrderID != "a" {
		t.Fatalf("unexpected order of all orders")
	}
}

func TestStatusHelpers(t *testing.T) {
	for _, s := range []string{StatusDelivered, StatusCancelled} {
		if !IsTerminal(s) {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if IsTerminal(StatusShipped) || ValidStatus("Lost") || !ValidStatus(StatusProcessing) {
		t.Fatalf("status helpers misclassify")
	}
}
