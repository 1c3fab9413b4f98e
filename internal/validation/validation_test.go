package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func validOrder() CreateOrderRequest {
	return CreateOrderRequest{
		Items: []LineItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		ShippingAddress: Address{
			Name: "Asha", Street: "1 MG Road", City: "Pune", State: "MH", PostalCode: "411001", Country: "IN",
		},
		PaymentMethod: "cod",
		CouponCode:    "SAVE10",
	}
}

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()
	if err := v.Struct(validOrder()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_Invalid(t *testing.T) {
	v := New()

	cases := map[string]func(r *CreateOrderRequest){
		"no items":       func(r *CreateOrderRequest) { r.Items = nil },
		"zero quantity":  func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 },
		"repeated item":  func(r *CreateOrderRequest) { r.Items[1].ProductID = "p1" },
		"missing city":   func(r *CreateOrderRequest) { r.ShippingAddress.City = "" },
		"short phone":    func(r *CreateOrderRequest) { r.ShippingAddress.Phone = "12" },
		"unknown method": func(r *CreateOrderRequest) { r.PaymentMethod = "BARTER" },
		"bad coupon":     func(r *CreateOrderRequest) { r.CouponCode = "SAVE 10!" },
	}
	for name, mutate := range cases {
		req := validOrder()
		mutate(&req)
		if err := v.Struct(req); err == nil {
			t.Fatalf("%s: expected validation error, got nil", name)
		}
	}
}

func TestCouponRequest_MinMax(t *testing.T) {
	v := New()
	maxPurchase, uses := 1000.0, 5

	ok := CouponRequest{Code: "SAVE10", DiscountPercent: 10, MinPurchase: 100, MaxPurchase: &maxPurchase, UsageLimit: &uses}
	if err := v.Struct(ok); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	unbounded := CouponRequest{Code: "ANY", DiscountPercent: 5, MinPurchase: 100}
	if err := v.Struct(unbounded); err != nil {
		t.Fatalf("omitted max means unbounded, got %v", err)
	}
	low := 100.0
	inverted := CouponRequest{Code: "BAD", DiscountPercent: 10, MinPurchase: 500, MaxPurchase: &low}
	if err := v.Struct(inverted); err == nil {
		t.Fatal("expected min > max to be rejected")
	}
	tooMuch := CouponRequest{Code: "BAD", DiscountPercent: 120}
	if err := v.Struct(tooMuch); err == nil {
		t.Fatal("expected discount over 100 to be rejected")
	}
}

func TestCouponRequest_ExplicitZeros(t *testing.T) {
	v := New()
	zeroMax, zeroUses := 0.0, 0

	if err := v.Struct(CouponRequest{Code: "ZERO", DiscountPercent: 10, MaxPurchase: &zeroMax}); err == nil {
		t.Fatal("expected an explicit zero max purchase to be rejected")
	}
	if err := v.Struct(CouponRequest{Code: "ZERO", DiscountPercent: 10, UsageLimit: &zeroUses}); err == nil {
		t.Fatal("expected an explicit zero usage limit to be rejected")
	}
}

func TestOtherRequests(t *testing.T) {
	v := New()
	if err := v.Struct(StatusUpdateRequest{Status: "Shipped"}); err != nil {
		t.Fatalf("Shipped: %v", err)
	}
	if err := v.Struct(StatusUpdateRequest{Status: "shipped"}); err == nil {
		t.Fatal("status is case sensitive")
	}
	if err := v.Struct(ConfirmPaymentRequest{GatewayOrderID: "order_1", PaymentID: "pay_1", Signature: "zz"}); err == nil {
		t.Fatal("non hex signature must be rejected")
	}
	if err := v.Struct(VerifyCouponRequest{Code: "SAVE10"}); err == nil {
		t.Fatal("total is required")
	}
}

func TestBindAndValidate_WritesBadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	for name, body := range map[string]string{
		"malformed": `{"items":`,
		"invalid":   `{"items":[],"paymentMethod":"COD"}`,
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")

		var req CreateOrderRequest
		if err := BindAndValidate(c, &req, v); err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, w.Code)
		}
	}
}
