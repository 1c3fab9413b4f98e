package validation

// LineItem is one requested product.
type LineItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"` // must be >= 1
}

// Address is the shipping address of an order. Phone is optional.
type Address struct {
	Name       string `json:"name" validate:"required,max=100"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required,max=12"`
	Country    string `json:"country" validate:"required"`
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	Items           []LineItem `json:"items" validate:"required,min=1,unique=ProductID,dive"` // at least one item, no repeats
	ShippingAddress Address    `json:"shippingAddress" validate:"required"`
	PaymentMethod   string     `json:"paymentMethod" validate:"required,payment_method"`
	CouponCode      string     `json:"couponCode,omitempty" validate:"omitempty,alphanum,max=32"`
}

// ConfirmPaymentRequest carries what the checkout widget hands back to the client.
type ConfirmPaymentRequest struct {
	GatewayOrderID string `json:"razorpay_order_id" validate:"required"`
	PaymentID      string `json:"razorpay_payment_id" validate:"required"`
	Signature      string `json:"razorpay_signature" validate:"required,hexadecimal"`
}

// VerifyCouponRequest is the payload for POST /coupons/verify
type VerifyCouponRequest struct {
	Code  string  `json:"code" validate:"required,alphanum,max=32"`
	Total float64 `json:"total" validate:"required,gt=0"`
}

// StatusUpdateRequest is the payload for PATCH /admin/orders/:id/status
type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Processing Shipped Delivered Cancelled"`
}

// CouponRequest is the payload for POST /admin/coupons. An omitted
// MaxPurchase means unbounded and an omitted UsageLimit a single use.
// Explicit zeros are rejected rather than read as those defaults.
type CouponRequest struct {
	Code            string   `json:"code" validate:"required,alphanum,max=32"`
	DiscountPercent float64  `json:"discountPercent" validate:"gte=0,lte=100"`
	MinPurchase     float64  `json:"minPurchase" validate:"gte=0"`
	MaxPurchase     *float64 `json:"maxPurchase,omitempty" validate:"omitempty,gt=0"`
	UsageLimit      *int     `json:"usageLimit,omitempty" validate:"omitempty,gte=1"`
	Status          string   `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

// CouponStatusRequest is the payload for PATCH /admin/coupons/:code/status
type CouponStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}
