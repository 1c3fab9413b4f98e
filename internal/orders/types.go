package orders

import "time"

// Order statuses
const (
	StatusPending    = "Pending"
	StatusProcessing = "Processing"
	StatusShipped    = "Shipped"
	StatusDelivered  = "Delivered"
	StatusCancelled  = "Cancelled"
)

// Payment statuses
const (
	PaymentPending = "Pending"
	PaymentPaid    = "Paid"
	PaymentFailed  = "Failed"
)

// MethodCOD is cash on delivery. Every other payment method goes through the gateway.
const MethodCOD = "COD"

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s moves an order to history.
func IsTerminal(s string) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Item is one order line. Price is the catalog price at order time.
type Item struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Name      string  `dynamodbav:"name" json:"name"`
	Price     float64 `dynamodbav:"price" json:"price"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
}

// Address is the shipping snapshot stored on the order.
type Address struct {
	Name       string `dynamodbav:"name" json:"name"`
	Phone      string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	Street     string `dynamodbav:"street" json:"street"`
	City       string `dynamodbav:"city" json:"city"`
	State      string `dynamodbav:"state" json:"state"`
	PostalCode string `dynamodbav:"postal_code" json:"postalCode"`
	Country    string `dynamodbav:"country" json:"country"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID         string    `dynamodbav:"order_id" json:"orderId"` // PK
	UserID          string    `dynamodbav:"user_id" json:"userId"`   // GSI user_id-index
	Items           []Item    `dynamodbav:"items" json:"items"`
	TotalAmount     float64   `dynamodbav:"total_amount" json:"totalAmount"` // after discount and surcharge
	Currency        string    `dynamodbav:"currency,omitempty" json:"currency,omitempty"`
	ShippingAddress Address   `dynamodbav:"shipping_address" json:"shippingAddress"`
	OrderStatus     string    `dynamodbav:"order_status" json:"orderStatus"`
	PaymentStatus   string    `dynamodbav:"payment_status" json:"paymentStatus"`
	PaymentMethod   string    `dynamodbav:"payment_method" json:"paymentMethod"`
	CouponCode      string    `dynamodbav:"coupon_code,omitempty" json:"couponCode,omitempty"`
	TransactionID   string    `dynamodbav:"transaction_id,omitempty" json:"transactionId,omitempty"` // gateway payment id
	GatewayOrderID  string    `dynamodbav:"gateway_order_id,omitempty" json:"gatewayOrderId,omitempty"`
	CreatedAt       time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// IsCOD reports whether the order is paid on delivery.
func (o *Order) IsCOD() bool { return o.PaymentMethod == MethodCOD }
