package payment

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Webhook event kinds
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)

// Event is the part of a gateway webhook the order flow acts on.
type Event struct {
	Type           string
	PaymentID      string
	GatewayOrderID string
	Amount         int64 // minor units
	Currency       string
	Method         string
	ErrorReason    string
}

// Succeeded reports whether the event confirms a capture.
func (e *Event) Succeeded() bool {
	return e.Type == EventPaymentCaptured || e.Type == EventOrderPaid
}

// Failed reports whether the event reports a failed payment.
func (e *Event) Failed() bool { return e.Type == EventPaymentFailed }

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	ErrorDescription string `json:"error_description"`
}

// ParseEvent decodes a webhook body. It must only be called after the body's
// signature has been verified.
func ParseEvent(raw []byte) (*Event, error) {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	ev := &Event{Type: body.Event}
	if p := body.Payload.Payment; p != nil {
		ev.PaymentID = p.Entity.ID
		ev.GatewayOrderID = p.Entity.OrderID
		ev.Amount = p.Entity.Amount
		ev.Currency = p.Entity.Currency
		ev.Method = p.Entity.Method
		ev.ErrorReason = p.Entity.ErrorDescription
	}
	if o := body.Payload.Order; o != nil && ev.GatewayOrderID == "" {
		ev.GatewayOrderID = o.Entity.ID
	}
	if (ev.Succeeded() || ev.Failed()) && (ev.PaymentID == "" || ev.GatewayOrderID == "") {
		return nil, fmt.Errorf("decode webhook: %s without payment or order id", ev.Type)
	}
	return ev, nil
}

var minorPerUnit = decimal.NewFromInt(100)

// ToMinorUnits converts an amount to the smallest currency unit (paise, cents).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorPerUnit).Round(0).IntPart()
}

// FromMinorUnits converts minor units back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
