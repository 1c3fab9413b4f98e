package coupons

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Coupon statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// DefaultMaxPurchase is used when a coupon is created without an upper bound.
const DefaultMaxPurchase float64 = 1<<53 - 1

// Coupon is the item stored in the coupons table. RemainingUses is only ever
// changed by conditional updates built in this package.
type Coupon struct {
	Code            string    `dynamodbav:"code" json:"code"` // PK, uppercase
	DiscountPercent float64   `dynamodbav:"discount_percent" json:"discountPercent"`
	MinPurchase     float64   `dynamodbav:"min_purchase" json:"minPurchase"`
	MaxPurchase     float64   `dynamodbav:"max_purchase" json:"maxPurchase"`
	Status          string    `dynamodbav:"status" json:"status"` // active | inactive
	RemainingUses   int       `dynamodbav:"remaining_uses" json:"remainingUses"`
	CreatedAt       time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// Reason explains why a coupon cannot be applied to an order total.
type Reason string

const (
	ReasonNotFound   Reason = "not_found"
	ReasonInactive   Reason = "inactive"
	ReasonOutOfRange Reason = "out_of_range"
	ReasonExhausted  Reason = "exhausted"
)

var (
	ErrNotFound       = errors.New("coupon not found")
	ErrCouponExists   = errors.New("coupon already exists")
	ErrCouponRejected = errors.New("coupon rejected")
	ErrInvalidCoupon  = errors.New("invalid coupon")
)

// RejectedError is returned when a reservation or eligibility check fails.
// It matches ErrCouponRejected.
type RejectedError struct {
	Code   string
	Reason Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

func (e *RejectedError) Is(target error) bool { return target == ErrCouponRejected }

// NormalizeCode trims and uppercases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// classify returns the first rule c violates for total, or "" when c can be applied.
func classify(c *Coupon, total float64) Reason {
	switch {
	case c == nil:
		return ReasonNotFound
	case c.Status != StatusActive:
		return ReasonInactive
	case total < c.MinPurchase || total > c.MaxPurchase:
		return ReasonOutOfRange
	case c.RemainingUses <= 0:
		return ReasonExhausted
	}
	return ""
}

func (c *Coupon) validate() error {
	switch {
	case c.Code == "":
		return fmt.Errorf("%w: code is required", ErrInvalidCoupon)
	case c.DiscountPercent < 0 || c.DiscountPercent > 100:
		return fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidCoupon)
	case c.MinPurchase < 0:
		return fmt.Errorf("%w: minimum purchase must not be negative", ErrInvalidCoupon)
	case c.MinPurchase > c.MaxPurchase:
		return fmt.Errorf("%w: minimum purchase exceeds maximum purchase", ErrInvalidCoupon)
	case c.RemainingUses < 0:
		return fmt.Errorf("%w: usage limit must not be negative", ErrInvalidCoupon)
	case c.Status != StatusActive && c.Status != StatusInactive:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidCoupon, c.Status)
	}
	return nil
}
