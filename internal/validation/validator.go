package validation

import (
	"fmt"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// PaymentMethods lists the accepted payment methods. Everything but COD goes
// through the payment gateway.
var PaymentMethods = []string{"COD", "ONLINE", "CARD", "UPI", "NETBANKING", "WALLET"}

// New returns a configured validator with the custom tags and struct-level
// validations registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	_ = v.RegisterValidation("payment_method", paymentMethod)

	// minimum purchase must not exceed an explicit maximum
	v.RegisterStructValidation(couponStructValidation, CouponRequest{})

	return v
}

func paymentMethod(fl validatorv10.FieldLevel) bool {
	m := strings.TrimSpace(fl.Field().String())
	for _, pm := range PaymentMethods {
		if strings.EqualFold(m, pm) {
			return true
		}
	}
	return false
}

func couponStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CouponRequest)

	if req.MaxPurchase != nil && req.MinPurchase > *req.MaxPurchase {
		sl.ReportError(req.MinPurchase, "minPurchase", "MinPurchase", "min_lte_max",
			fmt.Sprintf("min purchase %.2f > max purchase %.2f", req.MinPurchase, *req.MaxPurchase))
	}
}
