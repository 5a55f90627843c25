package coupon

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// FirstOrderStatus is the three-valued outcome of first-order detection.
// Unknown means no customer identifier was supplied, so the question cannot be
// answered; callers allow the coupon and re-verify at order finalization.
type FirstOrderStatus int

const (
	FirstOrderUnknown FirstOrderStatus = iota
	FirstOrderYes
	FirstOrderNo
)

// NormalizePhoneSuffix reduces a phone number to its last 10 digits, dropping
// formatting and country-code variance. It returns "" when the input has no
// digits at all.
func NormalizePhoneSuffix(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// ResolveFirstOrder answers "is this the customer's first order" against the
// order store. The answer is advisory at apply time (the cart is not an order
// yet) and must be re-resolved at finalization, because two orders can race
// before either completes.
func ResolveFirstOrder(ctx context.Context, orders OrderLookup, tenantID, email, phone string) (FirstOrderStatus, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	suffix := NormalizePhoneSuffix(phone)
	if email == "" && suffix == "" {
		return FirstOrderUnknown, nil
	}

	exists, err := orders.AnyOrderExists(ctx, tenantID, email, suffix)
	if err != nil {
		return FirstOrderUnknown, errors.Wrap(err, "lookup prior orders")
	}
	if exists {
		return FirstOrderNo, nil
	}
	return FirstOrderYes, nil
}
