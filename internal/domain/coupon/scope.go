package coupon

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ApplicableSubtotal computes the portion of the cart the coupon is allowed to
// discount. Scoping by products or categories keeps only matching lines, then
// excluded products are subtracted regardless of the scoping mode.
func ApplicableSubtotal(c *Coupon, cart *Cart) decimal.Decimal {
	var subtotal decimal.Decimal

	switch c.ApplicableTo {
	case ScopeProducts:
		include := stringSet(c.ProductIDs)
		for _, item := range cart.Items {
			if include[item.ProductID] {
				subtotal = subtotal.Add(lineTotal(item))
			}
		}
	case ScopeCategories:
		include := stringSet(c.CategoryIDs)
		for _, item := range cart.Items {
			if include[item.CategoryID] {
				subtotal = subtotal.Add(lineTotal(item))
			}
		}
	default:
		subtotal = cart.Subtotal
	}

	if len(c.ExcludedProductIDs) > 0 {
		excluded := stringSet(c.ExcludedProductIDs)
		for _, item := range cart.Items {
			if excluded[item.ProductID] {
				subtotal = subtotal.Sub(lineTotal(item))
			}
		}
	}

	return subtotal
}

// CheckConditions evaluates the cart-level gates that are independent of
// scoping: order-value bounds, minimum item count, authentication requirement,
// and the customer allow-list. First-order gating is handled separately by the
// orchestrator because it needs a store lookup.
func CheckConditions(c *Coupon, cart *Cart) Verdict {
	if c.MinOrderValue != nil && cart.Subtotal.LessThan(*c.MinOrderValue) {
		return rejected(ReasonMinOrderNotMet)
	}
	if c.MaxOrderValue != nil && cart.Subtotal.GreaterThan(*c.MaxOrderValue) {
		return rejected(ReasonMaxOrderExceeded)
	}
	if c.MinItems > 0 && TotalQuantity(cart.Items) < c.MinItems {
		return rejected(ReasonMinItemsNotMet)
	}
	if c.RequiresAuthentication && cart.CustomerEmail == "" {
		return rejected(ReasonRequiresAuth)
	}
	if len(c.AllowedCustomerEmails) > 0 && !emailAllowed(c.AllowedCustomerEmails, cart.CustomerEmail) {
		return rejected(ReasonCustomerRestricted)
	}
	return Verdict{OK: true}
}

// TotalQuantity returns the sum of unit counts across all cart lines.
func TotalQuantity(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func lineTotal(item Item) decimal.Decimal {
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func emailAllowed(allowed []string, email string) bool {
	if email == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(a, email) {
			return true
		}
	}
	return false
}

func stringSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
