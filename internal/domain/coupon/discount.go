package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Discount is the computed effect of a coupon on a cart. Amount is always
// non-negative and never exceeds the applicable subtotal for monetary types.
// FreeShipping and FreeItems carry the non-monetary effects.
type Discount struct {
	Amount       decimal.Decimal
	FreeShipping bool
	FreeItems    []FreeItem
}

// Calculate computes the discount for the coupon against pre-computed cart
// aggregates. The final amount is rounded half-up to 2 decimal places;
// intermediate terms are never rounded.
func Calculate(c *Coupon, applicableSubtotal decimal.Decimal, totalItemCount int) (Discount, error) {
	switch c.DiscountType {
	case DiscountPercentage, DiscountFirstOrder:
		// FIRST_ORDER differs from PERCENTAGE only in eligibility, which has
		// already been checked by the time calculation runs.
		return Discount{Amount: percentageOf(c, applicableSubtotal)}, nil
	case DiscountFixed:
		amount := decimal.Min(c.DiscountValue, applicableSubtotal)
		return Discount{Amount: floorAtZero(amount).Round(2)}, nil
	case DiscountFreeShipping:
		return Discount{Amount: zero, FreeShipping: true}, nil
	case DiscountBuyXGetY:
		return Discount{Amount: zero, FreeItems: freeItemGrants(c, totalItemCount)}, nil
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
}

func percentageOf(c *Coupon, applicableSubtotal decimal.Decimal) decimal.Decimal {
	amount := applicableSubtotal.Mul(c.DiscountValue).Div(hundred)
	if c.MaxDiscountAmount != nil {
		amount = decimal.Min(amount, *c.MaxDiscountAmount)
	}
	// Percentages over 100 would otherwise discount more than the cart holds.
	amount = decimal.Min(amount, applicableSubtotal)
	return floorAtZero(amount).Round(2)
}

// freeItemGrants computes the BUY_X_GET_Y free units. Earned sets come from
// the cart's total unit count; the grant lists every eligible product with
// getQuantity units per set. The monetary discount for this type is zero:
// free-item fulfillment is a downstream checkout concern.
func freeItemGrants(c *Coupon, totalItemCount int) []FreeItem {
	b := c.BuyXGetY
	if b == nil || b.BuyQuantity <= 0 || b.GetQuantity <= 0 {
		return nil
	}

	sets := totalItemCount / b.BuyQuantity
	if b.MaxSets > 0 && sets > b.MaxSets {
		sets = b.MaxSets
	}
	if sets <= 0 || len(b.EligibleProductIDs) == 0 {
		return nil
	}

	grants := make([]FreeItem, len(b.EligibleProductIDs))
	for i, id := range b.EligibleProductIDs {
		grants[i] = FreeItem{ProductID: id, Quantity: b.GetQuantity * sets}
	}
	return grants
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
