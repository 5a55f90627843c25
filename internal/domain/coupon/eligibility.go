package coupon

import "time"

// Reason identifies why an apply request was rejected. The zero value means
// the request succeeded.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMissingCode        Reason = "missing_code"
	ReasonInvalidCode        Reason = "invalid_code"
	ReasonInactive           Reason = "inactive"
	ReasonNotStarted         Reason = "not_started"
	ReasonExpired            Reason = "expired"
	ReasonUsageLimitReached  Reason = "usage_limit_reached"
	ReasonCustomerUsageLimit Reason = "customer_usage_limit"
	ReasonFirstOrderOnly     Reason = "first_order_only"
	ReasonRequiresAuth       Reason = "requires_auth"
	ReasonMinOrderNotMet     Reason = "min_order_not_met"
	ReasonMaxOrderExceeded   Reason = "max_order_exceeded"
	ReasonMinItemsNotMet     Reason = "min_items_not_met"
	ReasonCustomerRestricted Reason = "customer_restricted"
	ReasonNoEligibleProducts Reason = "no_eligible_products"
	ReasonServerError        Reason = "server_error"
)

// reasonMessages maps each rejection to its ready-to-display message, so the
// UI never has to derive text from the code.
var reasonMessages = map[Reason]string{
	ReasonMissingCode:        "Coupon code is required",
	ReasonInvalidCode:        "Invalid coupon code",
	ReasonInactive:           "Invalid coupon code",
	ReasonNotStarted:         "This coupon is not active yet",
	ReasonExpired:            "This coupon has expired",
	ReasonUsageLimitReached:  "This coupon has reached its usage limit",
	ReasonCustomerUsageLimit: "You have already used this coupon the maximum number of times",
	ReasonFirstOrderOnly:     "This coupon is only valid on your first order",
	ReasonRequiresAuth:       "Please sign in to use this coupon",
	ReasonMinOrderNotMet:     "Your order does not meet the minimum value for this coupon",
	ReasonMaxOrderExceeded:   "Your order exceeds the maximum value for this coupon",
	ReasonMinItemsNotMet:     "Your cart does not have enough items for this coupon",
	ReasonCustomerRestricted: "This coupon is not available for your account",
	ReasonNoEligibleProducts: "No items in your cart are eligible for this coupon",
	ReasonServerError:        "Something went wrong, please try again",
}

// Message returns the human-readable text for the reason.
func (r Reason) Message() string {
	return reasonMessages[r]
}

// Verdict is the outcome of an eligibility evaluation.
type Verdict struct {
	OK     bool
	Reason Reason
}

func rejected(r Reason) Verdict { return Verdict{Reason: r} }

// Evaluate runs the eligibility state machine over a coupon snapshot at the
// given instant. Checks run in precedence order and the first failure wins,
// which determines the single error code the caller sees:
//
//  1. administrative switch
//  2. activation window start (strict <, startAt == now is active)
//  3. expiry (strict >, expiresAt == now is already expired)
//  4. aggregate usage cap
//  5. per-customer usage cap
//
// customerUses is the caller-supplied count of ledger entries matching this
// coupon and the customer's email or phone; it is only consulted when a
// customer identity was supplied (hasCustomer). Evaluate is pure: no I/O,
// deterministic given its inputs.
func Evaluate(c *Coupon, now time.Time, customerUses int, hasCustomer bool) Verdict {
	if !c.IsActive {
		return rejected(ReasonInactive)
	}
	if now.Before(c.StartAt) {
		return rejected(ReasonNotStarted)
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return rejected(ReasonExpired)
	}
	if c.TotalUsesLimit > 0 && c.UsedCount >= c.TotalUsesLimit {
		return rejected(ReasonUsageLimitReached)
	}
	if c.UsesPerCustomerLimit > 0 && hasCustomer && customerUses >= c.UsesPerCustomerLimit {
		return rejected(ReasonCustomerUsageLimit)
	}
	return Verdict{OK: true}
}
