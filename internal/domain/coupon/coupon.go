package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the applicable subtotal.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixed applies a fixed monetary discount capped at the applicable subtotal.
	DiscountFixed DiscountType = "FIXED"
	// DiscountFreeShipping waives the shipping fee; the monetary discount is zero.
	DiscountFreeShipping DiscountType = "FREE_SHIPPING"
	// DiscountBuyXGetY grants free units of selected products instead of
	// reducing the cart total.
	DiscountBuyXGetY DiscountType = "BUY_X_GET_Y"
	// DiscountFirstOrder uses percentage arithmetic but is only redeemable on a
	// customer's first order.
	DiscountFirstOrder DiscountType = "FIRST_ORDER"
)

// ApplicableTo enumerates the cart-scoping modes of a coupon.
type ApplicableTo string

const (
	// ScopeAll makes the whole cart subtotal discountable.
	ScopeAll ApplicableTo = "ALL"
	// ScopeProducts restricts the discountable subtotal to listed product IDs.
	ScopeProducts ApplicableTo = "PRODUCTS"
	// ScopeCategories restricts the discountable subtotal to listed category IDs.
	ScopeCategories ApplicableTo = "CATEGORIES"
)

var (
	// ErrNotFound is returned by stores when no coupon matches the lookup.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when creating or updating a coupon with a
	// code already taken within the tenant.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrUsageLimitExhausted is returned by the recorder when the guarded
	// increment refuses to exceed the coupon's total uses limit.
	ErrUsageLimitExhausted = errors.New("coupon usage limit exhausted")
	// ErrDuplicateUsage is returned by stores when a usage record for the same
	// (tenant, coupon, order) already exists. The recorder treats it as a
	// replay and returns the original record.
	ErrDuplicateUsage = errors.New("usage already recorded for order")
	// ErrNotFirstOrder is returned by the recorder when a first-order coupon
	// is finalized for a customer who already has a prior order.
	ErrNotFirstOrder = errors.New("customer already has a prior order")
)

// BuyXGetY holds the sub-record for BUY_X_GET_Y coupons.
type BuyXGetY struct {
	BuyQuantity        int
	GetQuantity        int
	EligibleProductIDs []string
	// MaxSets caps how many free sets a single cart can earn. Zero means no cap.
	MaxSets int
}

// Coupon is a tenant-owned promotional code definition. DiscountType is the
// discriminant: MaxDiscountAmount only applies to percentage arithmetic and
// BuyXGetY is only set for BUY_X_GET_Y coupons.
type Coupon struct {
	ID   string
	Code string

	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal

	MinOrderValue *decimal.Decimal
	MaxOrderValue *decimal.Decimal
	MinItems      int

	// StartAt defaults to the creation time, so a coupon with no explicit
	// window is active immediately.
	StartAt   time.Time
	ExpiresAt *time.Time

	TotalUsesLimit       int
	UsedCount            int
	UsesPerCustomerLimit int

	ApplicableTo       ApplicableTo
	ProductIDs         []string
	CategoryIDs        []string
	ExcludedProductIDs []string

	RequiresAuthentication bool
	IsFirstOrderOnly       bool
	AllowedCustomerEmails  []string

	BuyXGetY *BuyXGetY

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a cart line for scoping and discount calculation purposes.
type Item struct {
	ProductID  string
	CategoryID string
	Price      decimal.Decimal
	Quantity   int
}

// Cart is the ephemeral snapshot the engine validates a coupon against.
// The engine never persists it.
type Cart struct {
	Subtotal      decimal.Decimal
	Items         []Item
	CustomerEmail string
	CustomerPhone string
}

// FreeItem is a free-unit grant produced by a BUY_X_GET_Y coupon.
// Fulfillment of granted units is a checkout concern.
type FreeItem struct {
	ProductID string
	Quantity  int
}

// UsageRecord is an immutable ledger entry for one successful redemption.
// At most one record exists per (tenant, coupon, order).
type UsageRecord struct {
	ID              string
	TenantID        string
	CouponID        string
	CouponCode      string
	OrderID         string
	CustomerID      string
	CustomerEmail   string
	CustomerPhone   string
	DiscountApplied decimal.Decimal
	OrderTotal      decimal.Decimal
	CreatedAt       time.Time
}

// Store provides tenant-scoped access to coupon definitions and the usage
// ledger. Implementations must make IncrementUsedCount atomic: the returned
// ok reports whether the increment was accepted without exceeding the
// coupon's total uses limit.
type Store interface {
	FindByCode(ctx context.Context, tenantID, code string) (*Coupon, error)
	FindByID(ctx context.Context, tenantID, id string) (*Coupon, error)
	CountUsageByCustomer(ctx context.Context, tenantID, couponID, email, phone string) (int, error)
	FindUsageRecord(ctx context.Context, tenantID, couponID, orderID string) (*UsageRecord, error)
	// RecordAtomically inserts the usage record and increments the coupon's
	// used count inside a single transaction. It returns ErrUsageLimitExhausted
	// when the increment would exceed the total uses limit; in that case no
	// record is persisted.
	RecordAtomically(ctx context.Context, rec *UsageRecord) error
}

// OrderLookup answers whether any prior order exists for a customer identity.
// It backs first-order detection only; the engine never reads order contents.
type OrderLookup interface {
	AnyOrderExists(ctx context.Context, tenantID, email, phoneSuffix string) (bool, error)
}

// NormalizeCode canonicalizes a human-entered coupon code: surrounding
// whitespace is trimmed and the code is upper-cased. Every comparison and
// every store write goes through this.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
