package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageInput describes one redemption to record at order finalization.
type UsageInput struct {
	CouponID        string
	CouponCode      string
	OrderID         string
	CustomerID      string
	CustomerEmail   string
	CustomerPhone   string
	DiscountApplied decimal.Decimal
	OrderTotal      decimal.Decimal
}

// Recorder appends redemptions to the usage ledger. It is the engine's only
// mutation point: the ledger insert and the used-count increment run in one
// atomic unit inside the store, and the increment is guarded by the coupon's
// total uses limit at the data layer. Recording is idempotent per
// (tenant, coupon, order), so retries and duplicate deliveries are safe.
type Recorder struct {
	store  Store
	orders OrderLookup
	now    func() time.Time
}

// NewRecorder creates a Recorder over the given store and order lookup.
func NewRecorder(store Store, orders OrderLookup) *Recorder {
	return &Recorder{store: store, orders: orders, now: time.Now}
}

// Record writes the usage record and increments the coupon's used count
// exactly once for the given order. A replay for an already-recorded order
// returns the original record without a second increment. When the guarded
// increment rejects, ErrUsageLimitExhausted is returned and nothing is
// persisted.
//
// First-order coupons are re-resolved here against the identity attached to
// the order: a prior order rejects with ErrNotFirstOrder. Apply-time status
// can be unknown (no identifier supplied) or stale (two orders racing), so
// the finalization answer wins. Callers must record usage before the order
// row itself becomes visible to the lookup, or the order would match itself.
// Other apply-time checks are not re-run; the limit guard remains the final
// word on over-redemption regardless of what validation predicted.
func (r *Recorder) Record(ctx context.Context, tenantID string, in UsageInput) (*UsageRecord, error) {
	if in.CouponID == "" || in.OrderID == "" {
		return nil, errors.New("coupon id and order id are required")
	}

	if existing, err := r.store.FindUsageRecord(ctx, tenantID, in.CouponID, in.OrderID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrap(err, "find usage record")
		}
	} else {
		return existing, nil
	}

	c, err := r.store.FindByID(ctx, tenantID, in.CouponID)
	if err != nil {
		return nil, errors.Wrap(err, "find coupon")
	}
	if c.IsFirstOrderOnly || c.DiscountType == DiscountFirstOrder {
		status, err := ResolveFirstOrder(ctx, r.orders, tenantID, in.CustomerEmail, in.CustomerPhone)
		if err != nil {
			return nil, errors.Wrap(err, "resolve first order")
		}
		if status == FirstOrderNo {
			return nil, ErrNotFirstOrder
		}
	}

	rec := &UsageRecord{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		CouponID:        in.CouponID,
		CouponCode:      NormalizeCode(in.CouponCode),
		OrderID:         in.OrderID,
		CustomerID:      in.CustomerID,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		DiscountApplied: in.DiscountApplied,
		OrderTotal:      in.OrderTotal,
		CreatedAt:       r.now().UTC(),
	}

	switch err := r.store.RecordAtomically(ctx, rec); {
	case err == nil:
		return rec, nil
	case errors.Is(err, ErrDuplicateUsage):
		// Two finalizations for the same order can race past the existence
		// check; the unique ledger index turns the loser into a replay.
		existing, findErr := r.store.FindUsageRecord(ctx, tenantID, in.CouponID, in.OrderID)
		if findErr != nil {
			return nil, errors.Wrap(findErr, "find usage record after duplicate")
		}
		return existing, nil
	case errors.Is(err, ErrUsageLimitExhausted):
		return nil, err
	default:
		return nil, errors.Wrap(err, "record usage")
	}
}
