package coupon

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// ledgerStore is an in-memory Store that mirrors the transactional semantics
// of the real one: insert and guarded increment under a single lock.
type ledgerStore struct {
	mu      sync.Mutex
	coupon  *Coupon
	records map[string]*UsageRecord // keyed by tenant/coupon/order
}

func newLedgerStore(c *Coupon) *ledgerStore {
	return &ledgerStore{coupon: c, records: make(map[string]*UsageRecord)}
}

func usageKey(tenantID, couponID, orderID string) string {
	return tenantID + "/" + couponID + "/" + orderID
}

func (s *ledgerStore) FindByCode(_ context.Context, _, code string) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coupon != nil && s.coupon.Code == code {
		snapshot := *s.coupon
		return &snapshot, nil
	}
	return nil, ErrNotFound
}

func (s *ledgerStore) FindByID(_ context.Context, _, id string) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coupon != nil && s.coupon.ID == id {
		snapshot := *s.coupon
		return &snapshot, nil
	}
	return nil, ErrNotFound
}

func (s *ledgerStore) CountUsageByCustomer(_ context.Context, _, couponID, email, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, rec := range s.records {
		if rec.CouponID == couponID && rec.CustomerEmail == email {
			count++
		}
	}
	return count, nil
}

func (s *ledgerStore) FindUsageRecord(_ context.Context, tenantID, couponID, orderID string) (*UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[usageKey(tenantID, couponID, orderID)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *ledgerStore) RecordAtomically(_ context.Context, rec *UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(rec.TenantID, rec.CouponID, rec.OrderID)
	if _, exists := s.records[key]; exists {
		return ErrDuplicateUsage
	}
	if s.coupon.TotalUsesLimit > 0 && s.coupon.UsedCount >= s.coupon.TotalUsesLimit {
		return ErrUsageLimitExhausted
	}
	s.coupon.UsedCount++
	s.records[key] = rec
	return nil
}

func usageInput(orderID string) UsageInput {
	return UsageInput{
		CouponID:        "c1",
		CouponCode:      " save10 ",
		OrderID:         orderID,
		CustomerEmail:   "alex@example.com",
		DiscountApplied: dec("10.00"),
		OrderTotal:      dec("90.00"),
	}
}

func TestRecorderRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("records and increments once", func(t *testing.T) {
		store := newLedgerStore(&Coupon{ID: "c1", Code: "SAVE10", TotalUsesLimit: 10})
		rec := NewRecorder(store, &fakeOrderLookup{})

		got, err := rec.Record(ctx, "t1", usageInput("o1"))

		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "SAVE10", got.CouponCode)
		assert.Equal(t, "t1", got.TenantID)
		assert.Equal(t, 1, store.coupon.UsedCount)
	})

	t.Run("replay returns original without second increment", func(t *testing.T) {
		store := newLedgerStore(&Coupon{ID: "c1", Code: "SAVE10"})
		rec := NewRecorder(store, &fakeOrderLookup{})

		first, err := rec.Record(ctx, "t1", usageInput("o1"))
		require.NoError(t, err)

		second, err := rec.Record(ctx, "t1", usageInput("o1"))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, store.coupon.UsedCount)
	})

	t.Run("distinct orders each increment", func(t *testing.T) {
		store := newLedgerStore(&Coupon{ID: "c1", Code: "SAVE10"})
		rec := NewRecorder(store, &fakeOrderLookup{})

		_, err := rec.Record(ctx, "t1", usageInput("o1"))
		require.NoError(t, err)
		_, err = rec.Record(ctx, "t1", usageInput("o2"))
		require.NoError(t, err)

		assert.Equal(t, 2, store.coupon.UsedCount)
	})

	t.Run("limit exhausted rejects without persisting", func(t *testing.T) {
		store := newLedgerStore(&Coupon{ID: "c1", Code: "SAVE10", TotalUsesLimit: 1, UsedCount: 1})
		rec := NewRecorder(store, &fakeOrderLookup{})

		_, err := rec.Record(ctx, "t1", usageInput("o1"))

		assert.ErrorIs(t, err, ErrUsageLimitExhausted)
		assert.Empty(t, store.records)
	})

	t.Run("missing identifiers rejected", func(t *testing.T) {
		rec := NewRecorder(newLedgerStore(&Coupon{ID: "c1"}), &fakeOrderLookup{})

		_, err := rec.Record(ctx, "t1", UsageInput{OrderID: "o1"})
		assert.Error(t, err)

		_, err = rec.Record(ctx, "t1", UsageInput{CouponID: "c1"})
		assert.Error(t, err)
	})
}

func TestRecorderFirstOrderRecheck(t *testing.T) {
	ctx := context.Background()
	firstOrderCoupon := func() *Coupon {
		return &Coupon{ID: "c1", Code: "SAVE10", DiscountType: DiscountFirstOrder}
	}

	t.Run("prior order rejects finalization", func(t *testing.T) {
		store := newLedgerStore(firstOrderCoupon())
		rec := NewRecorder(store, &fakeOrderLookup{exists: true})

		_, err := rec.Record(ctx, "t1", usageInput("o1"))

		assert.ErrorIs(t, err, ErrNotFirstOrder)
		assert.Empty(t, store.records)
		assert.Equal(t, 0, store.coupon.UsedCount)
	})

	t.Run("first order records", func(t *testing.T) {
		store := newLedgerStore(firstOrderCoupon())
		rec := NewRecorder(store, &fakeOrderLookup{exists: false})

		got, err := rec.Record(ctx, "t1", usageInput("o1"))

		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, 1, store.coupon.UsedCount)
	})

	t.Run("no identifiers stays unknown and records", func(t *testing.T) {
		store := newLedgerStore(firstOrderCoupon())
		rec := NewRecorder(store, &fakeOrderLookup{exists: true})

		in := usageInput("o1")
		in.CustomerEmail = ""
		in.CustomerPhone = ""
		_, err := rec.Record(ctx, "t1", in)

		require.NoError(t, err)
		assert.Equal(t, 1, store.coupon.UsedCount)
	})

	t.Run("first order only flag triggers the recheck", func(t *testing.T) {
		store := newLedgerStore(&Coupon{ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, IsFirstOrderOnly: true})
		rec := NewRecorder(store, &fakeOrderLookup{exists: true})

		_, err := rec.Record(ctx, "t1", usageInput("o1"))

		assert.ErrorIs(t, err, ErrNotFirstOrder)
	})

	t.Run("replay skips the recheck", func(t *testing.T) {
		store := newLedgerStore(firstOrderCoupon())
		rec := NewRecorder(store, &fakeOrderLookup{exists: false})

		first, err := rec.Record(ctx, "t1", usageInput("o1"))
		require.NoError(t, err)

		// The recorded order now exists; a replayed delivery must still
		// return the original record instead of rejecting.
		rec = NewRecorder(store, &fakeOrderLookup{exists: true})
		second, err := rec.Record(ctx, "t1", usageInput("o1"))

		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, store.coupon.UsedCount)
	})
}

func TestRecorderConcurrentLimitEnforcement(t *testing.T) {
	const (
		limit   = 5
		workers = 50
	)

	store := newLedgerStore(&Coupon{ID: "c1", Code: "SAVE10", TotalUsesLimit: limit})
	rec := NewRecorder(store, &fakeOrderLookup{})

	var (
		mu        sync.Mutex
		succeeded int
		exhausted int
	)

	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		orderID := "order-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		g.Go(func() error {
			_, err := rec.Record(context.Background(), "t1", usageInput(orderID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrUsageLimitExhausted):
				exhausted++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, limit, succeeded)
	assert.Equal(t, workers-limit, exhausted)
	assert.Equal(t, limit, store.coupon.UsedCount)
	assert.Len(t, store.records, limit)
}
