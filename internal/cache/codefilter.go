// Package cache holds read-path acceleration structures for the validation
// engine.
package cache

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// CodeLister enumerates the known coupon codes for a tenant.
type CodeLister interface {
	ListCodes(ctx context.Context, tenantID string) ([]string, error)
}

// CodeFilter is a bloom-filter prefilter over tenant-scoped coupon codes.
// It answers "might this code exist" without a store round-trip: false
// positives fall through to the store, and once warmed (and kept up to date
// via Add on admin creates) it has no false negatives, so a negative answer
// safely short-circuits to invalid_code.
type CodeFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	warmed bool
}

// NewCodeFilter sizes the filter for the expected total code count across all
// tenants at the given false positive rate.
func NewCodeFilter(capacity uint, fpRate float64) *CodeFilter {
	return &CodeFilter{filter: bloom.NewWithEstimates(capacity, fpRate)}
}

// Warm loads every code of the given tenants into the filter. Until Warm has
// run, MayExist answers true for everything.
func (f *CodeFilter) Warm(ctx context.Context, lister CodeLister, tenantIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, tenant := range tenantIDs {
		codes, err := lister.ListCodes(ctx, tenant)
		if err != nil {
			return errors.Wrapf(err, "warm code filter for tenant %q", tenant)
		}
		for _, code := range codes {
			f.filter.AddString(key(tenant, code))
		}
	}
	f.warmed = true
	return nil
}

// Add records a newly created code. Updates never remove codes: a stale entry
// only costs a store lookup.
func (f *CodeFilter) Add(tenantID, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(key(tenantID, code))
}

// MayExist reports whether the code might exist for the tenant. The code must
// already be normalized.
func (f *CodeFilter) MayExist(tenantID, code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.warmed {
		return true
	}
	return f.filter.TestString(key(tenantID, code))
}

func key(tenantID, code string) string {
	return tenantID + "\x00" + code
}
