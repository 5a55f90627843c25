package cache

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	codes map[string][]string
	err   error
}

func (l *staticLister) ListCodes(_ context.Context, tenantID string) ([]string, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.codes[tenantID], nil
}

func TestCodeFilter(t *testing.T) {
	ctx := context.Background()

	t.Run("unwarmed filter answers true for everything", func(t *testing.T) {
		f := NewCodeFilter(1000, 0.01)

		assert.True(t, f.MayExist("t1", "ANYTHING"))
	})

	t.Run("warmed filter knows its codes", func(t *testing.T) {
		f := NewCodeFilter(1000, 0.01)
		lister := &staticLister{codes: map[string][]string{
			"t1": {"SAVE10", "WELCOME"},
			"t2": {"VIP50"},
		}}

		require.NoError(t, f.Warm(ctx, lister, []string{"t1", "t2"}))

		assert.True(t, f.MayExist("t1", "SAVE10"))
		assert.True(t, f.MayExist("t2", "VIP50"))
		assert.False(t, f.MayExist("t1", "DEFINITELY-NOT-A-CODE"))
	})

	t.Run("codes are tenant scoped", func(t *testing.T) {
		f := NewCodeFilter(1000, 0.01)
		lister := &staticLister{codes: map[string][]string{"t1": {"SAVE10"}}}

		require.NoError(t, f.Warm(ctx, lister, []string{"t1"}))

		assert.True(t, f.MayExist("t1", "SAVE10"))
		assert.False(t, f.MayExist("t2", "SAVE10"))
	})

	t.Run("add makes new codes visible", func(t *testing.T) {
		f := NewCodeFilter(1000, 0.01)
		require.NoError(t, f.Warm(ctx, &staticLister{}, []string{"t1"}))

		assert.False(t, f.MayExist("t1", "FRESH"))
		f.Add("t1", "FRESH")
		assert.True(t, f.MayExist("t1", "FRESH"))
	})

	t.Run("warm failure keeps the filter open", func(t *testing.T) {
		f := NewCodeFilter(1000, 0.01)
		lister := &staticLister{err: errors.New("connection refused")}

		err := f.Warm(ctx, lister, []string{"t1"})

		require.Error(t, err)
		assert.True(t, f.MayExist("t1", "ANYTHING"))
	})
}
