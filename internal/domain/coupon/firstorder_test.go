package coupon

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneSuffix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "5551234567"},
		{"5551234567", "5551234567"},
		{"01-5551234567", "5551234567"},
		{"+44 20 7946 0958", "2079460958"},
		{"123", "123"},
		{"no digits here", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhoneSuffix(tt.in), "input %q", tt.in)
	}
}

type fakeOrderLookup struct {
	exists    bool
	err       error
	gotEmail  string
	gotSuffix string
}

func (f *fakeOrderLookup) AnyOrderExists(_ context.Context, _, email, phoneSuffix string) (bool, error) {
	f.gotEmail = email
	f.gotSuffix = phoneSuffix
	return f.exists, f.err
}

func TestResolveFirstOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("no identifiers is unknown without lookup", func(t *testing.T) {
		lookup := &fakeOrderLookup{err: errors.New("should not be called")}

		status, err := ResolveFirstOrder(ctx, lookup, "t1", "", "")

		require.NoError(t, err)
		assert.Equal(t, FirstOrderUnknown, status)
	})

	t.Run("formatting-only phone is unknown", func(t *testing.T) {
		status, err := ResolveFirstOrder(ctx, &fakeOrderLookup{}, "t1", "", "---")

		require.NoError(t, err)
		assert.Equal(t, FirstOrderUnknown, status)
	})

	t.Run("prior order found means not first", func(t *testing.T) {
		lookup := &fakeOrderLookup{exists: true}

		status, err := ResolveFirstOrder(ctx, lookup, "t1", "Alex@Example.com", "+1 (555) 123-4567")

		require.NoError(t, err)
		assert.Equal(t, FirstOrderNo, status)
		assert.Equal(t, "alex@example.com", lookup.gotEmail)
		assert.Equal(t, "5551234567", lookup.gotSuffix)
	})

	t.Run("no prior order means first", func(t *testing.T) {
		status, err := ResolveFirstOrder(ctx, &fakeOrderLookup{exists: false}, "t1", "alex@example.com", "")

		require.NoError(t, err)
		assert.Equal(t, FirstOrderYes, status)
	})

	t.Run("lookup failure surfaces the error", func(t *testing.T) {
		lookup := &fakeOrderLookup{err: errors.New("connection reset")}

		_, err := ResolveFirstOrder(ctx, lookup, "t1", "alex@example.com", "")

		assert.Error(t, err)
	})
}
