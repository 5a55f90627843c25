package coupon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SAVE10", "SAVE10"},
		{"save10", "SAVE10"},
		{"  Save10  ", "SAVE10"},
		{"\tsave-10\n", "SAVE-10"},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCode(tt.in), "input %q", tt.in)
	}
}
