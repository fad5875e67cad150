package millify_test

import (
	"testing"

	"rsm-inventory-bot/pkg/millify"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{0.5, "0.5"},
		{999, "999.0"},
		{1500, "1.5 k"},
		{12300, "12.3 k"},
		{2_300_000, "2.3 M"},
		{1_000_000_000, "1.0 B"},
		{4_500_000_000_000, "4.5 T"},
		{7_000_000_000_000_000, "7000.0 T"},
		{-1500, "-1.5 k"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, millify.Format(tt.in), "Format(%v)", tt.in)
	}
}
