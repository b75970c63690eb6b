package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"5.3", "$5.30"},
		{"63310", "$63,310.00"},
		{"63311.5427", "$63,311.54"},
		{"1000198.4573", "$1,000,198.46"},
		{"999998.4573", "$999,998.46"},
		{"-200", "-$200.00"},
		{"-1234567.891", "-$1,234,567.89"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatUSD(decimal.RequireFromString(tc.in)), "input %s", tc.in)
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "1.98%", FormatPercent(1.98))
	assert.Equal(t, "0.00%", FormatPercent(0))
	assert.Equal(t, "-3.33%", FormatPercent(-3.333))
	assert.Equal(t, "12.50%", FormatPercent(12.5))
}
