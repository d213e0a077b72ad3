package common

import (
	"testing"

	"booth/src/models"
	"booth/src/types"

	"github.com/stretchr/testify/assert"
)

func TestComputePrice(t *testing.T) {
	tests := []struct {
		name     string
		base     int64
		voucher  *models.Voucher
		expected types.PriceQuote
	}{
		{
			name:     "no voucher",
			base:     500,
			expected: types.PriceQuote{Amount: 500, Discount: 0, Original: 500},
		},
		{
			name:     "fixed discount",
			base:     500,
			voucher:  &models.Voucher{DiscountType: types.DISCOUNT_FIXED, DiscountAmount: 200},
			expected: types.PriceQuote{Amount: 300, Discount: 200, Original: 500},
		},
		{
			name:     "fixed discount larger than base clamps to free",
			base:     500,
			voucher:  &models.Voucher{DiscountType: types.DISCOUNT_FIXED, DiscountAmount: 900},
			expected: types.PriceQuote{Amount: 0, Discount: 500, Original: 500},
		},
		{
			name:     "percentage discount",
			base:     500,
			voucher:  &models.Voucher{DiscountType: types.DISCOUNT_PERCENTAGE, DiscountAmount: 25},
			expected: types.PriceQuote{Amount: 375, Discount: 125, Original: 500},
		},
		{
			name:     "percentage rounds down",
			base:     199,
			voucher:  &models.Voucher{DiscountType: types.DISCOUNT_PERCENTAGE, DiscountAmount: 50},
			expected: types.PriceQuote{Amount: 100, Discount: 99, Original: 199},
		},
		{
			name:     "percentage floors fractional cents",
			base:     9999,
			voucher:  &models.Voucher{DiscountType: types.DISCOUNT_PERCENTAGE, DiscountAmount: 10},
			expected: types.PriceQuote{Amount: 9000, Discount: 999, Original: 9999},
		},
		{
			name:     "hundred percent is free",
			base:     500,
			voucher:  &models.Voucher{DiscountType: types.DISCOUNT_PERCENTAGE, DiscountAmount: 100},
			expected: types.PriceQuote{Amount: 0, Discount: 500, Original: 500},
		},
		{
			name:     "zero base price",
			base:     0,
			voucher:  &models.Voucher{DiscountType: types.DISCOUNT_FIXED, DiscountAmount: 100},
			expected: types.PriceQuote{Amount: 0, Discount: 0, Original: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote := ComputePrice(tt.base, tt.voucher)
			assert.Equal(t, tt.expected, quote)
			assert.GreaterOrEqual(t, quote.Amount, int64(0))
		})
	}
}

func TestComputePriceIdempotent(t *testing.T) {
	voucher := &models.Voucher{DiscountType: types.DISCOUNT_PERCENTAGE, DiscountAmount: 30}
	first := ComputePrice(750, voucher)
	second := ComputePrice(750, voucher)
	assert.Equal(t, first, second)
}
