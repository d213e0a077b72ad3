package common

import (
	"booth/src/models"
	"booth/src/types"
)

// ComputePrice resolves the chargeable amount for a booth session. Pure and
// idempotent, the server is the price authority, clients only display it.
func ComputePrice(basePrice int64, voucher *models.Voucher) types.PriceQuote {
	quote := types.PriceQuote{
		Amount:   basePrice,
		Original: basePrice,
	}
	if voucher == nil {
		return quote
	}
	switch voucher.DiscountType {
	case types.DISCOUNT_FIXED:
		quote.Discount = voucher.DiscountAmount
		if quote.Discount > basePrice {
			quote.Discount = basePrice
		}
	case types.DISCOUNT_PERCENTAGE:
		quote.Discount = basePrice * voucher.DiscountAmount / 100
	}
	quote.Amount = basePrice - quote.Discount
	if quote.Amount < 0 {
		quote.Amount = 0
	}
	return quote
}
