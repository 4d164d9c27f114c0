package domain

import "github.com/shopspring/decimal"

// Константы ценообразования зафиксированы: исторические заказы должны пересчитываться бит-в-бит.
var (
	TaxRate               = decimal.RequireFromString("0.10")
	FreeShippingThreshold = decimal.NewFromInt(3000)
	StandardShippingFee   = decimal.NewFromInt(250)
	DiscountThreshold     = decimal.NewFromInt(5000)
	LargeOrderDiscount    = decimal.NewFromInt(500)
)

// Pricing: денежные показатели заказа, рассчитываются один раз при создании.
type Pricing struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// ComputePricing считает показатели по зафиксированным ценам позиций.
// Пороги строгие: ровно 3000 ещё платит доставку, ровно 5000 ещё не получает скидку.
func ComputePricing(items []LineItem) Pricing {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	tax := subtotal.Mul(TaxRate)

	shipping := StandardShippingFee
	if subtotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	discount := decimal.Zero
	if subtotal.GreaterThan(DiscountThreshold) {
		discount = LargeOrderDiscount
	}

	return Pricing{
		Subtotal:    subtotal,
		Tax:         tax,
		ShippingFee: shipping,
		Discount:    discount,
		Total:       subtotal.Add(tax).Add(shipping).Sub(discount),
	}
}

// Equal сравнивает показатели по значению (без учёта представления).
func (p Pricing) Equal(other Pricing) bool {
	return p.Subtotal.Equal(other.Subtotal) &&
		p.Tax.Equal(other.Tax) &&
		p.ShippingFee.Equal(other.ShippingFee) &&
		p.Discount.Equal(other.Discount) &&
		p.Total.Equal(other.Total)
}
