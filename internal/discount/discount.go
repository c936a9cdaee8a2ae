package discount

import (
	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Normalize validates d and caps percentages at 100. An empty kind is read
// as no discount.
func Normalize(d domain.Discount) (domain.Discount, error) {
	if d.Kind == "" {
		d.Kind = domain.DiscountNone
	}
	if d.Value.IsNegative() {
		return domain.Discount{}, &domain.Error{Kind: domain.KindInvalidDiscount, Detail: "value must not be negative"}
	}
	switch d.Kind {
	case domain.DiscountNone:
		return domain.Discount{Kind: domain.DiscountNone, Value: decimal.Zero}, nil
	case domain.DiscountPercentage:
		if d.Value.GreaterThan(hundred) {
			d.Value = hundred
		}
		return d, nil
	case domain.DiscountFixedAmount:
		return d, nil
	default:
		return domain.Discount{}, &domain.Error{Kind: domain.KindInvalidDiscount, Detail: "unknown kind " + string(d.Kind)}
	}
}

// Apply returns the total after discount. The result is never negative and
// is not rounded.
func Apply(subtotal decimal.Decimal, d domain.Discount) (decimal.Decimal, error) {
	d, err := Normalize(d)
	if err != nil {
		return decimal.Zero, err
	}
	switch d.Kind {
	case domain.DiscountPercentage:
		return subtotal.Mul(decimal.NewFromInt(1).Sub(d.Value.Shift(-2))), nil
	case domain.DiscountFixedAmount:
		total := subtotal.Sub(d.Value)
		if total.IsNegative() {
			return decimal.Zero, nil
		}
		return total, nil
	default:
		return subtotal, nil
	}
}
