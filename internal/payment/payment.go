package payment

import (
	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
)

type Settlement struct {
	Received decimal.Decimal `json:"received"`
	Change   decimal.Decimal `json:"change"`
}

var methods = map[domain.PaymentMethod]bool{
	domain.PaymentCash:       true,
	domain.PaymentCreditCard: true,
	domain.PaymentDebitCard:  true,
	domain.PaymentPix:        true,
}

func Valid(method domain.PaymentMethod) bool {
	return methods[method]
}

// Settle validates tendered cash against total. Non-cash methods record no
// received amount and no change.
func Settle(total decimal.Decimal, method domain.PaymentMethod, received decimal.Decimal) (Settlement, error) {
	if !Valid(method) {
		return Settlement{}, &domain.Error{Kind: domain.KindInvalidPaymentMethod, Detail: string(method)}
	}
	if method != domain.PaymentCash {
		return Settlement{Received: decimal.Zero, Change: decimal.Zero}, nil
	}
	if received.LessThan(total) {
		return Settlement{}, domain.InsufficientPayment(total.Sub(received))
	}
	return Settlement{Received: received, Change: received.Sub(total)}, nil
}

// Round is applied when amounts are persisted or shown, never in between.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
