package payment

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapdv/backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSettleCashComputesChange(t *testing.T) {
	s, err := Settle(dec("45.00"), domain.PaymentCash, dec("50.00"))
	require.NoError(t, err)
	assert.Equal(t, "50.00", s.Received.StringFixed(2))
	assert.Equal(t, "5.00", s.Change.StringFixed(2))
}

func TestSettleCashExactAmount(t *testing.T) {
	s, err := Settle(dec("45.00"), domain.PaymentCash, dec("45"))
	require.NoError(t, err)
	assert.True(t, s.Change.IsZero())
}

func TestSettleCashShortfall(t *testing.T) {
	_, err := Settle(dec("45.00"), domain.PaymentCash, dec("40.00"))
	require.True(t, errors.Is(err, domain.ErrInsufficientPayment))

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "5.00", de.Shortfall.StringFixed(2))
}

func TestSettleNonCashIgnoresTender(t *testing.T) {
	for _, method := range []domain.PaymentMethod{domain.PaymentCreditCard, domain.PaymentDebitCard, domain.PaymentPix} {
		s, err := Settle(dec("45.00"), method, dec("1.00"))
		require.NoError(t, err, string(method))
		assert.True(t, s.Received.IsZero())
		assert.True(t, s.Change.IsZero())
	}
}

func TestSettleUnknownMethod(t *testing.T) {
	_, err := Settle(dec("1"), "voucher", dec("1"))
	assert.True(t, errors.Is(err, domain.ErrInvalidPaymentMethod))
}

func TestRoundOnlyAtTheEdge(t *testing.T) {
	// three lines of 0.335 round individually to 1.02 but the sum rounds to 1.01
	sum := dec("0.335").Add(dec("0.335")).Add(dec("0.335"))
	assert.Equal(t, "1.01", Round(sum).StringFixed(2))
	assert.Equal(t, "2.35", Round(dec("2.345")).String())
}
