package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("commit: %w", InsufficientStock("prd_1", 3))

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrExceedsSoldQuantity))

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "prd_1", de.ProductID)
	assert.Equal(t, 3, de.Available)
}

func TestErrorMessageCarriesDetail(t *testing.T) {
	assert.Equal(t, "insufficient stock: product prd_1: available 2", InsufficientStock("prd_1", 2).Error())
	assert.Equal(t, "insufficient payment: short by 5.00", InsufficientPayment(decimal.NewFromInt(5)).Error())
	assert.Equal(t, "not found: product prd_9", NotFound("product", "prd_9").Error())
}

func TestTransactionFailedUnwrapsCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := TransactionFailed(cause)

	assert.True(t, errors.Is(err, ErrTransactionFailed))
	assert.True(t, errors.Is(err, cause))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindTransactionFailed, kind)
}

func TestKindOfPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("boom"))
	assert.False(t, ok)
}
