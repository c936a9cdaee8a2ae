package session

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapdv/backend/internal/domain"
)

func TestRegistryOpenGetClose(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reg := NewRegistry(time.Hour)

	sess := reg.Open(domain.Actor{Username: "ana", Role: domain.RoleCashier}, now)
	require.NotEmpty(t, sess.ID)
	assert.True(t, sess.Cart.IsEmpty())
	assert.Equal(t, domain.DiscountNone, sess.Discount.Kind)

	got, err := reg.Get(sess.ID, "ana", now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = reg.Get(sess.ID, "bruno", now)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	reg.Close(sess.ID)
	_, err = reg.Get(sess.ID, "ana", now)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRegistryExpiresIdleSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reg := NewRegistry(30 * time.Minute)

	stale := reg.Open(domain.Actor{Username: "ana"}, now)
	fresh := reg.Open(domain.Actor{Username: "caio"}, now.Add(40*time.Minute))

	_, err := reg.Get(stale.ID, "ana", now.Add(31*time.Minute))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.Equal(t, 0, reg.Sweep(now.Add(50*time.Minute)))
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, reg.Sweep(now.Add(80*time.Minute)))
	_, err = reg.Get(fresh.ID, "caio", now.Add(80*time.Minute))
	assert.Error(t, err)
}

func TestResetClearsPendingSale(t *testing.T) {
	sess := New(domain.Actor{Username: "ana"}, time.Now())
	sess.Discount = domain.Discount{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10)}
	sess.CustomerID = "cus_1"
	sess.CustomerName = "Maria"

	sess.Reset()

	assert.True(t, sess.Cart.IsEmpty())
	assert.Equal(t, domain.NoDiscount(), sess.Discount)
	assert.Empty(t, sess.CustomerID)
	assert.Empty(t, sess.CustomerName)
}
