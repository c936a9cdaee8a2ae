package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.SetStock(ctx, "prd_arroz", 1))
		require.NoError(t, tx.InsertSale(ctx, domain.Sale{
			ID:    "sal_1",
			Lines: []domain.SaleLine{{SaleID: "sal_1", ProductID: "prd_arroz", Quantity: 39}},
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stock, err := s.Stock(ctx, "prd_arroz")
	require.NoError(t, err)
	assert.Equal(t, 40, stock)

	_, err = s.GetSale(ctx, "sal_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithinTxCommitsStagedWrites(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.SetStock(ctx, "prd_cafe", 25); err != nil {
			return err
		}
		stock, err := tx.Stock(ctx, "prd_cafe")
		require.NoError(t, err)
		assert.Equal(t, 25, stock, "tx must read its own writes")
		return tx.InsertSale(ctx, domain.Sale{
			ID:        "sal_ok",
			Timestamp: time.Now().UTC(),
			Total:     decimal.RequireFromString("89.00"),
			Lines: []domain.SaleLine{{
				SaleID: "sal_ok", ProductID: "prd_cafe", Name: "Cafe Torrado 500g",
				UnitPrice: decimal.RequireFromString("17.80"), Quantity: 5,
			}},
		})
	})
	require.NoError(t, err)

	stock, err := s.Stock(ctx, "prd_cafe")
	require.NoError(t, err)
	assert.Equal(t, 25, stock)

	sale, err := s.GetSale(ctx, "sal_ok")
	require.NoError(t, err)
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, 5, sale.Lines[0].Quantity)
}

func TestSetStockRejectsNegative(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.SetStock(ctx, "prd_pao", -1)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestReturnedQuantitySumsStagedAndCommitted(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertReturn(ctx, domain.ReturnRecord{ID: "ret_1", SaleID: "sal_x", ProductID: "prd_leite", Quantity: 2})
	}))
	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertReturn(ctx, domain.ReturnRecord{ID: "ret_2", SaleID: "sal_x", ProductID: "prd_leite", Quantity: 1}); err != nil {
			return err
		}
		got, err := tx.ReturnedQuantity(ctx, "sal_x", "prd_leite")
		require.NoError(t, err)
		assert.Equal(t, 3, got)
		return nil
	}))

	returns, err := s.ListReturns(ctx, "sal_x")
	require.NoError(t, err)
	assert.Len(t, returns, 2)
}

func TestProductNameIsUnique(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertProduct(ctx, domain.Product{ID: "prd_new", Name: "arroz 5kg", Price: decimal.NewFromInt(1)})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDeleteProductReferencedBySale(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{
			ID:    "sal_ref",
			Lines: []domain.SaleLine{{SaleID: "sal_ref", ProductID: "prd_oleo", Quantity: 1}},
		})
	}))

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DeleteProduct(ctx, "prd_oleo")
	})
	assert.ErrorIs(t, err, domain.ErrProductInUse)

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DeleteProduct(ctx, "prd_sabao")
	}))
	_, err = s.GetProduct(ctx, "prd_sabao")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCustomerKeepsSales(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Maria", Phone: "11999990000"})
	require.NoError(t, err)

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{
			ID:           "sal_c",
			CustomerID:   customer.ID,
			CustomerName: customer.Name,
			Lines:        []domain.SaleLine{{SaleID: "sal_c", ProductID: "prd_leite", Quantity: 1}},
		})
	}))

	require.NoError(t, s.DeleteCustomer(ctx, customer.ID))

	sale, err := s.GetSale(ctx, "sal_c")
	require.NoError(t, err)
	assert.Empty(t, sale.CustomerID)
	assert.Equal(t, "Maria", sale.CustomerName)
}

func TestSalesReportGroupsByProductAndPayment(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(id string, method domain.PaymentMethod, total string, lines ...domain.SaleLine) {
		require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
			return tx.InsertSale(ctx, domain.Sale{
				ID: id, Timestamp: now, PaymentMethod: method,
				Total: decimal.RequireFromString(total), Lines: lines,
			})
		}))
	}
	insert("sal_a", domain.PaymentCash, "10.98",
		domain.SaleLine{ProductID: "prd_leite", Name: "Leite Integral 1L", UnitPrice: decimal.RequireFromString("5.49"), Quantity: 2})
	insert("sal_b", domain.PaymentPix, "5.49",
		domain.SaleLine{ProductID: "prd_leite", Name: "Leite Integral 1L", UnitPrice: decimal.RequireFromString("5.49"), Quantity: 1})

	report, err := s.SalesReport(ctx, nil, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sales)
	assert.Equal(t, "16.47", report.TotalRevenue.StringFixed(2))
	require.Len(t, report.ByProduct, 1)
	assert.Equal(t, 3, report.ByProduct[0].Quantity)
	require.Len(t, report.ByPayment, 2)
	assert.Equal(t, domain.PaymentCash, report.ByPayment[0].PaymentMethod)
}

func TestListLowStock(t *testing.T) {
	s := NewSeeded()
	products, err := s.ListLowStock(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "prd_pao", products[0].ID)
}

func TestCreateUserConflict(t *testing.T) {
	s := NewSeeded()
	err := s.CreateUser(context.Background(), domain.UserAccount{Username: "admin"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}
