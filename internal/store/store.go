package store

import (
	"context"
	"time"

	"lojapdv/backend/internal/domain"
)

// Repository is the persistent store. Reads outside WithinTx see committed
// data only; every multi-row mutation of stock, sales and returns goes
// through WithinTx.
type Repository interface {
	Stock(ctx context.Context, productID string) (int, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	ListReturns(ctx context.Context, saleID string) ([]domain.ReturnRecord, error)
	SalesReport(ctx context.Context, from *time.Time, to time.Time) (domain.SalesReport, error)

	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, query string) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	// WithinTx runs fn in one transaction. A non-nil error from fn rolls
	// back every write fn made.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the write surface available inside WithinTx. Stock reads lock the
// product until the transaction ends.
type Tx interface {
	Stock(ctx context.Context, productID string) (int, error)
	SetStock(ctx context.Context, productID string, qty int) error

	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	InsertProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error

	InsertSale(ctx context.Context, sale domain.Sale) error
	GetSaleLine(ctx context.Context, saleID string, productID string) (*domain.SaleLine, error)
	ReturnedQuantity(ctx context.Context, saleID string, productID string) (int, error)
	InsertReturn(ctx context.Context, record domain.ReturnRecord) error
}
