package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type DiscountKind string

const (
	DiscountNone        DiscountKind = "none"
	DiscountPercentage  DiscountKind = "percentage"
	DiscountFixedAmount DiscountKind = "fixed_amount"
)

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPix        PaymentMethod = "pix"
)

type Product struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Stock     int             `json:"stock" db:"stock"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

type ProductFilter struct {
	Query string
	Limit int
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	InitialStock int             `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name  *string          `json:"name,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Stock *int             `json:"stock,omitempty"`
}

// CartLine is a staged sale line. Name and UnitPrice are captured when the
// product is first added and never refreshed.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Discount struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

func NoDiscount() Discount {
	return Discount{Kind: DiscountNone, Value: decimal.Zero}
}

type Sale struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       Discount        `json:"discount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	ReceivedAmount decimal.Decimal `json:"received_amount"`
	ChangeAmount   decimal.Decimal `json:"change_amount"`
	CustomerID     string          `json:"customer_id,omitempty"`
	CustomerName   string          `json:"customer_name,omitempty"`
	ProcessedBy    string          `json:"processed_by"`
	Lines          []SaleLine      `json:"lines"`
}

type SaleLine struct {
	SaleID    string          `json:"sale_id" db:"sale_id"`
	ProductID string          `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"product_name"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Quantity  int             `json:"quantity" db:"quantity"`
}

func (l SaleLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type SaleFilter struct {
	Query      string
	CustomerID string
	From       time.Time
	To         time.Time
	Limit      int
}

type ReturnRecord struct {
	ID          string    `json:"id" db:"id"`
	SaleID      string    `json:"sale_id" db:"sale_id"`
	ProductID   string    `json:"product_id" db:"product_id"`
	ProductName string    `json:"product_name" db:"product_name"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Reason      string    `json:"reason" db:"reason"`
	Timestamp   time.Time `json:"timestamp" db:"created_at"`
	ProcessedBy string    `json:"processed_by" db:"processed_by"`
}

type ReturnRequest struct {
	SaleID    string `json:"sale_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

type ReturnableLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Sold      int             `json:"sold"`
	Returned  int             `json:"returned"`
	Available int             `json:"available"`
}

type Customer struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Phone string `json:"phone" db:"phone"`
	Email string `json:"email" db:"email"`
}

type CustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type CheckoutRequest struct {
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	ReceivedAmount decimal.Decimal `json:"received_amount"`
}

type ProductSales struct {
	ProductName string          `json:"product_name" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Revenue     decimal.Decimal `json:"revenue" db:"revenue"`
}

type PaymentSales struct {
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	Sales         int             `json:"sales" db:"sales"`
	Revenue       decimal.Decimal `json:"revenue" db:"revenue"`
}

type SalesReport struct {
	Period       string          `json:"period"`
	From         *time.Time      `json:"from,omitempty"`
	To           time.Time       `json:"to"`
	Sales        int             `json:"sales"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	ByProduct    []ProductSales  `json:"by_product"`
	ByPayment    []PaymentSales  `json:"by_payment"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password_hash"`
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	SessionID   string `json:"session_id"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
