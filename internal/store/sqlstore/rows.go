package sqlstore

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
)

const saleColumns = `s.id, s.created_at, s.subtotal, s.discount_kind, s.discount_value, s.discount_amount,
	s.total, s.payment_method, s.received_amount, s.change_amount, s.customer_id, s.customer_name, s.processed_by`

type saleRow struct {
	ID             string          `db:"id"`
	CreatedAt      time.Time       `db:"created_at"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	DiscountKind   string          `db:"discount_kind"`
	DiscountValue  decimal.Decimal `db:"discount_value"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	Total          decimal.Decimal `db:"total"`
	PaymentMethod  string          `db:"payment_method"`
	ReceivedAmount decimal.Decimal `db:"received_amount"`
	ChangeAmount   decimal.Decimal `db:"change_amount"`
	CustomerID     sql.NullString  `db:"customer_id"`
	CustomerName   string          `db:"customer_name"`
	ProcessedBy    string          `db:"processed_by"`
}

func (r saleRow) toDomain() domain.Sale {
	return domain.Sale{
		ID:             r.ID,
		Timestamp:      r.CreatedAt.UTC(),
		Subtotal:       r.Subtotal,
		Discount:       domain.Discount{Kind: domain.DiscountKind(r.DiscountKind), Value: r.DiscountValue},
		DiscountAmount: r.DiscountAmount,
		Total:          r.Total,
		PaymentMethod:  domain.PaymentMethod(r.PaymentMethod),
		ReceivedAmount: r.ReceivedAmount,
		ChangeAmount:   r.ChangeAmount,
		CustomerID:     r.CustomerID.String,
		CustomerName:   r.CustomerName,
		ProcessedBy:    r.ProcessedBy,
		Lines:          []domain.SaleLine{},
	}
}
