package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	KindInvalidQuantity      ErrorKind = "invalid_quantity"
	KindInsufficientStock    ErrorKind = "insufficient_stock"
	KindInvalidDiscount      ErrorKind = "invalid_discount"
	KindInsufficientPayment  ErrorKind = "insufficient_payment"
	KindEmptyCart            ErrorKind = "empty_cart"
	KindSaleLineNotFound     ErrorKind = "sale_line_not_found"
	KindReasonRequired       ErrorKind = "reason_required"
	KindExceedsSoldQuantity  ErrorKind = "exceeds_sold_quantity"
	KindNotFound             ErrorKind = "not_found"
	KindTransactionFailed    ErrorKind = "transaction_failed"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindInvalidPaymentMethod ErrorKind = "invalid_payment_method"
	KindForbidden            ErrorKind = "forbidden"
	KindConflict             ErrorKind = "conflict"
	KindProductInUse         ErrorKind = "product_in_use"
)

// Error is the structured failure returned by checkout, ledger and returns
// operations. Fields other than Kind are set only when they apply.
type Error struct {
	Kind      ErrorKind
	ProductID string
	SaleID    string
	Available int
	Shortfall decimal.Decimal
	Detail    string
	Err       error
}

func (e *Error) Error() string {
	parts := []string{strings.ReplaceAll(string(e.Kind), "_", " ")}
	if e.ProductID != "" {
		parts = append(parts, "product "+e.ProductID)
	}
	if e.SaleID != "" {
		parts = append(parts, "sale "+e.SaleID)
	}
	switch e.Kind {
	case KindInsufficientStock, KindExceedsSoldQuantity:
		parts = append(parts, fmt.Sprintf("available %d", e.Available))
	case KindInsufficientPayment:
		parts = append(parts, "short by "+e.Shortfall.StringFixed(2))
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	msg := strings.Join(parts, ": ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is regardless of the detail fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidQuantity      = &Error{Kind: KindInvalidQuantity}
	ErrInsufficientStock    = &Error{Kind: KindInsufficientStock}
	ErrInvalidDiscount      = &Error{Kind: KindInvalidDiscount}
	ErrInsufficientPayment  = &Error{Kind: KindInsufficientPayment}
	ErrEmptyCart            = &Error{Kind: KindEmptyCart}
	ErrSaleLineNotFound     = &Error{Kind: KindSaleLineNotFound}
	ErrReasonRequired       = &Error{Kind: KindReasonRequired}
	ErrExceedsSoldQuantity  = &Error{Kind: KindExceedsSoldQuantity}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrTransactionFailed    = &Error{Kind: KindTransactionFailed}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrInvalidPaymentMethod = &Error{Kind: KindInvalidPaymentMethod}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrProductInUse         = &Error{Kind: KindProductInUse}
)

func InvalidQuantity(productID string, qty int) *Error {
	return &Error{Kind: KindInvalidQuantity, ProductID: productID, Detail: fmt.Sprintf("quantity %d", qty)}
}

func InsufficientStock(productID string, available int) *Error {
	return &Error{Kind: KindInsufficientStock, ProductID: productID, Available: available}
}

func InsufficientPayment(shortfall decimal.Decimal) *Error {
	return &Error{Kind: KindInsufficientPayment, Shortfall: shortfall}
}

func SaleLineNotFound(saleID string, productID string) *Error {
	return &Error{Kind: KindSaleLineNotFound, SaleID: saleID, ProductID: productID}
}

func ExceedsSoldQuantity(saleID string, productID string, available int) *Error {
	return &Error{Kind: KindExceedsSoldQuantity, SaleID: saleID, ProductID: productID, Available: available}
}

func NotFound(entity string, id string) *Error {
	return &Error{Kind: KindNotFound, Detail: entity + " " + id}
}

func InvalidInput(detail string) *Error {
	return &Error{Kind: KindInvalidInput, Detail: detail}
}

func Forbidden(detail string) *Error {
	return &Error{Kind: KindForbidden, Detail: detail}
}

func Conflict(detail string) *Error {
	return &Error{Kind: KindConflict, Detail: detail}
}

func TransactionFailed(err error) *Error {
	return &Error{Kind: KindTransactionFailed, Err: err}
}

// KindOf reports the kind of a domain error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
