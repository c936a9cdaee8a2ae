// Package ledger owns the per-product available quantity. Every stock check
// and mutation in the system goes through these functions so the
// non-negative stock invariant is enforced in one place.
package ledger

import (
	"context"

	"lojapdv/backend/internal/domain"
)

// Reader returns the current stock of a product, or domain.ErrNotFound.
type Reader interface {
	Stock(ctx context.Context, productID string) (int, error)
}

// Writer is implemented by store transactions. Stock must return the value
// as seen inside the transaction and keep it stable until commit or rollback.
type Writer interface {
	Reader
	SetStock(ctx context.Context, productID string, qty int) error
}

func CheckAvailable(ctx context.Context, r Reader, productID string, qty int) error {
	return CheckAvailableWithHeld(ctx, r, productID, qty, 0)
}

// CheckAvailableWithHeld checks qty against stock plus units already held for
// the same product, which are given back before the comparison.
func CheckAvailableWithHeld(ctx context.Context, r Reader, productID string, qty int, held int) error {
	if qty <= 0 {
		return domain.InvalidQuantity(productID, qty)
	}
	stock, err := r.Stock(ctx, productID)
	if err != nil {
		return err
	}
	available := stock + held
	if qty > available {
		return domain.InsufficientStock(productID, available)
	}
	return nil
}

// CommitDecrement removes qty units. It fails without mutating anything when
// the product is unknown or the result would be negative.
func CommitDecrement(ctx context.Context, w Writer, productID string, qty int) error {
	if qty <= 0 {
		return domain.InvalidQuantity(productID, qty)
	}
	stock, err := w.Stock(ctx, productID)
	if err != nil {
		return err
	}
	if qty > stock {
		return domain.InsufficientStock(productID, stock)
	}
	return w.SetStock(ctx, productID, stock-qty)
}

func Increment(ctx context.Context, w Writer, productID string, qty int) error {
	if qty <= 0 {
		return domain.InvalidQuantity(productID, qty)
	}
	stock, err := w.Stock(ctx, productID)
	if err != nil {
		return err
	}
	return w.SetStock(ctx, productID, stock+qty)
}

// SetLevel overwrites the stock count, used by catalog maintenance.
func SetLevel(ctx context.Context, w Writer, productID string, level int) error {
	if level < 0 {
		return domain.InvalidQuantity(productID, level)
	}
	if _, err := w.Stock(ctx, productID); err != nil {
		return err
	}
	return w.SetStock(ctx, productID, level)
}
