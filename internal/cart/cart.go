package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/ledger"
)

// Catalog is the read-only product source a cart validates against.
type Catalog interface {
	ledger.Reader
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Cart stages the lines of one pending sale. It never writes stock; checks
// are repeated at commit time.
type Cart struct {
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{}
}

func (c *Cart) AddLine(ctx context.Context, catalog Catalog, productID string, qty int) error {
	if qty <= 0 {
		return domain.InvalidQuantity(productID, qty)
	}
	product, err := catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	idx := c.index(productID)
	existing := 0
	if idx >= 0 {
		existing = c.lines[idx].Quantity
	}
	if err := ledger.CheckAvailable(ctx, catalog, productID, existing+qty); err != nil {
		return err
	}

	if idx >= 0 {
		c.lines[idx].Quantity += qty
		return nil
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.Price,
		Quantity:  qty,
	})
	return nil
}

func (c *Cart) UpdateLineQuantity(ctx context.Context, catalog Catalog, productID string, newQty int) error {
	if newQty <= 0 {
		return domain.InvalidQuantity(productID, newQty)
	}
	idx := c.index(productID)
	if idx < 0 {
		return domain.NotFound("cart line", productID)
	}
	if err := ledger.CheckAvailableWithHeld(ctx, catalog, productID, newQty, c.lines[idx].Quantity); err != nil {
		return err
	}
	c.lines[idx].Quantity = newQty
	return nil
}

func (c *Cart) RemoveLine(productID string) {
	idx := c.index(productID)
	if idx < 0 {
		return
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Lines returns a copy in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Quantity(productID string) int {
	if idx := c.index(productID); idx >= 0 {
		return c.lines[idx].Quantity
	}
	return 0
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) index(productID string) int {
	for i, line := range c.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}
