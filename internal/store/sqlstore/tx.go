package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"lojapdv/backend/internal/domain"
)

type tx struct {
	tx    *sqlx.Tx
	store *Store
}

func (t *tx) lock(query string) string {
	return t.tx.Rebind(query + t.store.dialect.ForUpdate)
}

func (t *tx) Stock(ctx context.Context, productID string) (int, error) {
	var qty int
	err := t.tx.GetContext(ctx, &qty, t.lock(`SELECT stock FROM products WHERE id = ?`), productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("product", productID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "lock stock")
	}
	return qty, nil
}

func (t *tx) SetStock(ctx context.Context, productID string, qty int) error {
	if qty < 0 {
		current, err := t.Stock(ctx, productID)
		if err != nil {
			return err
		}
		return domain.InsufficientStock(productID, current)
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE products SET stock = ?, updated_at = ? WHERE id = ?
	`), qty, time.Now().UTC(), productID)
	if err != nil {
		return errors.Wrap(err, "update stock")
	}
	return expectAffected(res, domain.NotFound("product", productID))
}

func (t *tx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.GetContext(ctx, &p, t.lock(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select product")
	}
	return &p, nil
}

func (t *tx) InsertProduct(ctx context.Context, product domain.Product) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`), product.ID, product.Name, product.Price.StringFixed(2), product.Stock,
		product.CreatedAt.UTC(), product.UpdatedAt.UTC())
	if err != nil {
		if t.store.uniqueViolation(err) {
			return domain.Conflict("product name already exists")
		}
		return errors.Wrap(err, "insert product")
	}
	return nil
}

func (t *tx) UpdateProduct(ctx context.Context, product domain.Product) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE products SET name = ?, price = ?, stock = ?, updated_at = ? WHERE id = ?
	`), product.Name, product.Price.StringFixed(2), product.Stock, product.UpdatedAt.UTC(), product.ID)
	if err != nil {
		if t.store.uniqueViolation(err) {
			return domain.Conflict("product name already exists")
		}
		return errors.Wrap(err, "update product")
	}
	return expectAffected(res, domain.NotFound("product", product.ID))
}

func (t *tx) DeleteProduct(ctx context.Context, id string) error {
	if _, err := t.GetProduct(ctx, id); err != nil {
		return err
	}

	var refs int
	err := t.tx.GetContext(ctx, &refs, t.tx.Rebind(`
		SELECT (SELECT COUNT(*) FROM sale_items WHERE product_id = ?)
		     + (SELECT COUNT(*) FROM returns WHERE product_id = ?)
	`), id, id)
	if err != nil {
		return errors.Wrap(err, "count product references")
	}
	if refs > 0 {
		return &domain.Error{Kind: domain.KindProductInUse, ProductID: id}
	}

	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(`DELETE FROM products WHERE id = ?`), id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	return nil
}

func (t *tx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if len(sale.Lines) == 0 {
		return domain.ErrEmptyCart
	}

	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO sales (
			id, created_at, subtotal, discount_kind, discount_value, discount_amount, total,
			payment_method, received_amount, change_amount, customer_id, customer_name, processed_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		sale.ID, sale.Timestamp.UTC(), sale.Subtotal.StringFixed(2),
		string(sale.Discount.Kind), sale.Discount.Value.StringFixed(2), sale.DiscountAmount.StringFixed(2),
		sale.Total.StringFixed(2), string(sale.PaymentMethod),
		sale.ReceivedAmount.StringFixed(2), sale.ChangeAmount.StringFixed(2),
		nullIfEmpty(sale.CustomerID), sale.CustomerName, sale.ProcessedBy,
	)
	if err != nil {
		if t.store.uniqueViolation(err) {
			return domain.Conflict("sale id already exists")
		}
		return errors.Wrap(err, "insert sale")
	}

	insertLine := t.tx.Rebind(`
		INSERT INTO sale_items (sale_id, position, product_id, product_name, unit_price, quantity)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for i, line := range sale.Lines {
		if _, err := t.tx.ExecContext(ctx, insertLine,
			sale.ID, i, line.ProductID, line.Name, line.UnitPrice.StringFixed(2), line.Quantity,
		); err != nil {
			return errors.Wrapf(err, "insert sale item %s", line.ProductID)
		}
	}
	return nil
}

// GetSaleLine locks the line so concurrent returns against it queue up.
func (t *tx) GetSaleLine(ctx context.Context, saleID string, productID string) (*domain.SaleLine, error) {
	var line domain.SaleLine
	err := t.tx.GetContext(ctx, &line, t.lock(`
		SELECT sale_id, product_id, product_name, unit_price, quantity
		FROM sale_items
		WHERE sale_id = ? AND product_id = ?`), saleID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.SaleLineNotFound(saleID, productID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select sale item")
	}
	return &line, nil
}

func (t *tx) ReturnedQuantity(ctx context.Context, saleID string, productID string) (int, error) {
	var total int
	err := t.tx.GetContext(ctx, &total, t.tx.Rebind(`
		SELECT COALESCE(SUM(quantity), 0) FROM returns WHERE sale_id = ? AND product_id = ?
	`), saleID, productID)
	if err != nil {
		return 0, errors.Wrap(err, "sum returns")
	}
	return total, nil
}

func (t *tx) InsertReturn(ctx context.Context, record domain.ReturnRecord) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO returns (id, sale_id, product_id, product_name, quantity, reason, created_at, processed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), record.ID, record.SaleID, record.ProductID, record.ProductName, record.Quantity,
		record.Reason, record.Timestamp.UTC(), record.ProcessedBy)
	if err != nil {
		return errors.Wrap(err, "insert return")
	}
	return nil
}
