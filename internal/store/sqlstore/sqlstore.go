// Package sqlstore implements store.Repository over database/sql with sqlx.
// Queries are written with ? placeholders and rebound per driver; the
// postgres and sqlite packages only open the connection, migrate the schema
// and supply a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
)

const maxTxAttempts = 3

type Dialect struct {
	// DriverName picks the sqlx bind style.
	DriverName string
	// ForUpdate is appended to row reads inside a transaction.
	ForUpdate         string
	TxOptions         *sql.TxOptions
	IsUniqueViolation func(error) bool
	// IsRetryable reports serialization failures worth rerunning the whole
	// transaction for. Nil disables retries.
	IsRetryable func(error) bool
}

type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

var _ store.Repository = (*Store)(nil)

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: sqlx.NewDb(db, dialect.DriverName), dialect: dialect}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) uniqueViolation(err error) bool {
	return s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err)
}

const productColumns = `id, name, price, stock, created_at, updated_at`

func (s *Store) Stock(ctx context.Context, productID string) (int, error) {
	var qty int
	err := s.db.GetContext(ctx, &qty, s.db.Rebind(`SELECT stock FROM products WHERE id = ?`), productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("product", productID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "select stock")
	}
	return qty, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select product")
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + productColumns + ` FROM products`)
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		query.WriteString(` WHERE lower(name) LIKE ?`)
		args = append(args, "%"+q+"%")
	}
	query.WriteString(` ORDER BY name`)
	if filter.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	products := make([]domain.Product, 0, 64)
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query.String()), args...); err != nil {
		return nil, errors.Wrap(err, "select products")
	}
	return products, nil
}

func (s *Store) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 16)
	err := s.db.SelectContext(ctx, &products,
		s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE stock <= ? ORDER BY name`), threshold)
	if err != nil {
		return nil, errors.Wrap(err, "select low stock")
	}
	return products, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var row saleRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+saleColumns+` FROM sales s WHERE s.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("sale", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select sale")
	}

	sale := row.toDomain()
	if err := s.db.SelectContext(ctx, &sale.Lines, s.db.Rebind(`
		SELECT sale_id, product_id, product_name, unit_price, quantity
		FROM sale_items
		WHERE sale_id = ?
		ORDER BY position
	`), id); err != nil {
		return nil, errors.Wrap(err, "select sale items")
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	var (
		query strings.Builder
		where []string
		args  []any
	)
	query.WriteString(`SELECT ` + saleColumns + ` FROM sales s LEFT JOIN customers c ON c.id = s.customer_id`)
	if filter.CustomerID != "" {
		where = append(where, `s.customer_id = ?`)
		args = append(args, filter.CustomerID)
	}
	if !filter.From.IsZero() {
		where = append(where, `s.created_at >= ?`)
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, `s.created_at <= ?`)
		args = append(args, filter.To.UTC())
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		where = append(where, `(lower(s.id) LIKE ? OR lower(COALESCE(c.name, s.customer_name)) LIKE ?)`)
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	if len(where) > 0 {
		query.WriteString(` WHERE ` + strings.Join(where, ` AND `))
	}
	query.WriteString(` ORDER BY s.created_at DESC`)
	if filter.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	rows := make([]saleRow, 0, 32)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query.String()), args...); err != nil {
		return nil, errors.Wrap(err, "select sales")
	}
	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, row.toDomain())
	}
	return sales, nil
}

func (s *Store) ListReturns(ctx context.Context, saleID string) ([]domain.ReturnRecord, error) {
	records := make([]domain.ReturnRecord, 0, 4)
	err := s.db.SelectContext(ctx, &records, s.db.Rebind(`
		SELECT id, sale_id, product_id, product_name, quantity, reason, created_at, processed_by
		FROM returns
		WHERE sale_id = ?
		ORDER BY created_at
	`), saleID)
	if err != nil {
		return nil, errors.Wrap(err, "select returns")
	}
	return records, nil
}

func (s *Store) SalesReport(ctx context.Context, from *time.Time, to time.Time) (domain.SalesReport, error) {
	where := `s.created_at <= ?`
	args := []any{to.UTC()}
	if from != nil {
		where += ` AND s.created_at >= ?`
		args = append(args, from.UTC())
	}

	rows := make([]saleRow, 0, 64)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+saleColumns+` FROM sales s WHERE `+where), args...); err != nil {
		return domain.SalesReport{}, errors.Wrap(err, "select report sales")
	}
	lines := make([]domain.SaleLine, 0, 128)
	if err := s.db.SelectContext(ctx, &lines, s.db.Rebind(`
		SELECT si.sale_id, si.product_id, si.product_name, si.unit_price, si.quantity
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE `+where), args...); err != nil {
		return domain.SalesReport{}, errors.Wrap(err, "select report lines")
	}

	linesBySale := make(map[string][]domain.SaleLine, len(rows))
	for _, line := range lines {
		linesBySale[line.SaleID] = append(linesBySale[line.SaleID], line)
	}
	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sale := row.toDomain()
		sale.Lines = linesBySale[sale.ID]
		sales = append(sales, sale)
	}
	return store.BuildReport(from, to, sales), nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.GetContext(ctx, &c, s.db.Rebind(`SELECT id, name, phone, email FROM customers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("customer", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select customer")
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	stmt := `SELECT id, name, phone, email FROM customers`
	var args []any
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		stmt += ` WHERE lower(name) LIKE ? OR lower(phone) LIKE ? OR lower(email) LIKE ?`
		like := "%" + q + "%"
		args = append(args, like, like, like)
	}
	stmt += ` ORDER BY name`

	customers := make([]domain.Customer, 0, 32)
	if err := s.db.SelectContext(ctx, &customers, s.db.Rebind(stmt), args...); err != nil {
		return nil, errors.Wrap(err, "select customers")
	}
	return customers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO customers (id, name, phone, email) VALUES (?, ?, ?, ?)
	`), customer.ID, customer.Name, customer.Phone, customer.Email)
	if err != nil {
		if s.uniqueViolation(err) {
			return nil, domain.Conflict("customer already registered")
		}
		return nil, errors.Wrap(err, "insert customer")
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE customers SET name = ?, phone = ?, email = ? WHERE id = ?
	`), customer.Name, customer.Phone, customer.Email, customer.ID)
	if err != nil {
		if s.uniqueViolation(err) {
			return nil, domain.Conflict("customer already registered")
		}
		return nil, errors.Wrap(err, "update customer")
	}
	if err := expectAffected(res, domain.NotFound("customer", customer.ID)); err != nil {
		return nil, err
	}
	return &customer, nil
}

// DeleteCustomer relies on ON DELETE SET NULL to detach the customer's sales.
func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM customers WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "delete customer")
	}
	return expectAffected(res, domain.NotFound("customer", id))
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO app_users (username, password_hash, role, active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), user.Username, user.Password, user.Role, user.Active, user.CreatedAt.UTC())
	if err != nil {
		if s.uniqueViolation(err) {
			return domain.Conflict("username already exists")
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 16)
	err := s.db.SelectContext(ctx, &users, `
		SELECT username, password_hash, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "select users")
	}
	for i := range users {
		users[i].CreatedAt = users[i].CreatedAt.UTC()
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE app_users SET password_hash = ? WHERE username = ?
	`), password, username)
	if err != nil {
		return errors.Wrap(err, "update user password")
	}
	return expectAffected(res, domain.NotFound("user", username))
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.withinTx(ctx, fn)
		if err == nil || s.dialect.IsRetryable == nil || !s.dialect.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) withinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, s.dialect.TxOptions)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&tx{tx: sqlTx, store: s}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
