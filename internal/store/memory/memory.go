package memory

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	sales           map[string]domain.Sale
	returns         []domain.ReturnRecord
	customers       map[string]domain.Customer
	usersByUsername map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		sales:           make(map[string]domain.Sale),
		customers:       make(map[string]domain.Customer),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD when set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn("memory store: using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			log.WithError(err).Fatalf("memory store: failed to hash seed password for %s", u.username)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small grocery catalog and the dev users.
// Product ids are stable so demos and tests can refer to them.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, p := range []struct {
		id    string
		name  string
		price string
		stock int
	}{
		{"prd_arroz", "Arroz 5kg", "24.90", 40},
		{"prd_feijao", "Feijao Preto 1kg", "8.35", 60},
		{"prd_cafe", "Cafe Torrado 500g", "17.80", 30},
		{"prd_acucar", "Acucar Refinado 1kg", "4.99", 50},
		{"prd_leite", "Leite Integral 1L", "5.49", 80},
		{"prd_oleo", "Oleo de Soja 900ml", "7.25", 35},
		{"prd_sabao", "Sabao em Po 1kg", "12.90", 20},
		{"prd_pao", "Pao de Forma", "9.60", 4},
	} {
		s.products[p.id] = domain.Product{
			ID:        p.id,
			Name:      p.name,
			Price:     decimal.RequireFromString(p.price),
			Stock:     p.stock,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Stock(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, domain.NotFound("product", productID)
	}
	return p.Stock, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, domain.NotFound("product", id)
	}
	return &p, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ListLowStock(_ context.Context, threshold int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, domain.NotFound("sale", id)
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]domain.Sale, 0)
	for _, sale := range s.sales {
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		if !filter.From.IsZero() && sale.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && sale.Timestamp.After(filter.To) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(sale.ID), query) &&
			!strings.Contains(strings.ToLower(s.customerDisplayName(sale)), query) {
			continue
		}
		header := cloneSale(sale)
		header.Lines = nil
		out = append(out, header)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) customerDisplayName(sale domain.Sale) string {
	if c, ok := s.customers[sale.CustomerID]; ok && sale.CustomerID != "" {
		return c.Name
	}
	return sale.CustomerName
}

func (s *Store) ListReturns(_ context.Context, saleID string) ([]domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ReturnRecord, 0)
	for _, r := range s.returns {
		if r.SaleID == saleID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) SalesReport(_ context.Context, from *time.Time, to time.Time) (domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, sale)
	}
	return store.BuildReport(from, to, sales), nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, domain.NotFound("customer", id)
	}
	return &c, nil
}

func (s *Store) ListCustomers(_ context.Context, query string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(strings.ToLower(c.Phone), query) &&
			!strings.Contains(strings.ToLower(c.Email), query) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if s.customerExists(customer) {
		return nil, domain.Conflict("customer already registered")
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customer.ID]; !ok {
		return nil, domain.NotFound("customer", customer.ID)
	}
	if s.customerExists(customer) {
		return nil, domain.Conflict("customer already registered")
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) customerExists(candidate domain.Customer) bool {
	for id, c := range s.customers {
		if id == candidate.ID {
			continue
		}
		if c.Name == candidate.Name && c.Phone == candidate.Phone && c.Email == candidate.Email {
			return true
		}
	}
	return false
}

// DeleteCustomer keeps the customer's sales and clears their reference.
func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return domain.NotFound("customer", id)
	}
	delete(s.customers, id)
	for saleID, sale := range s.sales {
		if sale.CustomerID == id {
			sale.CustomerID = ""
			s.sales[saleID] = sale
		}
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return domain.Conflict("username already exists")
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return domain.NotFound("user", username)
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

// WithinTx holds the write lock for the whole of fn. Writes are staged on
// the tx and copied into the store only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		products: make(map[string]domain.Product),
		deleted:  make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id := range tx.deleted {
		delete(s.products, id)
	}
	for id, p := range tx.products {
		s.products[id] = p
	}
	for _, sale := range tx.sales {
		s.sales[sale.ID] = sale
	}
	s.returns = append(s.returns, tx.returns...)
	return nil
}

type memTx struct {
	s        *Store
	products map[string]domain.Product
	deleted  map[string]bool
	sales    []domain.Sale
	returns  []domain.ReturnRecord
}

func (t *memTx) product(id string) (domain.Product, bool) {
	if t.deleted[id] {
		return domain.Product{}, false
	}
	if p, ok := t.products[id]; ok {
		return p, true
	}
	p, ok := t.s.products[id]
	return p, ok
}

func (t *memTx) Stock(_ context.Context, productID string) (int, error) {
	p, ok := t.product(productID)
	if !ok {
		return 0, domain.NotFound("product", productID)
	}
	return p.Stock, nil
}

func (t *memTx) SetStock(_ context.Context, productID string, qty int) error {
	p, ok := t.product(productID)
	if !ok {
		return domain.NotFound("product", productID)
	}
	if qty < 0 {
		return domain.InsufficientStock(productID, p.Stock)
	}
	p.Stock = qty
	p.UpdatedAt = time.Now().UTC()
	t.products[productID] = p
	return nil
}

func (t *memTx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.product(id)
	if !ok {
		return nil, domain.NotFound("product", id)
	}
	return &p, nil
}

func (t *memTx) nameTaken(name string, exceptID string) bool {
	for id := range t.s.products {
		if p, ok := t.product(id); ok && id != exceptID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	for id, p := range t.products {
		if id != exceptID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (t *memTx) InsertProduct(_ context.Context, product domain.Product) error {
	if _, exists := t.product(product.ID); exists {
		return domain.Conflict("product id already exists")
	}
	if t.nameTaken(product.Name, product.ID) {
		return domain.Conflict("product name already exists")
	}
	t.products[product.ID] = product
	delete(t.deleted, product.ID)
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, product domain.Product) error {
	if _, ok := t.product(product.ID); !ok {
		return domain.NotFound("product", product.ID)
	}
	if t.nameTaken(product.Name, product.ID) {
		return domain.Conflict("product name already exists")
	}
	t.products[product.ID] = product
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, id string) error {
	if _, ok := t.product(id); !ok {
		return domain.NotFound("product", id)
	}
	for _, sale := range t.allSales() {
		for _, line := range sale.Lines {
			if line.ProductID == id {
				return &domain.Error{Kind: domain.KindProductInUse, ProductID: id}
			}
		}
	}
	for _, r := range t.allReturns() {
		if r.ProductID == id {
			return &domain.Error{Kind: domain.KindProductInUse, ProductID: id}
		}
	}
	delete(t.products, id)
	t.deleted[id] = true
	return nil
}

func (t *memTx) allSales() []domain.Sale {
	out := make([]domain.Sale, 0, len(t.s.sales)+len(t.sales))
	for _, sale := range t.s.sales {
		out = append(out, sale)
	}
	return append(out, t.sales...)
}

func (t *memTx) allReturns() []domain.ReturnRecord {
	out := make([]domain.ReturnRecord, 0, len(t.s.returns)+len(t.returns))
	out = append(out, t.s.returns...)
	return append(out, t.returns...)
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if len(sale.Lines) == 0 {
		return domain.ErrEmptyCart
	}
	if _, exists := t.s.sales[sale.ID]; exists {
		return domain.Conflict("sale id already exists")
	}
	t.sales = append(t.sales, cloneSale(sale))
	return nil
}

func (t *memTx) GetSaleLine(_ context.Context, saleID string, productID string) (*domain.SaleLine, error) {
	for _, sale := range t.allSales() {
		if sale.ID != saleID {
			continue
		}
		for _, line := range sale.Lines {
			if line.ProductID == productID {
				dup := line
				return &dup, nil
			}
		}
	}
	return nil, domain.SaleLineNotFound(saleID, productID)
}

func (t *memTx) ReturnedQuantity(_ context.Context, saleID string, productID string) (int, error) {
	total := 0
	for _, r := range t.allReturns() {
		if r.SaleID == saleID && r.ProductID == productID {
			total += r.Quantity
		}
	}
	return total, nil
}

func (t *memTx) InsertReturn(_ context.Context, record domain.ReturnRecord) error {
	t.returns = append(t.returns, record)
	return nil
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Lines = make([]domain.SaleLine, len(src.Lines))
	copy(dup.Lines, src.Lines)
	return dup
}
