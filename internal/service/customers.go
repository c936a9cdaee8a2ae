package service

import (
	"context"
	"net/mail"
	"strings"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/xid"
)

func normalizeCustomer(req domain.CustomerRequest) (domain.Customer, error) {
	c := domain.Customer{
		Name:  strings.TrimSpace(req.Name),
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if c.Name == "" {
		return domain.Customer{}, domain.InvalidInput("customer name is required")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return domain.Customer{}, domain.InvalidInput("invalid email")
		}
	}
	return c, nil
}

func (s *Service) ListCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx, query)
	if err != nil {
		return nil, storeFailure(err)
	}
	return customers, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, storeFailure(err)
	}
	return *c, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	c, err := normalizeCustomer(req)
	if err != nil {
		return domain.Customer{}, err
	}
	c.ID = xid.New("cus")
	created, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return domain.Customer{}, storeFailure(err)
	}
	s.log.WithField("customer_id", created.ID).Info("customer created")
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	c, err := normalizeCustomer(req)
	if err != nil {
		return domain.Customer{}, err
	}
	c.ID = id
	updated, err := s.repo.UpdateCustomer(ctx, c)
	if err != nil {
		return domain.Customer{}, storeFailure(err)
	}
	return *updated, nil
}

// DeleteCustomer keeps the customer's sales, which retain the name captured
// at checkout. Cached copies of those sales are dropped since their customer
// reference changes.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{CustomerID: id})
	if err != nil {
		return storeFailure(err)
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return storeFailure(err)
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	if err := s.sales.Invalidate(ctx, ids...); err != nil {
		s.log.WithError(err).WithField("customer_id", id).Warn("sale cache invalidation failed")
	}
	s.log.WithField("customer_id", id).Info("customer deleted")
	return nil
}

// CustomerSales is the purchase history of one customer, newest first.
func (s *Service) CustomerSales(ctx context.Context, id string) ([]domain.Sale, error) {
	if _, err := s.repo.GetCustomer(ctx, id); err != nil {
		return nil, storeFailure(err)
	}
	return s.ListSales(ctx, domain.SaleFilter{CustomerID: id, Limit: maxSalesLimit})
}
