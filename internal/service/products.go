package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/catalog"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/ledger"
	"lojapdv/backend/internal/payment"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, storeFailure(err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, storeFailure(err)
	}
	return *p, nil
}

// LowStock lists products at or below the configured threshold.
func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListLowStock(ctx, s.lowStock)
	if err != nil {
		return nil, storeFailure(err)
	}
	return products, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.createProduct(ctx, "", req)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.WithFields(logrus.Fields{
		"product_id": product.ID,
		"name":       product.Name,
		"stock":      product.Stock,
	}).Info("product created")
	return product, nil
}

func (s *Service) createProduct(ctx context.Context, id string, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, domain.InvalidInput("name is required")
	}
	if !validPrice(req.Price) {
		return domain.Product{}, domain.InvalidInput("price must be greater than zero")
	}
	if req.InitialStock < 0 {
		return domain.Product{}, domain.InvalidQuantity("", req.InitialStock)
	}
	if id == "" {
		id = xid.New("prd")
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:        id,
		Name:      req.Name,
		Price:     payment.Round(req.Price),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		return ledger.SetLevel(ctx, tx, product.ID, req.InitialStock)
	})
	if err != nil {
		return domain.Product{}, storeFailure(err)
	}
	product.Stock = req.InitialStock
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	var updated domain.Product
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		updated = *existing
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.InvalidInput("name must not be empty")
			}
			updated.Name = name
		}
		if req.Price != nil {
			if !validPrice(*req.Price) {
				return domain.InvalidInput("price must be greater than zero")
			}
			updated.Price = payment.Round(*req.Price)
		}
		updated.UpdatedAt = s.now().UTC()
		if err := tx.UpdateProduct(ctx, updated); err != nil {
			return err
		}
		if req.Stock != nil {
			if err := ledger.SetLevel(ctx, tx, id, *req.Stock); err != nil {
				return err
			}
			updated.Stock = *req.Stock
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, storeFailure(err)
	}
	s.log.WithField("product_id", id).Info("product updated")
	return updated, nil
}

// DeleteProduct refuses products that appear on any sale or return.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return storeFailure(err)
	}
	s.log.WithField("product_id", id).Info("product deleted")
	return nil
}

// validPrice reports whether price stays positive once rounded to cents.
func validPrice(price decimal.Decimal) bool {
	return payment.Round(price).IsPositive()
}

type SeedResult struct {
	ProductsCreated  int `json:"products_created"`
	ProductsSkipped  int `json:"products_skipped"`
	CustomersCreated int `json:"customers_created"`
	CustomersSkipped int `json:"customers_skipped"`
}

// ImportSeed creates the seed's products and customers. Entries that clash
// with existing ones are skipped, so importing the same file twice is safe.
func (s *Service) ImportSeed(ctx context.Context, seed *catalog.Seed) (SeedResult, error) {
	var result SeedResult
	for _, p := range seed.Products {
		_, err := s.createProduct(ctx, p.ID, domain.ProductCreateRequest{
			Name:         p.Name,
			Price:        p.Price,
			InitialStock: p.Stock,
		})
		switch kind, _ := domain.KindOf(err); {
		case err == nil:
			result.ProductsCreated++
		case kind == domain.KindConflict:
			result.ProductsSkipped++
		default:
			return result, err
		}
	}
	for _, c := range seed.Customers {
		c.ID = xid.New("cus")
		_, err := s.repo.CreateCustomer(ctx, c)
		switch kind, _ := domain.KindOf(err); {
		case err == nil:
			result.CustomersCreated++
		case kind == domain.KindConflict:
			result.CustomersSkipped++
		default:
			return result, storeFailure(err)
		}
	}
	s.log.WithFields(logrus.Fields{
		"products_created":  result.ProductsCreated,
		"products_skipped":  result.ProductsSkipped,
		"customers_created": result.CustomersCreated,
		"customers_skipped": result.CustomersSkipped,
	}).Info("seed imported")
	return result, nil
}
