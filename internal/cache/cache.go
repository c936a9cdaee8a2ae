package cache

import (
	"context"
	"time"

	"lojapdv/backend/internal/domain"
)

// SaleCache holds committed sale details. Sales never change after commit
// except for a deleted customer's reference, which callers invalidate.
type SaleCache interface {
	Get(ctx context.Context, saleID string) (*domain.Sale, bool, error)
	Set(ctx context.Context, sale *domain.Sale, ttl time.Duration) error
	Invalidate(ctx context.Context, saleIDs ...string) error
}

type NoopSaleCache struct{}

func (NoopSaleCache) Get(_ context.Context, _ string) (*domain.Sale, bool, error) {
	return nil, false, nil
}

func (NoopSaleCache) Set(_ context.Context, _ *domain.Sale, _ time.Duration) error {
	return nil
}

func (NoopSaleCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

func saleKey(saleID string) string {
	return "pdv:sale:" + saleID
}
