package service

import (
	"context"
	"strings"
	"time"

	"lojapdv/backend/internal/domain"
)

const (
	defaultSalesLimit = 50
	maxSalesLimit     = 500
)

// GetSale reads through the sale cache. Cache errors are logged and the
// store answers instead.
func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if cached, ok, err := s.sales.Get(ctx, id); err != nil {
		s.log.WithError(err).WithField("sale_id", id).Warn("sale cache read failed")
	} else if ok {
		return *cached, nil
	}

	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, storeFailure(err)
	}
	if err := s.sales.Set(ctx, sale, s.saleTTL); err != nil {
		s.log.WithError(err).WithField("sale_id", id).Warn("sale cache write failed")
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	if filter.Limit <= 0 {
		filter.Limit = defaultSalesLimit
	}
	if filter.Limit > maxSalesLimit {
		filter.Limit = maxSalesLimit
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, domain.InvalidInput("to must not be before from")
	}

	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, storeFailure(err)
	}
	return sales, nil
}

// PeriodStart maps a report period to its lower bound relative to now, in
// now's location. "all" has no lower bound.
func PeriodStart(period string, now time.Time) (*time.Time, error) {
	var from time.Time
	switch period {
	case "today", "":
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "7d":
		from = now.AddDate(0, 0, -7)
	case "month":
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case "all":
		return nil, nil
	default:
		return nil, domain.InvalidInput("unknown period " + period)
	}
	return &from, nil
}

func (s *Service) SalesReport(ctx context.Context, period string) (domain.SalesReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SalesReport{}, err
	}
	period = strings.ToLower(strings.TrimSpace(period))
	now := s.now()
	from, err := PeriodStart(period, now)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report, err := s.repo.SalesReport(ctx, from, now)
	if err != nil {
		return domain.SalesReport{}, storeFailure(err)
	}
	if period == "" {
		period = "today"
	}
	report.Period = period
	return report, nil
}
