package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/ledger"
	"lojapdv/backend/internal/session"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

// returnable reads the sold line and the units already returned inside tx.
func returnable(ctx context.Context, tx store.Tx, saleID string, productID string) (*domain.SaleLine, int, error) {
	line, err := tx.GetSaleLine(ctx, saleID, productID)
	if err != nil {
		return nil, 0, err
	}
	returned, err := tx.ReturnedQuantity(ctx, saleID, productID)
	if err != nil {
		return nil, 0, err
	}
	return line, line.Quantity - returned, nil
}

// AvailableToReturn reports how many units of productID from saleID can
// still be returned.
func (s *Service) AvailableToReturn(ctx context.Context, saleID string, productID string) (int, error) {
	var available int
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		_, n, err := returnable(ctx, tx, saleID, productID)
		available = n
		return err
	})
	if err != nil {
		return 0, storeFailure(err)
	}
	return available, nil
}

// ReturnableLines lists every line of a sale with its sold, returned and
// still returnable quantities.
func (s *Service) ReturnableLines(ctx context.Context, saleID string) ([]domain.ReturnableLine, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListReturns(ctx, saleID)
	if err != nil {
		return nil, storeFailure(err)
	}

	returned := make(map[string]int, len(records))
	for _, r := range records {
		returned[r.ProductID] += r.Quantity
	}
	out := make([]domain.ReturnableLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		out = append(out, domain.ReturnableLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Sold:      line.Quantity,
			Returned:  returned[line.ProductID],
			Available: line.Quantity - returned[line.ProductID],
		})
	}
	return out, nil
}

func (s *Service) ListReturns(ctx context.Context, saleID string) ([]domain.ReturnRecord, error) {
	records, err := s.repo.ListReturns(ctx, saleID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return records, nil
}

// ProcessReturn accepts units of a sold line back into stock. Checks run in
// this order: the line exists, the quantity is positive, a reason is given,
// and the quantity fits what is left to return. The return record and the
// restock commit together.
func (s *Service) ProcessReturn(ctx context.Context, sess *session.Session, req domain.ReturnRequest) (domain.ReturnRecord, error) {
	if sess.Actor.Role != domain.RoleAdmin {
		return domain.ReturnRecord{}, domain.Forbidden("returns require the admin role")
	}

	saleID := strings.TrimSpace(req.SaleID)
	productID := strings.TrimSpace(req.ProductID)
	reason := strings.TrimSpace(req.Reason)

	var record domain.ReturnRecord
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		line, available, err := returnable(ctx, tx, saleID, productID)
		if err != nil {
			return err
		}
		if req.Quantity <= 0 {
			return domain.InvalidQuantity(productID, req.Quantity)
		}
		if reason == "" {
			return &domain.Error{Kind: domain.KindReasonRequired, SaleID: saleID, ProductID: productID}
		}
		if req.Quantity > available {
			return domain.ExceedsSoldQuantity(saleID, productID, available)
		}

		record = domain.ReturnRecord{
			ID:          xid.New("ret"),
			SaleID:      saleID,
			ProductID:   productID,
			ProductName: line.Name,
			Quantity:    req.Quantity,
			Reason:      reason,
			Timestamp:   s.now().UTC(),
			ProcessedBy: sess.Actor.Username,
		}
		if err := tx.InsertReturn(ctx, record); err != nil {
			return err
		}
		return ledger.Increment(ctx, tx, productID, req.Quantity)
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"sale_id": saleID, "product_id": productID}).Warn("return rejected")
		return domain.ReturnRecord{}, storeFailure(err)
	}

	s.metrics.UnitsReturned(record.Quantity)
	s.log.WithFields(logrus.Fields{
		"return_id":    record.ID,
		"sale_id":      saleID,
		"product_id":   productID,
		"quantity":     record.Quantity,
		"processed_by": record.ProcessedBy,
	}).Info("return processed")
	return record, nil
}
