package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/cart"
	"lojapdv/backend/internal/discount"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/ledger"
	"lojapdv/backend/internal/payment"
	"lojapdv/backend/internal/session"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

type CommitInput struct {
	Discount       domain.Discount
	PaymentMethod  domain.PaymentMethod
	ReceivedAmount decimal.Decimal
	CustomerID     string
	CustomerName   string
	ProcessedBy    string
}

func (s *Service) AddToCart(ctx context.Context, sess *session.Session, productID string, qty int) (session.Snapshot, error) {
	sess.Lock()
	defer sess.Unlock()

	if err := sess.Cart.AddLine(ctx, s.repo, strings.TrimSpace(productID), qty); err != nil {
		return session.Snapshot{}, storeFailure(err)
	}
	return s.snapshot(sess), nil
}

func (s *Service) UpdateCartLine(ctx context.Context, sess *session.Session, productID string, qty int) (session.Snapshot, error) {
	sess.Lock()
	defer sess.Unlock()

	if err := sess.Cart.UpdateLineQuantity(ctx, s.repo, productID, qty); err != nil {
		return session.Snapshot{}, storeFailure(err)
	}
	return s.snapshot(sess), nil
}

func (s *Service) RemoveCartLine(sess *session.Session, productID string) session.Snapshot {
	sess.Lock()
	defer sess.Unlock()

	sess.Cart.RemoveLine(productID)
	return s.snapshot(sess)
}

// CancelSale discards the cart and the pending discount and customer.
func (s *Service) CancelSale(sess *session.Session) session.Snapshot {
	sess.Lock()
	defer sess.Unlock()

	sess.Reset()
	return s.snapshot(sess)
}

func (s *Service) SetDiscount(sess *session.Session, d domain.Discount) (session.Snapshot, error) {
	normalized, err := discount.Normalize(d)
	if err != nil {
		return session.Snapshot{}, err
	}

	sess.Lock()
	defer sess.Unlock()
	sess.Discount = normalized
	return s.snapshot(sess), nil
}

// SetCustomer attaches a registered customer to the pending sale. An empty
// id detaches it.
func (s *Service) SetCustomer(ctx context.Context, sess *session.Session, customerID string) (session.Snapshot, error) {
	customerID = strings.TrimSpace(customerID)
	name := ""
	if customerID != "" {
		customer, err := s.repo.GetCustomer(ctx, customerID)
		if err != nil {
			return session.Snapshot{}, storeFailure(err)
		}
		name = customer.Name
	}

	sess.Lock()
	defer sess.Unlock()
	sess.CustomerID = customerID
	sess.CustomerName = name
	return s.snapshot(sess), nil
}

func (s *Service) Snapshot(sess *session.Session) session.Snapshot {
	sess.Lock()
	defer sess.Unlock()
	return s.snapshot(sess)
}

// snapshot must be called with sess locked.
func (s *Service) snapshot(sess *session.Session) session.Snapshot {
	subtotal := sess.Cart.Subtotal()
	total, err := discount.Apply(subtotal, sess.Discount)
	if err != nil {
		total = subtotal
	}
	return session.Snapshot{
		ID:           sess.ID,
		Actor:        sess.Actor,
		Lines:        sess.Cart.Lines(),
		Subtotal:     payment.Round(subtotal).StringFixed(2),
		Discount:     sess.Discount,
		Total:        payment.Round(total).StringFixed(2),
		CustomerID:   sess.CustomerID,
		CustomerName: sess.CustomerName,
		StartedAt:    sess.StartedAt,
	}
}

// CheckoutSession commits the session's cart with its pending discount and
// customer. On success the session is ready for the next sale; on failure it
// is left untouched.
func (s *Service) CheckoutSession(ctx context.Context, sess *session.Session, req domain.CheckoutRequest) (domain.Sale, error) {
	sess.Lock()
	defer sess.Unlock()

	sale, err := s.Commit(ctx, sess.Cart, CommitInput{
		Discount:       sess.Discount,
		PaymentMethod:  req.PaymentMethod,
		ReceivedAmount: req.ReceivedAmount,
		CustomerID:     sess.CustomerID,
		CustomerName:   sess.CustomerName,
		ProcessedBy:    sess.Actor.Username,
	})
	if err != nil {
		return domain.Sale{}, err
	}
	sess.Reset()
	return sale, nil
}

// Commit persists the cart as a sale and takes its units out of stock, all in
// one transaction. Every check is repeated against committed stock, so a
// cart built earlier can still fail here. The cart is cleared only on success.
func (s *Service) Commit(ctx context.Context, c *cart.Cart, in CommitInput) (domain.Sale, error) {
	sale, err := s.commit(ctx, c, in)
	if err != nil {
		kind, _ := domain.KindOf(err)
		s.metrics.CheckoutFailed(string(kind))
		s.log.WithError(err).WithField("kind", kind).Warn("checkout rejected")
		return domain.Sale{}, err
	}

	c.Clear()
	s.metrics.SaleCommitted(string(sale.PaymentMethod), sale.Total)
	s.log.WithFields(logrus.Fields{
		"sale_id":        sale.ID,
		"total":          sale.Total.StringFixed(2),
		"payment_method": sale.PaymentMethod,
		"lines":          len(sale.Lines),
		"processed_by":   sale.ProcessedBy,
	}).Info("sale committed")
	if err := s.sales.Set(ctx, &sale, s.saleTTL); err != nil {
		s.log.WithError(err).WithField("sale_id", sale.ID).Warn("sale cache write failed")
	}
	return sale, nil
}

func (s *Service) commit(ctx context.Context, c *cart.Cart, in CommitInput) (domain.Sale, error) {
	lines := c.Lines()
	if len(lines) == 0 {
		return domain.Sale{}, &domain.Error{Kind: domain.KindEmptyCart}
	}
	for _, line := range lines {
		if err := ledger.CheckAvailable(ctx, s.repo, line.ProductID, line.Quantity); err != nil {
			return domain.Sale{}, storeFailure(err)
		}
	}

	disc, err := discount.Normalize(in.Discount)
	if err != nil {
		return domain.Sale{}, err
	}
	subtotal := c.Subtotal()
	total, err := discount.Apply(subtotal, disc)
	if err != nil {
		return domain.Sale{}, err
	}
	// Cash is settled against the total as it is shown and persisted.
	roundedTotal := payment.Round(total)
	settlement, err := payment.Settle(roundedTotal, in.PaymentMethod, in.ReceivedAmount)
	if err != nil {
		return domain.Sale{}, err
	}

	customerName := strings.TrimSpace(in.CustomerName)
	if in.CustomerID != "" && customerName == "" {
		customer, err := s.repo.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return domain.Sale{}, storeFailure(err)
		}
		customerName = customer.Name
	}

	roundedSubtotal := payment.Round(subtotal)
	received := payment.Round(settlement.Received)
	change := payment.Round(settlement.Change)

	sale := domain.Sale{
		ID:             xid.New("sal"),
		Timestamp:      s.now().UTC(),
		Subtotal:       roundedSubtotal,
		Discount:       disc,
		DiscountAmount: roundedSubtotal.Sub(roundedTotal),
		Total:          roundedTotal,
		PaymentMethod:  in.PaymentMethod,
		ReceivedAmount: received,
		ChangeAmount:   change,
		CustomerID:     in.CustomerID,
		CustomerName:   customerName,
		ProcessedBy:    in.ProcessedBy,
		Lines:          make([]domain.SaleLine, 0, len(lines)),
	}
	for _, line := range lines {
		sale.Lines = append(sale.Lines, domain.SaleLine{
			SaleID:    sale.ID,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		for _, line := range sale.Lines {
			if err := ledger.CommitDecrement(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Sale{}, storeFailure(err)
	}
	return sale, nil
}
