package store

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
)

// BuildReport aggregates sales whose timestamp falls in [from, to]. A nil
// from means no lower bound. Lines are grouped by their snapshot name so
// deleted or renamed products still report under the name they sold as.
func BuildReport(from *time.Time, to time.Time, sales []domain.Sale) domain.SalesReport {
	report := domain.SalesReport{
		From:         from,
		To:           to,
		TotalRevenue: decimal.Zero,
		ByProduct:    []domain.ProductSales{},
		ByPayment:    []domain.PaymentSales{},
	}
	byProduct := map[string]*domain.ProductSales{}
	byPayment := map[domain.PaymentMethod]*domain.PaymentSales{}

	for _, sale := range sales {
		if from != nil && sale.Timestamp.Before(*from) {
			continue
		}
		if sale.Timestamp.After(to) {
			continue
		}
		report.Sales++
		report.TotalRevenue = report.TotalRevenue.Add(sale.Total)

		pay, ok := byPayment[sale.PaymentMethod]
		if !ok {
			pay = &domain.PaymentSales{PaymentMethod: sale.PaymentMethod, Revenue: decimal.Zero}
			byPayment[sale.PaymentMethod] = pay
		}
		pay.Sales++
		pay.Revenue = pay.Revenue.Add(sale.Total)

		for _, line := range sale.Lines {
			ps, ok := byProduct[line.Name]
			if !ok {
				ps = &domain.ProductSales{ProductName: line.Name, Revenue: decimal.Zero}
				byProduct[line.Name] = ps
			}
			ps.Quantity += line.Quantity
			ps.Revenue = ps.Revenue.Add(line.Subtotal())
		}
	}

	for _, ps := range byProduct {
		report.ByProduct = append(report.ByProduct, *ps)
	}
	sort.Slice(report.ByProduct, func(i, j int) bool {
		a, b := report.ByProduct[i], report.ByProduct[j]
		if a.Revenue.Equal(b.Revenue) {
			return a.ProductName < b.ProductName
		}
		return a.Revenue.GreaterThan(b.Revenue)
	})
	for _, pay := range byPayment {
		report.ByPayment = append(report.ByPayment, *pay)
	}
	sort.Slice(report.ByPayment, func(i, j int) bool {
		a, b := report.ByPayment[i], report.ByPayment[j]
		if a.Revenue.Equal(b.Revenue) {
			return a.PaymentMethod < b.PaymentMethod
		}
		return a.Revenue.GreaterThan(b.Revenue)
	})
	return report
}
