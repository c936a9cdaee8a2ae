package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
)

// Width is the character width of a text receipt, matching 58mm printers.
const Width = 40

var paymentLabels = map[domain.PaymentMethod]string{
	domain.PaymentCash:       "Cash",
	domain.PaymentCreditCard: "Credit card",
	domain.PaymentDebitCard:  "Debit card",
	domain.PaymentPix:        "Pix",
}

func PaymentLabel(method domain.PaymentMethod) string {
	if label, ok := paymentLabels[method]; ok {
		return label
	}
	return string(method)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func center(s string) string {
	if len(s) >= Width {
		return s[:Width]
	}
	pad := (Width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}

func clip(s string) string {
	if len(s) > Width {
		return s[:Width]
	}
	return s
}

// row prints label on the left and value flush right, truncating the label
// when both do not fit.
func row(label, value string) string {
	space := Width - len(value) - 1
	if space < 1 {
		return value
	}
	if len(label) > space {
		label = label[:space]
	}
	return label + strings.Repeat(" ", Width-len(label)-len(value)) + value
}

func discountLabel(d domain.Discount) string {
	switch d.Kind {
	case domain.DiscountPercentage:
		return "Discount (" + d.Value.String() + "%)"
	case domain.DiscountFixedAmount:
		return "Discount"
	default:
		return ""
	}
}

func Text(sale *domain.Sale, storeName string) string {
	var b strings.Builder
	rule := strings.Repeat("-", Width)

	fmt.Fprintln(&b, center(storeName))
	fmt.Fprintln(&b, center(sale.Timestamp.Local().Format("02/01/2006 15:04:05")))
	fmt.Fprintln(&b, center(sale.ID))
	if sale.CustomerName != "" {
		fmt.Fprintln(&b, clip("Customer: "+sale.CustomerName))
	}
	fmt.Fprintln(&b, clip("Cashier: "+sale.ProcessedBy))
	fmt.Fprintln(&b, rule)

	for _, line := range sale.Lines {
		fmt.Fprintln(&b, clip(line.Name))
		qty := fmt.Sprintf("  %d x %s", line.Quantity, money(line.UnitPrice))
		fmt.Fprintln(&b, row(qty, money(line.Subtotal())))
	}

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, row("Subtotal", money(sale.Subtotal)))
	if label := discountLabel(sale.Discount); label != "" {
		fmt.Fprintln(&b, row(label, "-"+money(sale.DiscountAmount)))
	}
	fmt.Fprintln(&b, row("TOTAL", money(sale.Total)))
	fmt.Fprintln(&b, row("Payment", PaymentLabel(sale.PaymentMethod)))
	if sale.PaymentMethod == domain.PaymentCash {
		fmt.Fprintln(&b, row("Received", money(sale.ReceivedAmount)))
		fmt.Fprintln(&b, row("Change", money(sale.ChangeAmount)))
	}
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, center("Thank you!"))
	return b.String()
}

func PDF(sale *domain.Sale, storeName string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt "+sale.ID, false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(storeName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, "Sale "+sale.ID, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 7, sale.Timestamp.Local().Format(time.DateTime), "", 1, "C", false, 0, "")
	if sale.CustomerName != "" {
		pdf.CellFormat(0, 7, tr("Customer: "+sale.CustomerName), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 7, tr("Cashier: "+sale.ProcessedBy), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(90, 8, "Product", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 8, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 8, "Unit price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 8, "Subtotal", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, line := range sale.Lines {
		pdf.CellFormat(90, 8, tr(line.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 8, fmt.Sprintf("%d", line.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 8, money(line.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, money(line.Subtotal()), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	totals := [][2]string{{"Subtotal", money(sale.Subtotal)}}
	if label := discountLabel(sale.Discount); label != "" {
		totals = append(totals, [2]string{label, "-" + money(sale.DiscountAmount)})
	}
	totals = append(totals,
		[2]string{"Total", money(sale.Total)},
		[2]string{"Payment", PaymentLabel(sale.PaymentMethod)},
	)
	if sale.PaymentMethod == domain.PaymentCash {
		totals = append(totals,
			[2]string{"Received", money(sale.ReceivedAmount)},
			[2]string{"Change", money(sale.ChangeAmount)},
		)
	}
	for _, t := range totals {
		pdf.CellFormat(150, 7, t[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, t[1], "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "render receipt pdf")
	}
	return buf.Bytes(), nil
}
