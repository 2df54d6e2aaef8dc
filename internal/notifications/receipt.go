package notifications

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shopvibe/shopvibe-backend/pkg/db/models"
)

const (
	companyName    = "SHOPVIBE RETAIL"
	companyStreet  = "123 Fashion Street"
	companyCity    = "Chennai, TN, 600017"
	receiptTimeFmt = "02 Jan 2006 15:04"
)

type shippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// RenderReceipt produces the plain-text invoice attached to receipt mail.
func RenderReceipt(order *models.Order) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n%s\n%s\n\n", companyName, companyStreet, companyCity)
	fmt.Fprintf(&b, "INVOICE\n\n")
	fmt.Fprintf(&b, "Invoice Number: %s\n", order.InvoiceNumber)
	if order.PaidAt != nil {
		fmt.Fprintf(&b, "Invoice Date: %s\n", order.PaidAt.Format(receiptTimeFmt))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Bill To:\n%s\n", order.CustomerName)
	var addr shippingAddress
	if len(order.ShippingAddress) > 0 && json.Unmarshal(order.ShippingAddress, &addr) == nil {
		if addr.Address != "" {
			fmt.Fprintf(&b, "%s\n", addr.Address)
		}
		if addr.City != "" || addr.PostalCode != "" {
			fmt.Fprintf(&b, "%s, %s\n", addr.City, addr.PostalCode)
		}
		if addr.Country != "" {
			fmt.Fprintf(&b, "%s\n", addr.Country)
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%-44s %8s %12s %12s\n", "Item", "Qty", "Price", "Total")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, item := range order.Items {
		name := item.Name
		if len(name) > 40 {
			name = name[:40] + "..."
		}
		lineTotal := item.UnitPrice.Mul(qtyDecimal(item.Qty))
		fmt.Fprintf(&b, "%-44s %8d %12s %12s\n",
			name, item.Qty,
			"Rs. "+item.UnitPrice.StringFixed(2),
			"Rs. "+lineTotal.StringFixed(2),
		)
	}
	b.WriteString(strings.Repeat("-", 80) + "\n")

	fmt.Fprintf(&b, "%66s %12s\n", "Subtotal:", "Rs. "+order.ItemsTotal.StringFixed(2))
	fmt.Fprintf(&b, "%66s %12s\n", "Tax:", "Rs. "+order.TaxTotal.StringFixed(2))
	fmt.Fprintf(&b, "%66s %12s\n", "Shipping:", "Rs. "+order.ShippingTotal.StringFixed(2))
	fmt.Fprintf(&b, "%66s %12s\n\n", "Total:", "Rs. "+order.GrandTotal.StringFixed(2))

	fmt.Fprintf(&b, "Payment Method: %s\n", order.PaymentMethod)
	if order.PaidAt != nil {
		fmt.Fprintf(&b, "Payment Date: %s\n", order.PaidAt.Format(receiptTimeFmt))
	}
	b.WriteString("\nThank you.\n")

	return b.String()
}

func qtyDecimal(qty int) decimal.Decimal {
	return decimal.NewFromInt(int64(qty))
}
