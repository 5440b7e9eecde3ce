// Package totals derives invoice monetary totals from line items.
//
// Every function here is pure. Values are exact decimals; rounding is left to
// the display layer.
package totals

import "github.com/shopspring/decimal"

// LineItem is a normalized invoice or sales order line.
type LineItem struct {
	Key             string          `json:"key"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	Taxable         bool            `json:"taxable"`
	UOM             string          `json:"uom"`
	TaxCode         *string         `json:"tax_code,omitempty"`
}

// LineTotals is the per-line breakdown shown next to each row.
type LineTotals struct {
	Key      string          `json:"key"`
	Gross    decimal.Decimal `json:"gross"`
	Discount decimal.Decimal `json:"discount"`
	Net      decimal.Decimal `json:"net"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// percentOf returns value*percent/100 without a lossy division.
func percentOf(value, percent decimal.Decimal) decimal.Decimal {
	return value.Mul(percent).Shift(-2)
}

// Line computes one row.
//
//	discount = unitPrice*quantity*discountPercent/100 + discountAmount
//	net      = unitPrice*quantity - discount
//	tax      = taxable ? net*taxRate/100 : 0
func Line(item LineItem) LineTotals {
	gross := item.UnitPrice.Mul(item.Quantity)
	discount := percentOf(gross, item.DiscountPercent).Add(item.DiscountAmount)
	net := gross.Sub(discount)

	tax := decimal.Zero
	if item.Taxable {
		tax = percentOf(net, item.TaxRate)
	}

	return LineTotals{
		Key:      item.Key,
		Gross:    gross,
		Discount: discount,
		Net:      net,
		Tax:      tax,
		Total:    net.Add(tax),
	}
}

// Calculate aggregates all lines. An empty list yields all zeros.
func Calculate(items []LineItem) Totals {
	_, t := Breakdown(items)
	return t
}

// Breakdown returns the per-line figures together with the aggregates.
// discountTotal is summed from the line discounts independently of subtotal.
func Breakdown(items []LineItem) ([]LineTotals, Totals) {
	lines := make([]LineTotals, 0, len(items))
	t := Totals{
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		TaxTotal:      decimal.Zero,
		GrandTotal:    decimal.Zero,
	}

	for _, item := range items {
		line := Line(item)
		lines = append(lines, line)

		t.Subtotal = t.Subtotal.Add(line.Net)
		t.DiscountTotal = t.DiscountTotal.Add(line.Discount)
		t.TaxTotal = t.TaxTotal.Add(line.Tax)
	}
	t.GrandTotal = t.Subtotal.Add(t.TaxTotal)

	return lines, t
}
