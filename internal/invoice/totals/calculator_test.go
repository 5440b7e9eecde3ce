package totals

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

func item(qty, price, discPct, disc, taxRate string, taxable bool) LineItem {
	return LineItem{
		Quantity:        d(qty),
		UnitPrice:       d(price),
		DiscountPercent: d(discPct),
		DiscountAmount:  d(disc),
		TaxRate:         d(taxRate),
		Taxable:         taxable,
	}
}

func TestCalculatePercentDiscountWithTax(t *testing.T) {
	lines, got := Breakdown([]LineItem{item("2", "100", "10", "0", "11", true)})

	assertDecimal(t, "20", lines[0].Discount)
	assertDecimal(t, "180", lines[0].Net)
	assertDecimal(t, "19.8", lines[0].Tax)
	assertDecimal(t, "180", got.Subtotal)
	assertDecimal(t, "20", got.DiscountTotal)
	assertDecimal(t, "19.8", got.TaxTotal)
	assertDecimal(t, "199.8", got.GrandTotal)
}

func TestCalculateFlatDiscountNoTax(t *testing.T) {
	got := Calculate([]LineItem{item("1", "50", "0", "5", "0", true)})

	assertDecimal(t, "45", got.Subtotal)
	assertDecimal(t, "5", got.DiscountTotal)
	assertDecimal(t, "0", got.TaxTotal)
	assertDecimal(t, "45", got.GrandTotal)
}

func TestCalculateEmpty(t *testing.T) {
	for _, items := range [][]LineItem{nil, {}} {
		got := Calculate(items)
		assertDecimal(t, "0", got.Subtotal)
		assertDecimal(t, "0", got.DiscountTotal)
		assertDecimal(t, "0", got.TaxTotal)
		assertDecimal(t, "0", got.GrandTotal)
	}
}

func TestCalculateTaxExemptIgnoresRate(t *testing.T) {
	lines, got := Breakdown([]LineItem{
		item("3", "10", "0", "0", "11", false),
		item("1", "99.99", "5", "1", "100", false),
	})

	for _, line := range lines {
		assertDecimal(t, "0", line.Tax)
	}
	assertDecimal(t, "0", got.TaxTotal)
	assert.True(t, got.GrandTotal.Equal(got.Subtotal))
}

func TestCalculateGrandTotalIsSubtotalPlusTax(t *testing.T) {
	cases := [][]LineItem{
		{item("1.5", "12.34", "7.5", "0.25", "11", true)},
		{item("2", "100", "10", "0", "11", true), item("1", "50", "0", "5", "0", true)},
		{item("0", "100", "0", "0", "11", true), item("10", "0.1", "0", "0", "12.5", true)},
		{item("4", "19.99", "12", "3", "8", true), item("7", "2.5", "0", "0", "8", false)},
	}
	for _, items := range cases {
		got := Calculate(items)
		assert.True(t, got.GrandTotal.Equal(got.Subtotal.Add(got.TaxTotal)))
	}
}

func TestCalculateFractionalValuesStayExact(t *testing.T) {
	got := Calculate([]LineItem{item("3", "0.1", "0", "0", "10", true)})

	assertDecimal(t, "0.3", got.Subtotal)
	assertDecimal(t, "0.03", got.TaxTotal)
	assertDecimal(t, "0.33", got.GrandTotal)
}

func TestCalculateCombinedDiscounts(t *testing.T) {
	lines, got := Breakdown([]LineItem{item("2", "100", "10", "5", "10", true)})

	assertDecimal(t, "200", lines[0].Gross)
	assertDecimal(t, "25", lines[0].Discount)
	assertDecimal(t, "175", got.Subtotal)
	assertDecimal(t, "25", got.DiscountTotal)
	assertDecimal(t, "17.5", got.TaxTotal)
	assertDecimal(t, "192.5", lines[0].Total)
}

func TestCalculateIsOrderIndependent(t *testing.T) {
	a := item("2", "100", "10", "0", "11", true)
	b := item("1", "50", "0", "5", "0", true)

	first := Calculate([]LineItem{a, b})
	second := Calculate([]LineItem{b, a})
	assert.True(t, first.GrandTotal.Equal(second.GrandTotal))
	assert.True(t, first.DiscountTotal.Equal(second.DiscountTotal))
}
