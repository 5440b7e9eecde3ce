package totals

import (
	"math"
	"testing"

	"github.com/smallbiznis/fieldops/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAppliesDefaults(t *testing.T) {
	items, err := Normalize([]RawLineItem{{
		Description: "  Pasang AC  ",
		Quantity:    2,
		UnitPrice:   100,
		TaxRate:     11,
	}})
	require.NoError(t, err)
	require.Len(t, items, 1)

	got := items[0]
	assert.Equal(t, DefaultUOM, got.UOM)
	assert.Nil(t, got.TaxCode)
	assert.True(t, got.Taxable)
	assert.Equal(t, "Pasang AC", got.Description)
	assert.Len(t, got.Key, 26)
	assertDecimal(t, "11", got.TaxRate)
}

func TestNormalizeKeepsProvidedValues(t *testing.T) {
	taxable := false
	items, err := Normalize([]RawLineItem{{
		Key:       "row-1",
		Quantity:  0.5,
		UnitPrice: 0.1,
		Taxable:   &taxable,
		UOM:       "m",
		TaxCode:   "PPN",
	}})
	require.NoError(t, err)

	got := items[0]
	assert.Equal(t, "row-1", got.Key)
	assert.Equal(t, "m", got.UOM)
	require.NotNil(t, got.TaxCode)
	assert.Equal(t, "PPN", *got.TaxCode)
	assert.False(t, got.Taxable)
	assertDecimal(t, "0.1", got.UnitPrice)
	assertDecimal(t, "0.5", got.Quantity)
}

func TestNormalizeRejectsMalformedNumbers(t *testing.T) {
	_, err := Normalize([]RawLineItem{
		{Quantity: math.NaN(), UnitPrice: 10},
		{Quantity: 1, UnitPrice: -5, DiscountPercent: 120},
		{Quantity: 1, UnitPrice: 5, TaxRate: math.Inf(1)},
		{Quantity: 1, UnitPrice: 5},
	})
	require.Error(t, err)

	errs, ok := validation.As(err)
	require.True(t, ok)
	require.Len(t, errs, 4)
	assert.Equal(t, validation.FieldError{Field: "items[0].quantity", Code: "not_a_number", Message: "quantity must be a finite number"}, errs[0])
	assert.Equal(t, "items[1].unit_price", errs[1].Field)
	assert.Equal(t, "negative_value", errs[1].Code)
	assert.Equal(t, "items[1].discount_percent", errs[2].Field)
	assert.Equal(t, "out_of_range", errs[2].Code)
	assert.Equal(t, "items[2].tax_rate", errs[3].Field)
}

func TestNormalizeEmpty(t *testing.T) {
	items, err := Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}
