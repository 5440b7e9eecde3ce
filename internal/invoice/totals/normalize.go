package totals

import (
	"fmt"
	"math"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldops/internal/validation"
)

const DefaultUOM = "pcs"

// RawLineItem is a line as it arrives from a form or API payload.
type RawLineItem struct {
	Key             string  `json:"key"`
	Description     string  `json:"description"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	DiscountAmount  float64 `json:"discount_amount"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxRate         float64 `json:"tax_rate"`
	Taxable         *bool   `json:"taxable"`
	UOM             string  `json:"uom"`
	TaxCode         string  `json:"tax_code"`
}

type numericField struct {
	name  string
	value float64
	max   float64
}

// Normalize validates raw lines and applies defaults. Every problem across
// all lines is reported in one validation.Errors.
func Normalize(raw []RawLineItem) ([]LineItem, error) {
	var errs validation.Errors
	items := make([]LineItem, 0, len(raw))

	for i, r := range raw {
		prefix := fmt.Sprintf("items[%d].", i)
		fields := []numericField{
			{name: "quantity", value: r.Quantity},
			{name: "unit_price", value: r.UnitPrice},
			{name: "discount_amount", value: r.DiscountAmount},
			{name: "discount_percent", value: r.DiscountPercent, max: 100},
			{name: "tax_rate", value: r.TaxRate, max: 100},
		}

		valid := true
		for _, f := range fields {
			if code, msg := checkNumber(f); code != "" {
				errs.Add(prefix+f.name, code, msg)
				valid = false
			}
		}
		if !valid {
			continue
		}

		items = append(items, normalizeOne(r))
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return items, nil
}

func checkNumber(f numericField) (string, string) {
	switch {
	case math.IsNaN(f.value) || math.IsInf(f.value, 0):
		return "not_a_number", f.name + " must be a finite number"
	case f.value < 0:
		return "negative_value", f.name + " must not be negative"
	case f.max > 0 && f.value > f.max:
		return "out_of_range", fmt.Sprintf("%s must be within 0..%g", f.name, f.max)
	}
	return "", ""
}

func normalizeOne(r RawLineItem) LineItem {
	key := strings.TrimSpace(r.Key)
	if key == "" {
		key = NewKey()
	}
	uom := strings.TrimSpace(r.UOM)
	if uom == "" {
		uom = DefaultUOM
	}
	var taxCode *string
	if code := strings.TrimSpace(r.TaxCode); code != "" {
		taxCode = &code
	}
	taxable := true
	if r.Taxable != nil {
		taxable = *r.Taxable
	}

	return LineItem{
		Key:             key,
		Description:     strings.TrimSpace(r.Description),
		Quantity:        decimal.NewFromFloat(r.Quantity),
		UnitPrice:       decimal.NewFromFloat(r.UnitPrice),
		DiscountAmount:  decimal.NewFromFloat(r.DiscountAmount),
		DiscountPercent: decimal.NewFromFloat(r.DiscountPercent),
		TaxRate:         decimal.NewFromFloat(r.TaxRate),
		Taxable:         taxable,
		UOM:             uom,
		TaxCode:         taxCode,
	}
}

// NewKey returns a sortable row identity.
func NewKey() string {
	return ulid.Make().String()
}
