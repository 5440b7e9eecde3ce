// Package installment splits an invoice grand total into equal payments.
package installment

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldops/internal/validation"
)

var ErrNotFound = errors.New("installment_not_found")

var hundred = decimal.NewFromInt(100)

// scale matches the NUMERIC(20,6) amount and NUMERIC(9,6) percentage columns.
const scale = 6

type Installment struct {
	Key        string          `json:"key"`
	Sequence   int             `json:"sequence"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	DueDate    time.Time       `json:"due_date"`
}

// Plan is an ordered set of installments sharing one grand total.
type Plan struct {
	GrandTotal   decimal.Decimal `json:"grand_total"`
	Installments []Installment   `json:"installments"`
}

// Split returns the even amount and its share of grandTotal in percent.
// count must be at least 1; a plan with no installments is a programming error.
func Split(grandTotal decimal.Decimal, count int) (amount, percentage decimal.Decimal) {
	if count < 1 {
		panic("installment: count must be at least 1")
	}
	amount = grandTotal.Div(decimal.NewFromInt(int64(count)))
	if grandTotal.IsZero() {
		return amount, decimal.Zero
	}
	percentage = amount.Div(grandTotal).Mul(hundred)
	return amount, percentage
}

// DueDate is the default due date for the row at zero-based index.
func DueDate(now time.Time, index int, interval time.Duration) time.Time {
	return now.Add(time.Duration(index) * interval)
}

// NewPlan builds count rows spaced interval apart starting at now.
func NewPlan(grandTotal decimal.Decimal, count int, now time.Time, interval time.Duration) Plan {
	if count < 1 {
		panic("installment: count must be at least 1")
	}
	p := Plan{GrandTotal: grandTotal, Installments: make([]Installment, 0, count)}
	for i := 0; i < count; i++ {
		p.Installments = append(p.Installments, Installment{
			Key:     newKey(),
			DueDate: DueDate(now, i, interval),
		})
	}
	p.redistribute()
	return p
}

// Append adds one row and re-splits every row to the new even amount.
func (p *Plan) Append(now time.Time, interval time.Duration) Installment {
	index := len(p.Installments)
	p.Installments = append(p.Installments, Installment{
		Key:     newKey(),
		DueDate: DueDate(now, index, interval),
	})
	p.redistribute()
	return p.Installments[index]
}

// Remove drops the row with key and re-splits the rest. The last remaining
// row cannot be removed.
func (p *Plan) Remove(key string) error {
	idx := -1
	for i, inst := range p.Installments {
		if inst.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	if len(p.Installments) <= 1 {
		return validation.New("installments", "minimum_installments", "at least one installment is required")
	}

	p.Installments = append(p.Installments[:idx], p.Installments[idx+1:]...)
	p.redistribute()
	return nil
}

// Rebalance re-splits the existing rows after the grand total changed.
func (p *Plan) Rebalance(grandTotal decimal.Decimal) {
	p.GrandTotal = grandTotal
	p.redistribute()
}

// Sum adds up all installment amounts.
func (p Plan) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, inst := range p.Installments {
		sum = sum.Add(inst.Amount)
	}
	return sum
}

// redistribute gives every row the even amount at column scale and puts the
// truncation remainder on the last row, so the stored rows sum to GrandTotal.
func (p *Plan) redistribute() {
	n := len(p.Installments)
	amount, percentage := Split(p.GrandTotal, n)
	amount = amount.Truncate(scale)
	percentage = percentage.Truncate(scale)

	rest := decimal.NewFromInt(int64(n - 1))
	lastAmount := p.GrandTotal.Sub(amount.Mul(rest))
	lastPercentage := decimal.Zero
	if !p.GrandTotal.IsZero() {
		lastPercentage = hundred.Sub(percentage.Mul(rest))
	}

	for i := range p.Installments {
		p.Installments[i].Sequence = i + 1
		p.Installments[i].Amount = amount
		p.Installments[i].Percentage = percentage
		if i == n-1 {
			p.Installments[i].Amount = lastAmount
			p.Installments[i].Percentage = lastPercentage
		}
	}
}

func newKey() string {
	return ulid.Make().String()
}
