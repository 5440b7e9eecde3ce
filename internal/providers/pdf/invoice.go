package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InvoiceData carries display-ready strings; formatting happens in the caller.
type InvoiceData struct {
	InvoiceNumber string
	Status        string
	PaymentType   string
	IssueDate     string
	DueDate       string
	CustomerName  string

	Items []InvoiceLine

	Subtotal      string
	DiscountTotal string
	TaxTotal      string
	GrandTotal    string

	Installments []InstallmentLine
}

type InvoiceLine struct {
	Description string
	Quantity    string
	UnitPrice   string
	Discount    string
	Tax         string
	Amount      string
}

type InstallmentLine struct {
	Sequence   string
	DueDate    string
	Amount     string
	Percentage string
}

var (
	headerText = props.Text{Style: fontstyle.Bold, Size: 9}
	cellText   = props.Text{Size: 9}
	cellRight  = props.Text{Size: 9, Align: align.Right}
	headRight  = props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
)

func (p *PDFProvider) RenderInvoice(ctx context.Context, invoice InvoiceData) ([]byte, error) {
	m := maroto.New(pageConfig("Invoice " + invoice.InvoiceNumber))

	m.AddRow(12,
		text.NewCol(8, "Invoice", props.Text{Size: 20, Style: fontstyle.Bold}),
		text.NewCol(4, invoice.Status, props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssueDate, props.Text{Top: 5}),
			text.New("Date due: "+invoice.DueDate, props.Text{Top: 10}),
			text.New("Payment: "+invoice.PaymentType, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(invoice.CustomerName, props.Text{Top: 5}),
		),
	)

	m.AddRow(8,
		text.NewCol(4, "Description", headerText),
		text.NewCol(1, "Qty", headRight),
		text.NewCol(2, "Unit price", headRight),
		text.NewCol(2, "Discount", headRight),
		text.NewCol(1, "Tax", headRight),
		text.NewCol(2, "Amount", headRight),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range invoice.Items {
		m.AddRow(8,
			text.NewCol(4, item.Description, cellText),
			text.NewCol(1, item.Quantity, cellRight),
			text.NewCol(2, item.UnitPrice, cellRight),
			text.NewCol(2, item.Discount, cellRight),
			text.NewCol(1, item.Tax, cellRight),
			text.NewCol(2, item.Amount, cellRight),
		)
	}
	m.AddRow(2, line.NewCol(12))

	totalRow := func(label, value string, style props.Text) {
		m.AddRow(7,
			col.New(7),
			text.NewCol(3, label, style),
			text.NewCol(2, value, props.Text{Size: style.Size, Style: style.Style, Align: align.Right}),
		)
	}
	totalRow("Subtotal", invoice.Subtotal, cellText)
	totalRow("Discount", invoice.DiscountTotal, cellText)
	totalRow("Tax", invoice.TaxTotal, cellText)
	totalRow("Grand total", invoice.GrandTotal, headerText)

	if len(invoice.Installments) > 0 {
		m.AddRow(12, text.NewCol(12, "Installments", props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}))
		m.AddRow(8,
			text.NewCol(2, "#", headerText),
			text.NewCol(4, "Due date", headerText),
			text.NewCol(3, "Amount", headRight),
			text.NewCol(3, "Share", headRight),
		)
		for _, inst := range invoice.Installments {
			m.AddRow(7,
				text.NewCol(2, inst.Sequence, cellText),
				text.NewCol(4, inst.DueDate, cellText),
				text.NewCol(3, inst.Amount, cellRight),
				text.NewCol(3, inst.Percentage, cellRight),
			)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
