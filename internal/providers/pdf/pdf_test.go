package pdf

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	assert.Equal(t, "invoice-inv-20250704-000042.pdf", Filename("invoice", "INV-20250704-000042"))
	assert.Equal(t, "spk-spk-001.pdf", Filename("spk", "SPK-001"))
	assert.Equal(t, "document.pdf", Filename("", " "))
}

func TestRenderInvoice(t *testing.T) {
	provider := New()

	out, err := provider.RenderInvoice(context.Background(), InvoiceData{
		InvoiceNumber: "INV-20250704-000001",
		Status:        "DRAFT",
		PaymentType:   "INSTALLMENT",
		IssueDate:     "04 Jul 2025",
		DueDate:       "-",
		CustomerName:  "PT Sumber Makmur",
		Items: []InvoiceLine{
			{Description: "Pasang AC", Quantity: "2", UnitPrice: "100.00", Discount: "20.00", Tax: "19.80", Amount: "199.80"},
		},
		Subtotal:      "180.00",
		DiscountTotal: "20.00",
		TaxTotal:      "19.80",
		GrandTotal:    "199.80",
		Installments: []InstallmentLine{
			{Sequence: "1", DueDate: "04 Jul 2025", Amount: "99.90", Percentage: "50%"},
			{Sequence: "2", DueDate: "03 Aug 2025", Amount: "99.90", Percentage: "50%"},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderWorkOrderProgressWithPhotos(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := New().RenderWorkOrderProgress(context.Background(), ProgressData{
		WorkOrderNumber: "SPK-001",
		Title:           "Instalasi pipa",
		CustomerName:    "Bu Sari",
		Status:          "PROGRESS",
		OverallProgress: "50%",
		GeneratedAt:     "04 Jul 2025 10:00",
		Items: []ProgressLine{
			{LineItemID: "item-A", Description: "Galian", Progress: "40%", LastNote: "lanjut besok", ReportedBy: "budi", ReportedAt: "03 Jul 2025",
				Photos: []Photo{{MimeType: "image/jpeg", Content: buf.Bytes()}, {MimeType: "image/webp", Content: []byte("skip")}}},
			{LineItemID: "item-B", Description: "Pemasangan", Progress: "100%", Done: true},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestImageExtension(t *testing.T) {
	_, ok := imageExtension("image/webp")
	assert.False(t, ok)
	ext, ok := imageExtension("IMAGE/PNG")
	assert.True(t, ok)
	assert.EqualValues(t, "png", ext)
}
