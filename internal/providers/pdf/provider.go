package pdf

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/core/entity"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"go.uber.org/fx"
)

const ContentType = "application/pdf"

var Module = fx.Module("pdf",
	fx.Provide(New),
)

// Provider renders printable documents.
type Provider interface {
	RenderInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
	RenderWorkOrderProgress(ctx context.Context, data ProgressData) ([]byte, error)
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

// Filename builds a download name such as "invoice-inv-20250704-000042.pdf".
func Filename(kind, number string) string {
	name := slug.Make(strings.TrimSpace(kind + " " + number))
	if name == "" {
		name = "document"
	}
	return name + ".pdf"
}

func pageConfig(title string) *entity.Config {
	return config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		WithTitle(title, true).
		Build()
}
