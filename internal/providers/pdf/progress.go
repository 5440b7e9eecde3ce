package pdf

import (
	"context"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const photosPerRow = 3

type ProgressData struct {
	WorkOrderNumber string
	Title           string
	CustomerName    string
	Status          string
	OverallProgress string
	GeneratedAt     string

	Items []ProgressLine
}

type ProgressLine struct {
	LineItemID  string
	Description string
	Progress    string
	Done        bool
	LastNote    string
	ReportedBy  string
	ReportedAt  string
	Photos      []Photo
}

type Photo struct {
	MimeType string
	Content  []byte
}

func (p *PDFProvider) RenderWorkOrderProgress(ctx context.Context, data ProgressData) ([]byte, error) {
	m := maroto.New(pageConfig("SPK " + data.WorkOrderNumber))

	m.AddRow(12, text.NewCol(12, "Work Order Progress", props.Text{Size: 18, Style: fontstyle.Bold}))
	m.AddRow(24,
		col.New(6).Add(
			text.New("SPK: "+data.WorkOrderNumber, props.Text{Top: 0}),
			text.New(data.Title, props.Text{Top: 5}),
			text.New("Customer: "+data.CustomerName, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Status: "+data.Status, props.Text{Style: fontstyle.Bold}),
			text.New("Overall progress: "+data.OverallProgress, props.Text{Top: 5}),
			text.New("Generated: "+data.GeneratedAt, props.Text{Top: 10}),
		),
	)

	m.AddRow(8,
		text.NewCol(5, "Item", headerText),
		text.NewCol(2, "Progress", headRight),
		text.NewCol(1, "Done", headRight),
		text.NewCol(4, "Last report", headerText),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range data.Items {
		done := "-"
		if item.Done {
			done = "yes"
		}
		reported := strings.TrimSpace(item.ReportedBy + " " + item.ReportedAt)
		m.AddRow(12,
			col.New(5).Add(
				text.New(item.Description, cellText),
				text.New(item.LineItemID, props.Text{Size: 7, Top: 5}),
			),
			text.NewCol(2, item.Progress, cellRight),
			text.NewCol(1, done, cellRight),
			col.New(4).Add(
				text.New(item.LastNote, cellText),
				text.New(reported, props.Text{Size: 7, Top: 5}),
			),
		)

		cols := photoCols(item.Photos)
		for start := 0; start < len(cols); start += photosPerRow {
			end := start + photosPerRow
			if end > len(cols) {
				end = len(cols)
			}
			m.AddRow(40, cols[start:end]...)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func photoCols(photos []Photo) []core.Col {
	cols := make([]core.Col, 0, len(photos))
	for _, photo := range photos {
		ext, ok := imageExtension(photo.MimeType)
		if !ok || len(photo.Content) == 0 {
			continue
		}
		cols = append(cols, image.NewFromBytesCol(12/photosPerRow, photo.Content, ext, props.Rect{
			Center:  true,
			Percent: 90,
		}))
	}
	return cols
}

func imageExtension(mimeType string) (extension.Type, bool) {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return extension.Jpg, true
	case "image/png":
		return extension.Png, true
	default:
		return "", false
	}
}
