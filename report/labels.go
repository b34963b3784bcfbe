package report

import (
	"fmt"

	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// Label is one barcode sticker: the encoded value plus its caption.
type Label struct {
	Code    string // encoded in the barcode (sku or location code)
	Caption string
	Copies  int // defaults to 1
}

// RenderLabelSheet lays code128 labels out two across, Avery L7163
// style, repeating each label by its copy count.
func RenderLabelSheet(company Company, labels []Label) ([]byte, error) {
	m := newA4("Labels", company.Name)

	// Flatten copies into one run of stickers.
	flat := []Label{}
	for _, l := range labels {
		copies := l.Copies
		if copies < 1 {
			copies = 1
		}
		for i := 0; i < copies; i++ {
			flat = append(flat, l)
		}
	}

	for i := 0; i < len(flat); i += 2 {
		r := row.New(38).Add(labelCol(flat[i]))
		if i+1 < len(flat) {
			r.Add(labelCol(flat[i+1]))
		} else {
			r.Add(col.New(6))
		}
		m.AddRows(r)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("report: label sheet: %w", err)
	}
	return doc.GetBytes(), nil
}

func labelCol(l Label) core.Col {
	return col.New(6).Add(
		code.NewBar(l.Code, props.Barcode{
			Top:     4,
			Left:    8,
			Percent: 70,
			Proportion: props.Proportion{
				Width:  16,
				Height: 5,
			},
		}),
		text.New(l.Code, props.Text{Size: 9, Top: 26, Align: align.Center}),
		text.New(l.Caption, props.Text{Size: 7, Top: 31, Align: align.Center, Color: colorFaint}),
	)
}
