package report

import (
	"fmt"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// QuoteCostLine is one bucket of the cost breakdown table.
type QuoteCostLine struct {
	Label  string
	Amount string // preformatted money
}

// QuoteDocument is the data behind the customer quote letter.
type QuoteDocument struct {
	Company      Company
	QuoteNumber  string
	Date         string
	ValidUntil   string
	CustomerName string
	Description  string

	// Part parameters shown on the letter.
	Quantity     int64
	PartWeightG  float64
	CycleSeconds float64
	Cavities     int
	MaterialType string

	CostLines    []QuoteCostLine
	PricePerPart string
	QuotedTotal  string
	Notes        string
}

// RenderQuote builds the quote letter PDF. Internal cost buckets are the
// caller's choice; operators without pricing access never reach this.
func RenderQuote(data QuoteDocument) ([]byte, error) {
	m := newA4("Quotation "+data.QuoteNumber, data.Company.Name)

	m.AddRows(letterhead(data.Company, "QUOTATION", data.QuoteNumber, data.Date))
	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))
	m.AddRows(
		detail("Customer", data.CustomerName),
		detail("Part", data.Description),
		detail("Quantity", fmt.Sprintf("%d", data.Quantity)),
		detail("Material", data.MaterialType),
		detail("Part weight", fmt.Sprintf("%.1f g", data.PartWeightG)),
		detail("Cycle / cavities", fmt.Sprintf("%.1f s × %d", data.CycleSeconds, data.Cavities)),
	)
	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))

	m.AddRows(row.New(7).Add(
		col.New(8).Add(text.New("Cost element", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(4).Add(text.New("Per part", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right})),
	))
	for _, l := range data.CostLines {
		m.AddRows(costLineRow(l))
	}

	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))
	m.AddRows(row.New(7).Add(
		col.New(8).Add(text.New("Price per part", props.Text{Style: fontstyle.Bold, Size: 10})),
		col.New(4).Add(text.New(data.PricePerPart, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right})),
	))
	m.AddRows(row.New(7).Add(
		col.New(8).Add(text.New(fmt.Sprintf("Total for %d parts", data.Quantity),
			props.Text{Style: fontstyle.Bold, Size: 10})),
		col.New(4).Add(text.New(data.QuotedTotal, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right})),
	))
	m.AddRows(row.New(6).Add(
		col.New(12).Add(text.New("Valid until "+data.ValidUntil, props.Text{Size: 8, Color: colorFaint, Top: 1})),
	))
	if data.Notes != "" {
		m.AddRows(row.New(10).Add(
			col.New(12).Add(text.New(data.Notes, props.Text{Size: 8, Color: colorFaint, Top: 2})),
		))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("report: quote: %w", err)
	}
	return doc.GetBytes(), nil
}

func costLineRow(l QuoteCostLine) core.Row {
	return row.New(5).Add(
		col.New(8).Add(text.New(l.Label, props.Text{Size: 8})),
		col.New(4).Add(text.New(l.Amount, props.Text{Size: 8, Align: align.Right})),
	)
}
