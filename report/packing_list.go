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

// PackingLine is one order line on the warehouse pick sheet.
type PackingLine struct {
	LineNumber int
	SKU        string
	Name       string
	Ordered    float64
	ToShip     float64
}

// PackingList is the data behind the internal pick and pack sheet.
type PackingList struct {
	Company          Company
	OrderNumber      string
	CustomerPO       string
	CustomerName     string
	DeliveryName     string
	DeliveryAddress  string
	DeliveryCity     string
	DeliveryPostcode string
	Date             string
	NumPackages      int
	TotalWeightKg    float64
	Lines            []PackingLine
	Notes            string
}

// RenderPackingList builds the internal packing list PDF.
func RenderPackingList(data PackingList) ([]byte, error) {
	m := newA4("Packing List "+data.OrderNumber, data.Company.Name)

	m.AddRows(letterhead(data.Company, "PACKING LIST", data.OrderNumber, data.Date))
	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))
	m.AddRows(
		detail("Customer", data.CustomerName),
		detail("Customer PO", data.CustomerPO),
		detail("Deliver to", data.DeliveryName),
		detail("", data.DeliveryAddress),
		detail("", data.DeliveryCity+"  "+data.DeliveryPostcode),
	)
	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))

	m.AddRows(row.New(7).Add(
		col.New(1).Add(text.New("#", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(3).Add(text.New("SKU", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(4).Add(text.New("Description", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(2).Add(text.New("Ordered", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right})),
		col.New(2).Add(text.New("To ship", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right})),
	))
	for _, l := range data.Lines {
		m.AddRows(packingLineRow(l))
	}

	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))
	m.AddRows(row.New(6).Add(
		col.New(6).Add(text.New(fmt.Sprintf("Packages: %d", data.NumPackages), props.Text{Size: 9})),
		col.New(6).Add(text.New(fmt.Sprintf("Total weight: %.2f kg", data.TotalWeightKg),
			props.Text{Size: 9, Align: align.Right})),
	))
	if data.Notes != "" {
		m.AddRows(row.New(8).Add(
			col.New(12).Add(text.New("Notes: "+data.Notes, props.Text{Size: 8, Color: colorFaint, Top: 2})),
		))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("report: packing list: %w", err)
	}
	return doc.GetBytes(), nil
}

func packingLineRow(l PackingLine) core.Row {
	return row.New(6).Add(
		col.New(1).Add(text.New(fmt.Sprintf("%d", l.LineNumber), props.Text{Size: 8})),
		col.New(3).Add(text.New(l.SKU, props.Text{Size: 8})),
		col.New(4).Add(text.New(l.Name, props.Text{Size: 8})),
		col.New(2).Add(text.New(formatQty(l.Ordered), props.Text{Size: 8, Align: align.Right})),
		col.New(2).Add(text.New(formatQty(l.ToShip), props.Text{Size: 8, Align: align.Right})),
	)
}

// formatQty drops the trailing decimals mouldings never need.
func formatQty(quantity float64) string {
	if quantity == float64(int64(quantity)) {
		return fmt.Sprintf("%d", int64(quantity))
	}
	return fmt.Sprintf("%.2f", quantity)
}
