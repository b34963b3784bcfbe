package report

import (
	"fmt"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// DeliveryNoteLine is one despatched line, prices omitted.
type DeliveryNoteLine struct {
	SKU      string
	Name     string
	Quantity float64
}

// DeliveryNote is the customer-facing despatch document with a
// signature block for proof of delivery.
type DeliveryNote struct {
	Company          Company
	DeliveryNumber   string
	OrderNumber      string
	CustomerPO       string
	CustomerName     string
	DeliveryName     string
	DeliveryAddress  string
	DeliveryCity     string
	DeliveryPostcode string
	Date             string
	Carrier          string
	DriverName       string
	NumPackages      int
	Lines            []DeliveryNoteLine
}

// RenderDeliveryNote builds the customer delivery note PDF.
func RenderDeliveryNote(data DeliveryNote) ([]byte, error) {
	m := newA4("Delivery Note "+data.DeliveryNumber, data.Company.Name)

	m.AddRows(letterhead(data.Company, "DELIVERY NOTE", data.DeliveryNumber, data.Date))
	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))
	m.AddRows(
		detail("Our order", data.OrderNumber),
		detail("Your PO", data.CustomerPO),
		detail("Deliver to", data.DeliveryName),
		detail("", data.DeliveryAddress),
		detail("", data.DeliveryCity+"  "+data.DeliveryPostcode),
	)
	if data.Carrier != "" || data.DriverName != "" {
		m.AddRows(detail("Carrier / driver", data.Carrier+"  "+data.DriverName))
	}
	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))

	m.AddRows(row.New(7).Add(
		col.New(3).Add(text.New("SKU", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(6).Add(text.New("Description", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(3).Add(text.New("Quantity", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right})),
	))
	for _, l := range data.Lines {
		m.AddRows(row.New(6).Add(
			col.New(3).Add(text.New(l.SKU, props.Text{Size: 8})),
			col.New(6).Add(text.New(l.Name, props.Text{Size: 8})),
			col.New(3).Add(text.New(formatQty(l.Quantity), props.Text{Size: 8, Align: align.Right})),
		))
	}

	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))
	m.AddRows(row.New(6).Add(
		col.New(12).Add(text.New(fmt.Sprintf("Packages: %d", data.NumPackages), props.Text{Size: 9})),
	))

	// Signature block for the receiving site.
	m.AddRows(line.NewRow(6))
	m.AddRows(row.New(14).Add(
		col.New(6).Add(
			text.New("Received by (print):", props.Text{Size: 9, Top: 1}),
			text.New("_________________________", props.Text{Size: 9, Top: 9}),
		),
		col.New(3).Add(
			text.New("Signature:", props.Text{Size: 9, Top: 1}),
			text.New("________________", props.Text{Size: 9, Top: 9}),
		),
		col.New(3).Add(
			text.New("Date:", props.Text{Size: 9, Top: 1}),
			text.New("________________", props.Text{Size: 9, Top: 9}),
		),
	))
	m.AddRows(row.New(8).Add(
		col.New(12).Add(text.New(
			"Please check goods on arrival. Shortages and damage must be reported within 48 hours.",
			props.Text{Size: 7, Color: colorFaint, Top: 3})),
	))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("report: delivery note: %w", err)
	}
	return doc.GetBytes(), nil
}
