// Package report renders the printed paperwork: packing lists, delivery
// notes, quote letters and barcode label sheets. Documents are built
// in-process with maroto and returned as bytes for download.
package report

import (
	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var (
	colorInk   = &props.Color{Red: 30, Green: 41, Blue: 59}
	colorFaint = &props.Color{Red: 100, Green: 116, Blue: 139}
	colorRule  = &props.Color{Red: 148, Green: 163, Blue: 184}
)

// Company is the letterhead block stamped on customer-facing documents.
type Company struct {
	Name    string
	Address string
	Phone   string
	Email   string
	VATNo   string
}

// newA4 builds an A4 document with the house margins and font.
func newA4(title, author string) core.Maroto {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(12).WithRightMargin(12).
		WithTopMargin(12).WithBottomMargin(12).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title, true).
		WithAuthor(author, true).
		Build()
	return maroto.New(cfg)
}

// letterhead is the company header row shared by the documents.
func letterhead(company Company, docTitle, docNumber, date string) core.Row {
	return row.New(20).Add(
		col.New(7).Add(
			text.New(company.Name, props.Text{Style: fontstyle.Bold, Size: 14, Color: colorInk, Top: 1}),
			text.New(company.Address, props.Text{Size: 8, Top: 9, Color: colorFaint}),
			text.New("Tel: "+company.Phone+"   Email: "+company.Email, props.Text{Size: 8, Top: 13, Color: colorFaint}),
		),
		col.New(5).Add(
			text.New(docTitle, props.Text{Style: fontstyle.Bold, Size: 11, Align: align.Right, Color: colorInk, Top: 1}),
			text.New(docNumber, props.Text{Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 8}),
			text.New(date, props.Text{Size: 8, Align: align.Right, Top: 15, Color: colorFaint}),
		),
	)
}

// label/value pair used in header detail blocks.
func detail(label, value string) core.Row {
	return row.New(5).Add(
		col.New(3).Add(text.New(label, props.Text{Size: 8, Color: colorFaint})),
		col.New(9).Add(text.New(value, props.Text{Size: 9})),
	)
}
