package report

import (
	"fmt"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// AuditTrailRow is one change record on the printed audit trail.
type AuditTrailRow struct {
	When     string
	Actor    string
	Action   string
	Entity   string
	EntityID string
}

// AuditTrail is the data behind the printed audit trail report.
type AuditTrail struct {
	Company Company
	From    string
	To      string
	Rows    []AuditTrailRow
}

// RenderAuditTrail builds the audit trail PDF.
func RenderAuditTrail(data AuditTrail) ([]byte, error) {
	m := newA4("Audit Trail", data.Company.Name)

	m.AddRows(letterhead(data.Company, "AUDIT TRAIL", "", data.From+" to "+data.To))
	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))

	m.AddRows(row.New(7).Add(
		col.New(3).Add(text.New("When", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(3).Add(text.New("Who", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(3).Add(text.New("Action", props.Text{Style: fontstyle.Bold, Size: 8})),
		col.New(3).Add(text.New("Record", props.Text{Style: fontstyle.Bold, Size: 8})),
	))
	for _, r := range data.Rows {
		m.AddRows(auditTrailRow(r))
	}
	m.AddRows(line.NewRow(2, props.Line{Color: colorRule, Thickness: 0.4}))
	m.AddRows(row.New(6).Add(
		col.New(12).Add(text.New(fmt.Sprintf("%d records", len(data.Rows)),
			props.Text{Size: 8, Color: colorFaint})),
	))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("report: audit trail: %w", err)
	}
	return doc.GetBytes(), nil
}

func auditTrailRow(r AuditTrailRow) core.Row {
	return row.New(5).Add(
		col.New(3).Add(text.New(r.When, props.Text{Size: 7})),
		col.New(3).Add(text.New(r.Actor, props.Text{Size: 7})),
		col.New(3).Add(text.New(r.Action, props.Text{Size: 7})),
		col.New(3).Add(text.New(r.Entity+" #"+r.EntityID, props.Text{Size: 7})),
	)
}
