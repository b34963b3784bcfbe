package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/mouldworks/mouldworks/report"
)

// Exporter renders the audit trail as CSV or PDF downloads.
type Exporter struct {
	company report.Company
}

// NewExporter builds an exporter stamped with the company letterhead.
func NewExporter(company report.Company) *Exporter {
	return &Exporter{company: company}
}

// WriteCSV encodes the rows as a CSV document.
func (e *Exporter) WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"occurred_at", "actor", "action", "entity", "entity_id", "meta"}); err != nil {
		return nil, fmt.Errorf("audit csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.Actor,
			row.Action,
			row.Entity,
			row.EntityID,
			row.Meta,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPDF renders the trail as the printed audit trail report.
func (e *Exporter) RenderPDF(_ context.Context, vm ViewModel) ([]byte, error) {
	data := report.AuditTrail{
		Company: e.company,
		From:    vm.Filters.From.Format("2006-01-02"),
		To:      vm.Filters.To.Format("2006-01-02"),
		Rows:    make([]report.AuditTrailRow, 0, len(vm.Rows)),
	}
	for _, row := range vm.Rows {
		data.Rows = append(data.Rows, report.AuditTrailRow{
			When:     row.At.UTC().Format("2006-01-02 15:04"),
			Actor:    row.Actor,
			Action:   row.Action,
			Entity:   row.Entity,
			EntityID: row.EntityID,
		})
	}
	return report.RenderAuditTrail(data)
}
