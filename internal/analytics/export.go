package analytics

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// The report endpoints double as CSV downloads for the office: each
// writer serialises one report's rows with a stable header.

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteStockCSV serialises a stock report.
func WriteStockCSV(w io.Writer, rows []StockRow) error {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.SKU, r.Name, r.Category, r.ItemType,
			strconv.FormatFloat(r.TotalStock, 'f', -1, 64),
			strconv.FormatFloat(r.MinStock, 'f', -1, 64),
			r.UnitCost.StringFixed(4), r.StockValue.StringFixed(2),
		})
	}
	return writeCSV(w, []string{"sku", "name", "category", "type", "stock", "min_stock", "unit_cost", "value"}, out)
}

// WriteMovementsCSV serialises the movement history report.
func WriteMovementsCSV(w io.Writer, rows []MovementRow) error {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.CreatedAt.Format(time.RFC3339), r.ItemSKU, r.ItemName, r.MovementType,
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
			r.FromLocation, r.ToLocation, r.Reference, r.BatchNumber,
		})
	}
	return writeCSV(w, []string{"timestamp", "sku", "item", "type", "quantity", "from", "to", "reference", "batch"}, out)
}

// WriteProductionSummaryCSV serialises the production summary report.
func WriteProductionSummaryCSV(w io.Writer, rows []ProductionSummaryRow) error {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.SKU, r.Name, strconv.Itoa(r.Orders),
			strconv.FormatInt(r.QuantityRequired, 10), strconv.FormatInt(r.QuantityProduced, 10),
			strconv.FormatInt(r.QuantityGood, 10), strconv.FormatInt(r.QuantityRejected, 10),
		})
	}
	return writeCSV(w, []string{"sku", "name", "orders", "required", "produced", "good", "rejected"}, out)
}

// WriteNCRCSV serialises the non-conformance report.
func WriteNCRCSV(w io.Writer, rows []NCRRow) error {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.NCRNumber, r.CreatedAt.Format("2006-01-02"), r.Source, r.Status, r.Disposition,
			r.ItemSKU, r.Customer, strconv.FormatInt(r.Quantity, 10), r.Description,
		})
	}
	return writeCSV(w, []string{"ncr", "raised", "source", "status", "disposition", "sku", "customer", "quantity", "description"}, out)
}
