package dataio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// normalizeHeader maps a raw CSV header cell onto its canonical column
// name: trimmed, lowercased, any required-marker asterisk dropped. The
// UTF-8 BOM Excel prepends to the first cell is stripped too.
func normalizeHeader(raw string) string {
	h := strings.TrimPrefix(raw, "\uFEFF")
	h = strings.TrimSpace(h)
	h = strings.TrimSuffix(h, "*")
	return strings.ToLower(strings.TrimSpace(h))
}

// templateHeader renders the download header: required columns carry a
// trailing asterisk.
func templateHeader(columns []column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		if c.required {
			out[i] = c.name + "*"
		} else {
			out[i] = c.name
		}
	}
	return out
}

func exportHeader(columns []column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.name
	}
	return out
}

// missingRequired returns the required columns a row left empty.
func missingRequired(columns []column, row map[string]string) []string {
	missing := []string{}
	for _, c := range columns {
		if c.required && row[c.name] == "" {
			missing = append(missing, c.name)
		}
	}
	return missing
}

func parseFloatField(row map[string]string, name string) (float64, error) {
	raw := row[name]
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	return v, nil
}

func parseIntField(row map[string]string, name string) (int, error) {
	raw := row[name]
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number, got %q", name, raw)
	}
	return v, nil
}

func parseInt64Field(row map[string]string, name string) (int64, error) {
	raw := row[name]
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number, got %q", name, raw)
	}
	return v, nil
}

func parseDecimalField(row map[string]string, name string) (decimal.Decimal, error) {
	raw := row[name]
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	return v, nil
}

func parseBoolField(row map[string]string, name string) (bool, error) {
	raw := strings.ToLower(row[name])
	switch raw {
	case "", "false", "no", "n", "0":
		return false, nil
	case "true", "yes", "y", "1":
		return true, nil
	}
	return false, fmt.Errorf("%s must be yes or no, got %q", name, row[name])
}

func formatFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func formatInt64(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

func formatBool(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
