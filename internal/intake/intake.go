// Package intake loads candidate listings from JSON, CSV and XLSX files and
// writes tabular exports.
package intake

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/model"
)

// Load reads candidates from path. The format is chosen by extension:
// .json holds an array of listings, .csv and .xlsx hold a header row followed
// by one listing per row.
func Load(ctx context.Context, path string) ([]*model.Property, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".csv":
	case ".xlsx":
		rows, err := ReadXLSX(path, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return FromRows(rows[0], rows[1:])
	default:
		return nil, eris.Errorf("intake: unsupported file type %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "intake: open file")
	}
	defer f.Close() //nolint:errcheck

	if ext == ".json" {
		return ReadJSON(ctx, f)
	}
	return ReadCSV(ctx, f)
}

// FromRows maps tabular rows onto listings using header names. Unknown
// columns are ignored and blank cells leave the field absent. Numeric cells
// may carry currency symbols and thousands separators.
func FromRows(header []string, rows [][]string) ([]*model.Property, error) {
	cols := columnIndex(header)
	out := make([]*model.Property, 0, len(rows))
	for n, row := range rows {
		p, err := parseRow(cols, row)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: row %d", n+2)
		}
		out = append(out, p)
	}
	return out, nil
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[normalizeHeader(h)] = i
	}
	return cols
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	switch h {
	case "zip", "zipcode", "postal_code":
		return "zip_code"
	case "url", "listing_url":
		return "link"
	case "beds":
		return "bedrooms"
	case "baths":
		return "bathrooms"
	case "square_feet", "sq_ft":
		return "sqft"
	}
	return h
}

func parseRow(cols map[string]int, row []string) (*model.Property, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	p := &model.Property{
		ID:           get("id"),
		Title:        get("title"),
		Source:       get("source"),
		Link:         get("link"),
		Description:  get("description"),
		Address:      get("address"),
		City:         get("city"),
		State:        get("state"),
		ZipCode:      get("zip_code"),
		PropertyType: model.PropertyType(strings.ToLower(get("property_type"))),
		DealType:     model.DealType(strings.ToLower(get("deal_type"))),
		Condition:    model.Condition(strings.ToLower(get("condition"))),
	}

	numbers := []struct {
		col string
		dst **float64
	}{
		{"latitude", &p.Latitude},
		{"longitude", &p.Longitude},
		{"price", &p.Price},
		{"arv", &p.ARV},
		{"repair_estimate", &p.RepairEstimate},
		{"assignment_fee", &p.AssignmentFee},
		{"bedrooms", &p.Bedrooms},
		{"bathrooms", &p.Bathrooms},
		{"sqft", &p.Sqft},
		{"lot_size_sqft", &p.LotSizeSqft},
		{"year_built", &p.YearBuilt},
		{"equity_percentage", &p.EquityPercentage},
		{"ai_score", &p.AIScore},
	}
	for _, n := range numbers {
		v, err := parseNumber(get(n.col))
		if err != nil {
			return nil, eris.Wrapf(err, "column %s", n.col)
		}
		*n.dst = v
	}

	if raw := get("extraction_confidences"); raw != "" {
		for _, part := range strings.Split(raw, ";") {
			v, err := parseNumber(part)
			if err != nil {
				return nil, eris.Wrap(err, "column extraction_confidences")
			}
			if v != nil {
				p.ExtractionConfidences = append(p.ExtractionConfidences, *v)
			}
		}
	}
	return p, nil
}

// parseNumber returns nil for a blank cell.
func parseNumber(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("$", "", ",", "", "%", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %q", s)
	}
	return &v, nil
}
