package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	apperrors "meddir-workers/internal/common/errors"
	"meddir-workers/internal/models"
)

const (
	MinComparePlaces = 2
	MaxComparePlaces = 5

	// NotAvailable marks a missing cell in exported tables.
	NotAvailable = "N/A"

	csvMetricHeader = "metric"
)

// wellKnownMetrics lead the comparison in this order; other keys follow
// alphabetically.
var wellKnownMetrics = []string{
	models.MetricTuition,
	models.MetricTuitionInState,
	models.MetricTuitionOutState,
	models.MetricColIndex,
	"acceptance_rate",
	"mcat_avg",
	"gpa_avg",
	"match_rate",
	"class_size",
}

// Compare aligns the metrics of 2 to 5 places side by side.
func Compare(places []models.Place) (models.ComparisonTable, error) {
	if len(places) < MinComparePlaces || len(places) > MaxComparePlaces {
		return models.ComparisonTable{}, apperrors.NewValidationFailedError("places",
			fmt.Sprintf("comparison needs %d to %d places, got %d", MinComparePlaces, MaxComparePlaces, len(places)))
	}

	table := models.ComparisonTable{
		Columns: make([]models.ComparisonColumn, len(places)),
	}
	for i, p := range places {
		table.Columns[i] = models.ComparisonColumn{ID: p.ID, Slug: p.Slug, Name: p.Name}
	}

	for _, key := range metricKeys(places) {
		row := models.ComparisonRow{Metric: key, Cells: make([]models.ComparisonCell, len(places))}
		for i, p := range places {
			if v, ok := p.Metrics[key]; ok {
				row.Cells[i] = models.ComparisonCell{Value: v, Available: true}
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// metricKeys is the union of metric keys over all places.
func metricKeys(places []models.Place) []string {
	union := map[string]struct{}{}
	for _, p := range places {
		for k := range p.Metrics {
			union[k] = struct{}{}
		}
	}

	keys := make([]string, 0, len(union))
	for _, k := range wellKnownMetrics {
		if _, ok := union[k]; ok {
			keys = append(keys, k)
			delete(union, k)
		}
	}

	rest := make([]string, 0, len(union))
	for k := range union {
		rest = append(rest, k)
	}
	sort.Strings(rest)

	return append(keys, rest...)
}

// WriteCSV exports t with one row per metric and one column per place.
func WriteCSV(w io.Writer, t models.ComparisonTable) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, csvMetricHeader)
	for _, c := range t.Columns {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range t.Rows {
		record := make([]string, 0, len(row.Cells)+1)
		record = append(record, row.Metric)
		for _, cell := range row.Cells {
			record = append(record, formatCell(cell))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", row.Metric, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table written by WriteCSV. Column ids and slugs are not
// part of the export and come back empty.
func ReadCSV(r io.Reader) (models.ComparisonTable, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return models.ComparisonTable{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 1 || header[0] != csvMetricHeader {
		return models.ComparisonTable{}, fmt.Errorf("unexpected header %v", header)
	}

	t := models.ComparisonTable{Columns: make([]models.ComparisonColumn, len(header)-1)}
	for i, name := range header[1:] {
		t.Columns[i] = models.ComparisonColumn{Name: name}
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.ComparisonTable{}, fmt.Errorf("read row: %w", err)
		}
		row := models.ComparisonRow{Metric: record[0], Cells: make([]models.ComparisonCell, len(record)-1)}
		for i, field := range record[1:] {
			row.Cells[i] = parseCell(field)
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

func formatCell(c models.ComparisonCell) string {
	if !c.Available {
		return NotAvailable
	}
	switch v := c.Value.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	}
	b, err := json.Marshal(c.Value)
	if err != nil {
		return fmt.Sprint(c.Value)
	}
	return string(b)
}

func parseCell(field string) models.ComparisonCell {
	if field == NotAvailable {
		return models.ComparisonCell{}
	}
	if field == "" {
		return models.ComparisonCell{Available: true}
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil {
		return models.ComparisonCell{Value: f, Available: true}
	}
	if b, err := strconv.ParseBool(field); err == nil {
		return models.ComparisonCell{Value: b, Available: true}
	}
	return models.ComparisonCell{Value: field, Available: true}
}
