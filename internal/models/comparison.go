// internal/models/comparison.go
package models

type ComparisonColumn struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// ComparisonCell holds one place's value for a metric. Available is false
// when the place has no value for that metric.
type ComparisonCell struct {
	Value     any  `json:"value"`
	Available bool `json:"available"`
}

type ComparisonRow struct {
	Metric string           `json:"metric"`
	Cells  []ComparisonCell `json:"cells"`
}

// ComparisonTable is a side-by-side view of 2 to 5 places. Columns follow the
// order the places were requested in; every row has one cell per column.
type ComparisonTable struct {
	Columns []ComparisonColumn `json:"columns"`
	Rows    []ComparisonRow    `json:"rows"`
}
