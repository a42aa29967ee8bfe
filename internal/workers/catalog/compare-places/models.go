// internal/workers/catalog/compare-places/models.go
package compareplaces

import "meddir-workers/internal/models"

type Input struct {
	Slugs []string `json:"slugs"`
	// IncludeCSV adds the table as CSV text to the output.
	IncludeCSV bool `json:"includeCsv,omitempty"`
}

type Output struct {
	ComparisonID string                 `json:"comparisonId"`
	Table        models.ComparisonTable `json:"table"`
	CSV          string                 `json:"csv,omitempty"`
}

const inputSchema = `{
  "type": "object",
  "required": ["slugs"],
  "properties": {
    "slugs":      {"type": "array", "items": {"type": "string"}},
    "includeCsv": {"type": "boolean"}
  }
}`
