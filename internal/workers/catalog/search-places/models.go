// internal/workers/catalog/search-places/models.go
package searchplaces

import "meddir-workers/internal/models"

const (
	CatalogPlaces   = "places"
	CatalogPrograms = "programs"
)

type Input struct {
	// Catalog is "places" (default) or "programs".
	Catalog     string `json:"catalog,omitempty"`
	Search      string `json:"search,omitempty"`
	Type        string `json:"type,omitempty"`
	Institution string `json:"institution,omitempty"`
	Limit       *int   `json:"limit,omitempty"`
	Offset      *int   `json:"offset,omitempty"`
}

type Output struct {
	Catalog    string            `json:"catalog"`
	Places     []models.Place    `json:"places,omitempty"`
	Programs   []models.Program  `json:"programs,omitempty"`
	Pagination models.Pagination `json:"pagination"`
}

const inputSchema = `{
  "type": "object",
  "properties": {
    "catalog":     {"type": "string", "enum": ["places", "programs"]},
    "search":      {"type": "string", "maxLength": 200},
    "type":        {"type": "string"},
    "institution": {"type": "string", "maxLength": 200},
    "limit":       {"type": "integer"},
    "offset":      {"type": "integer"}
  }
}`
