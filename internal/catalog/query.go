package catalog

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "meddir-workers/internal/common/errors"
	"meddir-workers/internal/models"
)

const (
	DefaultPlacesLimit   = 50
	DefaultProgramsLimit = 100
	DefaultMaxLimit      = 500
)

// Catalog describes one searchable collection and the fields its queries may
// touch.
type Catalog struct {
	Name             string
	DisplayField     string
	IDField          string
	SearchFields     []string
	TypeField        string
	InstitutionField string
	// AllowedTypes restricts the type filter. Empty means any value.
	AllowedTypes []string
	DefaultLimit int
	MaxLimit     int
}

var Places = Catalog{
	Name:             "places",
	DisplayField:     "name",
	IDField:          "id",
	SearchFields:     []string{"name", "city", "institution"},
	TypeField:        "type",
	InstitutionField: "institution",
	AllowedTypes: []string{
		string(models.PlaceTypeSchool),
		string(models.PlaceTypeRotation),
		string(models.PlaceTypeResidency),
	},
	DefaultLimit: DefaultPlacesLimit,
	MaxLimit:     DefaultMaxLimit,
}

var Programs = Catalog{
	Name:             "programs",
	DisplayField:     "program_name",
	IDField:          "id",
	SearchFields:     []string{"program_name", "host", "description"},
	TypeField:        "type",
	InstitutionField: "host",
	DefaultLimit:     DefaultProgramsLimit,
	MaxLimit:         DefaultMaxLimit,
}

// WithLimits returns a copy of c with configured limits. Zero values keep the
// current setting.
func (c Catalog) WithLimits(defaultLimit, maxLimit int) Catalog {
	if defaultLimit > 0 {
		c.DefaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		c.MaxLimit = maxLimit
	}
	return c
}

type Operator string

const (
	OpEquals Operator = "eq"
	// OpContains is a case-insensitive substring match.
	OpContains Operator = "contains"
)

type Condition struct {
	Field string
	Op    Operator
	Value string
}

// Group is satisfied when any of its conditions holds.
type Group []Condition

// Predicate is satisfied when every group holds. An empty predicate matches all.
type Predicate []Group

type SortKey struct {
	Field      string
	Descending bool
}

// Window selects records [Offset, Offset+Limit) of the ordered result.
type Window struct {
	Offset int
	Limit  int
}

type Query struct {
	Catalog Catalog
	Where   Predicate
	OrderBy []SortKey
	Window  Window
}

// Params are the caller-facing listing parameters. Nil Limit or Offset means
// "use the default".
type Params struct {
	Search      string `json:"search,omitempty"`
	Type        string `json:"type,omitempty"`
	Institution string `json:"institution,omitempty"`
	Limit       *int   `json:"limit,omitempty"`
	Offset      *int   `json:"offset,omitempty"`
}

// BuildQuery validates params and turns them into a query against c.
func BuildQuery(c Catalog, p Params) (Query, error) {
	limit := c.DefaultLimit
	if p.Limit != nil {
		limit = *p.Limit
	}
	offset := 0
	if p.Offset != nil {
		offset = *p.Offset
	}

	if limit <= 0 {
		return Query{}, apperrors.NewValidationFailedError("limit", fmt.Sprintf("limit must be > 0, got %d", limit))
	}
	if c.MaxLimit > 0 && limit > c.MaxLimit {
		return Query{}, apperrors.NewValidationFailedError("limit", fmt.Sprintf("limit must be <= %d, got %d", c.MaxLimit, limit))
	}
	if offset < 0 {
		return Query{}, apperrors.NewValidationFailedError("offset", fmt.Sprintf("offset must be >= 0, got %d", offset))
	}

	var where Predicate

	if search := strings.TrimSpace(p.Search); search != "" {
		group := make(Group, 0, len(c.SearchFields))
		for _, field := range c.SearchFields {
			group = append(group, Condition{Field: field, Op: OpContains, Value: search})
		}
		where = append(where, group)
	}

	if typ := strings.TrimSpace(p.Type); typ != "" {
		if c.TypeField == "" {
			return Query{}, apperrors.NewValidationFailedError("type", fmt.Sprintf("catalog %s has no type filter", c.Name))
		}
		if len(c.AllowedTypes) > 0 && !contains(c.AllowedTypes, typ) {
			return Query{}, apperrors.NewValidationFailedError("type",
				fmt.Sprintf("type must be one of %s, got %q", strings.Join(c.AllowedTypes, ", "), typ))
		}
		where = append(where, Group{{Field: c.TypeField, Op: OpEquals, Value: typ}})
	}

	if inst := strings.TrimSpace(p.Institution); inst != "" {
		where = append(where, Group{{Field: c.InstitutionField, Op: OpContains, Value: inst}})
	}

	return Query{
		Catalog: c,
		Where:   where,
		OrderBy: c.defaultOrder(),
		Window:  Window{Offset: offset, Limit: limit},
	}, nil
}

// lookupBySlugs matches records whose slug is any of slugs.
func lookupBySlugs(c Catalog, slugs []string) Query {
	group := make(Group, 0, len(slugs))
	for _, s := range slugs {
		group = append(group, Condition{Field: "slug", Op: OpEquals, Value: s})
	}
	return Query{
		Catalog: c,
		Where:   Predicate{group},
		OrderBy: c.defaultOrder(),
		Window:  Window{Offset: 0, Limit: len(slugs)},
	}
}

// defaultOrder sorts by display name with id as the tie-break, which keeps
// consecutive pages disjoint.
func (c Catalog) defaultOrder() []SortKey {
	return []SortKey{{Field: c.DisplayField}, {Field: c.IDField}}
}

// Key is a canonical text form of q, stable across processes.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Catalog.Name)
	for _, g := range q.Where {
		b.WriteString("|(")
		for i, c := range g {
			if i > 0 {
				b.WriteString(" or ")
			}
			b.WriteString(c.Field)
			b.WriteByte(' ')
			b.WriteString(string(c.Op))
			b.WriteByte(' ')
			b.WriteString(strconv.Quote(c.Value))
		}
		b.WriteString(")")
	}
	for _, s := range q.OrderBy {
		b.WriteString("|sort ")
		b.WriteString(s.Field)
		if s.Descending {
			b.WriteString(" desc")
		}
	}
	fmt.Fprintf(&b, "|window %d,%d", q.Window.Offset, q.Window.Limit)
	return b.String()
}

// NewPagination reports the window and whether records remain past it.
func NewPagination(total int, w Window) models.Pagination {
	return models.Pagination{
		Total:   total,
		Limit:   w.Limit,
		Offset:  w.Offset,
		HasMore: total > w.Offset+w.Limit,
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
