package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "meddir-workers/internal/common/errors"
)

func intPtr(v int) *int { return &v }

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name           string
		catalog        Catalog
		params         Params
		expectError    bool
		expectedField  string
		validateOutput func(t *testing.T, q Query)
	}{
		{
			name:    "defaults",
			catalog: Places,
			params:  Params{},
			validateOutput: func(t *testing.T, q Query) {
				assert.Empty(t, q.Where)
				assert.Equal(t, Window{Offset: 0, Limit: DefaultPlacesLimit}, q.Window)
				assert.Equal(t, []SortKey{{Field: "name"}, {Field: "id"}}, q.OrderBy)
			},
		},
		{
			name:    "programs default limit and order",
			catalog: Programs,
			params:  Params{},
			validateOutput: func(t *testing.T, q Query) {
				assert.Equal(t, DefaultProgramsLimit, q.Window.Limit)
				assert.Equal(t, "program_name", q.OrderBy[0].Field)
			},
		},
		{
			name:    "search spans every search field",
			catalog: Places,
			params:  Params{Search: "  bost "},
			validateOutput: func(t *testing.T, q Query) {
				require.Len(t, q.Where, 1)
				assert.Equal(t, Group{
					{Field: "name", Op: OpContains, Value: "bost"},
					{Field: "city", Op: OpContains, Value: "bost"},
					{Field: "institution", Op: OpContains, Value: "bost"},
				}, q.Where[0])
			},
		},
		{
			name:    "all filters are conjoined",
			catalog: Places,
			params:  Params{Search: "x", Type: "residency", Institution: "General", Limit: intPtr(10), Offset: intPtr(20)},
			validateOutput: func(t *testing.T, q Query) {
				require.Len(t, q.Where, 3)
				assert.Equal(t, Group{{Field: "type", Op: OpEquals, Value: "residency"}}, q.Where[1])
				assert.Equal(t, Group{{Field: "institution", Op: OpContains, Value: "General"}}, q.Where[2])
				assert.Equal(t, Window{Offset: 20, Limit: 10}, q.Window)
			},
		},
		{
			name:    "programs filter institution on host",
			catalog: Programs,
			params:  Params{Institution: "Mercy"},
			validateOutput: func(t *testing.T, q Query) {
				assert.Equal(t, Group{{Field: "host", Op: OpContains, Value: "Mercy"}}, q.Where[0])
			},
		},
		{
			name:    "programs accept any type",
			catalog: Programs,
			params:  Params{Type: "fellowship"},
			validateOutput: func(t *testing.T, q Query) {
				assert.Equal(t, "fellowship", q.Where[0][0].Value)
			},
		},
		{
			name:    "max limit is accepted",
			catalog: Places,
			params:  Params{Limit: intPtr(DefaultMaxLimit)},
			validateOutput: func(t *testing.T, q Query) {
				assert.Equal(t, DefaultMaxLimit, q.Window.Limit)
			},
		},
		{name: "zero limit", catalog: Places, params: Params{Limit: intPtr(0)}, expectError: true, expectedField: "limit"},
		{name: "negative limit", catalog: Places, params: Params{Limit: intPtr(-5)}, expectError: true, expectedField: "limit"},
		{name: "limit over max", catalog: Places, params: Params{Limit: intPtr(DefaultMaxLimit + 1)}, expectError: true, expectedField: "limit"},
		{name: "negative offset", catalog: Places, params: Params{Offset: intPtr(-1)}, expectError: true, expectedField: "offset"},
		{name: "unknown place type", catalog: Places, params: Params{Type: "hospital"}, expectError: true, expectedField: "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := BuildQuery(tt.catalog, tt.params)

			if tt.expectError {
				require.Error(t, err)
				assert.True(t, apperrors.IsValidation(err))
				stdErr, _ := apperrors.AsStandard(err)
				assert.Equal(t, tt.expectedField, stdErr.Metadata["field"])
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.catalog.Name, q.Catalog.Name)
			if tt.validateOutput != nil {
				tt.validateOutput(t, q)
			}
		})
	}
}

func TestCatalog_WithLimits(t *testing.T) {
	c := Places.WithLimits(20, 100)
	assert.Equal(t, 20, c.DefaultLimit)
	assert.Equal(t, 100, c.MaxLimit)
	assert.Equal(t, DefaultPlacesLimit, Places.DefaultLimit, "original is untouched")

	c = Places.WithLimits(0, 0)
	assert.Equal(t, Places.DefaultLimit, c.DefaultLimit)
	assert.Equal(t, Places.MaxLimit, c.MaxLimit)

	_, err := BuildQuery(Places.WithLimits(0, 100), Params{Limit: intPtr(101)})
	assert.True(t, apperrors.IsValidation(err))
}

func TestQuery_Key(t *testing.T) {
	a, err := BuildQuery(Places, Params{Search: "a", Type: "school"})
	require.NoError(t, err)
	b, err := BuildQuery(Places, Params{Type: "school", Search: "a"})
	require.NoError(t, err)
	c, err := BuildQuery(Places, Params{Search: "a", Type: "school", Offset: intPtr(50)})
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Contains(t, a.Key(), `type eq "school"`)

	// quoting keeps values with separators apart
	d, _ := BuildQuery(Places, Params{Search: `x") or (y`})
	e, _ := BuildQuery(Places, Params{Search: "x"})
	assert.NotEqual(t, d.Key(), e.Key())
}

func TestLookupBySlugs(t *testing.T) {
	q := lookupBySlugs(Places, []string{"a", "b"})

	require.Len(t, q.Where, 1)
	assert.Equal(t, Group{
		{Field: "slug", Op: OpEquals, Value: "a"},
		{Field: "slug", Op: OpEquals, Value: "b"},
	}, q.Where[0])
	assert.Equal(t, Window{Limit: 2}, q.Window)
}

func TestNewPagination_HasMore(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		window   Window
		expected bool
	}{
		{name: "empty", total: 0, window: Window{Offset: 0, Limit: 10}, expected: false},
		{name: "exact fit", total: 10, window: Window{Offset: 0, Limit: 10}, expected: false},
		{name: "one past", total: 11, window: Window{Offset: 0, Limit: 10}, expected: true},
		{name: "last page", total: 25, window: Window{Offset: 20, Limit: 10}, expected: false},
		{name: "middle page", total: 25, window: Window{Offset: 10, Limit: 10}, expected: true},
		{name: "offset beyond total", total: 5, window: Window{Offset: 100, Limit: 10}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.total, tt.window)
			assert.Equal(t, tt.expected, p.HasMore)
			assert.Equal(t, tt.total, p.Total)
			assert.Equal(t, tt.window.Limit, p.Limit)
			assert.Equal(t, tt.window.Offset, p.Offset)
		})
	}
}
