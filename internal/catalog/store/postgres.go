package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"meddir-workers/internal/catalog"
)

const totalCountColumn = "total_count"

// Querier is the subset of *sql.DB the Postgres store needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table maps a catalog onto a relation. Only listed columns can be selected,
// filtered or sorted on.
type Table struct {
	Name    string
	Columns []string
	// SortExprs overrides the ORDER BY expression of a column.
	SortExprs map[string]string
}

func (t Table) allows(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

var PlacesTable = Table{
	Name: "places",
	Columns: []string{
		"id", "slug", "type", "name", "institution", "photo_url",
		"city", "state", "country", "location_city", "location_state", "location_country",
		"tags", "rank_overall", "metrics", "scores",
		"tuition", "tuition_in_state", "tuition_out_state",
		"created_at", "updated_at",
	},
	SortExprs: map[string]string{"name": "lower(name)"},
}

var ProgramsTable = Table{
	Name: "programs",
	Columns: []string{
		"id", "slug", "type", "program_name", "host", "description", "specialty",
		"city", "state", "country", "tags", "metrics", "created_at", "updated_at",
	},
	SortExprs: map[string]string{"program_name": "lower(program_name)"},
}

// DefaultTables keys the built-in tables by catalog name.
func DefaultTables() map[string]Table {
	return map[string]Table{
		catalog.Places.Name:   PlacesTable,
		catalog.Programs.Name: ProgramsTable,
	}
}

type Postgres struct {
	db     Querier
	tables map[string]Table
}

func NewPostgres(db Querier, tables map[string]Table) *Postgres {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Postgres{db: db, tables: tables}
}

func (p *Postgres) Find(ctx context.Context, q catalog.Query) ([]catalog.RawRecord, int, error) {
	table, ok := p.tables[q.Catalog.Name]
	if !ok {
		return nil, 0, fmt.Errorf("no table for catalog %q", q.Catalog.Name)
	}

	where, args, err := buildWhere(table, q.Where)
	if err != nil {
		return nil, 0, err
	}
	orderBy, err := buildOrderBy(table, q.OrderBy)
	if err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s, count(*) OVER() AS %s FROM %s%s%s LIMIT $%d OFFSET $%d",
		strings.Join(table.Columns, ", "), totalCountColumn, table.Name, where, orderBy,
		len(args)+1, len(args)+2)

	rows, err := p.db.QueryContext(ctx, query, append(args, q.Window.Limit, q.Window.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", table.Name, err)
	}
	defer rows.Close()

	records, total, err := scanRecords(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan %s: %w", table.Name, err)
	}

	// The window function yields nothing once the offset passes the last row.
	if len(records) == 0 && q.Window.Offset > 0 {
		countQuery := fmt.Sprintf("SELECT count(*) FROM %s%s", table.Name, where)
		if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count %s: %w", table.Name, err)
		}
	}

	return records, total, nil
}

func buildWhere(t Table, where catalog.Predicate) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	var args []any
	groups := make([]string, 0, len(where))
	for _, g := range where {
		conds := make([]string, 0, len(g))
		for _, c := range g {
			if !t.allows(c.Field) {
				return "", nil, fmt.Errorf("column %q is not filterable on %s", c.Field, t.Name)
			}
			switch c.Op {
			case catalog.OpEquals:
				args = append(args, c.Value)
				conds = append(conds, fmt.Sprintf("%s = $%d", c.Field, len(args)))
			case catalog.OpContains:
				args = append(args, "%"+escapeLike(c.Value)+"%")
				conds = append(conds, fmt.Sprintf(`%s ILIKE $%d ESCAPE '\'`, c.Field, len(args)))
			default:
				return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
			}
		}
		groups = append(groups, "("+strings.Join(conds, " OR ")+")")
	}
	return " WHERE " + strings.Join(groups, " AND "), args, nil
}

func buildOrderBy(t Table, order []catalog.SortKey) (string, error) {
	if len(order) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		if !t.allows(k.Field) {
			return "", fmt.Errorf("column %q is not sortable on %s", k.Field, t.Name)
		}
		expr := k.Field
		if e, ok := t.SortExprs[k.Field]; ok {
			expr = e
		}
		dir := "ASC"
		if k.Descending {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// escapeLike makes % and _ in user input match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanRecords(rows *sql.Rows) ([]catalog.RawRecord, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, err
	}

	var (
		records []catalog.RawRecord
		total   int
	)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}

		r := make(catalog.RawRecord, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if col == totalCountColumn {
				total = int(asInt64(v))
				continue
			}
			r[col] = v
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		var n int64
		fmt.Sscan(t, &n)
		return n
	}
	return 0
}
