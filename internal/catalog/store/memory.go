// Package store holds the catalog.Store implementations: an in-process store
// for fixtures, PostgreSQL, Elasticsearch, and a Redis read-through cache.
package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"meddir-workers/internal/catalog"
)

// Memory evaluates queries in process over a fixed record set per catalog.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]catalog.RawRecord
}

func NewMemory() *Memory {
	return &Memory{records: map[string][]catalog.RawRecord{}}
}

// Fixtures is the on-disk layout read by LoadFixtures.
type Fixtures map[string][]catalog.RawRecord

// ReadFixtures decodes a JSON document of the form {"places": [...], "programs": [...]}.
// Numbers are kept as json.Number.
func ReadFixtures(r io.Reader) (Fixtures, error) {
	var fx Fixtures
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return fx, nil
}

// ReadFixturesFile is ReadFixtures over a file path.
func ReadFixturesFile(path string) (Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	return ReadFixtures(f)
}

// LoadFixtures builds a Memory store from a fixtures document.
func LoadFixtures(r io.Reader) (*Memory, error) {
	fx, err := ReadFixtures(r)
	if err != nil {
		return nil, err
	}
	return fx.Memory(), nil
}

// LoadFixturesFile is LoadFixtures over a file path.
func LoadFixturesFile(path string) (*Memory, error) {
	fx, err := ReadFixturesFile(path)
	if err != nil {
		return nil, err
	}
	return fx.Memory(), nil
}

func (fx Fixtures) Memory() *Memory {
	m := NewMemory()
	for name, records := range fx {
		m.Put(name, records...)
	}
	return m
}

// Put appends records to the named catalog.
func (m *Memory) Put(catalogName string, records ...catalog.RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[catalogName] = append(m.records[catalogName], records...)
}

func (m *Memory) Find(ctx context.Context, q catalog.Query) ([]catalog.RawRecord, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	all := m.records[q.Catalog.Name]
	matched := make([]catalog.RawRecord, 0, len(all))
	for _, r := range all {
		if matches(r, q.Where) {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return less(matched[i], matched[j], q.OrderBy, q.Catalog.IDField)
	})

	total := len(matched)
	start := min(q.Window.Offset, total)
	end := min(start+q.Window.Limit, total)
	return matched[start:end], total, nil
}

func matches(r catalog.RawRecord, where catalog.Predicate) bool {
	for _, group := range where {
		ok := false
		for _, c := range group {
			if holds(r, c) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func holds(r catalog.RawRecord, c catalog.Condition) bool {
	v, present := fieldText(r, c.Field)
	if !present {
		return false
	}
	switch c.Op {
	case catalog.OpEquals:
		return v == c.Value
	case catalog.OpContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.Value))
	}
	return false
}

// fieldText reads a scalar field as text. Location fields fall back to their
// location_* twin.
func fieldText(r catalog.RawRecord, field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		switch field {
		case "city", "state", "country":
			v, ok = r["location_"+field]
		}
		if !ok || v == nil {
			return "", false
		}
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return fmt.Sprint(v), true
}

func less(a, b catalog.RawRecord, order []catalog.SortKey, idField string) bool {
	for _, key := range order {
		c := compareField(a, b, key.Field, key.Field == idField)
		if c == 0 {
			continue
		}
		if key.Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}

// compareField orders text case-insensitively. Numeric fields compare as
// numbers, with unparseable values after all numbers. Missing values sort
// last.
func compareField(a, b catalog.RawRecord, field string, numeric bool) int {
	av, aok := fieldText(a, field)
	bv, bok := fieldText(b, field)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}

	if numeric {
		af, aerr := strconv.ParseFloat(av, 64)
		bf, berr := strconv.ParseFloat(bv, 64)
		switch {
		case aerr == nil && berr == nil:
			return cmp.Compare(af, bf)
		case aerr == nil:
			return -1
		case berr == nil:
			return 1
		}
	}
	return strings.Compare(strings.ToLower(av), strings.ToLower(bv))
}
