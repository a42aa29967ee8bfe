package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"meddir-workers/internal/catalog"
)

// Index maps a catalog onto an Elasticsearch index.
type Index struct {
	Name string
	// SortFields maps a record field to the field sorted on, typically a
	// lowercase-normalized keyword subfield.
	SortFields map[string]string
}

func (i Index) sortField(field string) string {
	if f, ok := i.SortFields[field]; ok {
		return f
	}
	return field
}

// DefaultIndexes keys indexes by catalog name, using the catalog name as the
// index name.
func DefaultIndexes(placesIndex, programsIndex string) map[string]Index {
	if placesIndex == "" {
		placesIndex = catalog.Places.Name
	}
	if programsIndex == "" {
		programsIndex = catalog.Programs.Name
	}
	return map[string]Index{
		catalog.Places.Name:   {Name: placesIndex, SortFields: map[string]string{"name": "name.sort"}},
		catalog.Programs.Name: {Name: programsIndex, SortFields: map[string]string{"program_name": "program_name.sort"}},
	}
}

type Elasticsearch struct {
	client  *elasticsearch.Client
	indexes map[string]Index
}

func NewElasticsearch(client *elasticsearch.Client, indexes map[string]Index) *Elasticsearch {
	if indexes == nil {
		indexes = DefaultIndexes("", "")
	}
	return &Elasticsearch{client: client, indexes: indexes}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Elasticsearch) Find(ctx context.Context, q catalog.Query) ([]catalog.RawRecord, int, error) {
	idx, ok := e.indexes[q.Catalog.Name]
	if !ok {
		return nil, 0, fmt.Errorf("no index for catalog %q", q.Catalog.Name)
	}

	body, err := json.Marshal(searchBody(idx, q))
	if err != nil {
		return nil, 0, fmt.Errorf("encode search body: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{idx.Name},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, 0, fmt.Errorf("search %s: %w", idx.Name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("search %s failed: %s", idx.Name, res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	records := make([]catalog.RawRecord, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		var r catalog.RawRecord
		dec := json.NewDecoder(bytes.NewReader(hit.Source))
		dec.UseNumber()
		if err := dec.Decode(&r); err != nil {
			return nil, 0, fmt.Errorf("decode hit %s: %w", hit.ID, err)
		}
		records = append(records, r)
	}
	return records, sr.Hits.Total.Value, nil
}

func searchBody(idx Index, q catalog.Query) map[string]interface{} {
	body := map[string]interface{}{
		"query":            buildESQuery(q.Where),
		"from":             q.Window.Offset,
		"size":             q.Window.Limit,
		"track_total_hits": true,
	}

	if len(q.OrderBy) > 0 {
		sorts := make([]interface{}, 0, len(q.OrderBy))
		for _, k := range q.OrderBy {
			order := "asc"
			if k.Descending {
				order = "desc"
			}
			sorts = append(sorts, map[string]interface{}{
				idx.sortField(k.Field): map[string]interface{}{"order": order, "missing": "_last"},
			})
		}
		body["sort"] = sorts
	}
	return body
}

func buildESQuery(where catalog.Predicate) map[string]interface{} {
	if len(where) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	filters := make([]interface{}, 0, len(where))
	for _, g := range where {
		should := make([]interface{}, 0, len(g))
		for _, c := range g {
			switch c.Op {
			case catalog.OpEquals:
				should = append(should, map[string]interface{}{
					"term": map[string]interface{}{c.Field: c.Value},
				})
			case catalog.OpContains:
				should = append(should, map[string]interface{}{
					"wildcard": map[string]interface{}{
						c.Field: map[string]interface{}{
							"value":            "*" + escapeWildcard(c.Value) + "*",
							"case_insensitive": true,
						},
					},
				})
			}
		}
		filters = append(filters, map[string]interface{}{
			"bool": map[string]interface{}{"should": should, "minimum_should_match": 1},
		})
	}
	return map[string]interface{}{"bool": map[string]interface{}{"filter": filters}}
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}

// indexSettings is the mapping EnsureIndex creates. Text fields are keywords
// so wildcard queries see the whole value; display fields carry a lowercase
// sort subfield.
const indexSettings = `{
  "settings": {
    "analysis": {
      "normalizer": {
        "lowercase": {"type": "custom", "filter": ["lowercase"]}
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      {"strings": {"match_mapping_type": "string", "mapping": {"type": "keyword"}}}
    ],
    "properties": {
      "id": {"type": "long"},
      "slug": {"type": "keyword"},
      "type": {"type": "keyword"},
      "name": {"type": "keyword", "fields": {"sort": {"type": "keyword", "normalizer": "lowercase"}}},
      "program_name": {"type": "keyword", "fields": {"sort": {"type": "keyword", "normalizer": "lowercase"}}},
      "metrics": {"type": "object", "enabled": false},
      "scores": {"type": "object", "enabled": false},
      "created_at": {"type": "date"},
      "updated_at": {"type": "date"}
    }
  }
}`

// EnsureIndex creates the index behind catalogName when it does not exist.
func (e *Elasticsearch) EnsureIndex(ctx context.Context, catalogName string) error {
	idx, ok := e.indexes[catalogName]
	if !ok {
		return fmt.Errorf("no index for catalog %q", catalogName)
	}

	res, err := esapi.IndicesExistsRequest{Index: []string{idx.Name}}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("check index %s: %w", idx.Name, err)
	}
	drain(res)
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{
		Index: idx.Name,
		Body:  strings.NewReader(indexSettings),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", idx.Name, err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("create index %s failed: %s", idx.Name, res.String())
	}
	return nil
}

// Index writes records into the catalog's index, keyed by their id.
func (e *Elasticsearch) Index(ctx context.Context, catalogName string, records ...catalog.RawRecord) error {
	idx, ok := e.indexes[catalogName]
	if !ok {
		return fmt.Errorf("no index for catalog %q", catalogName)
	}

	for i, r := range records {
		doc, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		req := esapi.IndexRequest{
			Index:   idx.Name,
			Body:    bytes.NewReader(doc),
			Refresh: "wait_for",
		}
		if id, ok := fieldText(r, "id"); ok {
			if _, err := strconv.ParseInt(id, 10, 64); err == nil {
				req.DocumentID = id
			}
		}

		res, err := req.Do(ctx, e.client)
		if err != nil {
			return fmt.Errorf("index record %d: %w", i, err)
		}
		failed := res.IsError()
		status := res.String()
		drain(res)
		if failed {
			return fmt.Errorf("index record %d failed: %s", i, status)
		}
	}
	return nil
}

func drain(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}
}
