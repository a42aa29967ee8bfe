package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meddir-workers/internal/catalog"
)

// ==========================
// Test Helper Functions
// ==========================

type capturedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// fakeTransport answers every request with the next queued response.
type fakeTransport struct {
	responses []*http.Response
	requests  []capturedRequest
	err       error
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	captured := capturedRequest{Method: req.Method, Path: req.URL.Path}
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &captured.Body)
	}
	f.requests = append(f.requests, captured)

	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return esResponse(http.StatusInternalServerError, `{"error":"no response queued"}`), nil
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	return res, nil
}

func esResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header: http.Header{
			"Content-Type":      []string{"application/json"},
			"X-Elastic-Product": []string{"Elasticsearch"},
		},
		Body: io.NopCloser(strings.NewReader(body)),
	}
}

func newElasticsearchStore(t *testing.T, ft *fakeTransport) *Elasticsearch {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://localhost:9200"},
		Transport: ft,
	})
	require.NoError(t, err)
	return NewElasticsearch(client, DefaultIndexes("med-places", ""))
}

const searchHits = `{
  "took": 3,
  "hits": {
    "total": {"value": 42, "relation": "eq"},
    "hits": [
      {"_id": "1", "_source": {"id": 1, "slug": "alpha", "name": "Alpha", "tags": ["urban"], "metrics": {"tuition": 30000}}},
      {"_id": "2", "_source": {"id": 2, "slug": "beta", "name": "Beta", "metrics": "{\"col_index\": 3900}"}}
    ]
  }
}`

// ==========================
// Core Functionality Tests
// ==========================

func TestElasticsearch_Find(t *testing.T) {
	ft := &fakeTransport{responses: []*http.Response{esResponse(http.StatusOK, searchHits)}}
	store := newElasticsearchStore(t, ft)

	q, err := catalog.BuildQuery(catalog.Places, catalog.Params{Search: "al*", Type: "school", Limit: intPtr(2), Offset: intPtr(4)})
	require.NoError(t, err)

	records, total, err := store.Find(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, 42, total)
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0]["slug"])
	assert.Equal(t, 30000.0, catalog.Normalize(records[0]).Metrics["tuition"])
	assert.Equal(t, 3900.0, catalog.Normalize(records[1]).Metrics["col_index"])

	require.Len(t, ft.requests, 1)
	req := ft.requests[0]
	assert.Equal(t, "/med-places/_search", req.Path)
	assert.Equal(t, 4.0, req.Body["from"])
	assert.Equal(t, 2.0, req.Body["size"])
	assert.Equal(t, true, req.Body["track_total_hits"])

	sorts := req.Body["sort"].([]interface{})
	require.Len(t, sorts, 2)
	assert.Contains(t, sorts[0], "name.sort")
	assert.Contains(t, sorts[1], "id")

	filters := req.Body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	require.Len(t, filters, 2)

	search := filters[0].(map[string]interface{})["bool"].(map[string]interface{})
	should := search["should"].([]interface{})
	require.Len(t, should, 3)
	wildcard := should[0].(map[string]interface{})["wildcard"].(map[string]interface{})["name"].(map[string]interface{})
	assert.Equal(t, `*al\**`, wildcard["value"])
	assert.Equal(t, true, wildcard["case_insensitive"])

	typeFilter := filters[1].(map[string]interface{})["bool"].(map[string]interface{})["should"].([]interface{})
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"type": "school"}}, typeFilter[0])
}

func TestElasticsearch_Find_MatchAll(t *testing.T) {
	ft := &fakeTransport{responses: []*http.Response{esResponse(http.StatusOK, `{"hits":{"total":{"value":0},"hits":[]}}`)}}
	store := newElasticsearchStore(t, ft)

	q, err := catalog.BuildQuery(catalog.Programs, catalog.Params{})
	require.NoError(t, err)

	records, total, err := store.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, total)

	assert.Equal(t, "/programs/_search", ft.requests[0].Path)
	assert.Contains(t, ft.requests[0].Body["query"], "match_all")
}

// ==========================
// Error Handling Tests
// ==========================

func TestElasticsearch_Find_Errors(t *testing.T) {
	q, err := catalog.BuildQuery(catalog.Places, catalog.Params{})
	require.NoError(t, err)

	tests := []struct {
		name string
		ft   *fakeTransport
	}{
		{name: "transport failure", ft: &fakeTransport{err: errors.New("connection refused")}},
		{name: "index missing", ft: &fakeTransport{responses: []*http.Response{
			esResponse(http.StatusNotFound, `{"error":{"type":"index_not_found_exception"},"status":404}`),
		}}},
		{name: "garbage body", ft: &fakeTransport{responses: []*http.Response{esResponse(http.StatusOK, `{"hits":`)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newElasticsearchStore(t, tt.ft)
			_, _, err := store.Find(context.Background(), q)
			assert.Error(t, err)
		})
	}
}

// ==========================
// Index management
// ==========================

func TestElasticsearch_EnsureIndex(t *testing.T) {
	t.Run("creates when missing", func(t *testing.T) {
		ft := &fakeTransport{responses: []*http.Response{
			esResponse(http.StatusNotFound, ``),
			esResponse(http.StatusOK, `{"acknowledged":true}`),
		}}
		store := newElasticsearchStore(t, ft)

		require.NoError(t, store.EnsureIndex(context.Background(), catalog.Places.Name))
		require.Len(t, ft.requests, 2)
		assert.Equal(t, http.MethodHead, ft.requests[0].Method)
		assert.Equal(t, http.MethodPut, ft.requests[1].Method)
		assert.Equal(t, "/med-places", ft.requests[1].Path)
		assert.Contains(t, ft.requests[1].Body, "mappings")
	})

	t.Run("keeps existing", func(t *testing.T) {
		ft := &fakeTransport{responses: []*http.Response{esResponse(http.StatusOK, ``)}}
		store := newElasticsearchStore(t, ft)

		require.NoError(t, store.EnsureIndex(context.Background(), catalog.Places.Name))
		assert.Len(t, ft.requests, 1)
	})

	t.Run("unknown catalog", func(t *testing.T) {
		store := newElasticsearchStore(t, &fakeTransport{})
		assert.Error(t, store.EnsureIndex(context.Background(), "hospitals"))
	})
}

func TestElasticsearch_Index(t *testing.T) {
	ft := &fakeTransport{responses: []*http.Response{
		esResponse(http.StatusCreated, `{"result":"created"}`),
		esResponse(http.StatusBadRequest, `{"error":"mapper_parsing_exception"}`),
	}}
	store := newElasticsearchStore(t, ft)

	err := store.Index(context.Background(), catalog.Places.Name,
		catalog.RawRecord{"id": 7, "slug": "seven"},
		catalog.RawRecord{"id": 8, "slug": "eight"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")

	require.Len(t, ft.requests, 2)
	assert.Equal(t, "/med-places/_doc/7", ft.requests[0].Path)
	assert.Equal(t, "seven", ft.requests[0].Body["slug"])
}
