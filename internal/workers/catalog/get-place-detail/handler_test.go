// internal/workers/catalog/get-place-detail/handler_test.go
package getplacedetail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meddir-workers/internal/catalog"
	"meddir-workers/internal/catalog/store"
	apperrors "meddir-workers/internal/common/errors"
	"meddir-workers/internal/common/logger"
	"meddir-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) *Handler {
	t.Helper()
	mem := store.NewMemory()
	mem.Put(catalog.Places.Name,
		catalog.RawRecord{
			"id": 2, "slug": "boston-med", "type": "school", "name": "Boston Medical",
			"institution": "Boston University", "city": "Boston", "state": "MA",
			"tags":    []any{"urban", "research-heavy"},
			"metrics": map[string]any{"tuition": 65000, "col_index": 4200},
			"scores":  map[string]any{"quality_of_training": 9, "burnout": 7},
		},
		catalog.RawRecord{
			"id": 3, "slug": "ely-rot", "type": "rotation", "name": "Ely Rotation",
			"location_city": "Ely", "metrics": "{not json",
		},
	)

	log := logger.NewTestLogger(t)
	return NewHandler(LoadConfig(), catalog.NewService(mem, log), log)
}

type stubReader struct{ err error }

func (s stubReader) GetPlaceDetail(context.Context, string) (*models.PlaceDetail, error) {
	return nil, s.err
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name           string
		slug           string
		validateOutput func(t *testing.T, output *Output)
	}{
		{
			name: "full record",
			slug: "boston-med",
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, "Boston Medical", output.Place.Name)
				assert.Equal(t, "Boston", output.Place.Location.City)
				assert.Equal(t, catalog.DeriveGuide(output.Place), output.Guide)
				assert.Equal(t, catalog.DeriveProsCons(output.Place), output.ProsAndCons)
				assert.NotEmpty(t, output.ProsAndCons.Pros)
				assert.NotEmpty(t, output.ProsAndCons.Cons)
			},
		},
		{
			name: "malformed metrics still served",
			slug: "ely-rot",
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, "Ely", output.Place.Location.City)
				assert.Empty(t, output.Place.Metrics)
				assert.NotEmpty(t, output.Guide.Overview)
			},
		},
		{
			name: "surrounding whitespace is ignored",
			slug: "  boston-med ",
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, "boston-med", output.Place.Slug)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t)
			output, err := h.Execute(context.Background(), &Input{Slug: tt.slug})
			require.NoError(t, err)
			tt.validateOutput(t, output)
		})
	}
}

func TestHandler_Execute_Deterministic(t *testing.T) {
	h := createTestHandler(t)

	first, err := h.Execute(context.Background(), &Input{Slug: "boston-med"})
	require.NoError(t, err)
	second, err := h.Execute(context.Background(), &Input{Slug: "boston-med"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name       string
		input      *Input
		expectCode apperrors.ErrorCode
	}{
		{name: "nil input", input: nil, expectCode: apperrors.ErrCodeInvalidInput},
		{name: "missing slug", input: &Input{}, expectCode: apperrors.ErrCodeValidationFailed},
		{name: "blank slug", input: &Input{Slug: "   "}, expectCode: apperrors.ErrCodeValidationFailed},
		{name: "unknown slug", input: &Input{Slug: "nowhere"}, expectCode: apperrors.ErrCodePlaceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t)
			output, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, output)
			assert.True(t, apperrors.HasCode(err, tt.expectCode), err.Error())
		})
	}
}

func TestHandler_Execute_NotFoundNamesSlug(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), &Input{Slug: "nowhere"})
	stdErr, ok := apperrors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, []string{"nowhere"}, stdErr.Metadata["slugs"])
}

func TestHandler_Execute_Upstream(t *testing.T) {
	upstream := apperrors.NewUpstreamTimeoutError("get_place", context.DeadlineExceeded)
	h := NewHandler(LoadConfig(), stubReader{err: upstream}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{Slug: "boston-med"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
