// internal/workers/catalog/compare-places/handler_test.go
package compareplaces

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meddir-workers/internal/catalog"
	"meddir-workers/internal/catalog/store"
	apperrors "meddir-workers/internal/common/errors"
	"meddir-workers/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	n := 0
	return &Config{
		Timeout: LoadConfig().Timeout,
		NewID: func() string {
			n++
			return fmt.Sprintf("cmp-%d", n)
		},
	}
}

func createTestHandler(t *testing.T, config *Config) *Handler {
	t.Helper()
	mem := store.NewMemory()
	mem.Put(catalog.Places.Name,
		catalog.RawRecord{"id": 1, "slug": "austin-res", "type": "residency", "name": "Austin Residency",
			"metrics": map[string]any{"tuition": 0}},
		catalog.RawRecord{"id": 2, "slug": "boston-med", "type": "school", "name": "Boston Medical",
			"metrics": map[string]any{"tuition": 65000, "col_index": 4200}},
		catalog.RawRecord{"id": 3, "slug": "ely-rot", "type": "rotation", "name": "Ely, NV Rotation"},
	)

	log := logger.NewTestLogger(t)
	return NewHandler(config, catalog.NewService(mem, log), log)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name           string
		input          *Input
		validateOutput func(t *testing.T, output *Output)
	}{
		{
			name:  "columns follow request order",
			input: &Input{Slugs: []string{"boston-med", "austin-res"}},
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, "cmp-1", output.ComparisonID)
				require.Len(t, output.Table.Columns, 2)
				assert.Equal(t, "boston-med", output.Table.Columns[0].Slug)
				assert.Equal(t, "austin-res", output.Table.Columns[1].Slug)

				require.Len(t, output.Table.Rows, 2)
				assert.Equal(t, "tuition", output.Table.Rows[0].Metric)
				assert.Equal(t, float64(65000), output.Table.Rows[0].Cells[0].Value)
				assert.Equal(t, float64(0), output.Table.Rows[0].Cells[1].Value)
				assert.True(t, output.Table.Rows[0].Cells[1].Available)

				assert.Equal(t, "col_index", output.Table.Rows[1].Metric)
				assert.False(t, output.Table.Rows[1].Cells[1].Available)
				assert.Empty(t, output.CSV)
			},
		},
		{
			name:  "csv export",
			input: &Input{Slugs: []string{"boston-med", "austin-res", "ely-rot"}, IncludeCSV: true},
			validateOutput: func(t *testing.T, output *Output) {
				expected := "metric,Boston Medical,Austin Residency,\"Ely, NV Rotation\"\n" +
					"tuition,65000,0,N/A\n" +
					"col_index,4200,N/A,N/A\n"
				assert.Equal(t, expected, output.CSV)

				parsed, err := catalog.ReadCSV(strings.NewReader(output.CSV))
				require.NoError(t, err)
				assert.Len(t, parsed.Rows, len(output.Table.Rows))
				assert.Equal(t, "Ely, NV Rotation", parsed.Columns[2].Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, createTestConfig())
			output, err := h.Execute(context.Background(), tt.input)
			require.NoError(t, err)
			tt.validateOutput(t, output)
		})
	}
}

func TestHandler_Execute_DefaultIDs(t *testing.T) {
	h := createTestHandler(t, &Config{Timeout: LoadConfig().Timeout})

	first, err := h.Execute(context.Background(), &Input{Slugs: []string{"boston-med", "austin-res"}})
	require.NoError(t, err)
	second, err := h.Execute(context.Background(), &Input{Slugs: []string{"boston-med", "austin-res"}})
	require.NoError(t, err)

	_, err = uuid.Parse(first.ComparisonID)
	assert.NoError(t, err)
	assert.NotEqual(t, first.ComparisonID, second.ComparisonID)
	assert.Equal(t, first.Table, second.Table)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name          string
		input         *Input
		expectCode    apperrors.ErrorCode
		expectMissing []string
	}{
		{name: "nil input", input: nil, expectCode: apperrors.ErrCodeInvalidInput},
		{name: "missing slugs", input: &Input{}, expectCode: apperrors.ErrCodeValidationFailed},
		{name: "single place", input: &Input{Slugs: []string{"boston-med"}}, expectCode: apperrors.ErrCodeValidationFailed},
		{name: "six places", input: &Input{Slugs: []string{"a", "b", "c", "d", "e", "f"}}, expectCode: apperrors.ErrCodeValidationFailed},
		{name: "duplicate", input: &Input{Slugs: []string{"boston-med", "boston-med"}}, expectCode: apperrors.ErrCodeValidationFailed},
		{
			name:          "unknown slugs listed in request order",
			input:         &Input{Slugs: []string{"zeta", "boston-med", "alpha"}},
			expectCode:    apperrors.ErrCodePlaceNotFound,
			expectMissing: []string{"zeta", "alpha"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, createTestConfig())
			output, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, output)
			assert.True(t, apperrors.HasCode(err, tt.expectCode), err.Error())

			if tt.expectMissing != nil {
				stdErr, _ := apperrors.AsStandard(err)
				assert.Equal(t, tt.expectMissing, stdErr.Metadata["slugs"])
			}
		})
	}
}

// ==========================
// Benchmark Tests
// ==========================

func BenchmarkHandler_Execute(b *testing.B) {
	mem := store.NewMemory()
	for i := 0; i < 5; i++ {
		mem.Put(catalog.Places.Name, catalog.RawRecord{
			"id": i, "slug": fmt.Sprintf("p%d", i), "name": fmt.Sprintf("Place %d", i),
			"metrics": map[string]any{"tuition": i * 1000, "col_index": 3000},
		})
	}
	h := NewHandler(LoadConfig(), catalog.NewService(mem, logger.NewNoOpLogger()), logger.NewNoOpLogger())
	input := &Input{Slugs: []string{"p0", "p1", "p2", "p3", "p4"}, IncludeCSV: true}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = h.Execute(context.Background(), input)
	}
}
