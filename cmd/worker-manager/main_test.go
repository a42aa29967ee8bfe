package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRetryWithBackoff(t *testing.T) {
	log := zaptest.NewLogger(t)

	calls := 0
	err := retryWithBackoff(func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, 5, time.Millisecond, log, "store")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryWithBackoff(func() error {
		calls++
		return errors.New("connection refused")
	}, 2, time.Millisecond, log, "store")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "store failed after 2 attempts")
}

func TestReadyHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("unreachable") }

	tests := []struct {
		name           string
		zeebe          func(context.Context) error
		backend        map[string]error
		expectedCode   int
		expectedStatus string
	}{
		{
			name:           "all up",
			zeebe:          ok,
			backend:        map[string]error{"postgres": nil, "redis": nil},
			expectedCode:   http.StatusOK,
			expectedStatus: "ready",
		},
		{
			name:           "cache down degrades",
			zeebe:          ok,
			backend:        map[string]error{"postgres": nil, "redis": errors.New("dial tcp")},
			expectedCode:   http.StatusOK,
			expectedStatus: "degraded",
		},
		{
			name:           "store down",
			zeebe:          ok,
			backend:        map[string]error{"elasticsearch": errors.New("401"), "redis": errors.New("dial tcp")},
			expectedCode:   http.StatusServiceUnavailable,
			expectedStatus: "not_ready",
		},
		{
			name:           "broker down",
			zeebe:          down,
			backend:        map[string]error{},
			expectedCode:   http.StatusServiceUnavailable,
			expectedStatus: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := readyHandler(
				map[string]func(context.Context) error{"zeebe": tt.zeebe},
				func(context.Context) map[string]error {
					out := map[string]error{}
					for k, v := range tt.backend {
						out[k] = v
					}
					return out
				},
			)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedCode, rec.Code)
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedStatus, body.Status)
			assert.Len(t, body.Checks, len(tt.backend)+1)
		})
	}
}
