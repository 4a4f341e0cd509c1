package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
)

var testNow = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveLedger(models.NewInventoryLedger(models.BloodTypeONeg, testNow))

	rec := httptest.NewRecorder()
	NewRouter(reg, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bloodbank_available_units{blood_type="O-"} 0`)
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus int
		wantBody   healthResponse
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   healthResponse{Status: "ok"},
		},
		{
			name: "all healthy",
			checks: map[string]Check{
				"database": func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantBody:   healthResponse{Status: "ok", Checks: map[string]string{"database": "ok"}},
		},
		{
			name: "one failing",
			checks: map[string]Check{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("connection refused") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody: healthResponse{Status: "unavailable", Checks: map[string]string{
				"database": "ok",
				"redis":    "connection refused",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewRouter(prometheus.NewRegistry(), tt.checks, nil).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))

			var got healthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantBody, got)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(prometheus.NewRegistry(), nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
