// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package derive

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/derive/services/derive/catalog"
	"github.com/AleutianAI/derive/services/derive/library"
	"github.com/AleutianAI/derive/services/derive/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

func newTestService(t *testing.T) *Service {
	t.Helper()
	ops, err := catalog.ByName("split", "parse", "sum")
	require.NoError(t, err)
	lib, err := library.New(ops, catalog.Combinators())
	require.NoError(t, err)
	_, err = lib.Seed(2)
	require.NoError(t, err)

	st, err := store.Open(store.InMemoryConfig(), lib)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return NewService(lib, st, WithMaxGenerations(5))
}

func newTestRouter(t *testing.T, svc *Service, rps float64, burst int) *gin.Engine {
	t.Helper()
	return NewRouter(svc, RouterConfig{
		ServiceName: "derive-test",
		RateLimit:   rps,
		Burst:       burst,
		Metrics:     promhttp.Handler(),
	})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createSumOfLines(t *testing.T, router http.Handler) ProgramResponse {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/v1/derive/programs",
		gin.H{"input": "1\n2\n3", "output": 6})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ProgramResponse](t, rec)
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestHealthAndOps(t *testing.T) {
	router := newTestRouter(t, newTestService(t), 100, 100)

	rec := do(t, router, http.MethodGet, "/v1/derive/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","ops":5}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/v1/derive/ops", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Ops []OpInfo `json:"ops"`
	}](t, rec)
	require.Len(t, body.Ops, 5)
	assert.Equal(t, OpInfo{Name: "split", Signature: "(string, string) -> list<string>"}, body.Ops[0])
	assert.Equal(t, "map(parse)", body.Ops[4].Name)
	assert.Equal(t, 1, body.Ops[4].Depth)
}

func TestCreateGetRun(t *testing.T) {
	router := newTestRouter(t, newTestService(t), 100, 100)

	created := createSumOfLines(t, router)
	assert.Equal(t, `sum(map(parse)(split(input, "\n")))`, created.Expression)
	assert.Equal(t, 3, created.Generations)
	require.NotNil(t, created.Output)
	assert.Equal(t, 6.0, created.Output.JSON)
	assert.Equal(t, "v0 = input", created.Steps[0])

	rec := do(t, router, http.MethodGet, "/v1/derive/programs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ProgramResponse](t, rec)
	assert.Equal(t, created.Expression, got.Expression)
	assert.Equal(t, created.Steps, got.Steps)

	rec = do(t, router, http.MethodPost, "/v1/derive/programs/"+created.ID+"/run", gin.H{"input": "4\n5"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"output":{"json":9,"formatted":"9"}}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/v1/derive/programs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Programs []ProgramResponse `json:"programs"`
	}](t, rec)
	require.Len(t, list.Programs, 1)
	assert.Equal(t, created.ID, list.Programs[0].ID)
	assert.Empty(t, list.Programs[0].Steps)
}

func TestRun_NonJSONOutput(t *testing.T) {
	router := newTestRouter(t, newTestService(t), 100, 100)
	created := createSumOfLines(t, router)

	rec := do(t, router, http.MethodPost, "/v1/derive/programs/"+created.ID+"/run", gin.H{"input": "a\nb"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"output":{"formatted":"NaN"}}`, rec.Body.String())
}

func TestRun_ReplayFailed(t *testing.T) {
	router := newTestRouter(t, newTestService(t), 100, 100)
	created := createSumOfLines(t, router)

	rec := do(t, router, http.MethodPost, "/v1/derive/programs/"+created.ID+"/run", gin.H{"input": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodeReplayFailed, decode[ErrorResponse](t, rec).Code)
}

func TestCreate_Errors(t *testing.T) {
	router := newTestRouter(t, newTestService(t), 100, 100)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing output", gin.H{"input": "1"}, http.StatusBadRequest, CodeInvalidRequest},
		{"budget too large", gin.H{"input": "1", "output": 1, "max_generations": 1000}, http.StatusBadRequest, CodeInvalidRequest},
		{"exhausted", gin.H{"input": "abc", "output": 5, "max_generations": 2}, http.StatusUnprocessableEntity, CodeSearchExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/v1/derive/programs", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestGetAndDelete_Errors(t *testing.T) {
	router := newTestRouter(t, newTestService(t), 100, 100)

	rec := do(t, router, http.MethodGet, "/v1/derive/programs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/derive/programs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, rec).Code)

	created := createSumOfLines(t, router)
	rec = do(t, router, http.MethodDelete, "/v1/derive/programs/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodDelete, "/v1/derive/programs/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, newTestService(t), 0.001, 1)

	createSumOfLines(t, router)
	rec := do(t, router, http.MethodPost, "/v1/derive/programs", gin.H{"input": "1\n2\n3", "output": 6})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Reads are not limited.
	rec = do(t, router, http.MethodGet, "/v1/derive/programs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, newTestService(t), 100, 100)
	createSumOfLines(t, router)

	rec := do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `derive_search_total{outcome="found"}`)
}

func TestService_BudgetClamp(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, 5, svc.MaxGenerations())

	// A budget over the ceiling is clamped, not rejected.
	rec, err := svc.Derive(t.Context(), "1\n2\n3", 6.0, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Meta.Generations)
}
