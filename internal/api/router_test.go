package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcl-forecast/internal/api/models"
	"dcl-forecast/internal/config"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/logger"
	"dcl-forecast/internal/model"
	"dcl-forecast/internal/storage"
)

// stubSources returns constant frames on the EFA grid of each request.
type stubSources struct {
	failFR bool
}

func constant(r efa.DateRange, value float64, columns ...string) *model.Frame {
	index := efa.Index(r)
	out := model.NewFrame(index, columns...)
	for _, c := range columns {
		for i := range index {
			out.Set(c, i, value)
		}
	}
	return out
}

func (s *stubSources) Margins(_ context.Context, r efa.DateRange) model.SourceResult {
	return model.Succeeded("margins", constant(r, 1, "negative_reserve"))
}

func (s *stubSources) Demand(_ context.Context, r efa.DateRange) model.SourceResult {
	return model.Succeeded("demand", constant(r, 2, "forecastdemand_mean"))
}

func (s *stubSources) BalancingReserve(_ context.Context, r efa.DateRange) model.SourceResult {
	return model.Succeeded("balancing_reserve", constant(r, 3, "pbr_price_mean"))
}

func (s *stubSources) FrequencyResponse(_ context.Context, r efa.DateRange) model.SourceResult {
	if s.failFR {
		return model.Failed("frequency_response", model.StatusTransportFailure, errors.New("timeout"), "dcl_price", "drl_price")
	}
	return model.Succeeded("frequency_response", constant(r, 4, "dcl_price", "drl_price"))
}

var fixedNow = time.Date(2025, 6, 11, 15, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T, src *stubSources) (*gin.Engine, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Training.LookbackDays = 7
	store := storage.NewMemoryStore()
	router, features := NewRouter(Deps{
		Config:  cfg,
		Sources: src,
		Clock:   efa.MustClock(efa.DefaultZone),
		Store:   store,
		Log:     logger.Discard(),
	})
	features.WithNow(func() time.Time { return fixedNow })
	return router, store
}

func do(router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	w := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/features", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestEFAIndex(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	w := do(router, http.MethodGet, "/api/v1/efa/index?start_date=2025-06-12", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.EFAIndexResponse](t, w)
	assert.Equal(t, "Europe/London", resp.Timezone)
	require.Len(t, resp.Blocks, 6)
	assert.Equal(t, "2025-06-11T23:00:00", resp.Blocks[0].StartLocal)
	assert.Equal(t, time.Date(2025, 6, 11, 22, 0, 0, 0, time.UTC), resp.Blocks[0].StartUTC.UTC())
	assert.Equal(t, 6, resp.Blocks[5].Block)
	assert.Equal(t, "2025-06-12", resp.Blocks[5].TradingDate)
}

func TestEFAIndex_Invalid(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	for _, target := range []string{
		"/api/v1/efa/index",
		"/api/v1/efa/index?start_date=12/06/2025",
		"/api/v1/efa/index?start_date=2025-06-12&end_date=2025-06-10",
		"/api/v1/efa/index?start_date=2020-01-01&end_date=2025-01-01",
	} {
		w := do(router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestEFAWindows(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	w := do(router, http.MethodGet, "/api/v1/efa/windows?start_date=2025-06-12&end_date=2025-06-13", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.WindowsResponse](t, w)
	assert.Equal(t, "2025-06-11", resp.QueryFrom)
	assert.Equal(t, "2025-06-14", resp.QueryTo)
	assert.Equal(t, "2025-06-11T23:00:00", resp.IndexStart)
	assert.Equal(t, "2025-06-13T19:00:00", resp.IndexEnd)
	assert.Equal(t, "2025-06-13T22:30:00", resp.SettlementEnd)
	assert.Equal(t, 12, resp.Blocks)
	assert.Equal(t, 96, resp.Settlements)
}

func TestDatasets(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	w := do(router, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":4`)
}

func TestFeatureRunLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})

	w := do(router, http.MethodPost, "/api/v1/features", models.FeaturesRequest{
		StartDate: "2025-06-12",
		EndDate:   "2025-06-12",
		Features:  models.FeaturesOverride{Temporal: []string{"hour"}},
		Save:      true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.DatasetResponse](t, w)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, storage.KindFeatures, created.Kind)
	assert.Len(t, created.Rows, 6)
	assert.Contains(t, created.Columns, "hour")
	assert.NotContains(t, created.Columns, "working_day")
	assert.Equal(t, 1.0, *created.Rows[0].Features["negative_reserve"])

	w = do(router, http.MethodGet, "/api/v1/features/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	run := decode[storage.Run](t, w)
	assert.Equal(t, created.ID, run.ID.String())
	assert.Equal(t, 6, run.RowCount)
	assert.NotEmpty(t, run.Records)

	w = do(router, http.MethodGet, "/api/v1/features", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.RunListResponse](t, w).Count)

	w = do(router, http.MethodDelete, "/api/v1/features/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(router, http.MethodGet, "/api/v1/features/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/api/v1/features/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRun_Training(t *testing.T) {
	router, store := newTestRouter(t, &stubSources{})
	w := do(router, http.MethodPost, "/api/v1/features", models.FeaturesRequest{
		StartDate: "2025-06-10",
		EndDate:   "2025-06-11",
		Kind:      storage.KindTraining,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.DatasetResponse](t, w)
	assert.Equal(t, "dcl_price", resp.Target)
	assert.Len(t, resp.Rows, 12)
	assert.Equal(t, 4.0, *resp.Rows[0].Target)

	runs, _ := store.ListRuns(context.Background(), 0)
	assert.Empty(t, runs, "unsaved runs are not stored")
}

func TestCreateRun_Invalid(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	cases := map[string]any{
		"missing dates": map[string]string{},
		"bad kind":      models.FeaturesRequest{StartDate: "2025-06-12", EndDate: "2025-06-12", Kind: "prediction"},
		"bad lag":       models.FeaturesRequest{StartDate: "2025-06-12", EndDate: "2025-06-12", Features: models.FeaturesOverride{Lags: map[string][]int{"dcl_price": {-6}}}},
		"bad temporal":  models.FeaturesRequest{StartDate: "2025-06-12", EndDate: "2025-06-12", Features: models.FeaturesOverride{Temporal: []string{"season"}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/v1/features", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestPrediction_DefaultsToTomorrow(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	w := do(router, http.MethodGet, "/api/v1/prediction", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.DatasetResponse](t, w)
	assert.Equal(t, storage.KindPrediction, resp.Kind)
	assert.Equal(t, "2025-06-12", resp.StartDate)
	assert.Empty(t, resp.Target)
	assert.Len(t, resp.Rows, 6)
}

func TestPrediction_Formats(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})

	w := do(router, http.MethodGet, "/api/v1/prediction?date=2025-06-20&format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "prediction_2025-06-20_2025-06-20.csv")
	assert.Len(t, strings.Split(strings.TrimSpace(w.Body.String()), "\n"), 7)

	w = do(router, http.MethodGet, "/api/v1/prediction?date=2025-06-20&format=parquet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PAR1")))

	w = do(router, http.MethodGet, "/api/v1/prediction?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/v1/prediction?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTraining(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	w := do(router, http.MethodGet, "/api/v1/training?end=2025-06-12", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.DatasetResponse](t, w)
	assert.Equal(t, "2025-06-05", resp.StartDate)
	assert.Equal(t, "2025-06-12", resp.EndDate)
	assert.Len(t, resp.Rows, 8*6)
}

func TestTraining_SourceUnavailable(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{failFR: true})
	w := do(router, http.MethodGet, "/api/v1/training?end=2025-06-12", nil)
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "SOURCE_UNAVAILABLE", resp.Error.Code)
	assert.Equal(t, "frequency_response", resp.Error.Details["source"])
	assert.Equal(t, "transport_failure", resp.Error.Details["status"])
}

func TestNoRoute(t *testing.T) {
	router, _ := newTestRouter(t, &stubSources{})
	w := do(router, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
