package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"couponbot/internal/domain"
	"couponbot/internal/storage"
)

const testAPIKey = "test-key"

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func setupServer(t *testing.T) (*Server, storage.Repository) {
	t.Helper()

	repo, err := storage.NewBadgerRepository(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, repo.Close())
	})

	return NewServer(":0", testAPIKey, repo, testLogger()), repo
}

func seed(t *testing.T, repo storage.Repository) {
	t.Helper()

	now := time.Now()
	records := []domain.CouponRecord{
		{ID: "a", Barcode: "1000000001", Store: domain.StorePayback, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "b", Barcode: "1000000002", Store: domain.StorePayback, CreatedAt: now.Add(-time.Hour)},
		{ID: "c", Barcode: "1000000003", Store: domain.StoreDM, CreatedAt: now},
	}
	require.NoError(t, repo.SaveBatch(context.Background(), records))
}

func get(t *testing.T, s *Server, path, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeCoupons(t *testing.T, rec *httptest.ResponseRecorder) couponsResponse {
	t.Helper()

	var resp couponsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth_NoAuthRequired(t *testing.T) {
	s, _ := setupServer(t)

	rec := get(t, s, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	s, _ := setupServer(t)

	rec := get(t, s, "/api/coupons", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, s, "/api/coupons", "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, s, "/api/coupons", testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAll(t *testing.T) {
	s, repo := setupServer(t)
	seed(t, repo)

	resp := decodeCoupons(t, get(t, s, "/api/coupons", testAPIKey))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Count)
	require.Len(t, resp.Coupons, 3)
	assert.Equal(t, "1000000003", resp.Coupons[0].Barcode, "newest first")
}

func TestListAll_EmptyStore(t *testing.T) {
	s, _ := setupServer(t)

	resp := decodeCoupons(t, get(t, s, "/api/coupons", testAPIKey))
	assert.True(t, resp.Success)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Coupons)
}

func TestListLatest(t *testing.T) {
	s, repo := setupServer(t)
	seed(t, repo)

	resp := decodeCoupons(t, get(t, s, "/api/coupons/latest?limit=2", testAPIKey))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "1000000003", resp.Coupons[0].Barcode)
	assert.Equal(t, "1000000002", resp.Coupons[1].Barcode)
}

func TestListLatest_InvalidLimit(t *testing.T) {
	s, _ := setupServer(t)

	rec := get(t, s, "/api/coupons/latest?limit=abc", testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, s, "/api/coupons/latest?limit=0", testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListByStore(t *testing.T) {
	s, repo := setupServer(t)
	seed(t, repo)

	resp := decodeCoupons(t, get(t, s, "/api/coupons/store/payback", testAPIKey))
	assert.Equal(t, 2, resp.Count)
	for _, c := range resp.Coupons {
		assert.Equal(t, domain.StorePayback, c.Store)
	}

	resp = decodeCoupons(t, get(t, s, "/api/coupons/store/lidl", testAPIKey))
	assert.Equal(t, 0, resp.Count)
}

func TestStats(t *testing.T) {
	s, repo := setupServer(t)
	seed(t, repo)

	rec := get(t, s, "/api/stats", testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Stats   struct {
			Total       int            `json:"total"`
			ByStore     map[string]int `json:"byStore"`
			LastUpdated *time.Time     `json:"lastUpdated"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Stats.Total)
	assert.Equal(t, map[string]int{"payback": 2, "dm": 1}, resp.Stats.ByStore)
	require.NotNil(t, resp.Stats.LastUpdated)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupServer(t)

	rec := get(t, s, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
