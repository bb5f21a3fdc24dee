package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChartSync/internal/domain/models"
	"ChartSync/internal/repository"
	"ChartSync/internal/services/freshness"
	"ChartSync/internal/usecase"
	"ChartSync/pkg/cache"
)

var (
	now     = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	bitcoin = models.Instrument{UID: "bitcoin", Code: "BTC", Name: "Bitcoin"}
	weekKey = models.ChartKey{Instrument: bitcoin, CurrencyCode: "usd", RangeType: models.RangeWeek1}
)

type stubProvider struct {
	mu     sync.Mutex
	points []models.Point
	err    error
}

func (p *stubProvider) ChartPoints(context.Context, models.ChartKey) ([]models.Point, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.points, p.err
}

type fixture struct {
	e        *echo.Echo
	store    *repository.CachePointStore
	locks    *cache.MemoryCache
	provider *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	resolver, err := repository.NewStaticInstrumentResolver([]models.Instrument{bitcoin})
	require.NoError(t, err)

	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mem.Close() })
	store := repository.NewCachePointStore(mem)
	provider := &stubProvider{}

	manager := usecase.NewChartManager(resolver, store, provider,
		freshness.NewEvaluator(freshness.DefaultPolicy()),
		usecase.WithClock(func() time.Time { return now }),
	)
	syncer := usecase.NewChartSyncer(manager, provider, usecase.WithSyncLocks(mem, time.Minute))

	e := echo.New()
	NewChartsEchoHandler(nil, manager, syncer, nil).RegisterRoutes(e)
	return &fixture{e: e, store: store, locks: mem, provider: provider}
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func hourlyPoints(last time.Time, n int) []models.Point {
	points := make([]models.Point, n)
	for i := range points {
		points[i] = models.Point{
			Timestamp: last.Add(-time.Duration(n-1-i) * time.Hour),
			Value:     decimal.NewFromInt(int64(100 + i)),
		}
	}
	return points
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) int {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
	return env.Status
}

func TestCurrentChart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Insert(context.Background(), weekKey, hourlyPoints(now.Add(-5*time.Hour), 3)))

	rec := f.do(http.MethodGet, "/api/charts/bitcoin?range=week1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ChartResponse
	assert.Equal(t, http.StatusOK, decode(t, rec, &resp))
	assert.Equal(t, "bitcoin", resp.CoinUID)
	assert.Equal(t, "usd", resp.Currency)
	assert.True(t, resp.Expired)
	require.Len(t, resp.Points, 3)
	assert.Equal(t, "102", resp.Points[2].Value)
}

func TestCurrentChartNotFound(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/charts/dogecoin?range=week1").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/charts/bitcoin?range=week1").Code)
}

func TestCurrentChartRejectsBadRange(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/charts/bitcoin?range=decade")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_ONEOF")
}

func TestFetchChart(t *testing.T) {
	f := newFixture(t)
	f.provider.points = hourlyPoints(now, 2)

	rec := f.do(http.MethodGet, "/api/charts/bitcoin/fetch?range=week1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ChartResponse
	decode(t, rec, &resp)
	assert.False(t, resp.Expired)
	assert.Len(t, resp.Points, 2)

	// fetching never writes
	stored, err := f.store.Points(context.Background(), weekKey)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestFetchChartErrors(t *testing.T) {
	f := newFixture(t)

	f.provider.points = nil
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/charts/bitcoin/fetch?range=week1").Code)

	f.provider.err = errors.New("503 from upstream")
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/charts/bitcoin/fetch?range=week1").Code)
}

func TestSyncChart(t *testing.T) {
	f := newFixture(t)
	f.provider.points = hourlyPoints(now, 4)

	rec := f.do(http.MethodPost, "/api/charts/bitcoin/sync?range=week1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp syncResponse
	decode(t, rec, &resp)
	assert.Equal(t, string(usecase.SyncUpdated), resp.Outcome)

	stored, err := f.store.Points(context.Background(), weekKey)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	rec = f.do(http.MethodGet, "/api/charts/bitcoin/last-sync?range=week1")
	require.Equal(t, http.StatusOK, rec.Code)
	var last models.LastSyncResponse
	decode(t, rec, &last)
	assert.True(t, last.Synced)
	require.NotNil(t, last.Timestamp)
	assert.True(t, now.Equal(*last.Timestamp))
}

func TestSyncChartInFlight(t *testing.T) {
	f := newFixture(t)
	ok, err := f.locks.TryLock(context.Background(), cache.LockKey("sync", weekKey.String()), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/charts/bitcoin/sync?range=week1").Code)
}

func TestSyncChartUnknownInstrument(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/charts/dogecoin/sync").Code)
}

func TestLastSyncNeverSynced(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/charts/bitcoin/last-sync")
	require.Equal(t, http.StatusOK, rec.Code)
	var last models.LastSyncResponse
	decode(t, rec, &last)
	assert.False(t, last.Synced)
	assert.Nil(t, last.Timestamp)
	assert.Equal(t, "today", last.Range)
}
