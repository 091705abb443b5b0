package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/watkajtys/earthquake-sub007/internal/adapter/http"
	"github.com/watkajtys/earthquake-sub007/internal/backfill"
	"github.com/watkajtys/earthquake-sub007/internal/domain"
	"github.com/watkajtys/earthquake-sub007/internal/monitor"
	"github.com/watkajtys/earthquake-sub007/internal/proxy"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockProxy struct {
	resp     proxy.Response
	err      error
	gotKey   string
	gotURL   string
	requests int
}

func (m *mockProxy) Serve(_ context.Context, cacheKey, apiURL string) (proxy.Response, error) {
	m.requests++
	m.gotKey, m.gotURL = cacheKey, apiURL
	if apiURL == "" {
		return proxy.Response{}, &domain.Error{Kind: domain.KindConfiguration, Message: "Missing apiUrl query parameter"}
	}
	return m.resp, m.err
}

type mockBackfill struct {
	got backfill.Range
	res backfill.Result
	err error
}

func (m *mockBackfill) Run(_ context.Context, r backfill.Range) (backfill.Result, error) {
	m.got = r
	return m.res, m.err
}

type mockOverview struct {
	snap         monitor.Snapshot
	monthlyCalls int
}

func (m *mockOverview) Snapshot() monitor.Snapshot { return m.snap }
func (m *mockOverview) LoadMonthly(_ context.Context) {
	m.monthlyCalls++
	m.snap.MonthlyLoaded = true
}

type mockRecords struct {
	records []domain.EarthquakeRecord
	err     error
	since   int64
	limit   int
}

func (m *mockRecords) Get(_ context.Context, id string) (domain.EarthquakeRecord, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.EarthquakeRecord{}, domain.ErrNotFound
}

func (m *mockRecords) Recent(_ context.Context, since int64, limit int) ([]domain.EarthquakeRecord, error) {
	m.since, m.limit = since, limit
	return m.records, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(svc httpadapter.Services) *httpadapter.Server {
	return httpadapter.NewServer(":0", svc, discardLogger())
}

func do(t *testing.T, srv http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(httpadapter.Services{}), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(t, newTestServer(httpadapter.Services{Ready: &mockReadiness{}}), http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzWithoutCheckersIsReady(t *testing.T) {
	rec := do(t, newTestServer(httpadapter.Services{}), http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(httpadapter.Services{Ready: &mockReadiness{err: fmt.Errorf("not ready yet")}})
	rec := do(t, srv, http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAllReady(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, httpadapter.AllReady().CheckReadiness(ctx))
	assert.NoError(t, httpadapter.AllReady(&mockReadiness{}, nil).CheckReadiness(ctx))

	err := httpadapter.AllReady(
		&mockReadiness{},
		httpadapter.ReadinessFunc(func(context.Context) error { return errors.New("db down") }),
		&mockReadiness{err: errors.New("never reached")},
	).CheckReadiness(ctx)
	assert.EqualError(t, err, "db down")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(httpadapter.Services{}), http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUnconfiguredRoutesReturn404(t *testing.T) {
	rec := do(t, newTestServer(httpadapter.Services{}), http.MethodGet, "/api/usgs-proxy?apiUrl=x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- proxy ---

func TestProxy_PassesBodyThroughWithCacheControl(t *testing.T) {
	p := &mockProxy{resp: proxy.Response{
		Status:       http.StatusOK,
		ContentType:  "application/json",
		CacheControl: "s-maxage=600",
		Body:         []byte(`{"type":"FeatureCollection","features":[]}`),
	}}
	upstream := "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_day.geojson"
	rec := do(t, newTestServer(httpadapter.Services{Proxy: p}), http.MethodGet, proxy.CacheKey(upstream))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s-maxage=600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, rec.Body.String())
	assert.Equal(t, upstream, p.gotURL)
	assert.Equal(t, proxy.CacheKey(upstream), p.gotKey)
}

func TestProxy_CachedResponseHeader(t *testing.T) {
	p := &mockProxy{resp: proxy.Response{Status: 200, ContentType: "application/json", CacheControl: "s-maxage=600", Body: []byte(`{}`), Cached: true}}
	rec := do(t, newTestServer(httpadapter.Services{Proxy: p}), http.MethodGet, "/api/usgs-proxy?apiUrl=https%3A%2F%2Fx")

	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestProxy_MissingAPIURL(t *testing.T) {
	rec := do(t, newTestServer(httpadapter.Services{Proxy: &mockProxy{}}), http.MethodGet, "/api/usgs-proxy")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, body, "source")
}

func TestProxy_UpstreamStatusPropagated(t *testing.T) {
	p := &mockProxy{err: &domain.Error{Kind: domain.KindUpstreamStatus, Status: 404, Message: "Error fetching data from USGS API: 404 Not Found"}}
	rec := do(t, newTestServer(httpadapter.Services{Proxy: p}), http.MethodGet, "/api/usgs-proxy?apiUrl=https%3A%2F%2Fx")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Error fetching data from USGS API: 404 Not Found", body["message"])
	assert.Equal(t, "usgs-proxy-handler", body["source"])
	assert.InDelta(t, 404, body["upstream_status"], 0)
}

func TestProxy_NetworkFailure(t *testing.T) {
	p := &mockProxy{err: &domain.Error{Kind: domain.KindUpstreamNetwork, Message: "connection reset"}}
	rec := do(t, newTestServer(httpadapter.Services{Proxy: p}), http.MethodGet, "/api/usgs-proxy?apiUrl=https%3A%2F%2Fx")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "USGS API fetch failed: connection reset", body["message"])
	assert.Equal(t, "usgs-proxy-handler", body["source"])
}

// --- backfill ---

func TestBackfill_Success(t *testing.T) {
	b := &mockBackfill{res: backfill.Result{Message: "ok", StartDate: "2024-01-01", EndDate: "2024-01-02", Fetched: 500, Upserted: 480, Errors: 20}}
	rec := do(t, newTestServer(httpadapter.Services{Backfill: b}), http.MethodGet, "/api/batch-usgs-fetch?startDate=2024-01-01&endDate=2024-01-02")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"ok","startDate":"2024-01-01","endDate":"2024-01-02","fetched":500,"upserted":480,"errors":20}`, rec.Body.String())
	assert.Equal(t, 2, b.got.Days())
}

func TestBackfill_InvalidDates(t *testing.T) {
	for _, target := range []string{
		"/api/batch-usgs-fetch",
		"/api/batch-usgs-fetch?startDate=2024-01-01",
		"/api/batch-usgs-fetch?startDate=yesterday&endDate=2024-01-01",
		"/api/batch-usgs-fetch?startDate=2024-02-01&endDate=2024-01-01",
	} {
		b := &mockBackfill{}
		rec := do(t, newTestServer(httpadapter.Services{Backfill: b}), http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotEmpty(t, decode(t, rec)["message"], target)
	}
}

func TestBackfill_RunFailure(t *testing.T) {
	b := &mockBackfill{err: &domain.Error{Kind: domain.KindUpstreamNetwork, Message: "no route to host"}}
	rec := do(t, newTestServer(httpadapter.Services{Backfill: b}), http.MethodGet, "/api/batch-usgs-fetch?startDate=2024-01-01&endDate=2024-01-01")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "no route to host")
}

func TestBackfill_WithoutDatabase(t *testing.T) {
	rec := do(t, newTestServer(httpadapter.Services{}), http.MethodGet, "/api/batch-usgs-fetch?startDate=2024-01-01&endDate=2024-01-02")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Database not configured", decode(t, rec)["message"])
}

// --- overview ---

func TestOverview(t *testing.T) {
	o := &mockOverview{snap: monitor.Snapshot{Error: "Daily data error: x.", InitialLoadComplete: true}}
	srv := newTestServer(httpadapter.Services{Overview: o})

	rec := do(t, srv, http.MethodGet, "/api/overview")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Daily data error: x.", body["error"])
	assert.Equal(t, true, body["initialLoadComplete"])

	rec = do(t, srv, http.MethodPost, "/api/overview/monthly")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, o.monthlyCalls)
	assert.Equal(t, true, decode(t, rec)["hasAttemptedMonthlyLoad"])
}

// --- records ---

func sampleRecords() []domain.EarthquakeRecord {
	return []domain.EarthquakeRecord{
		{ID: "big", EventTime: 3000, Magnitude: 5.2, Place: "A", RawFeature: json.RawMessage(`{}`)},
		{ID: "rich", EventTime: 2000, Magnitude: 2.0, Place: "B", RawFeature: json.RawMessage(`{"properties":{"products":{"moment-tensor":[{}]}}}`)},
		{ID: "small", EventTime: 1000, Magnitude: 1.1, Place: "C", RawFeature: json.RawMessage(`not json`)},
	}
}

func TestListRecords(t *testing.T) {
	rr := &mockRecords{records: sampleRecords()}
	rec := do(t, newTestServer(httpadapter.Services{Records: rr}), http.MethodGet, "/api/earthquakes?since=500&limit=5000")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(500), rr.since)
	assert.Equal(t, 1000, rr.limit, "limit is capped")

	var body struct {
		Earthquakes []struct {
			ID          string `json:"id"`
			Significant bool   `json:"significant"`
		} `json:"earthquakes"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Count)
	assert.True(t, body.Earthquakes[0].Significant)
	assert.True(t, body.Earthquakes[1].Significant)
	assert.False(t, body.Earthquakes[2].Significant)
}

func TestListRecords_SignificantOnly(t *testing.T) {
	rr := &mockRecords{records: sampleRecords()}
	rec := do(t, newTestServer(httpadapter.Services{Records: rr}), http.MethodGet, "/api/earthquakes?significant=true")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 2, decode(t, rec)["count"], 0)
	assert.Equal(t, 100, rr.limit)
}

func TestListRecords_BadParams(t *testing.T) {
	srv := newTestServer(httpadapter.Services{Records: &mockRecords{}})
	for _, target := range []string{"/api/earthquakes?since=abc", "/api/earthquakes?limit=0", "/api/earthquakes?since=-5"} {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, target).Code, target)
	}
}

func TestListRecords_StoreFailure(t *testing.T) {
	srv := newTestServer(httpadapter.Services{Records: &mockRecords{err: errors.New("db down")}})
	assert.Equal(t, http.StatusInternalServerError, do(t, srv, http.MethodGet, "/api/earthquakes").Code)
}

func TestGetRecord(t *testing.T) {
	srv := newTestServer(httpadapter.Services{Records: &mockRecords{records: sampleRecords()}})

	rec := do(t, srv, http.MethodGet, "/api/earthquakes/rich")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "rich", body["id"])
	assert.Equal(t, true, body["significant"])

	rec = do(t, srv, http.MethodGet, "/api/earthquakes/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
