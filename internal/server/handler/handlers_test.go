package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/price"
)

var testLogger = slog.New(slog.DiscardHandler)

type fakeDecisionStore struct {
	decisions []domain.Decision
	err       error
}

func (f *fakeDecisionStore) Insert(ctx context.Context, d domain.Decision, r *domain.Receipt) error {
	f.decisions = append(f.decisions, d)
	return f.err
}

func (f *fakeDecisionStore) ListRecent(ctx context.Context, agentID string, opts domain.ListOpts) ([]domain.Decision, error) {
	if f.err != nil {
		return nil, f.err
	}
	limit := opts.Limit
	if limit > len(f.decisions) {
		limit = len(f.decisions)
	}
	return f.decisions[:limit], nil
}

type fakeRiskStore struct {
	latest domain.RiskReport
	err    error
}

func (f *fakeRiskStore) Insert(ctx context.Context, r domain.RiskReport) error { return f.err }

func (f *fakeRiskStore) Latest(ctx context.Context, agentID string) (domain.RiskReport, error) {
	if f.err != nil {
		return domain.RiskReport{}, f.err
	}
	return f.latest, nil
}

func (f *fakeRiskStore) ListRecent(ctx context.Context, agentID string, opts domain.ListOpts) ([]domain.RiskReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.RiskReport{f.latest}, nil
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(testLogger)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
}

func TestDecisionListRecent(t *testing.T) {
	store := &fakeDecisionStore{decisions: []domain.Decision{
		{ID: "d1", AgentID: "agent-1", Action: domain.ActionHold},
		{ID: "d2", AgentID: "agent-1", Action: domain.ActionBorrowAndInvest},
	}}
	h := NewDecisionHandler("agent-1", store, nil, testLogger)

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/decisions/recent?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	items, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestDecisionListRecentStoreError(t *testing.T) {
	h := NewDecisionHandler("agent-1", &fakeDecisionStore{err: errors.New("boom")}, nil, testLogger)

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/decisions/recent", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestDecisionLatestFallsBackToStore(t *testing.T) {
	store := &fakeDecisionStore{decisions: []domain.Decision{
		{ID: "d9", AgentID: "agent-1", Action: domain.ActionHold},
	}}
	h := NewDecisionHandler("agent-1", store, nil, testLogger)

	rec := httptest.NewRecorder()
	h.Latest(rec, httptest.NewRequest(http.MethodGet, "/api/decisions/latest", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "d9", data["id"])
}

func TestDecisionLatestEmpty(t *testing.T) {
	h := NewDecisionHandler("agent-1", &fakeDecisionStore{}, nil, testLogger)

	rec := httptest.NewRecorder()
	h.Latest(rec, httptest.NewRequest(http.MethodGet, "/api/decisions/latest", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}

func TestRiskLatest(t *testing.T) {
	store := &fakeRiskStore{latest: domain.RiskReport{
		AgentID:     "agent-1",
		OverallRisk: 0.42,
		Timestamp:   time.Now().UTC(),
	}}
	h := NewRiskHandler("agent-1", store, testLogger)

	rec := httptest.NewRecorder()
	h.Latest(rec, httptest.NewRequest(http.MethodGet, "/api/risk/latest", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.42, data["overall_risk"], 1e-9)
}

func TestRiskLatestNotFound(t *testing.T) {
	h := NewRiskHandler("agent-1", &fakeRiskStore{err: domain.ErrNotFound}, testLogger)

	rec := httptest.NewRecorder()
	h.Latest(rec, httptest.NewRequest(http.MethodGet, "/api/risk/latest", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}

func TestPriceCurrent(t *testing.T) {
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":{"usd":45000},"ethereum":{"usd":2500}}`)
	}))
	defer gecko.Close()

	svc := price.NewService(price.Options{BaseURL: gecko.URL}, testLogger)
	h := NewPriceHandler(svc, testLogger)

	rec := httptest.NewRecorder()
	h.Current(rec, httptest.NewRequest(http.MethodGet, "/api/prices/current?symbols=BTC,ETH", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
}

func TestPriceCurrentUpstreamDown(t *testing.T) {
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gecko.Close()

	svc := price.NewService(price.Options{BaseURL: gecko.URL}, testLogger)
	h := NewPriceHandler(svc, testLogger)

	rec := httptest.NewRecorder()
	h.Current(rec, httptest.NewRequest(http.MethodGet, "/api/prices/current?symbols=BTC", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}

func TestPriceHistoryBadDays(t *testing.T) {
	svc := price.NewService(price.Options{BaseURL: "http://localhost:0"}, testLogger)
	h := NewPriceHandler(svc, testLogger)

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/prices/history?symbol=BTC&days=13", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}

func TestPriceCacheLifecycle(t *testing.T) {
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":{"usd":45000}}`)
	}))
	defer gecko.Close()

	svc := price.NewService(price.Options{BaseURL: gecko.URL}, testLogger)
	h := NewPriceHandler(svc, testLogger)

	rec := httptest.NewRecorder()
	h.Current(rec, httptest.NewRequest(http.MethodGet, "/api/prices/current?symbols=BTC", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.CacheInfo(rec, httptest.NewRequest(http.MethodGet, "/api/prices/cache", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	entries, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)

	rec = httptest.NewRecorder()
	h.ClearCache(rec, httptest.NewRequest(http.MethodDelete, "/api/prices/cache", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.CacheInfo(rec, httptest.NewRequest(http.MethodGet, "/api/prices/cache", nil))
	env = decodeEnvelope(t, rec)
	assert.Empty(t, env.Data)
}

func TestParseListOptsDefaultsAndCaps(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, domain.ListOpts{Limit: 50}, opts)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/x?limit=9999&offset=10", nil))
	assert.Equal(t, domain.ListOpts{Limit: 500, Offset: 10}, opts)
}
