package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/adapters/jira"
	"github.com/HamedShams/portfolio-pulse/internal/analytics"
	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/HamedShams/portfolio-pulse/internal/domain"
	"github.com/HamedShams/portfolio-pulse/internal/repo"
	"github.com/HamedShams/portfolio-pulse/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	err         error
	period      string
	weeks       int
	remaining   int
	simulations int
	ingested    jira.Payload
	digests     chan struct{}
}

func (f *fakeService) RefreshSnapshot(context.Context) (domain.Snapshot, error) {
	return domain.Snapshot{ID: "s-1", Source: "jira", Epics: make([]domain.Epic, 3)}, f.err
}

func (f *fakeService) IngestSnapshot(_ context.Context, p jira.Payload) (domain.Snapshot, error) {
	f.ingested = p
	if f.err != nil {
		return domain.Snapshot{}, f.err
	}
	return domain.Snapshot{ID: "s-2", Source: "push", Epics: make([]domain.Epic, len(p.Epics))}, nil
}

func (f *fakeService) RunWeeklyDigest(context.Context) error {
	if f.digests != nil {
		f.digests <- struct{}{}
	}
	return nil
}

func (f *fakeService) LastRuns(context.Context) ([]repo.JobRun, error) {
	return []repo.JobRun{{Job: "refresh", Success: true}}, f.err
}

func (f *fakeService) Epics(context.Context) ([]analytics.EpicView, error) {
	return []analytics.EpicView{{Epic: domain.Epic{Key: "E-1"}}}, f.err
}

func (f *fakeService) Initiatives(context.Context) ([]analytics.InitiativeView, error) {
	return []analytics.InitiativeView{{Key: analytics.UnlinkedKey}}, f.err
}

func (f *fakeService) Throughput(_ context.Context, period string) ([]analytics.ThroughputPoint, error) {
	f.period = period
	if _, err := analytics.ParsePeriod(period); err != nil {
		return nil, err
	}
	return []analytics.ThroughputPoint{{Period: "2025-03", Completed: 2}}, f.err
}

func (f *fakeService) CumulativeFlow(_ context.Context, weeks int) (analytics.CumulativeFlow, error) {
	f.weeks = weeks
	return analytics.CumulativeFlow{Approximate: true}, f.err
}

func (f *fakeService) LeadTime(context.Context) (analytics.LeadTimeReport, error) {
	return analytics.LeadTimeReport{}, f.err
}

func (f *fakeService) WIP(context.Context) (analytics.WIPReport, error) {
	return analytics.WIPReport{Total: 4}, f.err
}

func (f *fakeService) Prioritization(context.Context) (analytics.PrioritizationReport, error) {
	return analytics.PrioritizationReport{Mode: "fallback"}, f.err
}

func (f *fakeService) Forecast(_ context.Context, remaining, simulations int) (analytics.ForecastReport, error) {
	f.remaining, f.simulations = remaining, simulations
	return analytics.ForecastReport{InsufficientData: true, Message: "No throughput history."}, f.err
}

func (f *fakeService) ForecastRuns(context.Context, int) ([]repo.ForecastRun, error) {
	return []repo.ForecastRun{}, f.err
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(config.Config{AppEnv: "test"}, zerolog.Nop(), svc)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestReadEndpoints(t *testing.T) {
	r := newTestRouter(&fakeService{})
	for _, path := range []string{
		"/api/epics", "/api/initiatives", "/api/flow/throughput", "/api/flow/cfd",
		"/api/flow/lead-time", "/api/flow/wip", "/api/prioritization", "/api/forecast",
		"/api/forecast/runs", "/admin/last-run",
	} {
		w := do(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.True(t, json.Valid(w.Body.Bytes()), path)
	}
}

func TestQueryParameters(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	w := do(r, http.MethodGet, "/api/flow/throughput?period=quarter", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "quarter", svc.period)

	w = do(r, http.MethodGet, "/api/flow/cfd?weeks=8", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8, svc.weeks)

	w = do(r, http.MethodGet, "/api/forecast?remaining=12&simulations=2000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12, svc.remaining)
	assert.Equal(t, 2000, svc.simulations)
	assert.Contains(t, w.Body.String(), `"insufficientData":true`)

	w = do(r, http.MethodGet, "/api/forecast", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.OpenRemaining, svc.remaining)

	w = do(r, http.MethodGet, "/api/forecast?remaining=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, svc.remaining)
}

func TestBadRequests(t *testing.T) {
	r := newTestRouter(&fakeService{})
	for _, path := range []string{
		"/api/flow/throughput?period=daily",
		"/api/flow/cfd?weeks=-1",
		"/api/forecast?remaining=ten",
		"/api/forecast?simulations=100000000",
		"/api/forecast/runs?limit=x",
	} {
		w := do(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, w.Body.String(), `"error"`, path)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{repo.ErrNoSnapshot, http.StatusNotFound},
		{analytics.ErrInvalidSnapshot, http.StatusBadRequest},
		{services.ErrJiraDisabled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		w := do(newTestRouter(&fakeService{err: c.err}), http.MethodGet, "/api/epics", "")
		assert.Equal(t, c.want, w.Code, c.err.Error())
	}
	w := do(newTestRouter(&fakeService{err: services.ErrJiraDisabled}), http.MethodPost, "/admin/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIngestSnapshot(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)
	body := `{"initiatives":[{"key":"I-1"}],"epics":[{"issue":{"key":"E-1","fields":{}},"children":[{"key":"S-1"}]}]}`
	w := do(r, http.MethodPost, "/api/snapshot", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `"s-2"`, mustField(t, w.Body.Bytes(), "id"))
	require.Len(t, svc.ingested.Epics, 1)
	assert.Equal(t, "E-1", svc.ingested.Epics[0].Issue["key"])

	w = do(r, http.MethodPost, "/api/snapshot", `{"epics": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newTestRouter(&fakeService{err: analytics.ErrInvalidSnapshot}), http.MethodPost, "/api/snapshot", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshAndDigest(t *testing.T) {
	svc := &fakeService{digests: make(chan struct{}, 1)}
	r := newTestRouter(svc)

	w := do(r, http.MethodPost, "/admin/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `3`, mustField(t, w.Body.Bytes(), "epics"))

	w = do(r, http.MethodPost, "/admin/digest", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-svc.digests:
	case <-time.After(2 * time.Second):
		t.Fatal("digest was not started")
	}
}

func mustField(t *testing.T, body []byte, key string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	return string(m[key])
}
