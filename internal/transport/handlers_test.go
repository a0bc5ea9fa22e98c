package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/linktracker/internal/database/sqlstore"
	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/internal/metrics"
	"github.com/ds124wfegd/linktracker/internal/service"
	"github.com/ds124wfegd/linktracker/pkg/migrations"
	"github.com/ds124wfegd/linktracker/pkg/queue"
	"github.com/ds124wfegd/linktracker/pkg/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReports struct {
	mu      sync.Mutex
	kinds   []entity.ReportKind
	outcome entity.Outcome
}

func (f *fakeReports) Dispatch(ctx context.Context, kind entity.ReportKind, scheduledAt time.Time) entity.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	out := f.outcome
	out.Kind = kind
	out.ScheduledAt = scheduledAt
	return out
}

func (f *fakeReports) Preview(ctx context.Context, kind entity.ReportKind, now time.Time) (string, error) {
	return "preview " + string(kind), nil
}

func (f *fakeReports) SendTestMessage(ctx context.Context, text string) error {
	return nil
}

type memoryDLQ struct {
	reports []*queue.FailedReport
}

func (m *memoryDLQ) HandleFailedReport(ctx context.Context, out entity.Outcome) error {
	m.reports = append(m.reports, &queue.FailedReport{Outcome: out, FailedAt: out.FinishedAt})
	return nil
}

func (m *memoryDLQ) GetFailedReports(ctx context.Context, limit int) ([]*queue.FailedReport, error) {
	if limit > len(m.reports) {
		limit = len(m.reports)
	}
	return m.reports[:limit], nil
}

func (m *memoryDLQ) DeleteFailedReport(ctx context.Context, jobID string) error {
	for i, r := range m.reports {
		if r.Outcome.JobID == jobID {
			m.reports = append(m.reports[:i], m.reports[i+1:]...)
			return nil
		}
	}
	return entity.ErrReportNotFound
}

func (m *memoryDLQ) GetDLQStats(ctx context.Context) (*queue.DLQStats, error) {
	return &queue.DLQStats{QueueSize: int64(len(m.reports))}, nil
}

func (m *memoryDLQ) PurgeDLQ(ctx context.Context) (int64, error) {
	n := int64(len(m.reports))
	m.reports = nil
	return n, nil
}

type testServer struct {
	router  *gin.Engine
	links   service.LinkService
	reports *fakeReports
	dlq     *memoryDLQ
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, checks map[string]func(context.Context) error) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewSQLiteDB(ctx, filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(db, "sqlite"))

	linkRepo := sqlstore.NewLinkRepository(db, sqlstore.SQLite)
	clickRepo := sqlstore.NewClickRepository(db, sqlstore.SQLite)
	m := metrics.New()

	links := service.NewLinkService(linkRepo, clickRepo, service.WithClickCounter(m))
	reports := &fakeReports{outcome: entity.Outcome{Status: entity.StatusDelivered, Attempts: 1}}
	dlq := &memoryDLQ{}

	linkHandler := NewLinkHandler(links)
	router := InitRoutes(RouterOptions{Version: "test", RequestTimeout: 5 * time.Second, Metrics: m, Checks: checks},
		linkHandler,
		linkHandler,
		NewReportHandler(service.NewStatsService(clickRepo, 3), reports, dlq),
	)

	return &testServer{router: router, links: links, reports: reports, dlq: dlq, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestLinkLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/links", map[string]string{
		"short_code": "doctor1", "target_url": "https://example.com/doctor", "title": "Dr. Smith",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/links", map[string]string{
		"short_code": "doctor1", "target_url": "https://example.com/other",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/links", map[string]string{"short_code": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/links", map[string]string{
		"short_code": "bad code", "target_url": "https://example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/links/doctor1", map[string]string{"target_url": "https://example.org/new"})
	require.Equal(t, http.StatusOK, w.Code)
	var link entity.Link
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	assert.Equal(t, "https://example.org/new", link.TargetURL)
	assert.Equal(t, "Dr. Smith", link.Title)

	w = s.do(t, http.MethodGet, "/api/links", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []entity.LinkWithClicks
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	w = s.do(t, http.MethodDelete, "/api/links/doctor1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/links/doctor1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRedirectRecordsClick(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.links.CreateLink(context.Background(), &entity.CreateLinkRequest{
		ShortCode: "doctor1", TargetURL: "https://example.com/doctor",
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/doctor1", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/doctor", w.Header().Get("Location"))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.Clicks.WithLabelValues(service.ClickModeDirect)))

	w = s.do(t, http.MethodGet, "/api/links/doctor1/clicks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var clicks []entity.Click
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clicks))
	require.Len(t, clicks, 1)
	assert.Equal(t, "handler-test", clicks[0].UserAgent)

	w = s.do(t, http.MethodGet, "/api/links/doctor1/stats?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats entity.LinkStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Clicks)
	assert.Equal(t, 7, stats.Days)

	w = s.do(t, http.MethodGet, "/api/links/doctor1/stats?days=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/stats/daily", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var window entity.WindowStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &window))
	assert.Equal(t, int64(1), window.Count)
	assert.True(t, window.Change.NewActivity)
	assert.Contains(t, w.Body.String(), `"percent_change":"new activity"`)

	w = s.do(t, http.MethodDelete, "/api/links/doctor1/clicks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"not_found"`)
}

func TestReportEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/reports/weekly", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []entity.ReportKind{entity.ReportWeekly}, s.reports.kinds)

	s.reports.outcome = entity.Outcome{Status: entity.StatusFailed, Reason: "telegram API error 502"}
	w = s.do(t, http.MethodPost, "/api/reports/daily", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "telegram API error 502")

	w = s.do(t, http.MethodPost, "/api/reports/monthly", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/reports/daily/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "preview daily", w.Body.String())
}

func TestFailedReportEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	for _, id := range []string{"job-1", "job-2"} {
		require.NoError(t, s.dlq.HandleFailedReport(ctx, entity.Outcome{JobID: id, Status: entity.StatusFailed}))
	}

	w := s.do(t, http.MethodGet, "/api/reports/failed?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var failed []queue.FailedReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.Len(t, failed, 1)

	w = s.do(t, http.MethodGet, "/api/reports/failed/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue_size":2`)

	w = s.do(t, http.MethodDelete, "/api/reports/failed/job-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/reports/failed/job-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/reports/failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"purged":1}`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	healthy := true
	s := newTestServer(t, map[string]func(context.Context) error{
		"database": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		},
	})

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	healthy = false
	w = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",route="/health",status="200"} 1`), body)
}
