package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/config"
	"github.com/Jem1004/pklapps-v2-sub000/internal/credential"
	"github.com/Jem1004/pklapps-v2-sub000/internal/errclass"
	"github.com/Jem1004/pklapps-v2-sub000/internal/events"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
	"github.com/Jem1004/pklapps-v2-sub000/internal/queue"
	"github.com/Jem1004/pklapps-v2-sub000/internal/service"
	"github.com/Jem1004/pklapps-v2-sub000/internal/submit"
	"github.com/Jem1004/pklapps-v2-sub000/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	status models.Connectivity
}

func (m *fakeMonitor) Status() models.Connectivity { return m.status }

func (m *fakeMonitor) SampleNow(ctx context.Context) models.Connectivity { return m.status }

type fakeChannel struct {
	err error
}

func (c *fakeChannel) Submit(ctx context.Context, sub models.Submission) error { return c.err }

func newTestServer(t *testing.T, monitor *fakeMonitor, channel *fakeChannel) *HTTPServer {
	t.Helper()
	store, err := queue.NewStore(filepath.Join(t.TempDir(), "queue.db"), 10, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	classifier := errclass.NewClassifier(nil)
	bus := events.NewEventBus()
	cache := credential.NewCache(credential.NewMemoryRepository(20), 5, nil)

	orchestrator := submit.NewOrchestrator(monitor, store, classifier, submit.RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	}, bus, nil)
	engine := syncer.NewEngine(store, channel, classifier, syncer.Config{
		RetryLimit: 5,
		RPS:        10000,
		Burst:      100,
	}, bus, nil)

	svc := service.NewSubmissionService(orchestrator, engine, cache, store, channel, monitor, bus, nil)
	return NewHTTPServer(config.APIConfig{Port: 0}, svc, nil, nil)
}

func doRequest(t *testing.T, srv *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleSubmitDelivered(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivityFast}, &fakeChannel{})

	body := `{"owner_id":"student-1","credential":"PKL-2026","type":"ATTENDANCE","payload":"MASUK","client_time":"2026-08-29T07:55:00Z","timezone_label":"+0700"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/submissions", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "delivered", resp["status"])
}

func TestHandleSubmitStoredOffline(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivityOffline}, &fakeChannel{})

	body := `{"owner_id":"student-1","credential":"PKL-2026","type":"JOURNAL","payload":"today's entry","client_time":"2026-08-29T16:00:00Z"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/submissions", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "stored_offline", resp["status"])
	assert.NotEmpty(t, resp["local_id"])

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/queue/count?type=JOURNAL", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &count))
	assert.Equal(t, float64(1), count["count"])
}

func TestHandleSubmitInvalidBody(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivityFast}, &fakeChannel{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/submissions", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/submissions", `{"owner_id":"","type":"ATTENDANCE","payload":"MASUK"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleSubmitMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivityFast}, &fakeChannel{})
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/submissions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleQueueCountRequiresType(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivityFast}, &fakeChannel{})
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/queue/count", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSync(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivityOffline}, &fakeChannel{})

	body := `{"owner_id":"student-1","type":"ATTENDANCE","payload":"MASUK","client_time":"2026-08-29T07:55:00Z"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/submissions", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["synced"])
	assert.Equal(t, float64(0), resp["remaining"])
}

func TestHandleCredentialEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivityFast}, &fakeChannel{})

	// Deliver once so the credential lands in the cache.
	body := `{"owner_id":"student-1","credential":"pkl-2026","type":"ATTENDANCE","payload":"MASUK","client_time":"2026-08-29T07:55:00Z"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/submissions", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/credentials/suggestions?owner_id=student-1&prefix=pkl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var suggestions map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &suggestions))
	assert.Equal(t, []string{"PKL-2026"}, suggestions["suggestions"])

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/credentials/suggestions?prefix=pkl", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "owner_id is required")

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/credentials/validate", `{"value":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var validation map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &validation))
	assert.Equal(t, false, validation["valid"])
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivitySlow}, &fakeChannel{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SLOW", resp["connectivity"])
}

func TestHandleQueueReportUnconfigured(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{status: models.ConnectivityFast}, &fakeChannel{})
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/reports/queue", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
