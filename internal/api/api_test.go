package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyvram23/Utility-Box/internal/backup"
	"github.com/Nyvram23/Utility-Box/internal/connectivity"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/notify"
	"github.com/Nyvram23/Utility-Box/internal/store"
	"github.com/Nyvram23/Utility-Box/internal/sync/queue"
	"github.com/Nyvram23/Utility-Box/internal/sync/scheduler"
	"github.com/Nyvram23/Utility-Box/internal/tools"
)

// =====================================================
// Test Helpers
// =====================================================

type testServer struct {
	server  *httptest.Server
	monitor *connectivity.Monitor
	sync    *scheduler.Orchestrator
	tools   *tools.Registry
	notes   *notify.Recorder
}

// newTestServer wires the real orchestrator over an in-memory store with
// an instant simulated backend.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	reg := tools.NewRegistry(st)
	monitor := connectivity.NewMonitor(true)
	notes := &notify.Recorder{}

	o := scheduler.New(scheduler.Deps{
		Store:    st,
		Monitor:  monitor,
		Tools:    reg,
		Notifier: notes,
	}, scheduler.Config{
		SyncInterval: time.Hour,
		Queue:        queue.Config{MaxAttempts: 3, DrainDelay: 5 * time.Millisecond},
	})
	t.Cleanup(o.Stop)

	srv := httptest.NewServer(NewRouter(Deps{
		Sync:   o,
		Tools:  reg,
		Backup: backup.NewService(reg, notes),
	}))
	t.Cleanup(srv.Close)

	return &testServer{server: srv, monitor: monitor, sync: o, tools: reg, notes: notes}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"x"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// =====================================================
// Health and auth
// =====================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.AuthResult
	decode(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, "ana", result.User.Name)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, result.User.ID, ts.sync.Stats().UserID)
}

func TestLogin_invalidCredentials(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/auth/login", `{"email":"  ","password":""}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body errorResponse
	decode(t, resp, &body)
	assert.Equal(t, "INVALID_CREDENTIALS", body.Error)
}

func TestLogin_malformedBody(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/auth/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	resp := ts.do(t, http.MethodPost, "/api/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, ts.sync.Stats().UserID)
}

// =====================================================
// Sync
// =====================================================

func TestEnqueue_deliversWhenLoggedIn(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	resp := ts.do(t, http.MethodPost, "/api/sync/enqueue", `{"type":"notes","data":[{"id":"1"}]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.NotEmpty(t, body["id"])

	require.Eventually(t, func() bool { return ts.sync.Stats().PendingCount == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestEnqueue_invalidType(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/sync/enqueue", `{"type":"theme","data":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPendingAndStats(t *testing.T) {
	ts := newTestServer(t)

	// not logged in, so the entry stays queued
	ts.do(t, http.MethodPost, "/api/sync/enqueue", `{"type":"tasks","data":[]}`)

	var pending []models.QueueEntry
	decode(t, ts.do(t, http.MethodGet, "/api/sync/pending", ""), &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, models.KindTasks, pending[0].Kind)

	var stats models.SyncStats
	decode(t, ts.do(t, http.MethodGet, "/api/sync/stats", ""), &stats)
	assert.True(t, stats.IsOnline)
	assert.Equal(t, 1, stats.PendingCount)
	assert.Nil(t, stats.LastSync)
}

func TestManualSync(t *testing.T) {
	ts := newTestServer(t)

	var refused models.SyncResult
	decode(t, ts.do(t, http.MethodPost, "/api/sync/manual", ""), &refused)
	assert.False(t, refused.Success)

	ts.login(t)

	var result models.SyncResult
	decode(t, ts.do(t, http.MethodPost, "/api/sync/manual", ""), &result)
	assert.True(t, result.Success)
	assert.NotNil(t, ts.sync.Stats().LastSync)
}

func TestClear(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/sync/enqueue", `{"type":"notes","data":[]}`)

	resp := ts.do(t, http.MethodPost, "/api/sync/clear", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, ts.sync.Stats().PendingCount)
	assert.Equal(t, 1, ts.notes.Count(models.EventSessionCleared))
}

// =====================================================
// Connectivity
// =====================================================

func TestConnectivity(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/connectivity", `{"online":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, ts.monitor.IsOnline())

	var body map[string]bool
	decode(t, ts.do(t, http.MethodGet, "/api/connectivity", ""), &body)
	assert.False(t, body["online"])
	assert.Equal(t, 1, ts.notes.Count(models.EventConnectivityOffline))

	resp = ts.do(t, http.MethodPost, "/api/connectivity", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =====================================================
// Tools
// =====================================================

func TestTools_readDefault(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/tools/postits", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, buf.String())
}

func TestTools_writeQueuesChange(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPut, "/api/tools/calculator", `[{"expr":"1+1","result":"2"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.NotEmpty(t, body["queued"])

	data, err := ts.tools.Read(models.KindCalculator)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"expr":"1+1","result":"2"}]`, string(data))

	pending := ts.sync.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, models.KindCalculator, pending[0].Kind)
}

func TestTools_unknownKind(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/tools/code", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, "/api/tools/full-sync", `{}`).StatusCode)
}

// =====================================================
// Backup
// =====================================================

func TestBackup_roundTrip(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.tools.Write(models.KindNotes, json.RawMessage(`[{"id":"n1"}]`)))

	resp := ts.do(t, http.MethodGet, "/api/backup/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/gzip", resp.Header.Get("Content-Type"))

	var archive bytes.Buffer
	_, err := archive.ReadFrom(resp.Body)
	require.NoError(t, err)

	require.NoError(t, ts.tools.Write(models.KindNotes, json.RawMessage(`[]`)))

	resp = ts.do(t, http.MethodPost, "/api/backup/import", archive.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := ts.tools.Read(models.KindNotes)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"n1"}]`, string(data))
}

func TestBackup_importGarbage(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/backup/import", "not a backup")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// unreadableSource fails every snapshot, as a broken store would.
type unreadableSource struct{}

func (unreadableSource) Snapshot() (map[models.Kind]json.RawMessage, error) {
	return nil, errors.New("disk I/O error")
}

func (unreadableSource) Apply(map[models.Kind]json.RawMessage) error { return nil }

func TestBackup_exportFailureIsJSON(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(NewRouter(Deps{
		Sync:   ts.sync,
		Tools:  ts.tools,
		Backup: backup.NewService(unreadableSource{}, ts.notes),
	}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/backup/export")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Content-Disposition"))

	var body errorResponse
	decode(t, resp, &body)
	assert.Equal(t, "PERSISTENCE_FAILURE", body.Error)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, statusFor("QUEUE_FULL"))
	assert.Equal(t, http.StatusConflict, statusFor("SYNC_IN_PROGRESS"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("PERSISTENCE_FAILURE"))
}
