package api

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tasktracker/domain"
	"tasktracker/storage"
	"tasktracker/store"
	"tasktracker/syncer"
)

type testServer struct {
	e       *echo.Echo
	store   *store.Store
	backend *storage.MemoryStore
	broker  *Broker
	hook    *test.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	backend := storage.NewMemoryStore()
	broker := NewBroker()
	s := store.New(backend, syncer.NewDispatcher(broker, syncer.Config{}, logger), logger, 0)
	t.Cleanup(s.Close)

	e := echo.New()
	e.Use(GzipRequestMiddleware())
	Register(e, s, broker, logger)
	return &testServer{e: e, store: s, backend: backend, broker: broker, hook: hook}
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(t *testing.T, body string) domain.Task {
	t.Helper()
	rec := ts.do(http.MethodPost, "/api/tasks", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: expected 201, got %d: %s", body, rec.Code, rec.Body.String())
	}
	var task domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) tasksResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return resp
}

func TestCreateTaskTrimsAndDefaults(t *testing.T) {
	ts := newTestServer(t)
	task := ts.create(t, `{"title":"  buy milk  "}`)

	if task.ID == "" || task.Title != "buy milk" || task.Priority != domain.PriorityMedium || task.Completed {
		t.Fatalf("unexpected task %+v", task)
	}
	if len(ts.backend.Raw()) == 0 {
		t.Fatalf("expected snapshot to be persisted")
	}
}

func TestCreateTaskRejectsBlankTitle(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/api/tasks", `{"title":"   "}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Field != "title" {
		t.Fatalf("expected title field, got %+v", resp)
	}
	if len(ts.store.Tasks()) != 0 {
		t.Fatalf("expected no task to be created")
	}
}

func TestCreateTaskRejectsBadBodies(t *testing.T) {
	ts := newTestServer(t)
	cases := map[string]string{
		"unknown field": `{"title":"x","color":"red"}`,
		"not json":      `title=x`,
		"empty":         ``,
	}
	for name, body := range cases {
		rec := ts.do(http.MethodPost, "/api/tasks", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}

	oversized := `{"title":"` + strings.Repeat("a", maxBodySize) + `"}`
	if rec := ts.do(http.MethodPost, "/api/tasks", oversized); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized: expected 413, got %d", rec.Code)
	}
	if len(ts.store.Tasks()) != 0 {
		t.Fatalf("expected no task to be created")
	}
}

func TestListTasksFilterSearchSort(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, `{"title":"write report","priority":"low","due":"2025-03-01"}`)
	b := ts.create(t, `{"title":"email Bob","notes":"about the REPORT","priority":"high"}`)
	c := ts.create(t, `{"title":"groceries","due":"2025-02-01"}`)

	if rec := ts.do(http.MethodPost, "/api/tasks/"+c.ID+"/toggle", ""); rec.Code != http.StatusOK {
		t.Fatalf("toggle: expected 200, got %d", rec.Code)
	}

	all := decodeList(t, ts.do(http.MethodGet, "/api/tasks", ""))
	if all.Count != 3 || all.Tasks[0].ID != c.ID || all.Tasks[2].ID != a.ID {
		t.Fatalf("expected newest first, got %+v", all.Tasks)
	}

	pending := decodeList(t, ts.do(http.MethodGet, "/api/tasks?filter=pending&q=report", ""))
	if pending.Count != 2 {
		t.Fatalf("expected 2 pending report matches, got %+v", pending.Tasks)
	}

	byPriority := decodeList(t, ts.do(http.MethodGet, "/api/tasks?filter=pending&q=report&sort=priority", ""))
	if byPriority.Tasks[0].ID != b.ID || byPriority.Tasks[1].ID != a.ID {
		t.Fatalf("expected high before low, got %+v", byPriority.Tasks)
	}

	byDue := decodeList(t, ts.do(http.MethodGet, "/api/tasks?sort=due", ""))
	if byDue.Tasks[0].ID != c.ID || byDue.Tasks[1].ID != a.ID || byDue.Tasks[2].ID != b.ID {
		t.Fatalf("expected due ascending with undated last, got %+v", byDue.Tasks)
	}

	completed := decodeList(t, ts.do(http.MethodGet, "/api/tasks?filter=completed", ""))
	if completed.Count != 1 || completed.Tasks[0].ID != c.ID {
		t.Fatalf("expected only the toggled task, got %+v", completed.Tasks)
	}
}

func TestListTasksRejectsUnknownParams(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(http.MethodGet, "/api/tasks?filter=archived", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown filter, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/tasks?sort=title", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown sort, got %d", rec.Code)
	}
}

func TestListTasksEmptyIsArray(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/tasks", "")
	if !strings.Contains(rec.Body.String(), `"tasks":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestGetTask(t *testing.T) {
	ts := newTestServer(t)
	task := ts.create(t, `{"title":"read"}`)

	if rec := ts.do(http.MethodGet, "/api/tasks/"+task.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/tasks/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateTask(t *testing.T) {
	ts := newTestServer(t)
	task := ts.create(t, `{"title":"draft","due":"2025-01-05"}`)

	rec := ts.do(http.MethodPatch, "/api/tasks/"+task.ID, `{"title":" final ","priority":"high","clearDue":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "final" || got.Priority != domain.PriorityHigh || got.Due != nil {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.ID != task.ID || !got.CreatedAt.Equal(task.CreatedAt) {
		t.Fatalf("identity changed: %+v vs %+v", got, task)
	}

	if rec := ts.do(http.MethodPatch, "/api/tasks/"+task.ID, `{"title":""}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank title, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPatch, "/api/tasks/missing", `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPatch, "/api/tasks/"+task.ID, `{"completed":true}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected completed to be rejected as unknown field, got %d", rec.Code)
	}
}

func TestToggleTwiceRestores(t *testing.T) {
	ts := newTestServer(t)
	task := ts.create(t, `{"title":"flip"}`)

	ts.do(http.MethodPost, "/api/tasks/"+task.ID+"/toggle", "")
	rec := ts.do(http.MethodPost, "/api/tasks/"+task.ID+"/toggle", "")
	var got domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Completed {
		t.Fatalf("expected toggle twice to restore pending")
	}
	if rec := ts.do(http.MethodPost, "/api/tasks/missing/toggle", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	ts := newTestServer(t)
	task := ts.create(t, `{"title":"gone"}`)

	if rec := ts.do(http.MethodDelete, "/api/tasks/"+task.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/tasks/"+task.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
	if len(ts.store.Tasks()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, `{"title":"a","priority":"high"}`)
	ts.create(t, `{"title":"b"}`)
	ts.create(t, `{"title":"c"}`)
	ts.do(http.MethodPost, "/api/tasks/"+a.ID+"/toggle", "")

	rec := ts.do(http.MethodGet, "/api/stats", "")
	var stats domain.Stats
	if err := sonic.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := domain.Stats{Total: 3, Completed: 1, Pending: 2, HighPriority: 1, Progress: 33}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
}

func TestHealthzReportsPersistFailure(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("expected ok health, got %d %s", rec.Code, rec.Body.String())
	}

	ts.backend.FailSaves(errors.New("disk full"))
	ts.create(t, `{"title":"kept in memory"}`)

	rec := ts.do(http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "degraded") {
		t.Fatalf("expected degraded health, got %d %s", rec.Code, rec.Body.String())
	}
	if len(ts.store.Tasks()) != 1 {
		t.Fatalf("expected task to remain in memory")
	}
}

func TestGzipRequestBody(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(`{"title":"compressed"}`))
	_ = zw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader("plain"))
	bad.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec = httptest.NewRecorder()
	ts.e.ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid gzip, got %d", rec.Code)
	}
}

func TestCreateTaskDueDate(t *testing.T) {
	ts := newTestServer(t)

	blank := ts.create(t, `{"title":"no date yet","due":""}`)
	if blank.Due != nil {
		t.Fatalf("expected blank due to mean no due date, got %v", blank.Due)
	}
	if stored, _ := ts.store.Get(blank.ID); stored.Due != nil {
		t.Fatalf("expected stored task without due date, got %v", stored.Due)
	}

	rec := ts.do(http.MethodPost, "/api/tasks", `{"title":"x","due":"bogus"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid due, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Field != "due" {
		t.Fatalf("expected due field, got %+v", resp)
	}
	if len(ts.store.Tasks()) != 1 {
		t.Fatalf("expected invalid due to create nothing")
	}
}

func TestUpdateTaskBlankDueClearsDate(t *testing.T) {
	ts := newTestServer(t)
	task := ts.create(t, `{"title":"dated","due":"2025-04-01"}`)

	rec := ts.do(http.MethodPatch, "/api/tasks/"+task.ID, `{"due":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"due":null`) {
		t.Fatalf("expected due cleared, got %s", rec.Body.String())
	}
}

func TestPriorityIsCaseInsensitiveOnCreateAndUpdate(t *testing.T) {
	ts := newTestServer(t)
	task := ts.create(t, `{"title":"x","priority":"HIGH"}`)
	if task.Priority != domain.PriorityHigh {
		t.Fatalf("expected high, got %q", task.Priority)
	}

	rec := ts.do(http.MethodPatch, "/api/tasks/"+task.ID, `{"priority":"Low"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Priority != domain.PriorityLow {
		t.Fatalf("expected low, got %q", got.Priority)
	}
}

func gzipBytes(t *testing.T, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(body)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return &buf
}

func TestGzipBodyCappedAfterDecompression(t *testing.T) {
	ts := newTestServer(t)

	// Compresses to a few hundred bytes but inflates past the limit.
	body := gzipBytes(t, `{"title":"`+strings.Repeat("a", 4*maxBodySize)+`"}`)
	if body.Len() >= maxBodySize {
		t.Fatalf("expected a small compressed payload, got %d bytes", body.Len())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ts.store.Tasks()) != 0 {
		t.Fatalf("expected nothing created")
	}
}

func TestCapReader(t *testing.T) {
	exact, err := io.ReadAll(newCapReader(strings.NewReader("abcd"), 4))
	if err != nil || string(exact) != "abcd" {
		t.Fatalf("expected exact-limit read to succeed, got %q %v", exact, err)
	}
	if _, err := io.ReadAll(newCapReader(strings.NewReader("abcde"), 4)); !errors.Is(err, errBodyTooLarge) {
		t.Fatalf("expected errBodyTooLarge, got %v", err)
	}
}
