package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	"github.com/felixgeelhaar/taskbrain/internal/shared/infrastructure/eventbus"
	taskssync "github.com/felixgeelhaar/taskbrain/internal/sync"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/cache"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "test-secret"

var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	repo, err := persistence.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := func() time.Time { return testNow }
	c := cache.NewNoopTaskCache()
	store := application.NewStore(repo, c, eventbus.NewNoopPublisher(nil), nil,
		application.WithClock(clock))
	engine := intelligence.NewEngine(store, nil, nil, intelligence.WithClock(clock))
	pipeline := taskssync.NewPipeline(store, engine, c, nil, webhookSecret, webhookSecret, nil)

	server := NewServer(DefaultServerConfig(),
		NewTaskHandler(store, c, nil),
		NewIntelligenceHandler(store, engine, nil),
		NewWebhookHandler(pipeline, nil),
		nil,
	)
	return server.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createTask(t *testing.T, handler http.Handler, body map[string]any) map[string]any {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	return task
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndGetTask(t *testing.T) {
	handler := newTestServer(t)

	task := createTask(t, handler, map[string]any{
		"content":  "Write report",
		"priority": 3,
		"due_date": "2025-03-12",
	})
	id := int64(task["id"].(float64))
	require.Positive(t, id)

	rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Write report", got["content"])
	assert.Equal(t, float64(3), got["priority"])
	assert.NotNil(t, got["days_until_due"])
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestCreateTask_ValidationError(t *testing.T) {
	handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", map[string]any{"content": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["errors"])
}

func TestGetTask_NotFound(t *testing.T) {
	handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/tasks/4242", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Task with id '4242' not found")
}

func TestUpdateCompleteDeleteLifecycle(t *testing.T) {
	handler := newTestServer(t)

	task := createTask(t, handler, map[string]any{"content": "lifecycle"})
	id := int64(task["id"].(float64))

	rec := doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d", id),
		map[string]any{"priority": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"priority":5`)

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/complete", id),
		map[string]any{"actual_duration": 25})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed":true`)

	rec = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTasks_InvalidFilter(t *testing.T) {
	handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/tasks?status=bogus", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalytics_InvalidPeriod(t *testing.T) {
	handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/analytics/productivity?period=quarter", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSchedule_BadDate(t *testing.T) {
	handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/intelligence/schedule?date=next-tuesday", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIntelligenceEndpoints(t *testing.T) {
	handler := newTestServer(t)

	createTask(t, handler, map[string]any{"content": "deep work", "energy_level": 5})
	createTask(t, handler, map[string]any{"content": "light chore", "energy_level": 1})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/intelligence/priorities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "high_priority")

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/intelligence/schedule?date=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "morning_block")

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/intelligence/overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_overdue":0`)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/intelligence/context", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "productivity_score")
}

func TestSmartRescheduleEndpoint(t *testing.T) {
	handler := newTestServer(t)

	task := createTask(t, handler, map[string]any{"content": "movable", "due_date": "2025-03-10"})
	id := int64(task["id"].(float64))

	rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/intelligence/reschedule/%d", id),
		map[string]any{"new_date": "2025-03-20"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rescheduled":true`)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/intelligence/reschedule/9999",
		map[string]any{"new_date": "2025-03-20"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestTodoistWebhook(t *testing.T) {
	handler := newTestServer(t)

	body := []byte(`{"event_name":"item:added","event_data":{"id":"ext-1","content":"from webhook"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/todoist", bytes.NewReader(body))
	req.Header.Set(todoistSignatureHeader, signBody(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := doJSON(t, handler, http.MethodGet, "/api/v1/tasks", nil)
	assert.Contains(t, list.Body.String(), "from webhook")
}

func TestTodoistWebhook_BadSignature(t *testing.T) {
	handler := newTestServer(t)

	body := []byte(`{"event_name":"item:added","event_data":{"id":"ext-1","content":"nope"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/todoist", bytes.NewReader(body))
	req.Header.Set(todoistSignatureHeader, "sha256=ffff")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	list := doJSON(t, handler, http.MethodGet, "/api/v1/tasks", nil)
	assert.Contains(t, list.Body.String(), `"count":0`)
}

func TestInternalErrorCarriesCorrelationID(t *testing.T) {
	handler := newTestServer(t)

	// Unknown route with a correlation header still echoes the id.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
}
