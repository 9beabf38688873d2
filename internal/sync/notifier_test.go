package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	"github.com/felixgeelhaar/taskbrain/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/cache"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_DeliversPayloadWithContext(t *testing.T) {
	received := make(chan []byte, 1)
	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		headers <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	repo, err := persistence.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := func() time.Time { return testNow }
	store := application.NewStore(repo, cache.NewNoopTaskCache(), eventbus.NewNoopPublisher(nil), nil,
		application.WithClock(clock))
	engine := intelligence.NewEngine(store, nil, nil, intelligence.WithClock(clock))

	_, err = store.Create(context.Background(), domain.CreateTaskInput{Content: "open task"})
	require.NoError(t, err)

	notifier := NewNotifier(NotifierConfig{
		URL:        server.URL,
		AuthHeader: "Bearer token",
		Workers:    1,
	}, store, engine, nil)
	require.NotNil(t, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifier.Start(ctx)

	notifier.Enqueue("item:added", json.RawMessage(`{"id":"ext-1"}`))

	select {
	case body := <-received:
		var payload struct {
			Timestamp int64           `json:"timestamp"`
			EventType string          `json:"event_type"`
			EventData json.RawMessage `json:"event_data"`
			Context   struct {
				TotalTasks        int     `json:"total_tasks"`
				OverdueTasks      int     `json:"overdue_tasks"`
				ProductivityScore float64 `json:"productivity_score"`
			} `json:"context"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, testNow.Unix(), payload.Timestamp)
		assert.Equal(t, "item:added", payload.EventType)
		assert.JSONEq(t, `{"id":"ext-1"}`, string(payload.EventData))
		assert.Equal(t, 1, payload.Context.TotalTasks)
		assert.Equal(t, 0, payload.Context.OverdueTasks)

		h := <-headers
		assert.Equal(t, "Bearer token", h.Get("Authorization"))
		assert.Equal(t, "application/json", h.Get("Content-Type"))
	case <-time.After(3 * time.Second):
		t.Fatal("notification was not delivered")
	}

	cancel()
	notifier.Wait()
}

func TestNotifier_NilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewNotifier(NotifierConfig{}, nil, nil, nil))
}

func TestNotifier_QueueFullDropsWithoutBlocking(t *testing.T) {
	notifier := NewNotifier(NotifierConfig{
		URL:       "http://127.0.0.1:0",
		QueueSize: 1,
	}, nil, nil, nil)
	require.NotNil(t, notifier)

	// Workers never started: the second enqueue must not block.
	done := make(chan struct{})
	go func() {
		notifier.Enqueue("a", nil)
		notifier.Enqueue("b", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}
