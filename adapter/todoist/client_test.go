package todoist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchTasks(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/tasks", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"100","content":"Review budget","description":"q2 numbers","project_id":"p1",
			 "priority":4,"due":{"date":"2025-03-14"},"labels":["finance"]},
			{"id":"101","content":"Standup","priority":1,
			 "due":{"datetime":"2025-03-11T09:00:00Z"},"is_completed":true},
			{"id":"","content":"dropped, no id"}
		]`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("tok-123", nil, server.URL)
	assert.Equal(t, "todoist", client.Name())

	tasks, err := client.FetchTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Bearer tok-123", gotAuth)

	assert.Equal(t, "100", tasks[0].ExternalID)
	assert.Equal(t, "Review budget", tasks[0].Content)
	assert.Equal(t, 4, tasks[0].Priority)
	require.NotNil(t, tasks[0].DueDate)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), *tasks[0].DueDate)
	assert.Equal(t, []string{"finance"}, tasks[0].Labels)
	assert.False(t, tasks[0].Completed)

	assert.True(t, tasks[1].Completed)
	require.NotNil(t, tasks[1].DueDate)
	assert.Equal(t, 9, tasks[1].DueDate.Hour())
}

func TestFetchTasks_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("bad-token", nil, server.URL)
	_, err := client.FetchTasks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=403")
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 1, clampPriority(0))
	assert.Equal(t, 4, clampPriority(4))
	assert.Equal(t, 5, clampPriority(9))
}
