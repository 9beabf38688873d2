package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	"github.com/felixgeelhaar/taskbrain/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/cache"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday morning, a fixed reference point for derived fields.
var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *application.Store {
	t.Helper()
	repo, err := persistence.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return application.NewStore(
		repo,
		cache.NewNoopTaskCache(),
		eventbus.NewNoopPublisher(nil),
		nil,
		application.WithClock(func() time.Time { return testNow }),
	)
}

// memoryTaskCache is a stateful TaskCache: entries persist until
// explicitly invalidated, so stale reads are observable in a way the noop
// cache can never show.
type memoryTaskCache struct {
	tasks       map[int64]domain.Task
	suggestions map[int64]json.RawMessage
}

func newMemoryTaskCache() *memoryTaskCache {
	return &memoryTaskCache{
		tasks:       map[int64]domain.Task{},
		suggestions: map[int64]json.RawMessage{},
	}
}

func (c *memoryTaskCache) Get(_ context.Context, id int64) (*domain.Task, bool) {
	t, ok := c.tasks[id]
	if !ok {
		return nil, false
	}
	cp := t
	return &cp, true
}

func (c *memoryTaskCache) Set(_ context.Context, t *domain.Task) { c.tasks[t.ID] = *t }

func (c *memoryTaskCache) Invalidate(_ context.Context, id int64) { delete(c.tasks, id) }

func (c *memoryTaskCache) SetPrioritySuggestion(_ context.Context, taskID int64, suggestion any) {
	raw, err := json.Marshal(suggestion)
	if err != nil {
		return
	}
	c.suggestions[taskID] = raw
}

func (c *memoryTaskCache) GetPrioritySuggestion(_ context.Context, taskID int64) (json.RawMessage, bool) {
	raw, ok := c.suggestions[taskID]
	return raw, ok
}

func newCachedTestStore(t *testing.T) (*application.Store, *memoryTaskCache) {
	t.Helper()
	repo, err := persistence.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	c := newMemoryTaskCache()
	store := application.NewStore(
		repo,
		c,
		eventbus.NewNoopPublisher(nil),
		nil,
		application.WithClock(func() time.Time { return testNow }),
	)
	return store, c
}

func TestCreate_Defaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.Create(ctx, domain.CreateTaskInput{Content: "Write weekly report"})
	require.NoError(t, err)

	assert.Positive(t, task.ID)
	assert.Equal(t, 1, task.Priority)
	assert.Equal(t, domain.DefaultEnergyLevel, task.EnergyLevel)
	assert.Equal(t, domain.SourceManual, task.Source)
	assert.Equal(t, domain.SyncStatusSynced, task.SyncStatus)
	assert.True(t, task.CreatedAt.Equal(testNow))
	assert.False(t, task.IsOverdue)

	activity, err := store.RecentActivity(ctx, 5)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, domain.EventCreated, activity[0].Type)
	assert.Equal(t, "Write weekly report", activity[0].TaskContent)
}

func TestCreate_ValidationFailure(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(context.Background(), domain.CreateTaskInput{Content: "   "})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestCreate_SanitizesContent(t *testing.T) {
	store := newTestStore(t)

	task, err := store.Create(context.Background(), domain.CreateTaskInput{
		Content: "  <b>Call</b>   the client  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "bCall/b the client", task.Content)
}

func TestCreate_UnparseableDueDateStoredUnset(t *testing.T) {
	store := newTestStore(t)

	task, err := store.Create(context.Background(), domain.CreateTaskInput{
		Content: "Fuzzy deadline",
		DueDate: "whenever the stars align",
	})
	require.NoError(t, err)
	assert.Nil(t, task.DueDate)
}

func TestCreate_ParsesDueDate(t *testing.T) {
	store := newTestStore(t)

	task, err := store.Create(context.Background(), domain.CreateTaskInput{
		Content: "File taxes",
		DueDate: "2025-03-12",
	})
	require.NoError(t, err)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, 2025, task.DueDate.Year())
	assert.Equal(t, time.March, task.DueDate.Month())
	assert.Equal(t, 12, task.DueDate.Day())

	// Due in 2 days: urgency = priority + 3.
	assert.InDelta(t, 4.0, task.UrgencyScore, 0.01)
}

func TestGet_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Contains(t, err.Error(), "Task with id '404' not found")
}

func TestUpdate_AppliesPatchAndLogsEvent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.Create(ctx, domain.CreateTaskInput{Content: "Draft proposal"})
	require.NoError(t, err)

	priority := 5
	updated, err := store.Update(ctx, task.ID, domain.UpdateTaskInput{Priority: &priority})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Priority)
	assert.Equal(t, "Draft proposal", updated.Content)

	activity, err := store.RecentActivity(ctx, 5)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, domain.EventUpdated, activity[0].Type)
}

func TestUpdate_WarmCacheNeverServesStalePriority(t *testing.T) {
	store, cached := newCachedTestStore(t)
	ctx := context.Background()

	task, err := store.Create(ctx, domain.CreateTaskInput{Content: "Tune the index"})
	require.NoError(t, err)

	// Create warms the cache with the raw snapshot.
	entry, ok := cached.Get(ctx, task.ID)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Priority)

	priority := 5
	updated, err := store.Update(ctx, task.ID, domain.UpdateTaskInput{Priority: &priority})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Priority)

	// An immediate read must see the new priority, and the repopulated
	// cache entry must carry it too.
	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Priority)

	entry, ok = cached.Get(ctx, task.ID)
	require.True(t, ok)
	assert.Equal(t, 5, entry.Priority)
}

// failingReadRepo delegates everything except FindByID, which always fails.
type failingReadRepo struct {
	domain.Repository
}

func (r *failingReadRepo) FindByID(context.Context, int64) (*domain.Task, error) {
	return nil, errors.New("read replica unavailable")
}

func TestUpdate_EventRecordedEvenWhenRereadFails(t *testing.T) {
	repo, err := persistence.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := application.WithClock(func() time.Time { return testNow })
	store := application.NewStore(repo, cache.NewNoopTaskCache(), eventbus.NewNoopPublisher(nil), nil, clock)
	ctx := context.Background()

	task, err := store.Create(ctx, domain.CreateTaskInput{Content: "Draft minutes"})
	require.NoError(t, err)

	flaky := application.NewStore(&failingReadRepo{Repository: repo},
		cache.NewNoopTaskCache(), eventbus.NewNoopPublisher(nil), nil, clock)

	priority := 4
	_, err = flaky.Update(ctx, task.ID, domain.UpdateTaskInput{Priority: &priority})
	require.Error(t, err)

	// The durable write went through, so the audit record must exist even
	// though the post-write read failed.
	activity, err := store.RecentActivity(ctx, 5)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, domain.EventUpdated, activity[0].Type)
}

func TestUpdate_Missing(t *testing.T) {
	store := newTestStore(t)

	priority := 3
	_, err := store.Update(context.Background(), 999, domain.UpdateTaskInput{Priority: &priority})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestUpdate_ClearsDueDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.Create(ctx, domain.CreateTaskInput{
		Content: "Ship release",
		DueDate: "2025-03-14",
	})
	require.NoError(t, err)
	require.NotNil(t, task.DueDate)

	empty := ""
	updated, err := store.Update(ctx, task.ID, domain.UpdateTaskInput{DueDate: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.DueDate)
}

func TestComplete_RecordsDurationAndPattern(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	est := 30
	task, err := store.Create(ctx, domain.CreateTaskInput{
		Content:           "Review PRs",
		EstimatedDuration: &est,
	})
	require.NoError(t, err)

	actual := 45
	done, err := store.Complete(ctx, task.ID, &actual)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.ActualDuration)
	assert.Equal(t, 45, *done.ActualDuration)

	patterns, err := store.Patterns(ctx, domain.PatternTypeCompletionTime)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, testNow.Hour(), patterns[0].Data.Hour)
	require.NotNil(t, patterns[0].Data.ActualDuration)
	assert.Equal(t, 45, *patterns[0].Data.ActualDuration)

	events, err := store.CompletionEventsSince(ctx, testNow.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, task.ID, events[0].TaskID)
}

func TestDelete_SoftDeleteSemantics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.Create(ctx, domain.CreateTaskInput{Content: "Obsolete chore"})
	require.NoError(t, err)

	existed, err := store.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = store.Get(ctx, task.ID)
	assert.True(t, shared.IsNotFound(err))

	// Second delete hits zero rows.
	existed, err = store.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, existed)

	// The event history outlives the task.
	activity, err := store.RecentActivity(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, activity)
}

func TestDelete_WarmCacheCannotResurrectTask(t *testing.T) {
	store, cached := newCachedTestStore(t)
	ctx := context.Background()

	task, err := store.Create(ctx, domain.CreateTaskInput{Content: "Retire the cron job"})
	require.NoError(t, err)
	_, ok := cached.Get(ctx, task.ID)
	require.True(t, ok)

	existed, err := store.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	// The warm entry is gone and the read reports not-found.
	_, ok = cached.Get(ctx, task.ID)
	assert.False(t, ok)
	_, err = store.Get(ctx, task.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestList_FilterValidation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.List(context.Background(), domain.TaskFilter{Status: "bogus"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = store.List(context.Background(), domain.TaskFilter{DueBucket: "fortnight"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestList_ExcludesCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keep, err := store.Create(ctx, domain.CreateTaskInput{Content: "Keep me"})
	require.NoError(t, err)
	done, err := store.Create(ctx, domain.CreateTaskInput{Content: "Finish me"})
	require.NoError(t, err)

	_, err = store.Complete(ctx, done.ID, nil)
	require.NoError(t, err)

	tasks, err := store.List(ctx, domain.TaskFilter{Status: domain.StatusActive})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, keep.ID, tasks[0].ID)
}

func TestAnalytics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := store.Create(ctx, domain.CreateTaskInput{Content: "task"})
		require.NoError(t, err)
	}
	first, err := store.List(ctx, domain.TaskFilter{})
	require.NoError(t, err)
	actual := 20
	_, err = store.Complete(ctx, first[0].ID, &actual)
	require.NoError(t, err)

	summary, err := store.Analytics(ctx, "week")
	require.NoError(t, err)
	assert.Equal(t, "week", summary.Period)
	assert.Equal(t, 4, summary.TotalTasks)
	assert.Equal(t, 1, summary.CompletedTasks)
	assert.InDelta(t, 25.0, summary.CompletionRate, 0.01)
	assert.InDelta(t, 20.0, summary.AvgCompletionTime, 0.01)
}

func TestAnalytics_InvalidPeriod(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Analytics(context.Background(), "quarter")
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
