package cache

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "task:42", taskKey(42))
	assert.Equal(t, "priority_suggestion:42", suggestionKey(42))
}

func TestNewRedisTaskCache_TTLDefaultsToAnHour(t *testing.T) {
	c := NewRedisTaskCache(nil, 0, nil)
	assert.Equal(t, time.Hour, c.ttl)

	c = NewRedisTaskCache(nil, 10*time.Minute, nil)
	assert.Equal(t, 10*time.Minute, c.ttl)
}

func TestNoopTaskCache_AlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := NewNoopTaskCache()

	c.Set(ctx, &domain.Task{ID: 7, Content: "anything"})
	_, ok := c.Get(ctx, 7)
	assert.False(t, ok)

	c.SetPrioritySuggestion(ctx, 7, map[string]int{"suggested": 5})
	_, ok = c.GetPrioritySuggestion(ctx, 7)
	assert.False(t, ok)
}
