package sync

import (
	"context"
	"time"
)

// ProviderTask is a task fetched from an external provider, normalized to
// the local field vocabulary.
type ProviderTask struct {
	ExternalID  string
	Content     string
	Description string
	ProjectID   string
	Priority    int
	DueDate     *time.Time
	Labels      []string
	Completed   bool
}

// TaskProviderClient pulls the current task list from one provider. The
// poller depends on this capability abstractly; concrete clients live in
// adapter packages.
type TaskProviderClient interface {
	Name() string
	FetchTasks(ctx context.Context) ([]ProviderTask, error)
}
