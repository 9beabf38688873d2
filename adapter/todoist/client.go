// Package todoist pulls tasks from the Todoist REST API for background
// reconciliation.
package todoist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	taskssync "github.com/felixgeelhaar/taskbrain/internal/sync"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.todoist.com/rest/v2"

// Client fetches the active task list for the authenticated user.
type Client struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a Todoist client authenticated with a static API token.
func NewClient(token string, logger *slog.Logger) *Client {
	return NewClientWithBaseURL(token, logger, defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom base URL.
func NewClientWithBaseURL(token string, logger *slog.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &oauthTransport{
				base:   http.DefaultTransport,
				source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			},
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Name identifies the provider to the poller.
func (c *Client) Name() string { return string(domain.SourceTodoist) }

type restTask struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Description string `json:"description"`
	ProjectID   string `json:"project_id"`
	Priority    int    `json:"priority"`
	Due         *struct {
		Date     string `json:"date"`
		Datetime string `json:"datetime"`
	} `json:"due"`
	Labels      []string `json:"labels"`
	IsCompleted bool     `json:"is_completed"`
}

// FetchTasks returns the user's current tasks normalized to the local
// vocabulary.
func (c *Client) FetchTasks(ctx context.Context) ([]taskssync.ProviderTask, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var items []restTask
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, err
	}

	tasks := make([]taskssync.ProviderTask, 0, len(items))
	for _, item := range items {
		if item.ID == "" || item.Content == "" {
			continue
		}
		tasks = append(tasks, taskssync.ProviderTask{
			ExternalID:  item.ID,
			Content:     item.Content,
			Description: item.Description,
			ProjectID:   item.ProjectID,
			Priority:    clampPriority(item.Priority),
			DueDate:     parseDue(item.Due),
			Labels:      item.Labels,
			Completed:   item.IsCompleted,
		})
	}
	return tasks, nil
}

// clampPriority keeps Todoist's 1-4 scale inside the local 1-5 range.
func clampPriority(p int) int {
	if p < domain.PriorityMin {
		return domain.PriorityMin
	}
	if p > domain.PriorityMax {
		return domain.PriorityMax
	}
	return p
}

func parseDue(due *struct {
	Date     string `json:"date"`
	Datetime string `json:"datetime"`
}) *time.Time {
	if due == nil {
		return nil
	}
	if due.Datetime != "" {
		if t, err := time.Parse(time.RFC3339, due.Datetime); err == nil {
			return &t
		}
	}
	if due.Date != "" {
		if t, err := time.Parse("2006-01-02", due.Date); err == nil {
			return &t
		}
	}
	return nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("todoist request failed: status=%d body=%s", resp.StatusCode, string(body))
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return t.base.RoundTrip(req)
}
