// Package linear pulls assigned issues from the Linear GraphQL API for
// background reconciliation.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	taskssync "github.com/felixgeelhaar/taskbrain/internal/sync"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
)

const defaultEndpoint = "https://api.linear.app/graphql"

// issuesQuery fetches the viewer's assigned, non-archived issues.
const issuesQuery = `query {
  viewer {
    assignedIssues(first: 100) {
      nodes {
        id
        identifier
        title
        description
        priority
        dueDate
        project { id }
        labels { nodes { name } }
        state { type }
      }
    }
  }
}`

// Client fetches the viewer's assigned issues.
type Client struct {
	client   *http.Client
	endpoint string
	token    string
	logger   *slog.Logger
}

// NewClient creates a Linear client authenticated with a personal API key.
func NewClient(token string, logger *slog.Logger) *Client {
	return NewClientWithEndpoint(token, logger, defaultEndpoint)
}

// NewClientWithEndpoint creates a client against a custom GraphQL endpoint.
func NewClientWithEndpoint(token string, logger *slog.Logger, endpoint string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: endpoint,
		token:    token,
		logger:   logger,
	}
}

// Name identifies the provider to the poller.
func (c *Client) Name() string { return string(domain.SourceLinear) }

type issueNode struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	DueDate     string `json:"dueDate"`
	Project     *struct {
		ID string `json:"id"`
	} `json:"project"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	State struct {
		Type string `json:"type"`
	} `json:"state"`
}

type issuesResponse struct {
	Data struct {
		Viewer struct {
			AssignedIssues struct {
				Nodes []issueNode `json:"nodes"`
			} `json:"assignedIssues"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchTasks returns the viewer's assigned issues normalized to the local
// vocabulary. Canceled issues are reported as completed so the local copy
// stops surfacing them.
func (c *Client) FetchTasks(ctx context.Context) ([]taskssync.ProviderTask, error) {
	body, err := json.Marshal(map[string]string{"query": issuesQuery})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	// Linear personal API keys are sent bare, without a Bearer prefix.
	req.Header.Set("Authorization", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("linear request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed issuesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("linear query failed: %s", parsed.Errors[0].Message)
	}

	nodes := parsed.Data.Viewer.AssignedIssues.Nodes
	tasks := make([]taskssync.ProviderTask, 0, len(nodes))
	for _, node := range nodes {
		if node.ID == "" || node.Title == "" {
			continue
		}
		pt := taskssync.ProviderTask{
			ExternalID:  node.ID,
			Content:     node.Title,
			Description: node.Description,
			Priority:    mapPriority(node.Priority),
			Completed:   node.State.Type == "completed" || node.State.Type == "canceled",
		}
		if node.Project != nil {
			pt.ProjectID = node.Project.ID
		}
		for _, label := range node.Labels.Nodes {
			pt.Labels = append(pt.Labels, label.Name)
		}
		if node.DueDate != "" {
			if t, err := time.Parse("2006-01-02", node.DueDate); err == nil {
				pt.DueDate = &t
			}
		}
		tasks = append(tasks, pt)
	}
	return tasks, nil
}

// mapPriority maps Linear's 0-4 scale (0 = none, 4 = urgent) onto the
// local 1-5 scale.
func mapPriority(p int) int {
	if p < 0 || p > 4 {
		return domain.PriorityMin
	}
	return p + 1
}
