package sync

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/cache"
)

// externalID tolerates providers that send ids as JSON strings or numbers.
type externalID string

func (e *externalID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = externalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*e = externalID(n.String())
	return nil
}

type todoistPayload struct {
	EventName string          `json:"event_name"`
	EventData json.RawMessage `json:"event_data"`
}

type todoistItem struct {
	ID          externalID `json:"id"`
	Content     string     `json:"content"`
	Description string     `json:"description"`
	ProjectID   externalID `json:"project_id"`
	Priority    int        `json:"priority"`
	Due         *struct {
		Datetime string `json:"datetime"`
		Date     string `json:"date"`
	} `json:"due"`
	Labels []string `json:"labels"`
}

type linearPayload struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type linearIssue struct {
	ID          externalID `json:"id"`
	Identifier  string     `json:"identifier"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	State       struct {
		Type string `json:"type"`
	} `json:"state"`
}

// PrioritySuggestion is the advisory payload cached when an inbound update
// triggers a high-confidence priority re-analysis.
type PrioritySuggestion struct {
	TaskID            int64  `json:"task_id"`
	CurrentPriority   int    `json:"current_priority"`
	SuggestedPriority int    `json:"suggested_priority"`
	Reasoning         string `json:"reasoning"`
	Timestamp         int64  `json:"timestamp"`
}

// Pipeline turns verified provider events into local task mutations.
// Reconciliation is idempotent by construction: creates no-op when the
// external id already exists, everything else no-ops when it does not.
type Pipeline struct {
	store         *application.Store
	engine        *intelligence.Engine
	cache         cache.TaskCache
	notifier      *Notifier
	logger        *slog.Logger
	todoistSecret string
	linearSecret  string
}

// NewPipeline wires the pipeline. notifier may be nil when no outward
// notification endpoint is configured.
func NewPipeline(store *application.Store, engine *intelligence.Engine, c cache.TaskCache, notifier *Notifier, todoistSecret, linearSecret string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:         store,
		engine:        engine,
		cache:         c,
		notifier:      notifier,
		logger:        logger,
		todoistSecret: todoistSecret,
		linearSecret:  linearSecret,
	}
}

// HandleTodoist verifies and reconciles one Todoist webhook delivery.
func (p *Pipeline) HandleTodoist(ctx context.Context, body []byte, signature string) error {
	if err := VerifySignature("todoist", p.todoistSecret, body, signature); err != nil {
		return err
	}

	var payload todoistPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return shared.NewValidationError("malformed webhook payload")
	}

	var item todoistItem
	if len(payload.EventData) > 0 {
		if err := json.Unmarshal(payload.EventData, &item); err != nil {
			return shared.NewValidationError("malformed webhook event data")
		}
	}

	p.logger.InfoContext(ctx, "received todoist webhook", "event", payload.EventName)

	var err error
	switch payload.EventName {
	case "item:added":
		err = p.todoistCreated(ctx, item)
	case "item:updated":
		err = p.todoistUpdated(ctx, item)
	case "item:completed":
		err = p.todoistCompleted(ctx, item)
	case "item:deleted":
		err = p.todoistDeleted(ctx, item)
	default:
		p.logger.WarnContext(ctx, "unknown todoist event, ignoring", "event", payload.EventName)
	}
	if err != nil {
		return err
	}

	p.notify(payload.EventName, payload.EventData)
	return nil
}

// HandleLinear verifies and reconciles one Linear webhook delivery.
func (p *Pipeline) HandleLinear(ctx context.Context, body []byte, signature string) error {
	if err := VerifySignature("linear", p.linearSecret, body, signature); err != nil {
		return err
	}

	var payload linearPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return shared.NewValidationError("malformed webhook payload")
	}

	var issue linearIssue
	if len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, &issue); err != nil {
			return shared.NewValidationError("malformed webhook event data")
		}
	}

	p.logger.InfoContext(ctx, "received linear webhook", "action", payload.Action)

	var err error
	switch payload.Action {
	case "create":
		err = p.linearCreated(ctx, issue)
	case "update":
		err = p.linearUpdated(ctx, issue)
	case "remove":
		err = p.linearRemoved(ctx, issue)
	default:
		p.logger.WarnContext(ctx, "unknown linear action, ignoring", "action", payload.Action)
	}
	if err != nil {
		return err
	}

	p.notify("linear:"+payload.Action, payload.Data)
	return nil
}

func (p *Pipeline) todoistCreated(ctx context.Context, item todoistItem) error {
	if item.ID == "" {
		return shared.NewValidationError("event data is missing the item id")
	}
	if _, err := p.store.GetByExternalID(ctx, domain.SourceTodoist, string(item.ID)); err == nil {
		p.logger.DebugContext(ctx, "task already exists, skipping create", "external_id", item.ID)
		return nil
	} else if !shared.IsNotFound(err) {
		return err
	}

	in := domain.CreateTaskInput{
		Content:     item.Content,
		Description: item.Description,
		ProjectID:   string(item.ProjectID),
		DueDate:     todoistDue(item),
		Labels:      item.Labels,
		Source:      domain.SourceTodoist,
		ExternalID:  string(item.ID),
	}
	if item.Priority >= domain.PriorityMin && item.Priority <= domain.PriorityMax {
		priority := item.Priority
		in.Priority = &priority
	}

	task, err := p.store.Create(ctx, in)
	if err != nil {
		return err
	}

	analysis, err := p.engine.AnalyzeNewTask(ctx, task)
	if err != nil {
		p.logger.WarnContext(ctx, "task analysis failed", "task_id", task.ID, "error", err)
		return nil
	}
	if analysis.AutoApply && analysis.Updates != nil {
		if _, err := p.store.Update(ctx, task.ID, *analysis.Updates); err != nil {
			p.logger.WarnContext(ctx, "failed to auto-apply suggestions", "task_id", task.ID, "error", err)
			return nil
		}
		p.logger.InfoContext(ctx, "auto-applied intelligence suggestions", "task_id", task.ID)
	}
	return nil
}

func (p *Pipeline) todoistUpdated(ctx context.Context, item todoistItem) error {
	task, err := p.store.GetByExternalID(ctx, domain.SourceTodoist, string(item.ID))
	if shared.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	in := domain.UpdateTaskInput{}
	if item.Content != "" {
		in.Content = &item.Content
	}
	if item.Description != "" {
		in.Description = &item.Description
	}
	if item.Priority >= domain.PriorityMin && item.Priority <= domain.PriorityMax {
		in.Priority = &item.Priority
	}
	if due := todoistDue(item); due != "" {
		in.DueDate = &due
	}
	if item.Labels != nil {
		in.Labels = &item.Labels
	}

	updated, err := p.store.Update(ctx, task.ID, in)
	if err != nil {
		return err
	}

	p.cacheSuggestionIfConfident(ctx, updated)
	return nil
}

// cacheSuggestionIfConfident re-checks priority after an inbound update
// and caches an advisory suggestion instead of mutating the task.
func (p *Pipeline) cacheSuggestionIfConfident(ctx context.Context, task *domain.Task) {
	adjustment := p.engine.AnalyzePriority(task)
	if adjustment.Confidence <= 0.8 || adjustment.Suggested == task.Priority {
		return
	}

	p.cache.SetPrioritySuggestion(ctx, task.ID, PrioritySuggestion{
		TaskID:            task.ID,
		CurrentPriority:   task.Priority,
		SuggestedPriority: adjustment.Suggested,
		Reasoning:         adjustment.Reasoning,
		Timestamp:         p.store.Now().Unix(),
	})
	p.logger.InfoContext(ctx, "cached priority suggestion", "task_id", task.ID,
		"suggested", adjustment.Suggested)
}

func (p *Pipeline) todoistCompleted(ctx context.Context, item todoistItem) error {
	task, err := p.store.GetByExternalID(ctx, domain.SourceTodoist, string(item.ID))
	if shared.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := p.store.Complete(ctx, task.ID, nil); err != nil {
		return err
	}
	if err := p.engine.UpdatePatterns(ctx); err != nil {
		p.logger.WarnContext(ctx, "pattern update failed", "error", err)
	}
	return nil
}

func (p *Pipeline) todoistDeleted(ctx context.Context, item todoistItem) error {
	task, err := p.store.GetByExternalID(ctx, domain.SourceTodoist, string(item.ID))
	if shared.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = p.store.Delete(ctx, task.ID)
	return err
}

func (p *Pipeline) linearCreated(ctx context.Context, issue linearIssue) error {
	if issue.ID == "" {
		return shared.NewValidationError("event data is missing the issue id")
	}
	if _, err := p.store.GetByExternalID(ctx, domain.SourceLinear, string(issue.ID)); err == nil {
		return nil
	} else if !shared.IsNotFound(err) {
		return err
	}

	priority := linearPriority(issue.Priority)
	_, err := p.store.Create(ctx, domain.CreateTaskInput{
		Content:     issue.Title,
		Description: issue.Description,
		Priority:    &priority,
		Source:      domain.SourceLinear,
		ExternalID:  string(issue.ID),
	})
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "created task from linear issue", "identifier", issue.Identifier)
	return nil
}

func (p *Pipeline) linearUpdated(ctx context.Context, issue linearIssue) error {
	task, err := p.store.GetByExternalID(ctx, domain.SourceLinear, string(issue.ID))
	if shared.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if issue.State.Type == "completed" {
		_, err = p.store.Complete(ctx, task.ID, nil)
		return err
	}

	in := domain.UpdateTaskInput{}
	if issue.Title != "" {
		in.Content = &issue.Title
	}
	if issue.Description != "" {
		in.Description = &issue.Description
	}
	priority := linearPriority(issue.Priority)
	in.Priority = &priority

	_, err = p.store.Update(ctx, task.ID, in)
	return err
}

func (p *Pipeline) linearRemoved(ctx context.Context, issue linearIssue) error {
	task, err := p.store.GetByExternalID(ctx, domain.SourceLinear, string(issue.ID))
	if shared.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = p.store.Delete(ctx, task.ID)
	return err
}

func (p *Pipeline) notify(eventType string, eventData json.RawMessage) {
	if p.notifier == nil {
		return
	}
	p.notifier.Enqueue(eventType, eventData)
}

func todoistDue(item todoistItem) string {
	if item.Due == nil {
		return ""
	}
	if item.Due.Datetime != "" {
		return item.Due.Datetime
	}
	return item.Due.Date
}

// linearPriority maps Linear's 0-4 scale (0 = none, 4 = urgent) onto the
// local 1-5 scale.
func linearPriority(p int) int {
	if p < 0 || p > 4 {
		return 1
	}
	return p + 1
}
