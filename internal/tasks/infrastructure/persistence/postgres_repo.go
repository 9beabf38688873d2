package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	external_id TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 1,
	due_date TIMESTAMPTZ,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	estimated_duration INTEGER,
	actual_duration INTEGER,
	energy_level INTEGER NOT NULL DEFAULT 3,
	context_tags JSONB NOT NULL DEFAULT '[]',
	labels JSONB NOT NULL DEFAULT '[]',
	dependencies JSONB NOT NULL DEFAULT '[]',
	sync_status TEXT NOT NULL DEFAULT 'synced',
	source TEXT NOT NULL DEFAULT 'manual',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS task_events (
	id BIGSERIAL PRIMARY KEY,
	task_id BIGINT NOT NULL,
	event_type TEXT NOT NULL,
	event_data JSONB,
	timestamp TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS user_patterns (
	id BIGSERIAL PRIMARY KEY,
	pattern_type TEXT NOT NULL,
	pattern_data JSONB NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_external_id
	ON tasks(source, external_id)
	WHERE external_id != '' AND sync_status != 'deleted';
CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);
CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
CREATE INDEX IF NOT EXISTS idx_task_events_type ON task_events(event_type);
`

const postgresTaskColumns = `id, external_id, content, description, project_id, priority,
	due_date, completed, estimated_duration, actual_duration, energy_level,
	context_tags, labels, dependencies, sync_status, source, created_at, updated_at`

// PostgresRepository implements domain.Repository on a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to PostgreSQL and bootstraps the schema.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Insert persists a new task and returns its assigned ID.
func (r *PostgresRepository) Insert(ctx context.Context, t *domain.Task) (int64, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (external_id, content, description, project_id, priority,
			due_date, completed, estimated_duration, actual_duration, energy_level,
			context_tags, labels, dependencies, sync_status, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		t.ExternalID, t.Content, t.Description, t.ProjectID, t.Priority,
		t.DueDate, t.Completed, t.EstimatedDuration, t.ActualDuration, t.EnergyLevel,
		mustJSON(t.ContextTags), mustJSON(t.Labels), mustJSON(t.Dependencies),
		string(t.SyncStatus), string(t.Source), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	).Scan(&t.ID)
	if err != nil {
		return 0, fmt.Errorf("inserting task: %w", err)
	}
	return t.ID, nil
}

// FindByID returns the task, or ErrTaskNotFound if absent or soft-deleted.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+postgresTaskColumns+` FROM tasks WHERE id = $1 AND sync_status != 'deleted'`, id)
	return scanPostgresTask(row)
}

// FindByExternalID looks up a non-deleted task by provider identity.
func (r *PostgresRepository) FindByExternalID(ctx context.Context, source domain.Source, externalID string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+postgresTaskColumns+` FROM tasks
		 WHERE source = $1 AND external_id = $2 AND external_id != '' AND sync_status != 'deleted'`,
		string(source), externalID)
	return scanPostgresTask(row)
}

// Find returns tasks matching the filter, ordered by priority then due date.
func (r *PostgresRepository) Find(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	query := `SELECT ` + postgresTaskColumns + ` FROM tasks WHERE sync_status != 'deleted'`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch filter.Status {
	case domain.StatusActive:
		query += ` AND completed = FALSE`
	case domain.StatusCompleted:
		query += ` AND completed = TRUE`
	}
	if filter.Project != "" {
		query += ` AND project_id = ` + arg(filter.Project)
	}
	if filter.Priority != 0 {
		query += ` AND priority = ` + arg(filter.Priority)
	}

	now := time.Now().UTC()
	today := startOfDay(now)
	switch filter.DueBucket {
	case domain.DueBucketToday:
		query += ` AND due_date >= ` + arg(today) + ` AND due_date < ` + arg(today.AddDate(0, 0, 1))
	case domain.DueBucketWeek:
		query += ` AND due_date >= ` + arg(today) + ` AND due_date < ` + arg(today.AddDate(0, 0, 7))
	case domain.DueBucketOverdue:
		query += ` AND due_date IS NOT NULL AND due_date < ` + arg(now)
	}

	query += ` ORDER BY priority ASC, due_date ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()
	return collectPostgresTasks(rows)
}

// Update applies the patch; false means zero rows were affected.
func (r *PostgresRepository) Update(ctx context.Context, id int64, patch domain.Patch, updatedAt time.Time) (bool, error) {
	args := []any{updatedAt.UTC()}
	sets := []string{"updated_at = $1"}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Content != nil {
		addSet("content", *patch.Content)
	}
	if patch.Description != nil {
		addSet("description", *patch.Description)
	}
	if patch.ProjectID != nil {
		addSet("project_id", *patch.ProjectID)
	}
	if patch.Priority != nil {
		addSet("priority", *patch.Priority)
	}
	if patch.DueDate != nil {
		addSet("due_date", patch.DueDate.UTC())
	} else if patch.ClearDueDate {
		addSet("due_date", nil)
	}
	if patch.Completed != nil {
		addSet("completed", *patch.Completed)
	}
	if patch.EstimatedDuration != nil {
		addSet("estimated_duration", *patch.EstimatedDuration)
	}
	if patch.ActualDuration != nil {
		addSet("actual_duration", *patch.ActualDuration)
	}
	if patch.EnergyLevel != nil {
		addSet("energy_level", *patch.EnergyLevel)
	}
	if patch.ContextTags != nil {
		addSet("context_tags", mustJSON(*patch.ContextTags))
	}
	if patch.Labels != nil {
		addSet("labels", mustJSON(*patch.Labels))
	}
	if patch.Dependencies != nil {
		addSet("dependencies", mustJSON(*patch.Dependencies))
	}
	if patch.SyncStatus != nil {
		addSet("sync_status", string(*patch.SyncStatus))
	}

	args = append(args, id)
	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d AND sync_status != 'deleted'`,
			strings.Join(sets, ", "), len(args)),
		args...)
	if err != nil {
		return false, fmt.Errorf("updating task %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountActive counts open tasks.
func (r *PostgresRepository) CountActive(ctx context.Context) (int, error) {
	return r.countWhere(ctx, `completed = FALSE AND sync_status != 'deleted'`)
}

// CountOverdue counts open tasks whose due date has passed.
func (r *PostgresRepository) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	return r.countWhere(ctx,
		`completed = FALSE AND sync_status != 'deleted' AND due_date IS NOT NULL AND due_date < $1`,
		now.UTC())
}

// CountDueToday counts open tasks due within the current day.
func (r *PostgresRepository) CountDueToday(ctx context.Context, now time.Time) (int, error) {
	today := startOfDay(now.UTC())
	return r.countWhere(ctx,
		`completed = FALSE AND sync_status != 'deleted' AND due_date >= $1 AND due_date < $2`,
		today, today.AddDate(0, 0, 1))
}

// CountHighPriority counts open tasks with priority 4 or 5.
func (r *PostgresRepository) CountHighPriority(ctx context.Context) (int, error) {
	return r.countWhere(ctx, `completed = FALSE AND sync_status != 'deleted' AND priority >= 4`)
}

// CountCreatedBetween counts all tasks created in the window.
func (r *PostgresRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countWhere(ctx, `created_at >= $1 AND created_at <= $2`, from.UTC(), to.UTC())
}

// CountCompletedBetween counts tasks completed in the window.
func (r *PostgresRepository) CountCompletedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countWhere(ctx, `completed = TRUE AND updated_at >= $1 AND updated_at <= $2`,
		from.UTC(), to.UTC())
}

// AvgActualDurationBetween averages actual durations of tasks completed in
// the window.
func (r *PostgresRepository) AvgActualDurationBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var avg *float64
	err := r.pool.QueryRow(ctx,
		`SELECT AVG(actual_duration) FROM tasks
		 WHERE completed = TRUE AND updated_at >= $1 AND updated_at <= $2`,
		from.UTC(), to.UTC()).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("averaging completion time: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// UpcomingDeadlines returns open tasks with a future due date, soonest first.
func (r *PostgresRepository) UpcomingDeadlines(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+postgresTaskColumns+` FROM tasks
		 WHERE completed = FALSE AND sync_status != 'deleted' AND due_date > $1
		 ORDER BY due_date ASC LIMIT $2`,
		now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying upcoming deadlines: %w", err)
	}
	defer rows.Close()
	return collectPostgresTasks(rows)
}

// AppendEvent writes an audit record.
func (r *PostgresRepository) AppendEvent(ctx context.Context, e *domain.TaskEvent) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO task_events (task_id, event_type, event_data, timestamp)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		e.TaskID, string(e.Type), nullableJSON(e.Data), e.Timestamp.UTC()).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("appending task event: %w", err)
	}
	return nil
}

// RecentActivity joins recent events with task content, newest first.
func (r *PostgresRepository) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.task_id, e.event_type, e.event_data, e.timestamp, t.content
		 FROM task_events e JOIN tasks t ON t.id = e.task_id
		 ORDER BY e.timestamp DESC, e.id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent activity: %w", err)
	}
	defer rows.Close()

	entries := []domain.ActivityEntry{}
	for rows.Next() {
		var (
			entry     domain.ActivityEntry
			eventType string
			data      []byte
		)
		if err := rows.Scan(&entry.ID, &entry.TaskID, &eventType, &data, &entry.Timestamp, &entry.TaskContent); err != nil {
			return nil, err
		}
		entry.Type = domain.EventType(eventType)
		entry.Data = data
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// EventsSince returns events of one type recorded after since.
func (r *PostgresRepository) EventsSince(ctx context.Context, eventType domain.EventType, since time.Time) ([]domain.TaskEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, task_id, event_type, event_data, timestamp FROM task_events
		 WHERE event_type = $1 AND timestamp >= $2 ORDER BY timestamp ASC`,
		string(eventType), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []domain.TaskEvent{}
	for rows.Next() {
		var (
			e    domain.TaskEvent
			kind string
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &kind, &data, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(kind)
		e.Data = data
		events = append(events, e)
	}
	return events, rows.Err()
}

// AppendPattern records an observational pattern row.
func (r *PostgresRepository) AppendPattern(ctx context.Context, p *domain.UserPattern) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("encoding pattern data: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO user_patterns (pattern_type, pattern_data, confidence_score, last_updated)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Type, data, p.Confidence, p.LastUpdated.UTC()).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("appending pattern: %w", err)
	}
	return nil
}

// PatternsByType returns all patterns of the given type.
func (r *PostgresRepository) PatternsByType(ctx context.Context, patternType string) ([]domain.UserPattern, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, pattern_type, pattern_data, confidence_score, last_updated
		 FROM user_patterns WHERE pattern_type = $1`, patternType)
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	patterns := []domain.UserPattern{}
	for rows.Next() {
		var (
			p    domain.UserPattern
			data []byte
		)
		if err := rows.Scan(&p.ID, &p.Type, &data, &p.Confidence, &p.LastUpdated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &p.Data); err != nil {
			return nil, fmt.Errorf("decoding pattern data: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (r *PostgresRepository) countWhere(ctx context.Context, where string, args ...any) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return count, nil
}

func scanPostgresTask(row pgx.Row) (*domain.Task, error) {
	var (
		t                  domain.Task
		tags, labels, deps []byte
		syncStatus, source string
	)
	err := row.Scan(&t.ID, &t.ExternalID, &t.Content, &t.Description, &t.ProjectID,
		&t.Priority, &t.DueDate, &t.Completed, &t.EstimatedDuration, &t.ActualDuration,
		&t.EnergyLevel, &tags, &labels, &deps, &syncStatus, &source, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	t.SyncStatus = domain.SyncStatus(syncStatus)
	t.Source = domain.Source(source)
	if err := json.Unmarshal(tags, &t.ContextTags); err != nil {
		return nil, fmt.Errorf("invalid context_tags: %w", err)
	}
	if err := json.Unmarshal(labels, &t.Labels); err != nil {
		return nil, fmt.Errorf("invalid labels: %w", err)
	}
	if err := json.Unmarshal(deps, &t.Dependencies); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &t, nil
}

func collectPostgresTasks(rows pgx.Rows) ([]*domain.Task, error) {
	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanPostgresTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
