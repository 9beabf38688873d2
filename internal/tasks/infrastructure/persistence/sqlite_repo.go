// Package persistence provides the durable storage implementations of the
// task repository: SQLite for local mode and PostgreSQL for server mode.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 1,
	due_date TEXT,
	completed INTEGER NOT NULL DEFAULT 0,
	estimated_duration INTEGER,
	actual_duration INTEGER,
	energy_level INTEGER NOT NULL DEFAULT 3,
	context_tags TEXT NOT NULL DEFAULT '[]',
	labels TEXT NOT NULL DEFAULT '[]',
	dependencies TEXT NOT NULL DEFAULT '[]',
	sync_status TEXT NOT NULL DEFAULT 'synced',
	source TEXT NOT NULL DEFAULT 'manual',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	event_data TEXT,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_patterns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_type TEXT NOT NULL,
	pattern_data TEXT NOT NULL,
	confidence_score REAL NOT NULL,
	last_updated TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_external_id
	ON tasks(source, external_id)
	WHERE external_id != '' AND sync_status != 'deleted';
CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);
CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
CREATE INDEX IF NOT EXISTS idx_task_events_type ON task_events(event_type);
`

const sqliteTaskColumns = `id, external_id, content, description, project_id, priority,
	due_date, completed, estimated_duration, actual_duration, energy_level,
	context_tags, labels, dependencies, sync_status, source, created_at, updated_at`

// SQLiteRepository implements domain.Repository on an embedded SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (and bootstraps) the SQLite database at path.
// Use ":memory:" for tests.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the underlying database handle.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

// Insert persists a new task and returns its assigned ID.
func (r *SQLiteRepository) Insert(ctx context.Context, t *domain.Task) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (external_id, content, description, project_id, priority,
			due_date, completed, estimated_duration, actual_duration, energy_level,
			context_tags, labels, dependencies, sync_status, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ExternalID, t.Content, t.Description, t.ProjectID, t.Priority,
		sqliteTime(t.DueDate), boolToInt(t.Completed), t.EstimatedDuration, t.ActualDuration,
		t.EnergyLevel, mustJSON(t.ContextTags), mustJSON(t.Labels), mustJSON(t.Dependencies),
		string(t.SyncStatus), string(t.Source),
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}
	t.ID = id
	return id, nil
}

// FindByID returns the task, or ErrTaskNotFound if absent or soft-deleted.
func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ? AND sync_status != 'deleted'`, id)
	return scanSQLiteTask(row)
}

// FindByExternalID looks up a non-deleted task by provider identity.
func (r *SQLiteRepository) FindByExternalID(ctx context.Context, source domain.Source, externalID string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks
		 WHERE source = ? AND external_id = ? AND external_id != '' AND sync_status != 'deleted'`,
		string(source), externalID)
	return scanSQLiteTask(row)
}

// Find returns tasks matching the filter, ordered by priority then due date,
// both ascending.
func (r *SQLiteRepository) Find(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks WHERE sync_status != 'deleted'`
	args := []any{}

	switch filter.Status {
	case domain.StatusActive:
		query += ` AND completed = 0`
	case domain.StatusCompleted:
		query += ` AND completed = 1`
	}
	if filter.Project != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.Project)
	}
	if filter.Priority != 0 {
		query += ` AND priority = ?`
		args = append(args, filter.Priority)
	}

	now := time.Now().UTC()
	today := startOfDay(now)
	switch filter.DueBucket {
	case domain.DueBucketToday:
		query += ` AND due_date >= ? AND due_date < ?`
		args = append(args, sqliteTimeValue(today), sqliteTimeValue(today.AddDate(0, 0, 1)))
	case domain.DueBucketWeek:
		query += ` AND due_date >= ? AND due_date < ?`
		args = append(args, sqliteTimeValue(today), sqliteTimeValue(today.AddDate(0, 0, 7)))
	case domain.DueBucketOverdue:
		query += ` AND due_date IS NOT NULL AND due_date < ?`
		args = append(args, sqliteTimeValue(now))
	}

	query += ` ORDER BY priority ASC, due_date ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()
	return collectSQLiteTasks(rows)
}

// Update applies the patch; false means zero rows were affected.
func (r *SQLiteRepository) Update(ctx context.Context, id int64, patch domain.Patch, updatedAt time.Time) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{updatedAt.UTC().Format(time.RFC3339)}

	addSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
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
		addSet("due_date", sqliteTimeValue(*patch.DueDate))
	} else if patch.ClearDueDate {
		addSet("due_date", nil)
	}
	if patch.Completed != nil {
		addSet("completed", boolToInt(*patch.Completed))
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
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND sync_status != 'deleted'`,
		args...)
	if err != nil {
		return false, fmt.Errorf("updating task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CountActive counts open tasks.
func (r *SQLiteRepository) CountActive(ctx context.Context) (int, error) {
	return r.countWhere(ctx, `completed = 0 AND sync_status != 'deleted'`)
}

// CountOverdue counts open tasks whose due date has passed.
func (r *SQLiteRepository) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	return r.countWhere(ctx,
		`completed = 0 AND sync_status != 'deleted' AND due_date IS NOT NULL AND due_date < ?`,
		sqliteTimeValue(now))
}

// CountDueToday counts open tasks due within the current day.
func (r *SQLiteRepository) CountDueToday(ctx context.Context, now time.Time) (int, error) {
	today := startOfDay(now.UTC())
	return r.countWhere(ctx,
		`completed = 0 AND sync_status != 'deleted' AND due_date >= ? AND due_date < ?`,
		sqliteTimeValue(today), sqliteTimeValue(today.AddDate(0, 0, 1)))
}

// CountHighPriority counts open tasks with priority 4 or 5.
func (r *SQLiteRepository) CountHighPriority(ctx context.Context) (int, error) {
	return r.countWhere(ctx, `completed = 0 AND sync_status != 'deleted' AND priority >= 4`)
}

// CountCreatedBetween counts all tasks created in the window, soft-deleted
// included: deleted tasks are retained for analytics.
func (r *SQLiteRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countWhere(ctx, `created_at >= ? AND created_at <= ?`,
		sqliteTimeValue(from), sqliteTimeValue(to))
}

// CountCompletedBetween counts tasks completed in the window.
func (r *SQLiteRepository) CountCompletedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countWhere(ctx, `completed = 1 AND updated_at >= ? AND updated_at <= ?`,
		sqliteTimeValue(from), sqliteTimeValue(to))
}

// AvgActualDurationBetween averages actual durations of tasks completed in
// the window; zero when none recorded one.
func (r *SQLiteRepository) AvgActualDurationBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT AVG(actual_duration) FROM tasks
		 WHERE completed = 1 AND updated_at >= ? AND updated_at <= ?`,
		sqliteTimeValue(from), sqliteTimeValue(to)).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("averaging completion time: %w", err)
	}
	return avg.Float64, nil
}

// UpcomingDeadlines returns open tasks with a future due date, soonest first.
func (r *SQLiteRepository) UpcomingDeadlines(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks
		 WHERE completed = 0 AND sync_status != 'deleted' AND due_date > ?
		 ORDER BY due_date ASC LIMIT ?`,
		sqliteTimeValue(now), limit)
	if err != nil {
		return nil, fmt.Errorf("querying upcoming deadlines: %w", err)
	}
	defer rows.Close()
	return collectSQLiteTasks(rows)
}

// AppendEvent writes an audit record. Events are never updated or deleted.
func (r *SQLiteRepository) AppendEvent(ctx context.Context, e *domain.TaskEvent) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO task_events (task_id, event_type, event_data, timestamp) VALUES (?, ?, ?, ?)`,
		e.TaskID, string(e.Type), nullableJSON(e.Data), e.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending task event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// RecentActivity joins recent events with the content of the task they
// describe, newest first. Soft-deleted tasks still appear.
func (r *SQLiteRepository) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.task_id, e.event_type, e.event_data, e.timestamp, t.content
		 FROM task_events e JOIN tasks t ON t.id = e.task_id
		 ORDER BY e.timestamp DESC, e.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent activity: %w", err)
	}
	defer rows.Close()

	entries := []domain.ActivityEntry{}
	for rows.Next() {
		var (
			entry     domain.ActivityEntry
			eventType string
			data      sql.NullString
			ts        string
		)
		if err := rows.Scan(&entry.ID, &entry.TaskID, &eventType, &data, &ts, &entry.TaskContent); err != nil {
			return nil, err
		}
		entry.Type = domain.EventType(eventType)
		if data.Valid {
			entry.Data = json.RawMessage(data.String)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid event timestamp: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// EventsSince returns events of one type recorded after since.
func (r *SQLiteRepository) EventsSince(ctx context.Context, eventType domain.EventType, since time.Time) ([]domain.TaskEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, event_type, event_data, timestamp FROM task_events
		 WHERE event_type = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		string(eventType), sqliteTimeValue(since))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []domain.TaskEvent{}
	for rows.Next() {
		var (
			e    domain.TaskEvent
			kind string
			data sql.NullString
			ts   string
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &kind, &data, &ts); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(kind)
		if data.Valid {
			e.Data = json.RawMessage(data.String)
		}
		e.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid event timestamp: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// AppendPattern records an observational pattern row.
func (r *SQLiteRepository) AppendPattern(ctx context.Context, p *domain.UserPattern) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("encoding pattern data: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO user_patterns (pattern_type, pattern_data, confidence_score, last_updated)
		 VALUES (?, ?, ?, ?)`,
		p.Type, string(data), p.Confidence, p.LastUpdated.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending pattern: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		p.ID = id
	}
	return nil
}

// PatternsByType returns all patterns of the given type.
func (r *SQLiteRepository) PatternsByType(ctx context.Context, patternType string) ([]domain.UserPattern, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, pattern_type, pattern_data, confidence_score, last_updated
		 FROM user_patterns WHERE pattern_type = ?`, patternType)
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	patterns := []domain.UserPattern{}
	for rows.Next() {
		var (
			p    domain.UserPattern
			data string
			ts   string
		)
		if err := rows.Scan(&p.ID, &p.Type, &data, &p.Confidence, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &p.Data); err != nil {
			return nil, fmt.Errorf("decoding pattern data: %w", err)
		}
		p.LastUpdated, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern timestamp: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (r *SQLiteRepository) countWhere(ctx context.Context, where string, args ...any) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (*domain.Task, error) {
	var (
		t                    domain.Task
		dueDate              sql.NullString
		completed            int
		estimated, actual    sql.NullInt64
		tags, labels, deps   string
		syncStatus, source   string
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.ExternalID, &t.Content, &t.Description, &t.ProjectID,
		&t.Priority, &dueDate, &completed, &estimated, &actual, &t.EnergyLevel,
		&tags, &labels, &deps, &syncStatus, &source, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	t.Completed = completed != 0
	t.SyncStatus = domain.SyncStatus(syncStatus)
	t.Source = domain.Source(source)
	if estimated.Valid {
		v := int(estimated.Int64)
		t.EstimatedDuration = &v
	}
	if actual.Valid {
		v := int(actual.Int64)
		t.ActualDuration = &v
	}
	if dueDate.Valid {
		ts, err := time.Parse(time.RFC3339, dueDate.String)
		if err != nil {
			return nil, fmt.Errorf("invalid due_date: %w", err)
		}
		t.DueDate = &ts
	}
	if err := json.Unmarshal([]byte(tags), &t.ContextTags); err != nil {
		return nil, fmt.Errorf("invalid context_tags: %w", err)
	}
	if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
		return nil, fmt.Errorf("invalid labels: %w", err)
	}
	if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}
	return &t, nil
}

func collectSQLiteTasks(rows *sql.Rows) ([]*domain.Task, error) {
	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func sqliteTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return sqliteTimeValue(*t)
}

func sqliteTimeValue(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	if string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
