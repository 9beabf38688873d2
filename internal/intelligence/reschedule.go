package intelligence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
)

// RescheduleSuggestion proposes a new due date for an overdue task.
type RescheduleSuggestion struct {
	TaskID        int64  `json:"task_id"`
	TaskContent   string `json:"task_content"`
	DaysOverdue   int    `json:"days_overdue"`
	SuggestedDate string `json:"suggested_date"`
}

// OverdueAnalysis aggregates the state of all overdue open tasks.
type OverdueAnalysis struct {
	TotalOverdue          int                    `json:"total_overdue"`
	CriticalOverdue       int                    `json:"critical_overdue"`
	AvgOverdueDays        float64                `json:"avg_overdue_days"`
	DependencyBlocks      int                    `json:"dependency_blocks"`
	ProjectImpact         map[string]int         `json:"project_impact"`
	RescheduleSuggestions []RescheduleSuggestion `json:"reschedule_suggestions"`
}

// AnalyzeOverdue reports on every open task with a due date in the past:
// totals, the critical subset (priority >= 4), how many other open tasks
// are blocked on one of them, and a reschedule suggestion per task.
func (e *Engine) AnalyzeOverdue(ctx context.Context) (*OverdueAnalysis, error) {
	active, err := e.store.List(ctx, domain.TaskFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, err
	}
	now := e.Now()

	var overdue []*domain.Task
	for _, t := range active {
		if t.DueDate != nil && t.DueDate.Before(now) {
			overdue = append(overdue, t)
		}
	}

	analysis := &OverdueAnalysis{
		TotalOverdue:          len(overdue),
		ProjectImpact:         map[string]int{},
		RescheduleSuggestions: []RescheduleSuggestion{},
	}

	totalDays := 0
	for _, t := range overdue {
		days := int(now.Sub(*t.DueDate).Hours() / 24)
		totalDays += days
		if t.Priority >= 4 {
			analysis.CriticalOverdue++
		}
		if t.ProjectID != "" {
			analysis.ProjectImpact[t.ProjectID]++
		}
		analysis.RescheduleSuggestions = append(analysis.RescheduleSuggestions,
			e.rescheduleSuggestion(t, days, now))
	}
	if len(overdue) > 0 {
		analysis.AvgOverdueDays = math.Round(float64(totalDays)/float64(len(overdue))*10) / 10
	}

	for _, t := range active {
		for _, o := range overdue {
			if t.ID != o.ID && t.DependsOn(o.ID) {
				analysis.DependencyBlocks++
				break
			}
		}
	}

	return analysis, nil
}

// rescheduleSuggestion moves critical tasks to tomorrow, everything else
// three days out.
func (e *Engine) rescheduleSuggestion(t *domain.Task, daysOverdue int, now time.Time) RescheduleSuggestion {
	slack := 3
	if t.Priority >= 4 {
		slack = 1
	}
	return RescheduleSuggestion{
		TaskID:        t.ID,
		TaskContent:   t.Content,
		DaysOverdue:   daysOverdue,
		SuggestedDate: now.AddDate(0, 0, slack).Format("2006-01-02"),
	}
}

// ScheduleConflict names a task already committed to the target date.
type ScheduleConflict struct {
	TaskID           int64  `json:"task_id"`
	TaskContent      string `json:"task_content"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// RescheduleResult reports feasibility and whether the due date was moved.
// Rescheduled distinguishes "advisory only" from "already applied".
type RescheduleResult struct {
	Feasible        bool               `json:"feasible"`
	Conflicts       []ScheduleConflict `json:"conflicts"`
	Alternatives    []string           `json:"alternatives"`
	ImpactScore     float64            `json:"impact_score"`
	Recommendations []string           `json:"recommendations"`
	Rescheduled     bool               `json:"rescheduled"`
}

// SmartReschedule evaluates moving a task's due date to newDate and, when
// the move is conflict-free and the impact score exceeds 0.7, applies it
// immediately through the store. Otherwise the call is read-only.
//
// The impact score is 0.5 + 0.05 per day of slack gained minus 0.03 per
// hour already scheduled on the target date, clamped to [0,1]: more slack
// and less crowding always score higher.
func (e *Engine) SmartReschedule(ctx context.Context, taskID int64, newDate time.Time) (*RescheduleResult, error) {
	task, err := e.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	active, err := e.store.List(ctx, domain.TaskFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, err
	}

	sameDay, scheduledMinutes := tasksDueOn(active, newDate, taskID)

	result := &RescheduleResult{
		Conflicts:    []ScheduleConflict{},
		Alternatives: []string{},
	}

	if scheduledMinutes+task.EstimatedMinutes() > e.dayCapacity {
		for _, t := range sameDay {
			result.Conflicts = append(result.Conflicts, ScheduleConflict{
				TaskID:           t.ID,
				TaskContent:      t.Content,
				EstimatedMinutes: t.EstimatedMinutes(),
			})
		}
	}
	result.Feasible = len(result.Conflicts) == 0

	slack := civilDays(e.Now(), newDate)
	if slack < 0 {
		slack = 0
	}
	workloadHours := float64(scheduledMinutes) / 60
	result.ImpactScore = clamp01(0.5 + 0.05*float64(slack) - 0.03*workloadHours)

	if !result.Feasible {
		result.Alternatives = e.alternativeDates(active, newDate, task.EstimatedMinutes(), taskID, 3)
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("Target date exceeds the %d-minute daily capacity, consider an alternative", e.dayCapacity))
	}
	if slack == 0 {
		result.Recommendations = append(result.Recommendations, "New date adds no slack; the task stays at risk of going overdue")
	}
	if result.Feasible && result.ImpactScore > 0.7 {
		due := newDate.Format(time.RFC3339)
		if _, err := e.store.Update(ctx, taskID, domain.UpdateTaskInput{DueDate: &due}); err != nil {
			return nil, err
		}
		result.Rescheduled = true
		result.Recommendations = append(result.Recommendations, "Due date moved automatically")
	}

	return result, nil
}

// alternativeDates scans forward from newDate for up to n days with
// enough remaining capacity for the task.
func (e *Engine) alternativeDates(active []*domain.Task, newDate time.Time, estMinutes int, excludeID int64, n int) []string {
	alternatives := []string{}
	for offset := 1; offset <= 14 && len(alternatives) < n; offset++ {
		candidate := newDate.AddDate(0, 0, offset)
		_, scheduled := tasksDueOn(active, candidate, excludeID)
		if scheduled+estMinutes <= e.dayCapacity {
			alternatives = append(alternatives, candidate.Format("2006-01-02"))
		}
	}
	return alternatives
}

// tasksDueOn returns the active tasks (minus excludeID) due on the same
// calendar day as date, with their summed estimated minutes.
func tasksDueOn(active []*domain.Task, date time.Time, excludeID int64) ([]*domain.Task, int) {
	var due []*domain.Task
	total := 0
	for _, t := range active {
		if t.ID == excludeID || t.DueDate == nil {
			continue
		}
		if civilDays(date, *t.DueDate) == 0 {
			due = append(due, t)
			total += t.EstimatedMinutes()
		}
	}
	return due, total
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
