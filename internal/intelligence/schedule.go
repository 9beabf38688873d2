package intelligence

import (
	"context"
	"math"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
)

// Block capacities for the daily schedule.
const (
	morningCapacity   = 3
	afternoonCapacity = 4
	eveningCapacity   = 2
)

// Workload summarizes the scheduled minutes for a day. Buffer tasks are
// excluded: they are overflow, not commitments.
type Workload struct {
	TotalMinutes int     `json:"total_minutes"`
	TotalHours   float64 `json:"total_hours"`
	Level        string  `json:"workload_level"`
}

// DailySchedule allocates tasks to energy-matched time blocks.
type DailySchedule struct {
	Date           string          `json:"date"`
	Morning        []ScoredTask    `json:"morning_block"`
	Afternoon      []ScoredTask    `json:"afternoon_block"`
	Evening        []ScoredTask    `json:"evening_block"`
	Buffer         []ScoredTask    `json:"buffer_tasks"`
	Workload       Workload        `json:"estimated_workload"`
	EnergyNotes    []string        `json:"energy_optimization"`
	CalendarEvents []CalendarEvent `json:"calendar_events,omitempty"`
}

// SuggestDailySchedule builds a schedule for date from active tasks due
// within three days of it (tasks without a due date always qualify).
//
// Placement is greedy first-fit in score order: morning takes up to three
// tasks with energy >= 4, afternoon up to four with energy >= 3, evening
// up to two regardless of energy, the rest lands in the buffer. Array
// order after the stable sort is the deterministic tie-break.
func (e *Engine) SuggestDailySchedule(ctx context.Context, date time.Time) (*DailySchedule, error) {
	active, err := e.store.List(ctx, domain.TaskFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, err
	}

	suitable := make([]*domain.Task, 0, len(active))
	for _, t := range active {
		if t.DueDate == nil || civilDays(date, *t.DueDate) <= 3 {
			suitable = append(suitable, t)
		}
	}

	scored := e.scoreAll(suitable, e.Now())

	sched := &DailySchedule{
		Date:           date.Format("2006-01-02"),
		CalendarEvents: e.eventsForDate(ctx, date),
	}
	for _, st := range scored {
		switch {
		case st.EnergyLevel >= 4 && len(sched.Morning) < morningCapacity:
			sched.Morning = append(sched.Morning, st)
		case st.EnergyLevel >= 3 && len(sched.Afternoon) < afternoonCapacity:
			sched.Afternoon = append(sched.Afternoon, st)
		case len(sched.Evening) < eveningCapacity:
			sched.Evening = append(sched.Evening, st)
		default:
			sched.Buffer = append(sched.Buffer, st)
		}
	}

	sched.Workload = summarizeWorkload(sched)
	sched.EnergyNotes = energyNotes(sched)
	return sched, nil
}

func summarizeWorkload(sched *DailySchedule) Workload {
	total := 0
	for _, block := range [][]ScoredTask{sched.Morning, sched.Afternoon, sched.Evening} {
		for _, st := range block {
			total += st.EstimatedMinutes()
		}
	}
	return Workload{
		TotalMinutes: total,
		TotalHours:   math.Round(float64(total)/60*10) / 10,
		Level:        workloadLevel(total),
	}
}

func workloadLevel(minutes int) string {
	switch {
	case minutes <= 240:
		return "light"
	case minutes <= 480:
		return "moderate"
	case minutes <= 600:
		return "heavy"
	default:
		return "overloaded"
	}
}

func energyNotes(sched *DailySchedule) []string {
	var notes []string

	morningEnergy := 0
	for _, st := range sched.Morning {
		morningEnergy += st.EnergyLevel
	}
	if morningEnergy < 10 {
		notes = append(notes, "Consider moving high-energy tasks to morning block")
	}

	eveningMinutes := 0
	for _, st := range sched.Evening {
		eveningMinutes += st.EstimatedMinutes()
	}
	if eveningMinutes > 120 {
		notes = append(notes, "Evening block may be too heavy - consider lighter tasks")
	}

	return notes
}
