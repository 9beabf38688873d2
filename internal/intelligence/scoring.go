package intelligence

import (
	"context"
	"sort"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
)

// ScoredTask pairs a task with its intelligence score.
type ScoredTask struct {
	*domain.Task
	IntelligenceScore float64 `json:"intelligence_score"`
}

// PrioritySuggestions is the ranked view over active tasks.
type PrioritySuggestions struct {
	HighPriority   []ScoredTask   `json:"high_priority"`
	MediumPriority []ScoredTask   `json:"medium_priority"`
	ContextBased   []ScoredTask   `json:"context_based"`
	EnergyMatched  []*domain.Task `json:"energy_matched"`
}

// Score computes the unbounded weighted-sum ranking value for t against
// the set of active tasks. The sum is deliberately unclamped: only the
// relative ordering matters.
//
// Components: priority x5, due-date urgency (overdue 25, today 20,
// within 2 days 15, within 7 days 10), energy-window match for the
// current hour (morning 15, afternoon 10, evening 8), project crowding
// capped at 10, and dependency fan-in at 3 per dependent capped at 10.
func (e *Engine) Score(t *domain.Task, active []*domain.Task, now time.Time) float64 {
	score := float64(t.Priority) * 5

	if t.DueDate != nil {
		switch days := civilDays(now, *t.DueDate); {
		case days < 0:
			score += 25
		case days == 0:
			score += 20
		case days <= 2:
			score += 15
		case days <= 7:
			score += 10
		}
	}

	switch hour := now.Hour(); {
	case hour >= 6 && hour <= 11 && t.EnergyLevel >= 4:
		score += 15
	case hour >= 12 && hour <= 17 && t.EnergyLevel == 3:
		score += 10
	case hour >= 18 && hour <= 22 && t.EnergyLevel <= 2:
		score += 8
	}

	if t.ProjectID != "" {
		siblings := 0
		for _, other := range active {
			if other.ProjectID == t.ProjectID {
				siblings++
			}
		}
		score += float64(min(siblings, 10))
	}

	dependents := 0
	for _, other := range active {
		if other.ID != t.ID && other.DependsOn(t.ID) {
			dependents++
		}
	}
	score += float64(min(dependents*3, 10))

	return score
}

// SuggestPriorities scores every active task and returns the top three as
// high priority, the next three as medium, plus two hour-of-day views.
func (e *Engine) SuggestPriorities(ctx context.Context) (*PrioritySuggestions, error) {
	active, err := e.store.List(ctx, domain.TaskFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, err
	}
	now := e.Now()

	scored := e.scoreAll(active, now)

	out := &PrioritySuggestions{
		HighPriority:   take(scored, 0, 3),
		MediumPriority: take(scored, 3, 3),
		ContextBased:   contextBandTasks(scored, now.Hour()),
		EnergyMatched:  energyMatchedTasks(active, now.Hour()),
	}
	return out, nil
}

// scoreAll scores the tasks and sorts descending. The sort is stable over
// the store's fetch order, which is the documented tie-break.
func (e *Engine) scoreAll(active []*domain.Task, now time.Time) []ScoredTask {
	scored := make([]ScoredTask, 0, len(active))
	for _, t := range active {
		scored = append(scored, ScoredTask{Task: t, IntelligenceScore: e.Score(t, active, now)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].IntelligenceScore > scored[j].IntelligenceScore
	})
	return scored
}

func take(scored []ScoredTask, offset, n int) []ScoredTask {
	if offset >= len(scored) {
		return nil
	}
	end := offset + n
	if end > len(scored) {
		end = len(scored)
	}
	return scored[offset:end]
}

// contextBandTasks returns the top three scored tasks whose energy level
// fits the current hour's band.
func contextBandTasks(scored []ScoredTask, hour int) []ScoredTask {
	low, high := contextBand(hour)
	var out []ScoredTask
	for _, st := range scored {
		if st.EnergyLevel >= low && st.EnergyLevel <= high {
			out = append(out, st)
			if len(out) == 3 {
				break
			}
		}
	}
	return out
}

func contextBand(hour int) (int, int) {
	switch {
	case hour >= 6 && hour <= 11:
		return 4, 5
	case hour >= 12 && hour <= 17:
		return 2, 3
	default:
		return 1, 2
	}
}

// energyMatchedTasks returns up to five active tasks matching the finer
// hour-of-day energy bands, in the store's priority order.
func energyMatchedTasks(active []*domain.Task, hour int) []*domain.Task {
	low, high := energyBand(hour)
	var out []*domain.Task
	for _, t := range active {
		if t.EnergyLevel >= low && t.EnergyLevel <= high {
			out = append(out, t)
			if len(out) == 5 {
				break
			}
		}
	}
	return out
}

func energyBand(hour int) (int, int) {
	switch {
	case hour >= 6 && hour <= 10:
		return 4, 5
	case hour >= 11 && hour <= 14:
		return 3, 4
	case hour >= 15 && hour <= 17:
		return 2, 3
	default:
		return 1, 2
	}
}
