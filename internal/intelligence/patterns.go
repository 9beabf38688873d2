package intelligence

import (
	"context"
	"math"
	"sort"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
)

// PatternSummary aggregates completion-time patterns: when tasks actually
// get finished and how estimates compare to reality.
type PatternSummary struct {
	OptimalHours []int   `json:"optimal_hours"`
	OptimalDays  []int   `json:"optimal_days"`
	AccuracyRate float64 `json:"accuracy_rate"`
	SampleSize   int     `json:"sample_size"`
}

// CompletionPatterns summarizes the recorded completion-time patterns.
// Returns an empty summary when nothing has been recorded yet.
func (e *Engine) CompletionPatterns(ctx context.Context) (*PatternSummary, error) {
	patterns, err := e.store.Patterns(ctx, domain.PatternTypeCompletionTime)
	if err != nil {
		return nil, err
	}
	summary := &PatternSummary{SampleSize: len(patterns)}
	if len(patterns) == 0 {
		return summary, nil
	}

	hourCounts := map[int]int{}
	dayCounts := map[int]int{}
	accurate, estimated := 0, 0
	for _, p := range patterns {
		hourCounts[p.Data.Hour]++
		dayCounts[p.Data.Day]++
		if p.Data.EstimatedDuration != nil && p.Data.ActualDuration != nil {
			estimated++
			est := float64(*p.Data.EstimatedDuration)
			actual := float64(*p.Data.ActualDuration)
			// Within 25% of the estimate counts as accurate.
			if math.Abs(actual-est) <= est*0.25 {
				accurate++
			}
		}
	}

	summary.OptimalHours = topBuckets(hourCounts, 3)
	summary.OptimalDays = topBuckets(dayCounts, 3)
	if estimated > 0 {
		summary.AccuracyRate = math.Round(float64(accurate)/float64(estimated)*1000) / 10
	}
	return summary, nil
}

// topBuckets returns up to n keys sorted by descending count, ties by
// ascending key so the result is deterministic.
func topBuckets(counts map[int]int, n int) []int {
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// UpdatePatterns scans completion events from the trailing 30 days and
// appends one aggregate pattern row per observed hour/weekday bucket,
// weighted by how often the bucket recurs. The rows are observational:
// repeated runs reinforce the same buckets rather than requiring
// deduplication.
func (e *Engine) UpdatePatterns(ctx context.Context) error {
	since := e.Now().AddDate(0, 0, -30)
	events, err := e.store.CompletionEventsSince(ctx, since)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		e.logger.InfoContext(ctx, "no recent completions, patterns unchanged")
		return nil
	}

	type bucket struct{ hour, day int }
	buckets := map[bucket]int{}
	for _, ev := range events {
		ts := ev.Timestamp.UTC()
		buckets[bucket{ts.Hour(), int(ts.Weekday())}]++
	}

	now := e.Now()
	for b, count := range buckets {
		pattern := &domain.UserPattern{
			Type: domain.PatternTypeCompletionTime,
			Data: domain.PatternData{
				Hour: b.hour,
				Day:  b.day,
			},
			Confidence:  math.Min(float64(count)/10, 1),
			LastUpdated: now,
		}
		if err := e.store.AppendPattern(ctx, pattern); err != nil {
			return err
		}
	}

	e.logger.InfoContext(ctx, "updated intelligence patterns",
		"completions", len(events), "buckets", len(buckets))
	return nil
}

// ProductivityScore blends the trailing week's completion rate, an overdue
// penalty and a consistency bonus into a [0,100] score.
func (e *Engine) ProductivityScore(ctx context.Context) (float64, error) {
	now := e.Now()
	weekAgo := now.AddDate(0, 0, -7)

	completed, err := e.store.CountCompletedBetween(ctx, weekAgo, now)
	if err != nil {
		return 0, err
	}
	created, err := e.store.CountCreatedBetween(ctx, weekAgo, now)
	if err != nil {
		return 0, err
	}
	overdue, err := e.store.CountOverdue(ctx)
	if err != nil {
		return 0, err
	}

	base := 50.0
	if created > 0 {
		base = float64(completed) / float64(created) * 100
	}

	bonus, err := e.consistencyBonus(ctx)
	if err != nil {
		return 0, err
	}

	score := base - float64(overdue)*5 + bonus
	score = math.Max(score, 0)
	score = math.Min(score, 100)
	return math.Round(score*10) / 10, nil
}

// consistencyBonus rewards completions concentrated in the same hours:
// up to 10 points proportional to the share of the most common hour, once
// at least three completions have been observed.
func (e *Engine) consistencyBonus(ctx context.Context) (float64, error) {
	patterns, err := e.store.Patterns(ctx, domain.PatternTypeCompletionTime)
	if err != nil {
		return 0, err
	}
	if len(patterns) < 3 {
		return 0, nil
	}
	hourCounts := map[int]int{}
	top := 0
	for _, p := range patterns {
		hourCounts[p.Data.Hour]++
		if hourCounts[p.Data.Hour] > top {
			top = hourCounts[p.Data.Hour]
		}
	}
	return float64(top) / float64(len(patterns)) * 10, nil
}

// CapacityAnalysis sizes the open backlog against a working week.
type CapacityAnalysis struct {
	TotalActiveTasks    int     `json:"total_active_tasks"`
	EstimatedTotalHours float64 `json:"estimated_total_hours"`
	CapacityStatus      string  `json:"capacity_status"`
	Recommendation      string  `json:"recommendation"`
}

// AnalyzeCapacity sums the estimated duration of every open task.
func (e *Engine) AnalyzeCapacity(ctx context.Context) (*CapacityAnalysis, error) {
	active, err := e.store.List(ctx, domain.TaskFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, err
	}

	total := 0
	for _, t := range active {
		total += t.EstimatedMinutes()
	}

	return &CapacityAnalysis{
		TotalActiveTasks:    len(active),
		EstimatedTotalHours: math.Round(float64(total)/60*10) / 10,
		CapacityStatus:      capacityStatus(total),
		Recommendation:      capacityRecommendation(total),
	}, nil
}

func capacityStatus(minutes int) string {
	switch {
	case minutes <= 480:
		return "light"
	case minutes <= 960:
		return "moderate"
	case minutes <= 1440:
		return "heavy"
	default:
		return "overloaded"
	}
}

func capacityRecommendation(minutes int) string {
	switch {
	case minutes <= 240:
		return "You have light workload. Good time to take on additional tasks or focus on long-term projects."
	case minutes <= 480:
		return "Moderate workload. Maintain current pace and prioritize effectively."
	case minutes <= 720:
		return "Heavy workload. Consider deferring non-essential tasks."
	default:
		return "Overloaded schedule. Urgent need to reschedule or delegate tasks."
	}
}

// QuickWins returns up to five open tasks estimated at 30 minutes or less,
// in the store's priority order.
func (e *Engine) QuickWins(ctx context.Context) ([]*domain.Task, error) {
	active, err := e.store.List(ctx, domain.TaskFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, err
	}
	var wins []*domain.Task
	for _, t := range active {
		if t.EstimatedDuration != nil && *t.EstimatedDuration <= 30 {
			wins = append(wins, t)
			if len(wins) == 5 {
				break
			}
		}
	}
	return wins, nil
}

// FullContext bundles the engine's views for a single planning response.
type FullContext struct {
	Priorities        *PrioritySuggestions `json:"priorities"`
	Overdue           *OverdueAnalysis     `json:"overdue"`
	Capacity          *CapacityAnalysis    `json:"capacity"`
	QuickWins         []*domain.Task       `json:"quick_wins"`
	Patterns          *PatternSummary      `json:"patterns"`
	UpcomingDeadlines []*domain.Task       `json:"upcoming_deadlines"`
	ProductivityScore float64              `json:"productivity_score"`
}

// BuildFullContext assembles the complete planning snapshot.
func (e *Engine) BuildFullContext(ctx context.Context) (*FullContext, error) {
	priorities, err := e.SuggestPriorities(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := e.AnalyzeOverdue(ctx)
	if err != nil {
		return nil, err
	}
	capacity, err := e.AnalyzeCapacity(ctx)
	if err != nil {
		return nil, err
	}
	wins, err := e.QuickWins(ctx)
	if err != nil {
		return nil, err
	}
	patterns, err := e.CompletionPatterns(ctx)
	if err != nil {
		return nil, err
	}
	deadlines, err := e.store.UpcomingDeadlines(ctx, 10)
	if err != nil {
		return nil, err
	}
	score, err := e.ProductivityScore(ctx)
	if err != nil {
		return nil, err
	}

	return &FullContext{
		Priorities:        priorities,
		Overdue:           overdue,
		Capacity:          capacity,
		QuickWins:         wins,
		Patterns:          patterns,
		UpcomingDeadlines: deadlines,
		ProductivityScore: score,
	}, nil
}
