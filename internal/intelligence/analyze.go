package intelligence

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
)

// PriorityAdjustment suggests a priority change from content and deadline
// signals.
type PriorityAdjustment struct {
	Current    int     `json:"current"`
	Suggested  int     `json:"suggested"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// DurationEstimate is a keyword-based duration guess.
type DurationEstimate struct {
	EstimateMinutes int     `json:"estimate_minutes"`
	Reasoning       string  `json:"reasoning"`
	Confidence      float64 `json:"confidence"`
}

// OptimalTime suggests a time of day from historical completion patterns.
type OptimalTime struct {
	SuggestedTime string  `json:"suggested_time"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
}

// PotentialDependency is an active task whose content overlaps this one.
type PotentialDependency struct {
	TaskID               int64  `json:"task_id"`
	TaskContent          string `json:"task_content"`
	RelationshipStrength int    `json:"relationship_strength"`
}

// DependencyAnalysis lists likely prerequisite tasks.
type DependencyAnalysis struct {
	Dependencies []PotentialDependency `json:"dependencies"`
	Confidence   float64               `json:"confidence"`
}

// BreakdownSuggestion flags long or compound tasks for splitting.
type BreakdownSuggestion struct {
	ShouldBreakDown   bool     `json:"should_break_down"`
	SuggestedSubtasks []string `json:"suggested_subtasks,omitempty"`
	Confidence        float64  `json:"confidence"`
}

// ContextSuggestion proposes context tags from content.
type ContextSuggestion struct {
	SuggestedContexts []string `json:"suggested_contexts"`
	Confidence        float64  `json:"confidence"`
}

// TaskAnalysis bundles the sub-analyses for a newly created task. When
// AutoApply is set, Updates holds the merged high-confidence fields and
// callers are expected to apply it through the store.
type TaskAnalysis struct {
	PriorityAdjustment     PriorityAdjustment      `json:"priority_adjustment"`
	TimeEstimate           DurationEstimate        `json:"time_estimate"`
	OptimalSchedule        OptimalTime             `json:"optimal_schedule"`
	Dependencies           DependencyAnalysis      `json:"dependencies"`
	Breakdown              BreakdownSuggestion     `json:"breakdown_suggestions"`
	ContextRecommendations ContextSuggestion       `json:"context_recommendations"`
	AutoApply              bool                    `json:"auto_apply"`
	Updates                *domain.UpdateTaskInput `json:"updates,omitempty"`
}

var urgencyWords = []string{"urgent", "asap", "critical", "important", "deadline"}

var durationKeywords = []struct {
	words   []string
	minutes int
}{
	{[]string{"quick", "simple"}, 15},
	{[]string{"review", "check"}, 30},
	{[]string{"meeting", "call"}, 60},
	{[]string{"research", "analyze"}, 120},
	{[]string{"create", "build"}, 180},
}

var contextPatterns = []struct {
	tag string
	re  *regexp.Regexp
}{
	{"computer", regexp.MustCompile(`email|code|write|research|online`)},
	{"phone", regexp.MustCompile(`call|contact|reach out`)},
	{"meeting", regexp.MustCompile(`discuss|meet|present`)},
	{"focused", regexp.MustCompile(`analyze|create|plan|design`)},
}

// Per-field confidence thresholds for the merged auto-apply update, and
// the mean-confidence gate over the five sub-analyses.
const (
	autoApplyMeanThreshold    = 0.8
	priorityApplyThreshold    = 0.8
	durationApplyThreshold    = 0.7
	contextTagsApplyThreshold = 0.7
)

// AnalyzeNewTask runs five independent sub-analyses over the task, each
// with its own confidence in [0,1]. When the mean confidence exceeds 0.8
// the result carries auto_apply=true and a merged update restricted to
// fields whose individual confidence clears its per-field threshold.
func (e *Engine) AnalyzeNewTask(ctx context.Context, t *domain.Task) (*TaskAnalysis, error) {
	active, err := e.store.List(ctx, domain.TaskFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, err
	}

	analysis := &TaskAnalysis{
		PriorityAdjustment:     e.AnalyzePriority(t),
		TimeEstimate:           estimateDuration(t),
		OptimalSchedule:        e.suggestOptimalTime(ctx),
		Dependencies:           detectDependencies(t, active),
		Breakdown:              suggestBreakdown(t),
		ContextRecommendations: suggestContext(t),
	}

	mean := (analysis.PriorityAdjustment.Confidence +
		analysis.TimeEstimate.Confidence +
		analysis.OptimalSchedule.Confidence +
		analysis.Dependencies.Confidence +
		analysis.Breakdown.Confidence) / 5

	if mean > autoApplyMeanThreshold {
		analysis.AutoApply = true
		analysis.Updates = buildAutoUpdates(analysis)
	}
	return analysis, nil
}

// AnalyzePriority bumps the suggested priority for urgency keywords and
// deadline proximity. Confidence rises with each signal found. Exposed on
// its own because the sync pipeline re-checks priority after every inbound
// update.
func (e *Engine) AnalyzePriority(t *domain.Task) PriorityAdjustment {
	keywords := extractKeywords(t.Content)

	urgency := 0.0
	for _, word := range urgencyWords {
		if contains(keywords, word) {
			urgency = 1
			break
		}
	}

	deadline := 0.0
	if t.DueDate != nil {
		switch days := civilDays(e.Now(), *t.DueDate); {
		case days <= 1:
			deadline = 1
		case days <= 3:
			deadline = 0.5
		}
	}

	confidence := 0.7
	var reasons []string
	if urgency > 0 {
		confidence += 0.15
		reasons = append(reasons, "Contains urgency keywords")
	}
	if deadline > 0 {
		confidence += 0.1
		reasons = append(reasons, "Has approaching deadline")
	}

	suggested := int(math.Round(float64(t.Priority) + urgency + deadline))
	if suggested > domain.PriorityMax {
		suggested = domain.PriorityMax
	}

	return PriorityAdjustment{
		Current:    t.Priority,
		Suggested:  suggested,
		Reasoning:  strings.Join(reasons, ", "),
		Confidence: confidence,
	}
}

func estimateDuration(t *domain.Task) DurationEstimate {
	content := strings.ToLower(t.Content)
	for _, entry := range durationKeywords {
		for _, word := range entry.words {
			if strings.Contains(content, word) {
				return DurationEstimate{
					EstimateMinutes: entry.minutes,
					Reasoning:       "Based on task content analysis",
					Confidence:      0.85,
				}
			}
		}
	}
	return DurationEstimate{
		EstimateMinutes: 60,
		Reasoning:       "No duration signal in content, using the default",
		Confidence:      0.6,
	}
}

func (e *Engine) suggestOptimalTime(ctx context.Context) OptimalTime {
	patterns, err := e.CompletionPatterns(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "pattern lookup failed", "error", err)
	}
	if patterns != nil && len(patterns.OptimalHours) > 0 {
		return OptimalTime{
			SuggestedTime: fmt.Sprintf("%02d:00", patterns.OptimalHours[0]),
			Reasoning:     "Based on your completion patterns",
			Confidence:    0.8,
		}
	}
	return OptimalTime{
		SuggestedTime: "09:00",
		Reasoning:     "General productivity recommendation",
		Confidence:    0.4,
	}
}

// detectDependencies looks for active tasks sharing more than one content
// keyword. Finding nothing is itself a confident result.
func detectDependencies(t *domain.Task, active []*domain.Task) DependencyAnalysis {
	keywords := extractKeywords(t.Content)

	var deps []PotentialDependency
	for _, other := range active {
		if other.ID == t.ID {
			continue
		}
		overlap := overlapCount(keywords, extractKeywords(other.Content))
		if overlap > 1 {
			deps = append(deps, PotentialDependency{
				TaskID:               other.ID,
				TaskContent:          other.Content,
				RelationshipStrength: overlap,
			})
			if len(deps) == 3 {
				break
			}
		}
	}

	confidence := 0.9
	if len(deps) > 0 {
		confidence = 0.5
	}
	return DependencyAnalysis{Dependencies: deps, Confidence: confidence}
}

func suggestBreakdown(t *domain.Task) BreakdownSuggestion {
	content := t.Content
	compound := len(content) > 100 || strings.Contains(content, " and ") || strings.Contains(content, "&")
	if !compound {
		return BreakdownSuggestion{ShouldBreakDown: false, Confidence: 0.8}
	}

	var subtasks []string
	if strings.Contains(content, " and ") {
		for _, part := range strings.Split(content, " and ") {
			if part = strings.TrimSpace(part); part != "" {
				subtasks = append(subtasks, part)
			}
		}
	} else {
		head := content
		if len(head) > 50 {
			head = head[:50] + "..."
		}
		subtasks = []string{
			"Plan and research for: " + head,
			"Execute: " + head,
			"Review and finalize: " + head,
		}
	}

	return BreakdownSuggestion{
		ShouldBreakDown:   true,
		SuggestedSubtasks: subtasks,
		Confidence:        0.6,
	}
}

func suggestContext(t *domain.Task) ContextSuggestion {
	content := strings.ToLower(t.Content)
	var contexts []string
	for _, cp := range contextPatterns {
		if cp.re.MatchString(content) {
			contexts = append(contexts, cp.tag)
		}
	}

	confidence := 0.3
	if len(contexts) > 0 {
		confidence = 0.75
	}
	return ContextSuggestion{SuggestedContexts: contexts, Confidence: confidence}
}

// buildAutoUpdates merges the fields whose sub-analysis cleared its own
// threshold into an update the caller can apply through the store.
func buildAutoUpdates(a *TaskAnalysis) *domain.UpdateTaskInput {
	updates := &domain.UpdateTaskInput{}
	if a.PriorityAdjustment.Confidence > priorityApplyThreshold {
		suggested := a.PriorityAdjustment.Suggested
		updates.Priority = &suggested
	}
	if a.TimeEstimate.Confidence > durationApplyThreshold {
		minutes := a.TimeEstimate.EstimateMinutes
		updates.EstimatedDuration = &minutes
	}
	if a.ContextRecommendations.Confidence > contextTagsApplyThreshold && len(a.ContextRecommendations.SuggestedContexts) > 0 {
		tags := a.ContextRecommendations.SuggestedContexts
		updates.ContextTags = &tags
	}
	return updates
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "was": true, "were": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "are": true,
}

var wordSplit = regexp.MustCompile(`\W+`)

func extractKeywords(text string) []string {
	var keywords []string
	for _, word := range wordSplit.Split(strings.ToLower(text), -1) {
		if len(word) < 3 || stopwords[word] {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

func contains(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
	}
	return false
}

func overlapCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	count := 0
	for _, w := range b {
		if set[w] {
			count++
			set[w] = false
		}
	}
	return count
}
