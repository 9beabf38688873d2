// Package intelligence ranks, schedules and analyzes tasks with a set of
// heuristics over the task store's data. The engine is stateless between
// calls except for the pattern feedback loop, and it never writes to
// storage directly: every mutation goes through the store.
package intelligence

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
)

// CalendarEvent is an external calendar entry for a day.
type CalendarEvent struct {
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TimeSlot is a free window on a day.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarSource provides external calendar availability. The engine
// depends on this capability abstractly; concrete providers live in
// adapter packages.
type CalendarSource interface {
	EventsForDate(ctx context.Context, date time.Time) ([]CalendarEvent, error)
	AvailableSlots(ctx context.Context, date time.Time, durationMinutes int) ([]TimeSlot, error)
}

// DefaultDayCapacityMinutes is the scheduling capacity of one day.
const DefaultDayCapacityMinutes = 480

// Engine computes scores, schedules and task analyses.
type Engine struct {
	store       *application.Store
	calendar    CalendarSource
	logger      *slog.Logger
	now         func() time.Time
	dayCapacity int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDayCapacity overrides the per-day scheduling capacity in minutes.
func WithDayCapacity(minutes int) Option {
	return func(e *Engine) {
		if minutes > 0 {
			e.dayCapacity = minutes
		}
	}
}

// NewEngine wires the engine. calendar may be nil when no calendar
// integration is configured.
func NewEngine(store *application.Store, calendar CalendarSource, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:       store,
		calendar:    calendar,
		logger:      logger,
		now:         time.Now,
		dayCapacity: DefaultDayCapacityMinutes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time { return e.now().UTC() }

// civilDays returns the whole-day calendar distance from a to b, negative
// when b is before a. Day boundaries, not 24-hour spans, so "due tomorrow
// at 00:05" is one day away even late tonight.
func civilDays(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

func (e *Engine) eventsForDate(ctx context.Context, date time.Time) []CalendarEvent {
	if e.calendar == nil {
		return nil
	}
	events, err := e.calendar.EventsForDate(ctx, date)
	if err != nil {
		e.logger.WarnContext(ctx, "calendar lookup failed, scheduling without events",
			"date", date.Format("2006-01-02"), "error", err)
		return nil
	}
	return events
}
