// Package googlecalendar provides calendar availability for the
// intelligence engine's daily scheduling.
package googlecalendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Working window considered when computing free slots.
const (
	workdayStartHour = 8
	workdayEndHour   = 18
)

// Client reads events from the user's primary calendar.
type Client struct {
	client     *http.Client
	baseURL    string
	calendarID string
	logger     *slog.Logger
}

// NewClient creates a calendar client authenticated with a static token.
func NewClient(token string, logger *slog.Logger) *Client {
	return NewClientWithBaseURL(token, logger, defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom base URL.
func NewClientWithBaseURL(token string, logger *slog.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &oauthTransport{
				base:   http.DefaultTransport,
				source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			},
		},
		baseURL:    baseURL,
		calendarID: "primary",
		logger:     logger,
	}
}

// WithCalendarID overrides the calendar queried.
func (c *Client) WithCalendarID(id string) *Client {
	if id != "" {
		c.calendarID = id
	}
	return c
}

// EventsForDate returns the day's timed events, ordered by start time.
// All-day events carry no schedulable window and are skipped.
func (c *Client) EventsForDate(ctx context.Context, date time.Time) ([]intelligence.CalendarEvent, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	listURL := fmt.Sprintf("%s/calendars/%s/events?timeMin=%s&timeMax=%s&singleEvents=true&orderBy=startTime",
		c.baseURL, c.calendarID,
		dayStart.Format(time.RFC3339), dayEnd.Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("calendar request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var payload struct {
		Items []struct {
			Summary string `json:"summary"`
			Start   struct {
				DateTime string `json:"dateTime"`
			} `json:"start"`
			End struct {
				DateTime string `json:"dateTime"`
			} `json:"end"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	events := make([]intelligence.CalendarEvent, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.Start.DateTime == "" || item.End.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			continue
		}
		events = append(events, intelligence.CalendarEvent{
			Title: item.Summary,
			Start: start.UTC(),
			End:   end.UTC(),
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// AvailableSlots returns the gaps of at least durationMinutes inside the
// working window, after subtracting the day's events.
func (c *Client) AvailableSlots(ctx context.Context, date time.Time, durationMinutes int) ([]intelligence.TimeSlot, error) {
	events, err := c.EventsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return freeSlots(date, events, durationMinutes), nil
}

// freeSlots walks the sorted events and collects the gaps between the
// working-window bounds that fit the requested duration.
func freeSlots(date time.Time, events []intelligence.CalendarEvent, durationMinutes int) []intelligence.TimeSlot {
	windowStart := time.Date(date.Year(), date.Month(), date.Day(), workdayStartHour, 0, 0, 0, time.UTC)
	windowEnd := time.Date(date.Year(), date.Month(), date.Day(), workdayEndHour, 0, 0, 0, time.UTC)
	minGap := time.Duration(durationMinutes) * time.Minute

	slots := []intelligence.TimeSlot{}
	cursor := windowStart
	for _, ev := range events {
		if !ev.End.After(cursor) || !ev.Start.Before(windowEnd) {
			continue
		}
		if ev.Start.Sub(cursor) >= minGap {
			slots = append(slots, intelligence.TimeSlot{Start: cursor, End: ev.Start})
		}
		if ev.End.After(cursor) {
			cursor = ev.End
		}
	}
	if windowEnd.Sub(cursor) >= minGap {
		slots = append(slots, intelligence.TimeSlot{Start: cursor, End: windowEnd})
	}
	return slots
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return t.base.RoundTrip(req)
}
