package googlecalendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func TestEventsForDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calendars/primary/events", r.URL.Path)
		require.Equal(t, "Bearer cal-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2025-03-10T00:00:00Z", r.URL.Query().Get("timeMin"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"summary":"Standup","start":{"dateTime":"2025-03-10T09:00:00Z"},"end":{"dateTime":"2025-03-10T09:15:00Z"}},
			{"summary":"Company holiday","start":{"date":"2025-03-10"},"end":{"date":"2025-03-11"}},
			{"summary":"Design review","start":{"dateTime":"2025-03-10T14:00:00Z"},"end":{"dateTime":"2025-03-10T15:00:00Z"}}
		]}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("cal-token", nil, server.URL)
	events, err := client.EventsForDate(context.Background(), day)
	require.NoError(t, err)

	// The all-day entry has no schedulable window and is dropped.
	require.Len(t, events, 2)
	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, "Design review", events[1].Title)
}

func TestAvailableSlots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"summary":"Standup","start":{"dateTime":"2025-03-10T09:00:00Z"},"end":{"dateTime":"2025-03-10T09:30:00Z"}},
			{"summary":"Workshop","start":{"dateTime":"2025-03-10T10:00:00Z"},"end":{"dateTime":"2025-03-10T16:00:00Z"}}
		]}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("cal-token", nil, server.URL)
	slots, err := client.AvailableSlots(context.Background(), day, 60)
	require.NoError(t, err)

	// 08:00-09:00 before standup, 16:00-18:00 after the workshop. The
	// 09:30-10:00 gap is too short for an hour.
	require.Len(t, slots, 2)
	assert.Equal(t, 8, slots[0].Start.Hour())
	assert.Equal(t, 9, slots[0].End.Hour())
	assert.Equal(t, 16, slots[1].Start.Hour())
	assert.Equal(t, 18, slots[1].End.Hour())
}

func TestFreeSlots_EmptyDay(t *testing.T) {
	slots := freeSlots(day, nil, 30)
	require.Len(t, slots, 1)
	assert.Equal(t, workdayStartHour, slots[0].Start.Hour())
	assert.Equal(t, workdayEndHour, slots[0].End.Hour())
}

func TestFreeSlots_EventSpillsPastWindow(t *testing.T) {
	events := []intelligence.CalendarEvent{
		{Title: "Offsite", Start: day.Add(7 * time.Hour), End: day.Add(17 * time.Hour)},
	}
	slots := freeSlots(day, events, 60)
	require.Len(t, slots, 1)
	assert.Equal(t, 17, slots[0].Start.Hour())
}

func TestEventsForDate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("cal-token", nil, server.URL)
	_, err := client.EventsForDate(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}
