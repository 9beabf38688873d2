package domain

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestCreateTaskInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateTaskInput
		wantMsg string
	}{
		{"valid", CreateTaskInput{Content: "Write report", Priority: intPtr(3)}, ""},
		{"missing content", CreateTaskInput{}, "content is required"},
		{"blank content", CreateTaskInput{Content: "   "}, "content is required"},
		{"priority too high", CreateTaskInput{Content: "x", Priority: intPtr(6)}, "priority must be at most 5"},
		{"priority too low", CreateTaskInput{Content: "x", Priority: intPtr(0)}, "priority must be at least 1"},
		{"energy out of range", CreateTaskInput{Content: "x", EnergyLevel: intPtr(9)}, "energylevel must be at most 5"},
		{"zero duration", CreateTaskInput{Content: "x", EstimatedDuration: intPtr(0)}, "estimatedduration must be greater than 0"},
		{"content too long", CreateTaskInput{Content: strings.Repeat("a", 1001)}, "content must be less than 1000 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.input.Validate()
			if tt.wantMsg == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			assert.Contains(t, strings.Join(errs, ", "), tt.wantMsg)
		})
	}
}

func TestUpdateTaskInput_Validate(t *testing.T) {
	blank := "  "
	assert.NotEmpty(t, (&UpdateTaskInput{Content: &blank}).Validate())

	ok := "new content"
	assert.Empty(t, (&UpdateTaskInput{Content: &ok, Priority: intPtr(5)}).Validate())
	assert.NotEmpty(t, (&UpdateTaskInput{Priority: intPtr(7)}).Validate())
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Write report", SanitizeText("  Write   report  ", ContentMaxLength))
	assert.Equal(t, "scriptalert(1)/script", SanitizeText(`<script>alert("1")</script>`, ContentMaxLength))
	assert.Len(t, SanitizeText(strings.Repeat("a", 2000), ContentMaxLength), ContentMaxLength)
}

func TestSanitizeText_TruncatesByRunes(t *testing.T) {
	truncated := SanitizeText(strings.Repeat("é", ContentMaxLength+5), ContentMaxLength)
	assert.Equal(t, ContentMaxLength, utf8.RuneCountInString(truncated))
	assert.True(t, utf8.ValidString(truncated))

	// The truncated text must still pass the validator's own length check.
	in := CreateTaskInput{Content: truncated}
	assert.Empty(t, in.Validate())
}

func TestParseDueDate(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC) // a Monday

	t.Run("empty is unset", func(t *testing.T) {
		ts, err := ParseDueDate("", now)
		require.NoError(t, err)
		assert.Nil(t, ts)
	})

	t.Run("rfc3339", func(t *testing.T) {
		ts, err := ParseDueDate("2025-03-12T09:00:00Z", now)
		require.NoError(t, err)
		require.NotNil(t, ts)
		assert.Equal(t, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC), ts.UTC())
	})

	t.Run("plain date", func(t *testing.T) {
		ts, err := ParseDueDate("2025-03-12", now)
		require.NoError(t, err)
		require.NotNil(t, ts)
	})

	t.Run("tomorrow", func(t *testing.T) {
		ts, err := ParseDueDate("tomorrow", now)
		require.NoError(t, err)
		require.NotNil(t, ts)
		assert.Equal(t, 11, ts.Day())
	})

	t.Run("next friday", func(t *testing.T) {
		ts, err := ParseDueDate("next friday", now)
		require.NoError(t, err)
		require.NotNil(t, ts)
		assert.Equal(t, time.Friday, ts.Weekday())
		assert.True(t, ts.After(now))
	})

	t.Run("garbage fails", func(t *testing.T) {
		_, err := ParseDueDate("not a date at all zzz", now)
		assert.Error(t, err)
	})
}
