package domain

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var naturalParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDueDate accepts ISO-8601 timestamps, plain dates, and natural
// language relative expressions ("tomorrow", "next friday"). Callers follow
// the tolerant-parse policy: on error the field is stored as unset, never
// failing the whole write.
func ParseDueDate(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts, nil
		}
	}

	r, err := naturalParser.Parse(s, now)
	if err != nil {
		return nil, fmt.Errorf("parsing due date %q: %w", s, err)
	}
	if r == nil {
		return nil, fmt.Errorf("unrecognized due date %q", s)
	}
	ts := r.Time
	return &ts, nil
}
