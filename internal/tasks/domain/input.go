package domain

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateTaskInput carries the fields accepted when creating a task. DueDate
// is the raw string form; parsing is tolerant (see ParseDueDate).
type CreateTaskInput struct {
	Content           string   `json:"content" validate:"required,max=1000"`
	Description       string   `json:"description" validate:"max=5000"`
	ProjectID         string   `json:"project_id"`
	Priority          *int     `json:"priority" validate:"omitempty,min=1,max=5"`
	DueDate           string   `json:"due_date"`
	EstimatedDuration *int     `json:"estimated_duration" validate:"omitempty,gt=0"`
	EnergyLevel       *int     `json:"energy_level" validate:"omitempty,min=1,max=5"`
	ContextTags       []string `json:"context_tags"`
	Labels            []string `json:"labels"`
	Dependencies      []int64  `json:"dependencies"`
	Source            Source   `json:"source"`
	ExternalID        string   `json:"external_id"`
}

// UpdateTaskInput is the whitelist of mutable fields for partial updates.
// Nil means "leave unchanged"; anything outside this struct is ignored.
type UpdateTaskInput struct {
	Content           *string   `json:"content" validate:"omitempty,max=1000"`
	Description       *string   `json:"description" validate:"omitempty,max=5000"`
	Priority          *int      `json:"priority" validate:"omitempty,min=1,max=5"`
	DueDate           *string   `json:"due_date"`
	Completed         *bool     `json:"completed"`
	EstimatedDuration *int      `json:"estimated_duration" validate:"omitempty,gt=0"`
	EnergyLevel       *int      `json:"energy_level" validate:"omitempty,min=1,max=5"`
	ContextTags       *[]string `json:"context_tags"`
	Labels            *[]string `json:"labels"`
}

// Sanitize normalizes the free-text fields in place: strips markup
// characters, collapses whitespace, and enforces length limits.
func (in *CreateTaskInput) Sanitize() {
	in.Content = SanitizeText(in.Content, ContentMaxLength)
	in.Description = SanitizeText(in.Description, DescriptionMaxLength)
}

// Validate checks the input against field constraints and returns a
// ValidationError-compatible message list.
func (in *CreateTaskInput) Validate() []string {
	if strings.TrimSpace(in.Content) == "" {
		return []string{"content is required and must be a non-empty string"}
	}
	return translateFieldErrors(validate.Struct(in))
}

// Validate checks the partial update against field constraints.
func (in *UpdateTaskInput) Validate() []string {
	if in.Content != nil && strings.TrimSpace(*in.Content) == "" {
		return []string{"content must be a non-empty string"}
	}
	return translateFieldErrors(validate.Struct(in))
}

// SanitizeText strips basic HTML/script characters, normalizes whitespace,
// and truncates to maxLen.
func SanitizeText(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch r {
		case '<', '>', '"', '\'':
			continue
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if lastSpace {
				continue
			}
			lastSpace = true
			b.WriteRune(' ')
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	out := b.String()
	// Truncate by runes, matching the validator's max tag, so a multi-byte
	// character is never split.
	if runes := []rune(out); len(runes) > maxLen {
		out = string(runes[:maxLen])
	}
	return out
}

func translateFieldErrors(err error) []string {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldErrorMessage(fe))
	}
	return msgs
}

func fieldErrorMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be less than %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
