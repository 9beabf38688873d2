package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_JoinsMessages(t *testing.T) {
	err := NewValidationError("content is required", "priority must be between 1 and 5")
	assert.Equal(t, "content is required, priority must be between 1 and 5", err.Error())
	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("Task", 42)
	assert.Equal(t, "Task with id '42' not found", err.Error())
	assert.True(t, IsNotFound(err))
}

func TestNotFound_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("loading task: %w", NewNotFoundError("Task", 7))
	assert.True(t, IsNotFound(err))
}

func TestIntegrationError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewIntegrationError("todoist", cause)
	assert.Contains(t, err.Error(), "todoist")
	assert.ErrorIs(t, err, cause)
}

func TestRateLimitError_RetryAfter(t *testing.T) {
	assert.Equal(t, "rate limit exceeded", (&RateLimitError{}).Error())
	assert.Contains(t, (&RateLimitError{RetryAfter: 30 * time.Second}).Error(), "30s")
}

func TestWebhookVerificationError(t *testing.T) {
	err := &WebhookVerificationError{Provider: "linear"}
	assert.Equal(t, "invalid webhook signature from linear", err.Error())
}
