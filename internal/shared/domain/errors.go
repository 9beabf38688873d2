// Package domain holds types shared by every bounded context: the error
// taxonomy surfaced at the API boundary.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError carries one or more field-level validation messages.
type ValidationError struct {
	Errors []string
}

func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, ", ")
}

// NotFoundError signals that a resource does not exist.
type NotFoundError struct {
	ResourceType string
	ID           string
}

func NewNotFoundError(resourceType string, id any) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found", e.ResourceType, e.ID)
}

// AuthenticationError signals a credential failure.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return e.Message
}

// AuthorizationError signals a permission failure.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return "not authorized to perform this action"
	}
	return e.Message
}

// IntegrationError wraps an upstream provider failure. The wrapped cause is
// never shown to callers, only logged.
type IntegrationError struct {
	Provider string
	Cause    error
}

func NewIntegrationError(provider string, cause error) *IntegrationError {
	return &IntegrationError{Provider: provider, Cause: cause}
}

func (e *IntegrationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("error communicating with %s: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("error communicating with %s", e.Provider)
}

func (e *IntegrationError) Unwrap() error { return e.Cause }

// WebhookVerificationError signals an invalid or missing webhook signature.
type WebhookVerificationError struct {
	Provider string
}

func (e *WebhookVerificationError) Error() string {
	return fmt.Sprintf("invalid webhook signature from %s", e.Provider)
}

// RateLimitError signals that an upstream rate limit was hit.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
	}
	return "rate limit exceeded"
}

// ConfigurationError signals a missing required secret or setting.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError anywhere in its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
