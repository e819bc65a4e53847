package models

import "errors"

// Validation errors
var (
	ErrEmptyRuleID        = errors.New("rule ID cannot be empty")
	ErrEmptyTargetID      = errors.New("target ID cannot be empty")
	ErrInvalidMetricField = errors.New("invalid metric field")
	ErrInvalidComparator  = errors.New("invalid comparator")
	ErrInvalidSeverity    = errors.New("invalid severity level")
	ErrNegativeCooldown   = errors.New("cooldown minutes cannot be negative")
	ErrEmptyChannelRef    = errors.New("channel reference cannot be empty")

	ErrEmptyChannelID     = errors.New("channel ID cannot be empty")
	ErrInvalidChannelKind = errors.New("invalid channel kind")
	ErrMissingConfig      = errors.New("channel delivery config is required")
	ErrConfigKindMismatch = errors.New("delivery config does not match channel kind")
	ErrNoRecipients       = errors.New("at least one recipient is required")
	ErrInvalidURL         = errors.New("endpoint URL must be an absolute http(s) URL")
	ErrInvalidMethod      = errors.New("unsupported HTTP method")
)

var validationErrors = []error{
	ErrEmptyRuleID, ErrEmptyTargetID, ErrInvalidMetricField, ErrInvalidComparator,
	ErrInvalidSeverity, ErrNegativeCooldown, ErrEmptyChannelRef,
	ErrEmptyChannelID, ErrInvalidChannelKind, ErrMissingConfig, ErrConfigKindMismatch,
	ErrNoRecipients, ErrInvalidURL, ErrInvalidMethod,
}

// IsValidationError reports whether err wraps one of the validation errors
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
