package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain validation.
var (
	ErrInvalidCriteria = errors.New("invalid criteria")
	ErrInvalidScore    = errors.New("invalid score record")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrUnknownCriteria = errors.New("unknown criterion")
)

// UnknownCriterionError reports a score key that matches no criterion of the
// event. Suggestion is the closest known key, if any is close enough.
type UnknownCriterionError struct {
	Key        string
	Suggestion string
}

func (e *UnknownCriterionError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown criterion %q, did you mean %q?", e.Key, e.Suggestion)
	}
	return fmt.Sprintf("unknown criterion %q", e.Key)
}

// Unwrap lets errors.Is match ErrUnknownCriteria.
func (e *UnknownCriterionError) Unwrap() error { return ErrUnknownCriteria }
