package rounds

import (
	"errors"
)

// Sentinel errors for round transitions.
var (
	ErrInvalidTransition = errors.New("invalid round transition")
	ErrRoundConflict     = errors.New("round changed concurrently")
	ErrAlreadyEliminated = errors.New("contestant already eliminated")
	ErrInvalidStatus     = errors.New("invalid status change")
	ErrWrongEvent        = errors.New("contestant belongs to another event")
)
