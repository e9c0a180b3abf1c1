package repository

import (
	"errors"
	"fmt"

	"github.com/okian/podium/internal/domain/rounds"
)

// Sentinel errors returned by store implementations.
var (
	ErrNotFound            = errors.New("not found")
	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)
	ErrContestantNotFound  = fmt.Errorf("contestant %w", ErrNotFound)
	ErrAlreadyExists       = errors.New("already exists")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrClosed              = errors.New("store closed")

	// Round errors are the domain's so callers can match either.
	ErrRoundConflict     = rounds.ErrRoundConflict
	ErrAlreadyEliminated = rounds.ErrAlreadyEliminated
	ErrInvalidTransition = rounds.ErrInvalidTransition
)
