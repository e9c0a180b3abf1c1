package service

import (
	"errors"
)

// Sentinel errors returned by the service.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrNoWatcher     = errors.New("store has no change feed; configure a watcher")
	ErrInvalidInput  = errors.New("invalid input")
	ErrScoringClosed = errors.New("scoring is closed")
	ErrEventClosed   = errors.New("event is completed")
)
