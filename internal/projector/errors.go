package projector

import "errors"

// Sentinel errors returned by the projector.
var (
	ErrDisconnected       = errors.New("live view disconnected from change feed")
	ErrTooManySubscribers = errors.New("too many live view subscribers")
	ErrNotStarted         = errors.New("projector not started")
)
