// Package simulate drives a running podium server with concurrent judges and
// checks the standings it reports against a local recomputation.
package simulate

import (
	"errors"
	"time"

	"github.com/okian/podium/internal/domain/types"
)

// Sentinel errors.
var (
	ErrUnhealthy      = errors.New("service is not healthy")
	ErrInvalidFixture = errors.New("invalid fixture")
	ErrMismatch       = errors.New("standings mismatch")
	ErrRequest        = errors.New("request failed")
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL      string        // Base URL of the service
	FixturePath  string        // Optional YAML fixture; defaults are used when empty
	Judges       int           // Number of concurrent judges
	Contestants  int           // Contestants generated when the fixture names none
	RescoreRatio float64       // Share of submissions that are later re-scored
	Rate         float64       // Submissions per second across all judges, 0 is unlimited
	Burst        int           // Limiter burst
	Timeout      time.Duration // HTTP request timeout
	Seed         uint64        // Seed for generated scores
	Advance      bool          // Advance the round after verification
	Color        bool          // Highlight the leader
}

// Stats holds run statistics.
type Stats struct {
	Submitted  int64
	Accepted   int64
	Duplicate  int64
	Rescored   int64
	Failed     int64
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Mismatches []string
}

// Report is the outcome of a run.
type Report struct {
	EventID    string
	Standings  types.Standings
	Stats      Stats
	Transition string
}
