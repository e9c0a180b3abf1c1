package types

import (
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/scoring"
)

// CreateEventRequest is the body of POST /v1/events. Criteria without an id
// get one derived from the name.
type CreateEventRequest struct {
	Name     string            `json:"name" validate:"required,max=128"`
	Criteria []model.Criterion `json:"criteria"`
}

// UpdateCriteriaRequest is the body of PUT /v1/events/{id}/criteria.
type UpdateCriteriaRequest struct {
	Criteria []model.Criterion `json:"criteria"`
}

// LockRequest is the body of PUT /v1/events/{id}/lock.
type LockRequest struct {
	Locked bool `json:"locked"`
}

// RegisterContestantRequest is the body of POST /v1/events/{id}/contestants.
type RegisterContestantRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

// EliminateRequest is the body of POST /v1/contestants/{id}/eliminate.
// CurrentRound is the round the caller believes is active.
type EliminateRequest struct {
	CurrentRound model.Round `json:"currentRound" validate:"required"`
}

// SubmitScoreRequest is the body of POST /v1/scores. Keys of Scores are
// criterion ids or legacy name derived keys.
type SubmitScoreRequest struct {
	JudgeID      string             `json:"judgeId" validate:"required,max=128"`
	ContestantID string             `json:"contestantId" validate:"required"`
	EventID      string             `json:"eventId" validate:"required"`
	Scores       map[string]float64 `json:"scores" validate:"required,min=1"`
	SubmissionID string             `json:"submissionId,omitempty" validate:"omitempty,max=128"`
}

// SubmitResult acknowledges a score submission.
type SubmitResult struct {
	Status    string `json:"status"`
	RecordID  string `json:"recordId,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// Submission statuses.
const (
	SubmitAccepted  = "accepted"
	SubmitDuplicate = "duplicate"
)

// EventResponse wraps an event with its configuration warnings.
type EventResponse struct {
	model.Event
	Warnings []scoring.Warning `json:"warnings,omitempty"`
}

// DeleteResult reports a contestant deletion and its record cleanup.
type DeleteResult struct {
	ContestantID   string `json:"contestantId"`
	RecordsRemoved int    `json:"recordsRemoved"`
}
