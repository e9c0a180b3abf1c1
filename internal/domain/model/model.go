// Package model contains domain models passed between layers.
package model

import (
	"time"
)

// Round is a phase of a contest.
type Round string

// Contest rounds in the order they are played.
const (
	RoundPreliminary Round = "preliminary"
	RoundSemiFinal   Round = "semi-final"
	RoundFinal       Round = "final"
	RoundCompleted   Round = "completed"
)

// Valid reports whether r is a known round.
func (r Round) Valid() bool {
	switch r {
	case RoundPreliminary, RoundSemiFinal, RoundFinal, RoundCompleted:
		return true
	default:
		return false
	}
}

// Next returns the round that follows r. Completed has no successor.
func (r Round) Next() (Round, bool) {
	switch r {
	case RoundPreliminary:
		return RoundSemiFinal, true
	case RoundSemiFinal:
		return RoundFinal, true
	case RoundFinal:
		return RoundCompleted, true
	default:
		return "", false
	}
}

// Status is a contestant's eligibility state.
type Status string

// Contestant statuses.
const (
	StatusRegistered Status = "registered"
	StatusFinalist   Status = "finalist"
	StatusEliminated Status = "eliminated"
	StatusWinner     Status = "winner"
	StatusRunnerUp   Status = "runner-up"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusRegistered, StatusFinalist, StatusEliminated, StatusWinner, StatusRunnerUp:
		return true
	default:
		return false
	}
}

// Criterion is a weighted judging dimension. ID is stable for the life of the
// event; Name is display text and may be renamed freely.
type Criterion struct {
	ID      string `json:"id" yaml:"id" validate:"required,max=64"`
	Name    string `json:"name" yaml:"name" validate:"required,max=128"`
	Weight  int    `json:"weight" yaml:"weight" validate:"gte=0,lte=100"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Event owns the criteria and the current round of a contest.
type Event struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Criteria     []Criterion `json:"criteria"`
	CurrentRound Round       `json:"currentRound"`
	ScoresLocked bool        `json:"scoresLocked"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Criterion returns the criterion with the given id.
func (e *Event) Criterion(id string) (Criterion, bool) {
	for _, c := range e.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// EnabledCriteria returns the enabled criteria in schema order.
func (e *Event) EnabledCriteria() []Criterion {
	out := make([]Criterion, 0, len(e.Criteria))
	for _, c := range e.Criteria {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// ScoringOpen reports whether judges may currently submit scores.
func (e *Event) ScoringOpen() bool {
	return !e.ScoresLocked && e.CurrentRound != RoundCompleted
}

// Contestant is a participant registered to one event.
type Contestant struct {
	ID              string    `json:"id"`
	EventID         string    `json:"eventId"`
	Name            string    `json:"name"`
	Seq             int64     `json:"seq"`
	Status          Status    `json:"status"`
	EliminatedRound Round     `json:"eliminatedRound,omitempty"`
	FinalRank       int       `json:"finalRank,omitempty"`
	RegisteredAt    time.Time `json:"registeredAt"`
}

// Active reports whether the contestant is still in the running.
func (c *Contestant) Active() bool {
	return c.Status != StatusEliminated
}

// ScoreRecord is one immutable judge submission.
type ScoreRecord struct {
	ID           string             `json:"id"`
	Seq          int64              `json:"seq"`
	SubmissionID string             `json:"submissionId,omitempty"`
	JudgeID      string             `json:"judgeId" validate:"required,max=128"`
	ContestantID string             `json:"contestantId" validate:"required"`
	EventID      string             `json:"eventId" validate:"required"`
	Scores       map[string]float64 `json:"scores" validate:"required,min=1,dive,keys,required,endkeys,gte=0,lte=100"`
	Timestamp    time.Time          `json:"timestamp"`
}

// NewerThan orders records by (timestamp, seq).
func (r *ScoreRecord) NewerThan(o *ScoreRecord) bool {
	if !r.Timestamp.Equal(o.Timestamp) {
		return r.Timestamp.After(o.Timestamp)
	}
	return r.Seq > o.Seq
}

// StatusUpdate is a status change produced by a round transition, an
// elimination or an admin override.
type StatusUpdate struct {
	ContestantID    string `json:"contestantId"`
	Status          Status `json:"status"`
	EliminatedRound Round  `json:"eliminatedRound,omitempty"`
	FinalRank       int    `json:"finalRank,omitempty"`
}

// Apply writes the update onto c.
func (u StatusUpdate) Apply(c *Contestant) {
	c.Status = u.Status
	c.EliminatedRound = u.EliminatedRound
	c.FinalRank = u.FinalRank
}

// Transition moves an event from one round to the next and carries the
// resulting contestant status changes.
type Transition struct {
	EventID string         `json:"eventId"`
	From    Round          `json:"from"`
	To      Round          `json:"to"`
	Updates []StatusUpdate `json:"updates"`
}
