// Package types contains the wire shapes shared by the HTTP API, the live
// projector and the simulator.
package types

import (
	"strconv"
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/ranking"
	"github.com/okian/podium/internal/domain/scoring"
)

// NotScored is how an unscored criterion is rendered in text output.
const NotScored = "—"

// CriterionScore is a per-criterion average. Average is nil when no judge
// scored the criterion yet.
type CriterionScore struct {
	Average *float64 `json:"average"`
	Judges  int      `json:"judges"`
}

// Composite is the JSON form of scoring.Composite.
type Composite struct {
	ContestantID  string                    `json:"contestantId"`
	PerCriterion  map[string]CriterionScore `json:"perCriterion"`
	TotalWeighted float64                   `json:"totalWeighted"`
	JudgeCount    int                       `json:"judgeCount"`
}

// Standing is one row of the ranked list.
type Standing struct {
	Rank                int                 `json:"rank"`
	ContestantID        string              `json:"contestantId"`
	Name                string              `json:"name"`
	Status              model.Status        `json:"status"`
	EliminatedRound     model.Round         `json:"eliminatedRound,omitempty"`
	FinalRank           int                 `json:"finalRank,omitempty"`
	TotalWeighted       float64             `json:"totalWeighted"`
	PerCriterionAverage map[string]*float64 `json:"perCriterionAverage"`
	JudgeCount          int                 `json:"judgeCount"`
	Leading             bool                `json:"leading"`
}

// Standings is the response of the ranked list endpoints.
type Standings struct {
	EventID   string            `json:"eventId"`
	Round     model.Round       `json:"round"`
	Standings []Standing        `json:"standings"`
	Warnings  []scoring.Warning `json:"warnings,omitempty"`
}

// LiveView is a projected standings snapshot. Connected is false once the
// change feed failed or, with Stale set, once the event's standings could
// not be recomputed; the standings are then the last known ones.
type LiveView struct {
	Standings
	Connected bool      `json:"connected"`
	Stale     bool      `json:"stale,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   uint64    `json:"version"`
}

// NewComposite converts a composite to its wire form.
func NewComposite(c scoring.Composite) Composite {
	out := Composite{
		ContestantID:  c.ContestantID,
		PerCriterion:  make(map[string]CriterionScore, len(c.PerCriterion)),
		TotalWeighted: c.TotalWeighted,
		JudgeCount:    c.JudgeCount,
	}
	for id, s := range c.PerCriterion {
		out.PerCriterion[id] = CriterionScore{Average: average(s), Judges: s.Judges}
	}
	return out
}

// NewStanding converts a ranked standing to its wire form.
func NewStanding(s ranking.Standing) Standing {
	avgs := make(map[string]*float64, len(s.Composite.PerCriterion))
	for id, cs := range s.Composite.PerCriterion {
		avgs[id] = average(cs)
	}
	return Standing{
		Rank:                s.Rank,
		ContestantID:        s.Contestant.ID,
		Name:                s.Contestant.Name,
		Status:              s.Contestant.Status,
		EliminatedRound:     s.Contestant.EliminatedRound,
		FinalRank:           s.Contestant.FinalRank,
		TotalWeighted:       s.Composite.TotalWeighted,
		PerCriterionAverage: avgs,
		JudgeCount:          s.Composite.JudgeCount,
		Leading:             s.Leading,
	}
}

// NewStandings converts a ranked list to its wire form.
func NewStandings(event *model.Event, ranked []ranking.Standing, warnings []scoring.Warning) Standings {
	out := Standings{
		EventID:   event.ID,
		Round:     event.CurrentRound,
		Standings: make([]Standing, len(ranked)),
		Warnings:  warnings,
	}
	for i, s := range ranked {
		out.Standings[i] = NewStanding(s)
	}
	return out
}

// FormatScore renders an average for text output, using NotScored for nil.
func FormatScore(v *float64) string {
	if v == nil {
		return NotScored
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func average(s scoring.CriterionScore) *float64 {
	if !s.Scored() {
		return nil
	}
	v := s.Average
	return &v
}
