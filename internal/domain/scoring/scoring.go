// Package scoring turns raw judge score records into composite scores.
package scoring

import (
	"fmt"
	"slices"

	"github.com/okian/podium/internal/domain/model"
)

// Warning codes.
const (
	WarnWeightsNot100     = "weights_not_100"
	WarnNoEnabledCriteria = "no_enabled_criteria"
)

const fullWeight = 100

// Warning is a non-blocking configuration problem. Aggregation still runs
// with the weights as configured.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CriterionScore is the per-criterion breakdown of a composite. Judges == 0
// means the criterion is not yet scored, which is distinct from an average
// of zero.
type CriterionScore struct {
	Average float64 `json:"average"`
	Judges  int     `json:"judges"`
}

// Scored reports whether at least one judge scored the criterion.
func (s CriterionScore) Scored() bool { return s.Judges > 0 }

// Composite is a contestant's derived score for an event.
type Composite struct {
	ContestantID  string                    `json:"contestantId"`
	PerCriterion  map[string]CriterionScore `json:"perCriterion"`
	TotalWeighted float64                   `json:"totalWeighted"`
	JudgeCount    int                       `json:"judgeCount"`
}

// Aggregate computes the composite for one contestant from all records of an
// event. Only the latest (timestamp, seq) non-zero value per judge and
// criterion is live. Disabled criteria are ignored entirely.
func Aggregate(contestantID, eventID string, records []model.ScoreRecord, criteria []model.Criterion) Composite {
	enabled := make([]model.Criterion, 0, len(criteria))
	for _, c := range criteria {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}

	// latest[criterionID][judgeID] points at the live record for that pair.
	latest := make(map[string]map[string]*model.ScoreRecord, len(enabled))
	judges := make(map[string]struct{})
	for i := range records {
		r := &records[i]
		if r.ContestantID != contestantID || r.EventID != eventID {
			continue
		}
		for _, c := range enabled {
			if v, ok := r.Scores[c.ID]; !ok || v == 0 {
				continue
			}
			judges[r.JudgeID] = struct{}{}
			perJudge, ok := latest[c.ID]
			if !ok {
				perJudge = make(map[string]*model.ScoreRecord)
				latest[c.ID] = perJudge
			}
			if cur, seen := perJudge[r.JudgeID]; !seen || r.NewerThan(cur) {
				perJudge[r.JudgeID] = r
			}
		}
	}

	comp := Composite{
		ContestantID: contestantID,
		PerCriterion: make(map[string]CriterionScore, len(enabled)),
		JudgeCount:   len(judges),
	}
	for _, c := range enabled {
		perJudge := latest[c.ID]
		if len(perJudge) == 0 {
			comp.PerCriterion[c.ID] = CriterionScore{}
			continue
		}
		// Sum in judge order so repeated runs are bit-for-bit identical.
		ids := make([]string, 0, len(perJudge))
		for id := range perJudge {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		var sum float64
		for _, id := range ids {
			sum += perJudge[id].Scores[c.ID]
		}
		avg := sum / float64(len(ids))
		comp.PerCriterion[c.ID] = CriterionScore{Average: avg, Judges: len(ids)}
		comp.TotalWeighted += avg * float64(c.Weight) / fullWeight
	}
	return comp
}

// AggregateAll computes composites for every contestant, in contestant order.
// Records are grouped once so the cost is linear in the record count.
func AggregateAll(records []model.ScoreRecord, contestants []model.Contestant, criteria []model.Criterion) []Composite {
	byContestant := make(map[string][]model.ScoreRecord, len(contestants))
	for _, r := range records {
		byContestant[r.ContestantID] = append(byContestant[r.ContestantID], r)
	}
	out := make([]Composite, len(contestants))
	for i, c := range contestants {
		out[i] = Aggregate(c.ID, c.EventID, byContestant[c.ID], criteria)
	}
	return out
}

// CheckWeights reports configuration problems with the enabled weights.
func CheckWeights(criteria []model.Criterion) []Warning {
	var (
		sum     int
		enabled int
	)
	for _, c := range criteria {
		if c.Enabled {
			sum += c.Weight
			enabled++
		}
	}
	if enabled == 0 {
		return []Warning{{Code: WarnNoEnabledCriteria, Message: "no enabled criteria; every total is 0"}}
	}
	if sum != fullWeight {
		return []Warning{{
			Code:    WarnWeightsNot100,
			Message: fmt.Sprintf("enabled criterion weights sum to %d, expected %d", sum, fullWeight),
		}}
	}
	return nil
}
