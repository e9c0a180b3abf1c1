package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// Score ranges. Zero is left out since it reads as "not scored".
const (
	minScore = 1
	maxScore = 100
)

// plan builds the ordered submissions of one judge: every contestant once in
// shuffled order, a share of them re-scored at the end.
func plan(cfg *Config, judge int, eventID string, contestants []model.Contestant, criteria []model.Criterion) []types.SubmitScoreRequest {
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(judge)))
	judgeID := fmt.Sprintf("judge-%02d", judge+1)

	order := rng.Perm(len(contestants))
	out := make([]types.SubmitScoreRequest, 0, len(contestants)*2)
	for _, i := range order {
		out = append(out, submission(rng, judgeID, eventID, contestants[i].ID, criteria))
	}
	for _, i := range order {
		if rng.Float64() < cfg.RescoreRatio {
			out = append(out, submission(rng, judgeID, eventID, contestants[i].ID, criteria))
		}
	}
	return out
}

func submission(rng *rand.Rand, judgeID, eventID, contestantID string, criteria []model.Criterion) types.SubmitScoreRequest {
	scores := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		if !c.Enabled {
			continue
		}
		scores[c.ID] = float64(minScore + rng.IntN(maxScore-minScore+1))
	}
	return types.SubmitScoreRequest{
		JudgeID:      judgeID,
		ContestantID: contestantID,
		EventID:      eventID,
		Scores:       scores,
		SubmissionID: uuid.NewString(),
	}
}
