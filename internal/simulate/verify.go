package simulate

import (
	"fmt"
	"math"
	"sync"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/ranking"
	"github.com/okian/podium/internal/domain/scoring"
	"github.com/okian/podium/internal/domain/types"
)

// tolerance absorbs float summation order differences.
const tolerance = 1e-6

// ledger records acknowledged submissions in acknowledgement order.
type ledger struct {
	mu      sync.Mutex
	seq     int64
	records []model.ScoreRecord
}

func (l *ledger) add(req types.SubmitScoreRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.records = append(l.records, model.ScoreRecord{
		Seq:          l.seq,
		JudgeID:      req.JudgeID,
		ContestantID: req.ContestantID,
		EventID:      req.EventID,
		Scores:       req.Scores,
	})
}

func (l *ledger) snapshot() []model.ScoreRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.ScoreRecord(nil), l.records...)
}

// expected ranks the ledger with the same aggregation and ranking the server
// uses. Records of one judge and contestant are acknowledged in order, so
// the local seq preserves latest-wins.
func expected(records []model.ScoreRecord, contestants []model.Contestant, criteria []model.Criterion) []ranking.Standing {
	composites := scoring.AggregateAll(records, contestants, criteria)
	return ranking.Rank(ranking.Build(contestants, composites))
}

// verify compares server standings with the local ranking and returns one
// line per difference.
func verify(got types.Standings, want []ranking.Standing) []string {
	var out []string
	if len(got.Standings) != len(want) {
		out = append(out, fmt.Sprintf("server lists %d contestants, expected %d", len(got.Standings), len(want)))
	}

	byID := make(map[string]ranking.Standing, len(want))
	for _, s := range want {
		byID[s.Contestant.ID] = s
	}
	for i, s := range got.Standings {
		if s.Rank != i+1 {
			out = append(out, fmt.Sprintf("position %d has rank %d", i+1, s.Rank))
		}
		if i > 0 && s.TotalWeighted > got.Standings[i-1].TotalWeighted+tolerance {
			out = append(out, fmt.Sprintf("rank %d (%.4f) is above rank %d (%.4f)",
				s.Rank, s.TotalWeighted, got.Standings[i-1].Rank, got.Standings[i-1].TotalWeighted))
		}
		w, ok := byID[s.ContestantID]
		if !ok {
			out = append(out, fmt.Sprintf("unexpected contestant %s", s.ContestantID))
			continue
		}
		if math.Abs(w.Composite.TotalWeighted-s.TotalWeighted) > tolerance {
			out = append(out, fmt.Sprintf("%s total %.4f, expected %.4f", s.Name, s.TotalWeighted, w.Composite.TotalWeighted))
		}
		if w.Composite.JudgeCount != s.JudgeCount {
			out = append(out, fmt.Sprintf("%s judged by %d, expected %d", s.Name, s.JudgeCount, w.Composite.JudgeCount))
		}
	}
	return out
}
