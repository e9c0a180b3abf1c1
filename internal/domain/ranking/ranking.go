// Package ranking orders contestants of an event by composite score.
package ranking

import (
	"cmp"
	"slices"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/scoring"
)

// Standing is one ranked contestant.
type Standing struct {
	Rank       int
	Contestant model.Contestant
	Composite  scoring.Composite
	Leading    bool
}

// Build pairs contestants with their composites. composites must be in the
// same order as contestants, as returned by scoring.AggregateAll.
func Build(contestants []model.Contestant, composites []scoring.Composite) []Standing {
	out := make([]Standing, len(contestants))
	for i := range contestants {
		out[i] = Standing{Contestant: contestants[i], Composite: composites[i]}
	}
	return out
}

// Rank sorts standings by total descending and numbers them 1..n. Ties keep
// input order and still get distinct ranks. Only rank 1 with a positive total
// is marked as leading. The input slice is not modified.
func Rank(standings []Standing) []Standing {
	out := slices.Clone(standings)
	slices.SortStableFunc(out, func(a, b Standing) int {
		return cmp.Compare(b.Composite.TotalWeighted, a.Composite.TotalWeighted)
	})
	for i := range out {
		out[i].Rank = i + 1
		out[i].Leading = i == 0 && out[i].Composite.TotalWeighted > 0
	}
	return out
}

// Leader returns the leading standing, if any.
func Leader(standings []Standing) (Standing, bool) {
	for _, s := range standings {
		if s.Leading {
			return s, true
		}
	}
	return Standing{}, false
}

// Active returns the standings of contestants that are not eliminated,
// renumbered 1..n in their current order.
func Active(standings []Standing) []Standing {
	out := make([]Standing, 0, len(standings))
	for _, s := range standings {
		if s.Contestant.Active() {
			s.Rank = len(out) + 1
			out = append(out, s)
		}
	}
	return out
}
