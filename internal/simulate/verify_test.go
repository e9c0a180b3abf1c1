package simulate

import (
	"testing"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestVerify(t *testing.T) {
	Convey("Given a ledger of two judges", t, func() {
		criteria := []model.Criterion{
			{ID: "vocal", Name: "Vocal", Weight: 60, Enabled: true},
			{ID: "crowd", Name: "Crowd", Weight: 40, Enabled: true},
		}
		contestants := []model.Contestant{
			{ID: "a", EventID: "ev", Name: "Ada", Seq: 1, Status: model.StatusRegistered},
			{ID: "b", EventID: "ev", Name: "Bo", Seq: 2, Status: model.StatusRegistered},
		}
		book := &ledger{}
		book.add(types.SubmitScoreRequest{JudgeID: "j1", ContestantID: "a", EventID: "ev", Scores: map[string]float64{"vocal": 10, "crowd": 10}})
		book.add(types.SubmitScoreRequest{JudgeID: "j1", ContestantID: "b", EventID: "ev", Scores: map[string]float64{"vocal": 50, "crowd": 50}})
		// Re-score: the later record wins.
		book.add(types.SubmitScoreRequest{JudgeID: "j1", ContestantID: "a", EventID: "ev", Scores: map[string]float64{"vocal": 90, "crowd": 90}})

		want := expected(book.snapshot(), contestants, criteria)

		Convey("Then the local ranking applies latest-wins", func() {
			So(want[0].Contestant.ID, ShouldEqual, "a")
			So(want[0].Composite.TotalWeighted, ShouldAlmostEqual, 90, 1e-9)
			So(want[1].Composite.TotalWeighted, ShouldAlmostEqual, 50, 1e-9)
		})

		Convey("When the server agrees", func() {
			got := types.Standings{Standings: []types.Standing{
				{Rank: 1, ContestantID: "a", Name: "Ada", TotalWeighted: 90, JudgeCount: 1},
				{Rank: 2, ContestantID: "b", Name: "Bo", TotalWeighted: 50, JudgeCount: 1},
			}}

			Convey("Then nothing is reported", func() {
				So(verify(got, want), ShouldBeEmpty)
			})
		})

		Convey("When the server kept a superseded score", func() {
			got := types.Standings{Standings: []types.Standing{
				{Rank: 1, ContestantID: "b", Name: "Bo", TotalWeighted: 50, JudgeCount: 1},
				{Rank: 2, ContestantID: "a", Name: "Ada", TotalWeighted: 10, JudgeCount: 1},
			}}

			Convey("Then the total difference is reported", func() {
				diffs := verify(got, want)
				So(diffs, ShouldHaveLength, 1)
				So(diffs[0], ShouldContainSubstring, "Ada total 10.0000, expected 90.0000")
			})
		})

		Convey("When the server order is broken", func() {
			got := types.Standings{Standings: []types.Standing{
				{Rank: 1, ContestantID: "b", Name: "Bo", TotalWeighted: 50, JudgeCount: 1},
				{Rank: 3, ContestantID: "a", Name: "Ada", TotalWeighted: 90, JudgeCount: 1},
				{Rank: 4, ContestantID: "z", Name: "Zed"},
			}}

			Convey("Then every problem is listed", func() {
				diffs := verify(got, want)
				So(diffs, ShouldContain, "server lists 3 contestants, expected 2")
				So(diffs, ShouldContain, "position 2 has rank 3")
				So(diffs, ShouldContain, "rank 3 (90.0000) is above rank 1 (50.0000)")
				So(diffs, ShouldContain, "unexpected contestant z")
			})
		})
	})
}

func TestPlan(t *testing.T) {
	Convey("Given a seeded plan", t, func() {
		cfg := &Config{Seed: 3, RescoreRatio: 1}
		contestants := []model.Contestant{{ID: "a"}, {ID: "b"}, {ID: "c"}}
		criteria := []model.Criterion{
			{ID: "vocal", Enabled: true},
			{ID: "hat", Enabled: false},
		}
		reqs := plan(cfg, 0, "ev", contestants, criteria)

		Convey("Then every contestant is scored and then re-scored", func() {
			So(reqs, ShouldHaveLength, 6)
			seen := map[string]int{}
			for _, r := range reqs {
				seen[r.ContestantID]++
				So(r.JudgeID, ShouldEqual, "judge-01")
				So(r.SubmissionID, ShouldNotBeEmpty)
				So(r.Scores, ShouldContainKey, "vocal")
				So(r.Scores, ShouldNotContainKey, "hat")
				So(r.Scores["vocal"], ShouldBeBetweenOrEqual, float64(minScore), float64(maxScore))
			}
			So(seen, ShouldResemble, map[string]int{"a": 2, "b": 2, "c": 2})
		})

		Convey("Then the same seed yields the same scores", func() {
			again := plan(cfg, 0, "ev", contestants, criteria)
			for i := range reqs {
				So(again[i].ContestantID, ShouldEqual, reqs[i].ContestantID)
				So(again[i].Scores, ShouldResemble, reqs[i].Scores)
			}
		})
	})
}
