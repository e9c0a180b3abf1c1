package repository_test

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newEvent(t *testing.T, s *repository.MemoryStore) model.Event {
	t.Helper()
	ev := &model.Event{
		Name: "Gala",
		Criteria: []model.Criterion{
			{ID: "vocal", Name: "Vocal", Weight: 100, Enabled: true},
		},
	}
	if err := s.CreateEvent(context.Background(), ev); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return *ev
}

func TestMemoryStore_EventsAndContestants(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty memory store", t, func() {
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s := repository.NewMemoryStore(repository.WithClock(func() time.Time { return fixed }))
		Reset(func() { _ = s.Close() })

		Convey("When an event is created", func() {
			ev := newEvent(t, s)

			Convey("Then it gets an id, the preliminary round and timestamps", func() {
				So(ev.ID, ShouldNotBeEmpty)
				So(ev.CurrentRound, ShouldEqual, model.RoundPreliminary)
				So(ev.CreatedAt, ShouldEqual, fixed)

				got, err := s.GetEvent(ctx, ev.ID)
				So(err, ShouldBeNil)
				So(got.Criteria, ShouldResemble, ev.Criteria)
			})

			Convey("Then criteria and lock updates are persisted", func() {
				updated, err := s.UpdateCriteria(ctx, ev.ID, []model.Criterion{{ID: "vocal", Name: "Singing", Weight: 100, Enabled: true}})
				So(err, ShouldBeNil)
				So(updated.Criteria[0].Name, ShouldEqual, "Singing")

				locked, err := s.SetScoresLocked(ctx, ev.ID, true)
				So(err, ShouldBeNil)
				So(locked.ScoresLocked, ShouldBeTrue)
			})

			Convey("Then contestants are listed in registration order", func() {
				for _, name := range []string{"Ada", "Bo", "Cy"} {
					So(s.CreateContestant(ctx, &model.Contestant{EventID: ev.ID, Name: name}), ShouldBeNil)
				}
				list, err := s.ListContestants(ctx, ev.ID)
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 3)
				So(list[0].Name, ShouldEqual, "Ada")
				So(list[0].Seq, ShouldBeLessThan, list[1].Seq)
				So(list[2].Status, ShouldEqual, model.StatusRegistered)
			})

			Convey("Then a contestant for an unknown event is rejected", func() {
				err := s.CreateContestant(ctx, &model.Contestant{EventID: "nope", Name: "X"})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then a duplicate event id is rejected", func() {
				dup := &model.Event{ID: ev.ID, Name: "Again"}
				So(errors.Is(s.CreateEvent(ctx, dup), repository.ErrAlreadyExists), ShouldBeTrue)
			})
		})

		Convey("When reading unknown documents", func() {
			_, err := s.GetEvent(ctx, "missing")
			So(errors.Is(err, repository.ErrEventNotFound), ShouldBeTrue)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = s.GetContestant(ctx, "missing")
			So(errors.Is(err, repository.ErrContestantNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryStore_Scores(t *testing.T) {
	ctx := context.Background()

	Convey("Given an event with a contestant", t, func() {
		s := repository.NewMemoryStore()
		Reset(func() { _ = s.Close() })
		ev := newEvent(t, s)
		c := &model.Contestant{EventID: ev.ID, Name: "Ada"}
		So(s.CreateContestant(ctx, c), ShouldBeNil)

		Convey("When scores are appended", func() {
			r1 := &model.ScoreRecord{JudgeID: "j1", ContestantID: c.ID, EventID: ev.ID, Scores: map[string]float64{"vocal": 50}}
			r2 := &model.ScoreRecord{JudgeID: "j1", ContestantID: c.ID, EventID: ev.ID, Scores: map[string]float64{"vocal": 70}, SubmissionID: "s-1"}
			So(s.AppendScore(ctx, r1), ShouldBeNil)
			So(s.AppendScore(ctx, r2), ShouldBeNil)

			Convey("Then records get ids, seqs and timestamps and keep append order", func() {
				So(r1.ID, ShouldNotBeEmpty)
				So(r2.Seq, ShouldBeGreaterThan, r1.Seq)
				So(r1.Timestamp.IsZero(), ShouldBeFalse)

				list, err := s.ListScores(ctx, ev.ID)
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 2)
				So(list[1].Scores["vocal"], ShouldEqual, 70)
			})

			Convey("Then stored records are isolated from the caller's map", func() {
				r1.Scores["vocal"] = 1
				list, _ := s.ListScores(ctx, ev.ID)
				So(list[0].Scores["vocal"], ShouldEqual, 50)
			})

			Convey("Then a repeated submission id is rejected", func() {
				dup := &model.ScoreRecord{JudgeID: "j1", ContestantID: c.ID, EventID: ev.ID, Scores: map[string]float64{"vocal": 10}, SubmissionID: "s-1"}
				So(errors.Is(s.AppendScore(ctx, dup), repository.ErrDuplicateSubmission), ShouldBeTrue)
				list, _ := s.ListScores(ctx, ev.ID)
				So(len(list), ShouldEqual, 2)
			})

			Convey("Then deleting the contestant's scores removes them", func() {
				n, err := s.DeleteScoresForContestant(ctx, c.ID)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				list, _ := s.ListScoresForContestant(ctx, c.ID)
				So(list, ShouldBeEmpty)
			})
		})
	})
}

func TestMemoryStore_Rounds(t *testing.T) {
	ctx := context.Background()

	Convey("Given an event with two contestants", t, func() {
		s := repository.NewMemoryStore()
		Reset(func() { _ = s.Close() })
		ev := newEvent(t, s)
		a := &model.Contestant{EventID: ev.ID, Name: "A"}
		b := &model.Contestant{EventID: ev.ID, Name: "B"}
		So(s.CreateContestant(ctx, a), ShouldBeNil)
		So(s.CreateContestant(ctx, b), ShouldBeNil)

		tr := model.Transition{
			EventID: ev.ID,
			From:    model.RoundPreliminary,
			To:      model.RoundSemiFinal,
			Updates: []model.StatusUpdate{
				{ContestantID: a.ID, Status: model.StatusFinalist},
				{ContestantID: b.ID, Status: model.StatusEliminated, EliminatedRound: model.RoundPreliminary},
			},
		}

		Convey("When a transition is applied", func() {
			updated, err := s.ApplyTransition(ctx, tr)

			Convey("Then the round and statuses change together", func() {
				So(err, ShouldBeNil)
				So(updated.CurrentRound, ShouldEqual, model.RoundSemiFinal)
				got, _ := s.GetContestant(ctx, b.ID)
				So(got.Status, ShouldEqual, model.StatusEliminated)
				So(got.EliminatedRound, ShouldEqual, model.RoundPreliminary)
			})

			Convey("Then applying it again conflicts", func() {
				_, err := s.ApplyTransition(ctx, tr)
				So(errors.Is(err, repository.ErrRoundConflict), ShouldBeTrue)
			})
		})

		Convey("When two transitions race", func() {
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				ok, lost int
			)
			for range 10 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.ApplyTransition(ctx, tr)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						ok++
					} else if errors.Is(err, repository.ErrRoundConflict) {
						lost++
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(ok, ShouldEqual, 1)
				So(lost, ShouldEqual, 9)
			})
		})

		Convey("When a transition names an unknown contestant", func() {
			bad := tr
			bad.Updates = append([]model.StatusUpdate{}, tr.Updates...)
			bad.Updates = append(bad.Updates, model.StatusUpdate{ContestantID: "ghost", Status: model.StatusFinalist})
			_, err := s.ApplyTransition(ctx, bad)

			Convey("Then nothing is written", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				got, _ := s.GetEvent(ctx, ev.ID)
				So(got.CurrentRound, ShouldEqual, model.RoundPreliminary)
				ca, _ := s.GetContestant(ctx, a.ID)
				So(ca.Status, ShouldEqual, model.StatusRegistered)
			})
		})

		Convey("When a contestant is eliminated", func() {
			c, err := s.EliminateContestant(ctx, a.ID, model.RoundPreliminary)

			Convey("Then the active round is recorded", func() {
				So(err, ShouldBeNil)
				So(c.Status, ShouldEqual, model.StatusEliminated)
				So(c.EliminatedRound, ShouldEqual, model.RoundPreliminary)
			})

			Convey("Then it cannot happen twice or be overridden back", func() {
				_, err := s.EliminateContestant(ctx, a.ID, model.RoundPreliminary)
				So(errors.Is(err, repository.ErrAlreadyEliminated), ShouldBeTrue)

				_, err = s.UpdateContestantStatus(ctx, model.StatusUpdate{ContestantID: a.ID, Status: model.StatusFinalist})
				So(errors.Is(err, repository.ErrAlreadyEliminated), ShouldBeTrue)
			})
		})

		Convey("When a planned finalist is eliminated before the transition applies", func() {
			_, err := s.EliminateContestant(ctx, a.ID, model.RoundPreliminary)
			So(err, ShouldBeNil)
			updated, err := s.ApplyTransition(ctx, tr)

			Convey("Then the round advances and the elimination stands", func() {
				So(err, ShouldBeNil)
				So(updated.CurrentRound, ShouldEqual, model.RoundSemiFinal)
				got, _ := s.GetContestant(ctx, a.ID)
				So(got.Status, ShouldEqual, model.StatusEliminated)
				So(got.EliminatedRound, ShouldEqual, model.RoundPreliminary)
			})
		})

		Convey("When the caller's round is stale", func() {
			_, err := s.EliminateContestant(ctx, a.ID, model.RoundFinal)
			So(errors.Is(err, repository.ErrRoundConflict), ShouldBeTrue)
		})

		Convey("When a contestant is deleted", func() {
			So(s.DeleteContestant(ctx, a.ID), ShouldBeNil)
			list, _ := s.ListContestants(ctx, ev.ID)
			So(len(list), ShouldEqual, 1)
			So(errors.Is(s.DeleteContestant(ctx, a.ID), repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryStore_Watch(t *testing.T) {
	Convey("Given a watcher on the scores collection", t, func() {
		s := repository.NewMemoryStore()
		ctx, cancel := context.WithCancel(context.Background())
		Reset(func() {
			cancel()
			_ = s.Close()
		})
		changes, err := s.Watch(ctx, repository.CollectionScores)
		So(err, ShouldBeNil)

		ev := newEvent(t, s)
		c := &model.Contestant{EventID: ev.ID, Name: "A"}
		So(s.CreateContestant(ctx, c), ShouldBeNil)

		Convey("When a score is appended", func() {
			r := &model.ScoreRecord{JudgeID: "j", ContestantID: c.ID, EventID: ev.ID, Scores: map[string]float64{"vocal": 9}}
			So(s.AppendScore(ctx, r), ShouldBeNil)

			Convey("Then only the score change is delivered", func() {
				ch := <-changes
				So(ch.Collection, ShouldEqual, repository.CollectionScores)
				So(ch.Op, ShouldEqual, repository.OpInsert)
				So(ch.ContestantID, ShouldEqual, c.ID)
				So(ch.RecordID, ShouldEqual, r.ID)
				So(len(changes), ShouldEqual, 0)
			})
		})

		Convey("When the store closes", func() {
			_ = s.Close()

			Convey("Then the channel is closed while ctx is still live", func() {
				_, open := <-changes
				So(open, ShouldBeFalse)
				So(ctx.Err(), ShouldBeNil)

				_, err := s.Watch(ctx)
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})

		Convey("When the watcher cancels", func() {
			cancel()

			Convey("Then its channel is closed", func() {
				_, open := <-changes
				So(open, ShouldBeFalse)
			})
		})
	})
}

func TestBroadcaster_SlowWatcher(t *testing.T) {
	Convey("Given a broadcaster with a tiny buffer", t, func() {
		b := repository.NewBroadcaster(1)
		changes, err := b.Watch(context.Background())
		So(err, ShouldBeNil)

		Convey("When more changes arrive than the watcher drains", func() {
			b.Publish(repository.Change{Collection: repository.CollectionScores})
			b.Publish(repository.Change{Collection: repository.CollectionScores})

			Convey("Then the watcher is dropped instead of blocking the writer", func() {
				So(b.Watchers(), ShouldEqual, 0)
				<-changes
				_, open := <-changes
				So(open, ShouldBeFalse)
			})
		})
	})
}
