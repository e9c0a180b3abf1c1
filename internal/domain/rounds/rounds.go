// Package rounds implements the contest round state machine:
// preliminary -> semi-final -> final -> completed.
//
// Functions here are pure. They compute the transition and its status
// updates; the store applies it with a conditional update on the current
// round so a cutoff runs at most once per round.
package rounds

import (
	"fmt"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/ranking"
)

// Elimination cutoffs. They are maxima: smaller fields advance whole.
const (
	SemiFinalCutoff = 10
	FinalCutoff     = 5
	PodiumSize      = 3
)

// Advance computes the transition out of the event's current round from the
// ranked standings. Eliminated contestants in ranked are skipped.
func Advance(event *model.Event, ranked []ranking.Standing) (model.Transition, error) {
	next, ok := event.CurrentRound.Next()
	if !ok {
		return model.Transition{}, fmt.Errorf("%w: no round after %q", ErrInvalidTransition, event.CurrentRound)
	}

	active := ranking.Active(ranked)
	tr := model.Transition{
		EventID: event.ID,
		From:    event.CurrentRound,
		To:      next,
		Updates: make([]model.StatusUpdate, 0, len(active)),
	}

	switch event.CurrentRound {
	case model.RoundPreliminary:
		tr.Updates = cut(active, SemiFinalCutoff, model.RoundPreliminary)
	case model.RoundSemiFinal:
		tr.Updates = cut(active, FinalCutoff, model.RoundSemiFinal)
	case model.RoundFinal:
		tr.Updates = podium(active)
	}
	return tr, nil
}

// cut keeps the first keep standings as finalists and eliminates the rest.
func cut(active []ranking.Standing, keep int, round model.Round) []model.StatusUpdate {
	updates := make([]model.StatusUpdate, 0, len(active))
	for i, s := range active {
		u := model.StatusUpdate{ContestantID: s.Contestant.ID, Status: model.StatusFinalist}
		if i >= keep {
			u.Status = model.StatusEliminated
			u.EliminatedRound = round
		}
		updates = append(updates, u)
	}
	return updates
}

// podium assigns final placings. Everyone past third keeps finalist with
// their placing recorded.
func podium(active []ranking.Standing) []model.StatusUpdate {
	updates := make([]model.StatusUpdate, 0, len(active))
	for i, s := range active {
		u := model.StatusUpdate{ContestantID: s.Contestant.ID, FinalRank: i + 1}
		switch {
		case i == 0:
			u.Status = model.StatusWinner
		case i < PodiumSize:
			u.Status = model.StatusRunnerUp
		default:
			u.Status = model.StatusFinalist
		}
		updates = append(updates, u)
	}
	return updates
}

// JumpToFinal skips straight to the final: every contestant still in the
// running becomes a finalist.
func JumpToFinal(event *model.Event, contestants []model.Contestant) (model.Transition, error) {
	switch event.CurrentRound {
	case model.RoundPreliminary, model.RoundSemiFinal:
	default:
		return model.Transition{}, fmt.Errorf("%w: cannot jump to final from %q", ErrInvalidTransition, event.CurrentRound)
	}
	tr := model.Transition{
		EventID: event.ID,
		From:    event.CurrentRound,
		To:      model.RoundFinal,
		Updates: make([]model.StatusUpdate, 0, len(contestants)),
	}
	for _, c := range contestants {
		if !c.Active() {
			continue
		}
		tr.Updates = append(tr.Updates, model.StatusUpdate{ContestantID: c.ID, Status: model.StatusFinalist})
	}
	return tr, nil
}

// Eliminate removes one contestant from the contest. round is the round the
// caller believes is active; a mismatch means the event moved on.
func Eliminate(event *model.Event, contestant *model.Contestant, round model.Round) (model.StatusUpdate, error) {
	if contestant.EventID != event.ID {
		return model.StatusUpdate{}, ErrWrongEvent
	}
	if event.CurrentRound == model.RoundCompleted {
		return model.StatusUpdate{}, fmt.Errorf("%w: event is completed", ErrInvalidTransition)
	}
	if round != event.CurrentRound {
		return model.StatusUpdate{}, fmt.Errorf("%w: expected %q, event is in %q", ErrRoundConflict, round, event.CurrentRound)
	}
	if !contestant.Active() {
		return model.StatusUpdate{}, ErrAlreadyEliminated
	}
	return model.StatusUpdate{
		ContestantID:    contestant.ID,
		Status:          model.StatusEliminated,
		EliminatedRound: event.CurrentRound,
	}, nil
}

// Override validates an admin status change. Elimination stays irreversible,
// so an eliminated contestant cannot be overridden back in.
func Override(event *model.Event, contestant *model.Contestant, u model.StatusUpdate) (model.StatusUpdate, error) {
	if contestant.EventID != event.ID {
		return model.StatusUpdate{}, ErrWrongEvent
	}
	if !u.Status.Valid() {
		return model.StatusUpdate{}, fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, u.Status)
	}
	if !contestant.Active() {
		return model.StatusUpdate{}, ErrAlreadyEliminated
	}
	u.ContestantID = contestant.ID

	switch u.Status {
	case model.StatusRegistered:
		if u.EliminatedRound != "" || u.FinalRank != 0 {
			return model.StatusUpdate{}, fmt.Errorf("%w: registered takes no round or rank", ErrInvalidStatus)
		}
	case model.StatusFinalist:
		if u.EliminatedRound != "" || u.FinalRank < 0 {
			return model.StatusUpdate{}, fmt.Errorf("%w: finalist takes no elimination round", ErrInvalidStatus)
		}
	case model.StatusEliminated:
		if u.EliminatedRound == "" {
			u.EliminatedRound = event.CurrentRound
		}
		if u.EliminatedRound == model.RoundCompleted || !u.EliminatedRound.Valid() {
			return model.StatusUpdate{}, fmt.Errorf("%w: bad elimination round %q", ErrInvalidStatus, u.EliminatedRound)
		}
		u.FinalRank = 0
	case model.StatusWinner:
		if u.FinalRank == 0 {
			u.FinalRank = 1
		}
		if u.FinalRank != 1 || u.EliminatedRound != "" {
			return model.StatusUpdate{}, fmt.Errorf("%w: winner must have final rank 1", ErrInvalidStatus)
		}
	case model.StatusRunnerUp:
		if u.FinalRank < 2 || u.EliminatedRound != "" {
			return model.StatusUpdate{}, fmt.Errorf("%w: runner-up needs a final rank of 2 or more", ErrInvalidStatus)
		}
	}
	return u, nil
}
