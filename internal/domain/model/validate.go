package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
)

var validate = validator.New()

// LegacyKey derives a criterion key from a display name the way older
// clients did: case folded with spaces turned into underscores.
func LegacyKey(name string) string {
	// A Caser keeps state, so one is built per call.
	folded := cases.Fold().String(strings.TrimSpace(name))
	return strings.Join(strings.Fields(folded), "_")
}

// NormalizeCriteria returns a copy of criteria with missing ids derived from
// the names. Existing ids are never touched.
func NormalizeCriteria(criteria []Criterion) []Criterion {
	out := make([]Criterion, len(criteria))
	for i, c := range criteria {
		c.Name = strings.TrimSpace(c.Name)
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			c.ID = LegacyKey(c.Name)
		}
		out[i] = c
	}
	return out
}

// ValidateCriteria checks every criterion and that ids and names are unique.
// Weight sums are not checked here; see scoring.CheckWeights.
func ValidateCriteria(criteria []Criterion) error {
	ids := make(map[string]struct{}, len(criteria))
	names := make(map[string]struct{}, len(criteria))
	for i := range criteria {
		c := &criteria[i]
		if err := validate.Struct(c); err != nil {
			return fmt.Errorf("%w: criterion %d: %w", ErrInvalidCriteria, i, err)
		}
		if _, dup := ids[c.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidCriteria, c.ID)
		}
		name := LegacyKey(c.Name)
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidCriteria, c.Name)
		}
		ids[c.ID] = struct{}{}
		names[name] = struct{}{}
	}
	return nil
}

// ValidateEvent checks an event before it is created or updated.
func ValidateEvent(e *Event) error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if e.CurrentRound != "" && !e.CurrentRound.Valid() {
		return fmt.Errorf("%w: unknown round %q", ErrInvalidEvent, e.CurrentRound)
	}
	return ValidateCriteria(e.Criteria)
}

// ValidateScoreRecord checks the judge supplied part of a record.
func ValidateScoreRecord(r *ScoreRecord) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScore, err)
	}
	return nil
}

// ResolveScoreKeys maps submitted score keys onto criterion ids. A key may be
// the id itself or a legacy name derived key. Unknown keys fail with an
// *UnknownCriterionError carrying the closest known key.
func (e *Event) ResolveScoreKeys(scores map[string]float64) (map[string]float64, error) {
	byLegacy := make(map[string]string, len(e.Criteria))
	for _, c := range e.Criteria {
		byLegacy[LegacyKey(c.Name)] = c.ID
	}

	// Sorted so the reported key is stable when several are unknown.
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(map[string]float64, len(scores))
	for _, k := range keys {
		id, ok := e.lookupKey(k, byLegacy)
		if !ok {
			return nil, &UnknownCriterionError{Key: k, Suggestion: e.suggest(k)}
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("%w: criterion %q given twice", ErrInvalidScore, id)
		}
		out[id] = scores[k]
	}
	return out, nil
}

func (e *Event) lookupKey(k string, byLegacy map[string]string) (string, bool) {
	if _, ok := e.Criterion(k); ok {
		return k, true
	}
	id, ok := byLegacy[LegacyKey(k)]
	return id, ok
}

func (e *Event) suggest(key string) string {
	best, bestDist := "", -1
	for _, c := range e.Criteria {
		for _, candidate := range []string{c.ID, LegacyKey(c.Name)} {
			d := levenshtein.ComputeDistance(strings.ToLower(key), candidate)
			if bestDist < 0 || d < bestDist {
				best, bestDist = c.ID, d
			}
		}
	}
	if bestDist < 0 || bestDist > max(2, len(key)/3) {
		return ""
	}
	return best
}
