// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// CardKind categorizes a card within a bite.
type CardKind string

const (
	CardWelcome  CardKind = "welcome"
	CardInfo     CardKind = "info"
	CardStat     CardKind = "stat"
	CardQuestion CardKind = "question"
	CardResponse CardKind = "response"
)

// CardOption is one answer choice on a question card. NextCardID names the
// card this choice leads to; empty means the choice ends the bite.
type CardOption struct {
	Key        string `json:"key" yaml:"key"`
	Label      string `json:"label" yaml:"label"`
	NextCardID string `json:"next_card_id,omitempty" yaml:"next_card_id,omitempty"`
}

// Card is one node of a bite's graph. Card ids are opaque and unique only
// within their bite.
type Card struct {
	ID   string   `json:"id" yaml:"id"`
	Kind CardKind `json:"kind" yaml:"kind"`

	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Body  string `json:"body,omitempty" yaml:"body,omitempty"`
	Emoji string `json:"emoji,omitempty" yaml:"emoji,omitempty"`

	// SourceInsightID back-references the insight a research card was built
	// from. It is provenance only, not ownership.
	SourceInsightID string `json:"source_insight_id,omitempty" yaml:"source_insight_id,omitempty"`

	// Question and Options are set on question cards only.
	Question string       `json:"question,omitempty" yaml:"question,omitempty"`
	Options  []CardOption `json:"options,omitempty" yaml:"options,omitempty"`

	// NextCardID is the single outgoing edge of a non-question card.
	// Empty signals completion.
	NextCardID string `json:"next_card_id,omitempty" yaml:"next_card_id,omitempty"`
}

// Bite is one patient's daily card graph. At most one exists per
// (patient, date); once created for a day it is read-only.
type Bite struct {
	ID            string    `json:"id" yaml:"id"`
	PatientID     string    `json:"patient_id" yaml:"patient_id"`
	GeneratedDate string    `json:"generated_date" yaml:"generated_date"`
	Cards         []Card    `json:"cards" yaml:"cards"`
	StartCardID   string    `json:"start_card_id" yaml:"start_card_id"`
	SequenceLength int      `json:"sequence_length" yaml:"sequence_length"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// CardIndex returns the bite's cards as an id-indexed map.
func (b *Bite) CardIndex() map[string]*Card {
	idx := make(map[string]*Card, len(b.Cards))
	for i := range b.Cards {
		idx[b.Cards[i].ID] = &b.Cards[i]
	}
	return idx
}

// Card returns the card with the given id, or nil.
func (b *Bite) Card(id string) *Card {
	for i := range b.Cards {
		if b.Cards[i].ID == id {
			return &b.Cards[i]
		}
	}
	return nil
}

// Validate checks the bite's graph invariants: at least one card, a start
// card present in the deck, every edge resolving within the deck, question
// cards carrying at least one option, and every card reachable from the
// start card.
func (b *Bite) Validate() error {
	if len(b.Cards) == 0 {
		return fmt.Errorf("bite %s has no cards", b.ID)
	}

	idx := b.CardIndex()
	if len(idx) != len(b.Cards) {
		return fmt.Errorf("bite %s has duplicate card ids", b.ID)
	}
	if _, ok := idx[b.StartCardID]; !ok {
		return fmt.Errorf("start card %q not in bite", b.StartCardID)
	}

	for _, c := range b.Cards {
		if c.Kind == CardQuestion {
			if len(c.Options) == 0 {
				return fmt.Errorf("question card %q has no options", c.ID)
			}
			for _, opt := range c.Options {
				if opt.NextCardID != "" {
					if _, ok := idx[opt.NextCardID]; !ok {
						return fmt.Errorf("card %q option %q points to unknown card %q", c.ID, opt.Key, opt.NextCardID)
					}
				}
			}
			continue
		}
		if c.NextCardID != "" {
			if _, ok := idx[c.NextCardID]; !ok {
				return fmt.Errorf("card %q points to unknown card %q", c.ID, c.NextCardID)
			}
		}
	}

	// Reachability from the start card.
	reached := make(map[string]bool, len(b.Cards))
	stack := []string{b.StartCardID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == "" || reached[id] {
			continue
		}
		reached[id] = true
		c := idx[id]
		if c.Kind == CardQuestion {
			for _, opt := range c.Options {
				stack = append(stack, opt.NextCardID)
			}
		} else {
			stack = append(stack, c.NextCardID)
		}
	}
	for _, c := range b.Cards {
		if !reached[c.ID] {
			return fmt.Errorf("card %q unreachable from start card", c.ID)
		}
	}

	return nil
}

// Answer records one question-card choice within a bite session.
// Answers are append-only.
type Answer struct {
	ID            string    `json:"id" yaml:"id"`
	BiteID        string    `json:"bite_id" yaml:"bite_id"`
	PatientID     string    `json:"patient_id" yaml:"patient_id"`
	CardID        string    `json:"card_id" yaml:"card_id"`
	SelectedKey   string    `json:"selected_key" yaml:"selected_key"`
	QuestionText  string    `json:"question_text,omitempty" yaml:"question_text,omitempty"`
	SelectedLabel string    `json:"selected_label,omitempty" yaml:"selected_label,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// PatientProfile is the slice of the external patient record the generator
// consumes. Profile management itself lives outside this system.
type PatientProfile struct {
	PatientID       string `json:"patient_id" yaml:"patient_id"`
	StrokeType      string `json:"stroke_type,omitempty" yaml:"stroke_type,omitempty"`
	DaysSinceStroke int    `json:"days_since_stroke" yaml:"days_since_stroke"`
}

// RecoveryPhase buckets the profile's days-since-stroke.
func (p PatientProfile) RecoveryPhase() RecoveryPhase {
	return PhaseForDays(p.DaysSinceStroke)
}
