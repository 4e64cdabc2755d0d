// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bites builds the daily card deck for a patient. A bite is a
// small directed graph of cards: a welcome opener, research-backed
// content cards, and question cards whose option branches rejoin the
// main sequence. Generation is memoized per patient per day through the
// store's uniqueness constraint.
package bites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strokecovery/bites-engine/internal/embed"
	"github.com/strokecovery/bites-engine/internal/knowledge"
	"github.com/strokecovery/bites-engine/pkg/types"
)

// Store is the slice of the knowledge store the generator needs.
type Store interface {
	GetBite(ctx context.Context, patientID, date string) (*types.Bite, error)
	InsertBite(ctx context.Context, bite *types.Bite) (*types.Bite, error)
	SearchInsights(ctx context.Context, query []float32, topK int, f knowledge.Filters) ([]knowledge.ScoredInsight, error)
	SeenInsightIDs(ctx context.Context, patientID string, days int) (map[string]bool, error)
}

// Service generates and memoizes bites.
type Service struct {
	store    Store
	embedder embed.Backend
	cfg      types.GeneratorConfig
	log      *zap.Logger
}

// NewService wires a generator. A nil logger falls back to a no-op
// logger, and zero config fields take their defaults.
func NewService(store Store, embedder embed.Backend, cfg types.GeneratorConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SequenceLength <= 0 {
		cfg.SequenceLength = 6
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 10
	}
	if cfg.SeenWindowDays <= 0 {
		cfg.SeenWindowDays = 14
	}
	if cfg.QuestionInterval <= 0 {
		cfg.QuestionInterval = 3
	}
	return &Service{store: store, embedder: embedder, cfg: cfg, log: log}
}

// GetOrCreateBite returns the patient's bite for the given date,
// generating and persisting it on first access. Repeated calls for the
// same (patient, date) return identical content. Concurrent first
// requests are resolved by the store's uniqueness constraint.
func (s *Service) GetOrCreateBite(ctx context.Context, profile types.PatientProfile, date string) (*types.Bite, error) {
	existing, err := s.store.GetBite(ctx, profile.PatientID, date)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, knowledge.ErrNotGenerated) {
		return nil, err
	}

	insights, err := s.selectInsights(ctx, profile)
	if err != nil {
		return nil, err
	}

	bite := &types.Bite{
		ID:            uuid.NewString(),
		PatientID:     profile.PatientID,
		GeneratedDate: date,
		CreatedAt:     time.Now(),
	}
	if len(insights) == 0 {
		s.log.Warn("no insights available, using fallback deck",
			zap.String("patient_id", profile.PatientID))
		bite.Cards, bite.StartCardID, bite.SequenceLength = fallbackDeck()
	} else {
		bite.Cards, bite.StartCardID, bite.SequenceLength = s.buildCards(insights)
	}

	if err := bite.Validate(); err != nil {
		return nil, fmt.Errorf("generated bite invalid: %w", err)
	}

	stored, err := s.store.InsertBite(ctx, bite)
	if err != nil {
		return nil, err
	}
	s.log.Info("bite generated",
		zap.String("patient_id", profile.PatientID),
		zap.String("date", date),
		zap.Int("cards", len(stored.Cards)))
	return stored, nil
}

// selectInsights retrieves, filters, and deduplicates candidate
// insights for the patient. Exclusion of recently seen insights never
// empties the result: when everything has been seen, the full candidate
// set comes back instead.
func (s *Service) selectInsights(ctx context.Context, profile types.PatientProfile) ([]types.Insight, error) {
	phase := profile.RecoveryPhase()

	query := s.queryVector(ctx, profile, phase)

	filters := knowledge.Filters{RecoveryPhase: phase}
	if profile.StrokeType != "" {
		filters.StrokeTypes = []string{profile.StrokeType}
	}

	candidates, err := s.store.SearchInsights(ctx, query, s.cfg.CandidateLimit, filters)
	if err != nil {
		return nil, fmt.Errorf("searching insights: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	seen, err := s.store.SeenInsightIDs(ctx, profile.PatientID, s.cfg.SeenWindowDays)
	if err != nil {
		return nil, fmt.Errorf("loading seen insights: %w", err)
	}

	var fresh []knowledge.ScoredInsight
	for _, c := range candidates {
		if !seen[c.ID] {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		fresh = candidates
	}

	limit := s.cfg.SequenceLength
	if len(fresh) > limit {
		fresh = fresh[:limit]
	}

	insights := make([]types.Insight, len(fresh))
	for i, c := range fresh {
		insights[i] = c.Insight
	}
	return insights, nil
}

// queryVector embeds a generic topic query for the patient. Embedding
// failures degrade to a nil vector, which the store answers with
// recency ordering instead of similarity.
func (s *Service) queryVector(ctx context.Context, profile types.PatientProfile, phase types.RecoveryPhase) []float32 {
	if s.embedder == nil {
		return nil
	}
	text := "stroke recovery"
	if profile.StrokeType != "" {
		text = profile.StrokeType + " stroke recovery"
	}
	if phase != "" {
		text += " " + string(phase) + " phase"
	}

	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil || len(vecs) != 1 {
		s.log.Warn("query embedding failed, falling back to recency order",
			zap.String("patient_id", profile.PatientID), zap.Error(err))
		return nil
	}
	return vecs[0]
}

// buildCards lays out the deck: a welcome card, one content card per
// insight, and a question block after every cfg.QuestionInterval
// content cards. Question options branch to short response cards that
// rejoin the spine, so every path reaches the terminal card. Returned
// sequence length counts spine cards only, not branch responses.
func (s *Service) buildCards(insights []types.Insight) ([]types.Card, string, int) {
	var (
		cards   []types.Card
		pending []int
		tail    = -1
		nextNum = 1
		spine   int
		asked   int
	)

	newID := func() string {
		id := fmt.Sprintf("c%d", nextNum)
		nextNum++
		return id
	}

	// attach links the current spine tail (and any open question
	// branches) to the next spine card.
	attach := func(card types.Card) {
		if tail >= 0 && cards[tail].Kind != types.CardQuestion {
			cards[tail].NextCardID = card.ID
		}
		for _, idx := range pending {
			cards[idx].NextCardID = card.ID
		}
		pending = nil
		cards = append(cards, card)
		tail = len(cards) - 1
		spine++
	}

	attach(types.Card{
		ID:    newID(),
		Kind:  types.CardWelcome,
		Body:  "Welcome back! Here are today's recovery insights.",
		Emoji: "👋",
	})

	for i, ins := range insights {
		card := types.Card{
			ID:              newID(),
			Kind:            types.CardInfo,
			Title:           ins.Intervention,
			Body:            ins.Claim,
			SourceInsightID: ins.ID,
		}
		if ins.QuantitativeResult != "" {
			card.Kind = types.CardStat
			card.Body = ins.Claim + " " + ins.QuantitativeResult
		}
		attach(card)

		if (i+1)%s.cfg.QuestionInterval == 0 {
			q := questionBank[asked%len(questionBank)]
			asked++

			qID := newID()
			respA := types.Card{ID: qID + "a", Kind: types.CardResponse, Body: q.responseA, Emoji: q.emoji}
			respB := types.Card{ID: qID + "b", Kind: types.CardResponse, Body: q.responseB, Emoji: q.emoji}

			attach(types.Card{
				ID:       qID,
				Kind:     types.CardQuestion,
				Emoji:    "🤔",
				Question: q.text,
				Options: []types.CardOption{
					{Key: "a", Label: q.optionA, NextCardID: respA.ID},
					{Key: "b", Label: q.optionB, NextCardID: respB.ID},
				},
			})
			cards = append(cards, respA, respB)
			pending = append(pending, len(cards)-2, len(cards)-1)
		}
	}

	attach(types.Card{
		ID:    newID(),
		Kind:  types.CardInfo,
		Title: "Keep Going",
		Body:  "You're doing great. Come back tomorrow for more insights!",
		Emoji: "✨",
	})

	return cards, cards[0].ID, spine
}
