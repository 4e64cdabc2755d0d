// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bites

import "github.com/strokecovery/bites-engine/pkg/types"

// question is one entry in the static question bank. Questions
// personalize future decks; each option leads to a short encouraging
// response before rejoining the deck.
type question struct {
	text      string
	emoji     string
	optionA   string
	optionB   string
	responseA string
	responseB string
}

var questionBank = []question{
	{
		text:      "Do you exercise regularly each week?",
		emoji:     "💪",
		optionA:   "Yes, 3+ times a week",
		optionB:   "No, not regularly",
		responseA: "Great habit! Regular movement supports your brain's recovery.",
		responseB: "That's okay. Even short daily walks can make a difference.",
	},
	{
		text:      "How has your sleep been lately?",
		emoji:     "😴",
		optionA:   "Sleeping well",
		optionB:   "Trouble sleeping",
		responseA: "Wonderful. Your brain does much of its healing during sleep.",
		responseB: "Many survivors struggle with sleep. Mention it at your next checkup.",
	},
	{
		text:      "Have you done your therapy exercises today?",
		emoji:     "🏋️",
		optionA:   "Yes, done!",
		optionB:   "Not yet",
		responseA: "Excellent! Consistency matters more than intensity.",
		responseB: "There's still time today. Even a few minutes counts.",
	},
	{
		text:      "Do you feel supported by people around you?",
		emoji:     "💙",
		optionA:   "Yes, mostly",
		optionB:   "Not really",
		responseA: "That support is a real asset for recovery.",
		responseB: "You're not alone. Support groups for survivors can help a lot.",
	},
}

// fallbackDeck is the static deck used when retrieval yields nothing.
// No research facts and no questions, just safe general content, so the
// client never receives an empty graph.
func fallbackDeck() ([]types.Card, string, int) {
	cards := []types.Card{
		{ID: "f1", Kind: types.CardWelcome, Body: "Welcome! Here are today's recovery insights.", Emoji: "👋", NextCardID: "f2"},
		{ID: "f2", Kind: types.CardInfo, Title: "Recovery is a Journey", Body: "Every small step forward is progress. Be patient with yourself.", Emoji: "🌱", NextCardID: "f3"},
		{ID: "f3", Kind: types.CardInfo, Title: "Stay Consistent", Body: "Regular therapy sessions help your brain form new connections. Consistency matters more than intensity.", Emoji: "🧠", NextCardID: "f4"},
		{ID: "f4", Kind: types.CardInfo, Title: "Rest Matters", Body: "Your brain heals during sleep. Aim for 7 to 9 hours each night.", Emoji: "😴", NextCardID: "f5"},
		{ID: "f5", Kind: types.CardInfo, Title: "Keep Going", Body: "You're doing great. Come back tomorrow for more insights!", Emoji: "✨"},
	}
	return cards, "f1", len(cards)
}
