package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strokecovery/bites-engine/internal/traverse"
	"github.com/strokecovery/bites-engine/pkg/types"
)

type staticProvider struct {
	bite *types.Bite
	err  error
}

func (p staticProvider) GetOrCreateBite(context.Context, types.PatientProfile, string) (*types.Bite, error) {
	return p.bite, p.err
}

type recordingFlusher struct {
	answers []types.Answer
	calls   int
}

func (f *recordingFlusher) SaveAnswers(_ context.Context, _, _ string, answers []types.Answer) error {
	f.calls++
	f.answers = answers
	return nil
}

func walkBite() *types.Bite {
	return &types.Bite{
		ID:        "bite-1",
		PatientID: "pat-1",
		Cards: []types.Card{
			{ID: "c1", Kind: types.CardWelcome, Body: "welcome", Emoji: "👋", NextCardID: "c2"},
			{ID: "c2", Kind: types.CardQuestion, Question: "Sleeping well?", Options: []types.CardOption{
				{Key: "a", Label: "Yes", NextCardID: "c3a"},
				{Key: "b", Label: "No", NextCardID: "c3b"},
			}},
			{ID: "c3a", Kind: types.CardResponse, Body: "great", NextCardID: "c4"},
			{ID: "c3b", Kind: types.CardResponse, Body: "rest up", NextCardID: "c4"},
			{ID: "c4", Kind: types.CardInfo, Title: "Done", Body: "closing"},
		},
		StartCardID:    "c1",
		SequenceLength: 4,
	}
}

func loadedModel(t *testing.T, flusher traverse.Flusher) Model {
	t.Helper()
	m := NewModel(staticProvider{bite: walkBite()}, flusher, types.PatientProfile{PatientID: "pat-1"})
	msg := m.fetchBite()
	updated, _ := m.Update(msg)
	model, ok := updated.(Model)
	require.True(t, ok)
	require.Equal(t, traverse.StatePresenting, model.engine.State())
	return model
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, s string) Model {
	t.Helper()
	updated, _ := m.Update(key(s))
	model, ok := updated.(Model)
	require.True(t, ok)
	return model
}

func TestViewShowsLoadingThenCard(t *testing.T) {
	m := NewModel(staticProvider{bite: walkBite()}, nil, types.PatientProfile{})
	assert.Contains(t, m.View(), "Fetching")

	loaded := loadedModel(t, nil)
	assert.Contains(t, loaded.View(), "welcome")
}

func TestLoadFailureShowsError(t *testing.T) {
	m := NewModel(staticProvider{err: fmt.Errorf("server unreachable")}, nil, types.PatientProfile{})
	updated, _ := m.Update(m.fetchBite())
	model := updated.(Model)
	assert.Contains(t, model.View(), "server unreachable")
}

func TestKeysNavigate(t *testing.T) {
	m := loadedModel(t, nil)

	m = press(t, m, "l")
	assert.Contains(t, m.View(), "Sleeping well?")

	// Question ignores forward until answered.
	m = press(t, m, "l")
	assert.Contains(t, m.View(), "Sleeping well?")

	m = press(t, m, "a")
	assert.Contains(t, m.View(), "> [a] Yes")

	m = press(t, m, "l")
	assert.Contains(t, m.View(), "great")

	m = press(t, m, "h")
	assert.Contains(t, m.View(), "Sleeping well?")
	assert.NotContains(t, m.View(), ">", "back onto a question clears the pick")
}

func TestCompletionQuits(t *testing.T) {
	f := &recordingFlusher{}
	m := loadedModel(t, f)

	m = press(t, m, "l")
	m = press(t, m, "b")
	m = press(t, m, "l")
	m = press(t, m, "l")

	updated, cmd := m.Update(key("l"))
	m = updated.(Model)
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, f.calls)
	require.Len(t, f.answers, 1)
	assert.Equal(t, "b", f.answers[0].SelectedKey)
	assert.NotEmpty(t, strings.TrimSpace(f.answers[0].QuestionText))
}

func TestQuitFlushesAnswers(t *testing.T) {
	f := &recordingFlusher{}
	m := loadedModel(t, f)

	m = press(t, m, "l")
	m = press(t, m, "a")

	updated, cmd := m.Update(key("q"))
	m = updated.(Model)
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, f.calls)
	require.Len(t, f.answers, 1)
	assert.Equal(t, "a", f.answers[0].SelectedKey)
}

func TestQuitWithoutAnswersSkipsFlush(t *testing.T) {
	f := &recordingFlusher{}
	m := loadedModel(t, f)

	updated, _ := m.Update(key("q"))
	m = updated.(Model)
	assert.True(t, m.quitting)
	assert.Equal(t, 0, f.calls)
}
