// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tui renders a bite walk in the terminal. It is a thin
// Bubbletea shell over the traversal engine: keys map to engine
// transitions and the view renders the current card with a progress
// bar.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/strokecovery/bites-engine/internal/knowledge"
	"github.com/strokecovery/bites-engine/internal/traverse"
	"github.com/strokecovery/bites-engine/pkg/types"
)

// Provider fetches or generates the day's bite.
type Provider interface {
	GetOrCreateBite(ctx context.Context, profile types.PatientProfile, date string) (*types.Bite, error)
}

// StoreFlusher adapts the knowledge store to the traversal engine's
// flush interface, assigning answer ids on the way in.
type StoreFlusher struct {
	Store *knowledge.Store
}

// SaveAnswers persists answers collected during a walk.
func (f StoreFlusher) SaveAnswers(ctx context.Context, biteID, patientID string, answers []types.Answer) error {
	for i := range answers {
		if answers[i].ID == "" {
			answers[i].ID = uuid.NewString()
		}
	}
	return f.Store.InsertAnswers(ctx, biteID, patientID, answers)
}

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 3).
			Width(60)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	optionStyle = lipgloss.NewStyle().PaddingLeft(2)
	pickedStyle = lipgloss.NewStyle().PaddingLeft(2).Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type biteLoadedMsg struct{ bite *types.Bite }
type loadFailedMsg struct{ err error }

// Model drives one walk through a bite.
type Model struct {
	engine   *traverse.Engine
	provider Provider
	flusher  traverse.Flusher
	profile  types.PatientProfile
	date     string
	progress progress.Model
	width    int
	quitting bool
}

// NewModel builds a walker that fetches the bite on Init.
func NewModel(provider Provider, flusher traverse.Flusher, profile types.PatientProfile) Model {
	return Model{
		engine:   traverse.NewEngine(),
		provider: provider,
		flusher:  flusher,
		profile:  profile,
		date:     time.Now().UTC().Format("2006-01-02"),
		progress: progress.New(progress.WithDefaultGradient()),
		width:    80,
	}
}

// Init kicks off the bite fetch.
func (m Model) Init() tea.Cmd {
	return m.fetchBite
}

func (m Model) fetchBite() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bite, err := m.provider.GetOrCreateBite(ctx, m.profile, m.date)
	if err != nil {
		return loadFailedMsg{err: err}
	}
	return biteLoadedMsg{bite: bite}
}

// Update handles key and lifecycle messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(msg.Width-8, 52)
		return m, nil

	case biteLoadedMsg:
		if err := m.engine.Load(msg.bite); err != nil {
			return m, nil
		}
		return m, nil

	case loadFailedMsg:
		m.engine.Fail(msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		m.flush()
		return m, tea.Quit

	case "left", "h":
		m.engine.Back()
		return m, nil

	case "right", "l", " ", "enter":
		m.engine.Forward()
		if m.engine.State() == traverse.StateCompleted {
			m.quitting = true
			m.flush()
			return m, tea.Quit
		}
		return m, nil

	case "a", "1":
		m.selectOption(0)
		return m, nil

	case "b", "2":
		m.selectOption(1)
		return m, nil
	}
	return m, nil
}

func (m Model) selectOption(idx int) {
	card := m.engine.Current()
	if card == nil || card.Kind != types.CardQuestion || idx >= len(card.Options) {
		return
	}
	m.engine.Select(card.Options[idx].Key)
}

// flush saves answers best-effort; a failure never blocks quitting.
func (m Model) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.engine.Close(ctx, m.flusher)
}

// View renders the current state.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.engine.State() {
	case traverse.StateLoading:
		return mutedStyle.Render("Fetching today's bite...") + "\n"
	case traverse.StateError:
		return errorStyle.Render(fmt.Sprintf("Could not load today's bite: %v", m.engine.Err())) + "\n"
	case traverse.StateCompleted:
		return "All done for today! 🎉\n"
	}

	card := m.engine.Current()
	if card == nil {
		return ""
	}

	var b strings.Builder
	if card.Emoji != "" {
		b.WriteString(card.Emoji + "  ")
	}
	if card.Title != "" {
		b.WriteString(titleStyle.Render(card.Title))
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}

	if card.Kind == types.CardQuestion {
		b.WriteString(card.Question + "\n\n")
		selected := ""
		for _, ans := range m.engine.Answers() {
			if ans.CardID == card.ID {
				selected = ans.SelectedKey
			}
		}
		for _, opt := range card.Options {
			line := fmt.Sprintf("[%s] %s", opt.Key, opt.Label)
			if opt.Key == selected {
				b.WriteString(pickedStyle.Render("> " + line))
			} else {
				b.WriteString(optionStyle.Render("  " + line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n" + mutedStyle.Render("press a/b to choose, enter to continue"))
	} else {
		b.WriteString(card.Body)
	}

	view := cardStyle.Render(b.String())
	bar := m.progress.ViewAs(m.engine.Progress())
	help := mutedStyle.Render("←/h back · →/l forward · q quit")

	return lipgloss.JoinVertical(lipgloss.Left, view, "", bar, help) + "\n"
}
