// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package traverse implements the client-side walk over a bite's card
// graph. The engine is single-threaded: state changes only on caller
// input, and no background work mutates traversal state.
package traverse

import (
	"context"
	"errors"
	"fmt"

	"github.com/strokecovery/bites-engine/pkg/types"
)

// State is the engine's lifecycle state.
type State int

const (
	StateLoading State = iota
	StateError
	StatePresenting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateError:
		return "error"
	case StatePresenting:
		return "presenting"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrNotLoaded marks navigation attempted before a bite is loaded.
var ErrNotLoaded = errors.New("no bite loaded")

// Flusher receives accumulated answers when the walk closes. Typically
// backed by the answers API; tests supply fakes.
type Flusher interface {
	SaveAnswers(ctx context.Context, biteID, patientID string, answers []types.Answer) error
}

// Engine walks one bite's card graph.
type Engine struct {
	state   State
	loadErr error

	bite    *types.Bite
	index   map[string]*types.Card
	current string
	history []string

	// answers keyed by question card id; re-selecting overwrites.
	answers map[string]types.Answer
}

// NewEngine returns an engine in the loading state. Call Load or Fail
// to resolve it.
func NewEngine() *Engine {
	return &Engine{
		state:   StateLoading,
		answers: make(map[string]types.Answer),
	}
}

// Load resolves loading with a fetched bite and presents its start
// card.
func (e *Engine) Load(bite *types.Bite) error {
	if err := bite.Validate(); err != nil {
		e.Fail(err)
		return err
	}
	e.bite = bite
	e.index = bite.CardIndex()
	e.current = bite.StartCardID
	e.history = nil
	e.state = StatePresenting
	e.loadErr = nil
	return nil
}

// Fail resolves loading with a transport or generation error.
func (e *Engine) Fail(err error) {
	e.state = StateError
	e.loadErr = err
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Err returns the load error, if any.
func (e *Engine) Err() error { return e.loadErr }

// Current returns the card being presented, or nil outside presenting.
func (e *Engine) Current() *types.Card {
	if e.state != StatePresenting {
		return nil
	}
	return e.index[e.current]
}

// Select records the answer for the current question card. Selecting
// again overwrites the previous choice. Advancing past the question
// uses the selected option's edge.
func (e *Engine) Select(key string) error {
	card := e.Current()
	if card == nil {
		return ErrNotLoaded
	}
	if card.Kind != types.CardQuestion {
		return fmt.Errorf("card %s is not a question", card.ID)
	}
	for _, opt := range card.Options {
		if opt.Key == key {
			e.answers[card.ID] = types.Answer{
				CardID:        card.ID,
				SelectedKey:   opt.Key,
				QuestionText:  card.Question,
				SelectedLabel: opt.Label,
			}
			return nil
		}
	}
	return fmt.Errorf("card %s has no option %q", card.ID, key)
}

// Forward advances along the current card's outgoing edge. A question
// card requires a selected answer first; its chosen option determines
// the branch. An empty next edge completes the walk.
func (e *Engine) Forward() error {
	card := e.Current()
	if card == nil {
		return ErrNotLoaded
	}

	next := card.NextCardID
	if card.Kind == types.CardQuestion {
		ans, ok := e.answers[card.ID]
		if !ok {
			return fmt.Errorf("question %s needs an answer before advancing", card.ID)
		}
		for _, opt := range card.Options {
			if opt.Key == ans.SelectedKey {
				next = opt.NextCardID
				break
			}
		}
	}

	if next == "" {
		e.state = StateCompleted
		return nil
	}
	e.history = append(e.history, e.current)
	e.current = next
	return nil
}

// Back returns to the previous card. Landing back on an answered
// question clears its answer so the reader can choose again. At the
// start of the walk Back is a no-op.
func (e *Engine) Back() error {
	if e.state != StatePresenting {
		return ErrNotLoaded
	}
	if len(e.history) == 0 {
		return nil
	}
	e.current = e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]

	if card := e.index[e.current]; card != nil && card.Kind == types.CardQuestion {
		delete(e.answers, card.ID)
	}
	return nil
}

// Tap maps a tap at horizontal position x on a surface of the given
// width to navigation: left half goes back, right half goes forward.
// Question cards ignore taps; they navigate through Select and Forward.
func (e *Engine) Tap(x, width int) error {
	card := e.Current()
	if card == nil {
		return ErrNotLoaded
	}
	if card.Kind == types.CardQuestion {
		return nil
	}
	if x < width/2 {
		return e.Back()
	}
	return e.Forward()
}

// Progress reports the fraction of the deck walked, clamped to [0, 1].
func (e *Engine) Progress() float64 {
	if e.state == StateCompleted {
		return 1
	}
	if e.state != StatePresenting || e.bite == nil || e.bite.SequenceLength == 0 {
		return 0
	}
	p := float64(len(e.history)+1) / float64(e.bite.SequenceLength)
	if p > 1 {
		p = 1
	}
	return p
}

// Answers returns the accumulated answers in card order.
func (e *Engine) Answers() []types.Answer {
	if e.bite == nil {
		return nil
	}
	var out []types.Answer
	for _, card := range e.bite.Cards {
		if ans, ok := e.answers[card.ID]; ok {
			out = append(out, ans)
		}
	}
	return out
}

// Close flushes accumulated answers best-effort. A flush failure is
// returned for logging but never blocks closing; the engine is done
// either way.
func (e *Engine) Close(ctx context.Context, flusher Flusher) error {
	answers := e.Answers()
	if flusher == nil || len(answers) == 0 || e.bite == nil {
		return nil
	}
	if err := flusher.SaveAnswers(ctx, e.bite.ID, e.bite.PatientID, answers); err != nil {
		return fmt.Errorf("flushing answers: %w", err)
	}
	return nil
}
