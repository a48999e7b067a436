// Package wizard runs multi-step conversational forms.
//
// A Template lists ordered steps. Free-text replies are checked by the current
// step's validator; a rejected reply keeps the wizard on the same step. When the
// last step is answered the template's commit action runs once and the state is
// dropped. Only one wizard per identity exists: Start replaces any active one.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNoSession       = errors.New("no active wizard")
	ErrUnknownTemplate = errors.New("unknown wizard")
)

type Status int

const (
	// Prompted: the wizard waits for the step in Outcome.Step.
	Prompted Status = iota
	// Rejected: the reply failed validation; Reason says why and the step did not change.
	Rejected
	// Committed: the commit action succeeded and the wizard is gone.
	Committed
	// CommitFailed: the commit action failed; Err says why and the wizard is gone.
	CommitFailed
)

// Outcome describes what happened and what to show next.
type Outcome struct {
	Status   Status
	Template *Template
	Step     int
	Reason   string
	Result   string
	Err      error
	Record   Record
}

// Current returns the step the wizard is waiting on.
func (o Outcome) Current() (Step, bool) {
	if o.Template == nil || o.Step < 0 || o.Step >= len(o.Template.Steps) {
		return Step{}, false
	}
	return o.Template.Steps[o.Step], true
}

// Engine drives templates over per-identity state kept in Slots.
type Engine struct {
	slots     Slots
	templates map[string]*Template
}

func NewEngine(slots Slots) *Engine {
	return &Engine{slots: slots, templates: make(map[string]*Template)}
}

// Register adds a template. Registering the same kind twice replaces it.
func (e *Engine) Register(t *Template) {
	if len(t.Steps) == 0 {
		panic(fmt.Sprintf("wizard %q has no steps", t.Kind))
	}
	e.templates[t.Kind] = t
}

// Template returns a registered template.
func (e *Engine) Template(kind string) (*Template, bool) {
	t, ok := e.templates[kind]
	return t, ok
}

// Active returns the identity's wizard, if any.
func (e *Engine) Active(id int64) (*State, bool) {
	return e.slots.Wizard(id)
}

// Start begins kind for id, silently discarding any wizard id already had.
func (e *Engine) Start(id int64, kind string, params map[string]string) (Outcome, error) {
	t, ok := e.templates[kind]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, kind)
	}
	if prev, ok := e.slots.Wizard(id); ok {
		slog.Debug("Replacing active wizard", "user_id", id, "previous", prev.Kind, "kind", kind)
	}

	state := &State{Kind: kind, Params: params}
	e.slots.PutWizard(id, state)
	return Outcome{Status: Prompted, Template: t, Step: 0}, nil
}

// Reply feeds free text to the current step.
func (e *Engine) Reply(ctx context.Context, id, chatID int64, text string) (Outcome, error) {
	state, t, err := e.lookup(id)
	if err != nil {
		return Outcome{}, err
	}

	step := t.Steps[state.Step]
	if step.IsChoice() {
		return Outcome{Status: Rejected, Template: t, Step: state.Step, Reason: "choose one of the options below", Record: state.Collected}, nil
	}

	value, verr := validate(step, text)
	if verr != nil {
		return Outcome{Status: Rejected, Template: t, Step: state.Step, Reason: verr.Error(), Record: state.Collected}, nil
	}
	return e.accept(ctx, id, chatID, state, t, value), nil
}

// Choose selects option index of the current choice step.
func (e *Engine) Choose(ctx context.Context, id, chatID int64, index int) (Outcome, error) {
	state, t, err := e.lookup(id)
	if err != nil {
		return Outcome{}, err
	}

	step := t.Steps[state.Step]
	if !step.IsChoice() || index < 0 || index >= len(step.Options) {
		return Outcome{Status: Rejected, Template: t, Step: state.Step, Reason: "that option is not available at this step", Record: state.Collected}, nil
	}
	return e.accept(ctx, id, chatID, state, t, step.Options[index].Value), nil
}

// Cancel drops the identity's wizard. It reports whether one was active.
func (e *Engine) Cancel(id int64) (*Template, bool) {
	state, ok := e.slots.Wizard(id)
	e.slots.ClearWizard(id)
	if !ok {
		return nil, false
	}
	return e.templates[state.Kind], true
}

func (e *Engine) lookup(id int64) (*State, *Template, error) {
	state, ok := e.slots.Wizard(id)
	if !ok {
		return nil, nil, ErrNoSession
	}
	t, ok := e.templates[state.Kind]
	if !ok || state.Step < 0 || state.Step >= len(t.Steps) {
		e.slots.ClearWizard(id)
		return nil, nil, ErrNoSession
	}
	return state, t, nil
}

func (e *Engine) accept(ctx context.Context, id, chatID int64, state *State, t *Template, value string) Outcome {
	field := t.Steps[state.Step].Field
	state.Collected = append(state.Collected, Field{Name: field, Value: value})
	state.Step++

	if state.Step < len(t.Steps) {
		return Outcome{Status: Prompted, Template: t, Step: state.Step, Record: state.Collected}
	}

	record := append(Record(nil), state.Collected...)
	e.slots.ClearWizard(id)

	result, err := t.Commit(ctx, Commit{Identity: id, ChatID: chatID, Params: state.Params, Record: record})
	if err != nil {
		slog.Warn("Wizard commit failed", "user_id", id, "kind", t.Kind, "error", err)
		return Outcome{Status: CommitFailed, Template: t, Step: len(t.Steps), Err: err, Record: record}
	}

	slog.Info("Wizard committed", "user_id", id, "kind", t.Kind)
	return Outcome{Status: Committed, Template: t, Step: len(t.Steps), Result: result, Record: record}
}

func validate(step Step, text string) (value string, err error) {
	if step.Validate == nil {
		return text, nil
	}
	defer func() {
		if r := recover(); r != nil {
			value, err = "", errors.New("invalid input")
		}
	}()
	return step.Validate(text)
}
