package wizard

import "context"

// Option is one selectable value of a choice step.
type Option struct {
	Label string
	Value string
}

// Step is one prompt of a wizard.
// A step with Options is a choice step: its value arrives through a selection, not free text.
type Step struct {
	Field    string
	Prompt   string
	Validate Validator
	Options  []Option
}

// IsChoice reports whether the step is answered by selecting an option.
func (s Step) IsChoice() bool {
	return len(s.Options) > 0
}

// Commit is what a wizard run collected, handed to the commit action.
type Commit struct {
	Identity int64
	ChatID   int64
	Params   map[string]string
	Record   Record
}

// CommitFunc applies a completed record. The returned text is shown to the user.
type CommitFunc func(ctx context.Context, c Commit) (string, error)

// Template describes a wizard: its ordered steps and what to do with the result.
type Template struct {
	Kind   string
	Title  string
	Steps  []Step
	Commit CommitFunc
	// Back is the callback token of the menu to return to after completion or cancel.
	Back string
	// Feature, when set, must still be held by the user for every reply and selection.
	Feature string
}
