// Package menu models what a screen of the bot shows: a body text and rows of
// labelled buttons, each carrying the callback token it emits. It knows nothing
// about the transport.
package menu

// Button is a selectable option.
type Button struct {
	Label string
	Token string
}

// Screen is a rendered menu. Text is MarkdownV2.
type Screen struct {
	Text string
	Rows [][]Button
}

// Buttons returns every button in row order.
func (s Screen) Buttons() []Button {
	var out []Button
	for _, row := range s.Rows {
		out = append(out, row...)
	}
	return out
}

// Find returns the button emitting token.
func (s Screen) Find(token string) (Button, bool) {
	for _, b := range s.Buttons() {
		if b.Token == token {
			return b, true
		}
	}
	return Button{}, false
}

// Builder lays out buttons row by row
type Builder struct {
	rows       [][]Button
	currentRow []Button
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Button adds a button to the current row
func (b *Builder) Button(label, token string) *Builder {
	b.currentRow = append(b.currentRow, Button{Label: label, Token: token})
	return b
}

// Row finishes the current row and starts a new one
func (b *Builder) Row() *Builder {
	if len(b.currentRow) > 0 {
		b.rows = append(b.rows, b.currentRow)
		b.currentRow = nil
	}
	return b
}

// Columns arranges all pending buttons into rows with n columns each
func (b *Builder) Columns(n int) *Builder {
	if n <= 0 {
		n = 1
	}
	buttons := b.currentRow
	b.currentRow = nil

	for i := 0; i < len(buttons); i += n {
		end := min(i+n, len(buttons))
		b.rows = append(b.rows, buttons[i:end])
	}
	return b
}

// Back adds a single-button row, typically the way up.
func (b *Builder) Back(label, token string) *Builder {
	return b.Row().Button(label, token).Row()
}

// Build returns the screen with the given body text
func (b *Builder) Build(text string) Screen {
	b.Row()
	return Screen{Text: text, Rows: b.rows}
}
