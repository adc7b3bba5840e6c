package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
)

// textRenderer formats analysis and reply text for a given width. Markdown
// rendering is optional; plain text is word-wrapped.
type textRenderer struct {
	markdown bool
	width    int
	term     *glamour.TermRenderer
}

func newTextRenderer(markdown bool) *textRenderer {
	return &textRenderer{markdown: markdown}
}

func (r *textRenderer) render(text string, width int) string {
	text = strings.TrimSpace(text)
	if width < 20 {
		width = 20
	}
	if !r.markdown || text == "" {
		return wordwrap.String(text, width)
	}
	if r.term == nil || r.width != width {
		term, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return wordwrap.String(text, width)
		}
		r.term = term
		r.width = width
	}
	out, err := r.term.Render(text)
	if err != nil {
		return wordwrap.String(text, width)
	}
	return strings.Trim(out, "\n")
}
