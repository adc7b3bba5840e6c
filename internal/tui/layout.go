package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/medscan/internal/conversation"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	viewportWidth  int
	viewportHeight int
	showLogo       bool
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:  80,
		viewportHeight: 10,
		showLogo:       true,
	}
}

// Update sizes the conversation viewport from the window. The block logo is
// only drawn when the window is tall enough to keep the chat usable.
func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth

	const logoHeight = 7
	chrome := 28
	l.showLogo = height >= 48
	if l.showLogo {
		chrome += logoHeight
	}
	usable := height - chrome
	if usable < 6 {
		usable = 6
	}
	l.viewportHeight = usable
}

type contentBuilder struct {
	builder strings.Builder
	lines   int
}

func (cb *contentBuilder) WriteString(s string) {
	cb.builder.WriteString(s)
	cb.lines += strings.Count(s, "\n")
}

func (cb *contentBuilder) WriteRune(r rune) {
	cb.builder.WriteRune(r)
	if r == '\n' {
		cb.lines++
	}
}

func (cb *contentBuilder) String() string {
	return cb.builder.String()
}

func (cb *contentBuilder) Line() int {
	return cb.lines
}

// buildTranscript renders the conversation log for the chat viewport.
func (m *model) buildTranscript() string {
	snap := m.snapshot()
	cb := &contentBuilder{}
	if snap.Analysis == nil {
		cb.WriteString(helperStyle.Render("Upload an image to start the conversation"))
		return cb.String()
	}
	turns := snap.Log.Turns()
	if len(turns) == 0 && !snap.Flags.Chatting {
		cb.WriteString(helperStyle.Render("Ask any questions about your analysis"))
		return cb.String()
	}
	wrap := m.wrapWidth(4)
	for idx, turn := range turns {
		if idx > 0 {
			cb.WriteRune('\n')
		}
		cb.WriteString(transcriptLabel(turn))
		cb.WriteRune('\n')
		body := wordwrap.String(turn.Text, wrap)
		if turn.Author == conversation.AuthorAssistant {
			body = m.text.render(turn.Text, wrap)
		}
		if turn.IsError {
			body = errorStyle.Render(body)
		}
		cb.WriteString(indentMultiline(body, "  "))
		cb.WriteRune('\n')
	}
	if snap.Flags.Chatting {
		if len(turns) > 0 {
			cb.WriteRune('\n')
		}
		cb.WriteString(helperStyle.Render(fmt.Sprintf("%s Thinking…", m.spinner.View())))
		cb.WriteRune('\n')
	}
	return cb.String()
}

func transcriptLabel(turn conversation.Turn) string {
	stamp := helperStyle.Render(turn.At.Format("15:04"))
	if turn.Author == conversation.AuthorUser {
		return userLabelStyle.Render("You") + " " + stamp
	}
	return replyLabelStyle.Render("Assistant") + " " + stamp
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func previewText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
