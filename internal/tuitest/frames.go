package tuitest

import (
	"regexp"
	"strings"
)

// Frame is one screen the program drew between two clears.
type Frame struct {
	Index int
	ANSI  string
	Plain string
}

var (
	// Bubble Tea clears with ED (erase display) before a full repaint.
	eraseDisplay = regexp.MustCompile(`\x1b\[[0-9;]*J`)
	controlSeq   = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
	shiftChars   = strings.NewReplacer("\x0e", "", "\x0f", "", "\r", "")
)

// parseFrames splits a PTY transcript into the screens it painted. Screens
// with no visible text are skipped. A transcript that never clears is a
// single frame.
func parseFrames(raw []byte) []Frame {
	text := strings.ReplaceAll(string(raw), "\r", "")
	var frames []Frame
	for _, screen := range eraseDisplay.Split(text, -1) {
		screen = strings.TrimPrefix(strings.Trim(screen, "\x00"), "\x1b[H")
		if plain := plainText(screen); strings.TrimSpace(plain) != "" {
			frames = append(frames, Frame{Index: len(frames), ANSI: screen, Plain: plain})
		}
	}
	if frames == nil && text != "" {
		frames = []Frame{{ANSI: text, Plain: plainText(text)}}
	}
	return frames
}

// plainText drops escape sequences and trailing blanks so assertions can
// match what a user would read.
func plainText(s string) string {
	lines := strings.Split(shiftChars.Replace(controlSeq.ReplaceAllString(s, "")), "\n")
	end := 0
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
		if strings.TrimSpace(lines[i]) != "" {
			end = i + 1
		}
	}
	return strings.Join(lines[:end], "\n")
}

// Contains reports whether the frame's plain text includes text.
func (f Frame) Contains(text string) bool {
	return strings.Contains(f.Plain, text)
}

// FrameContaining returns the first frame whose plain text contains text.
func (r *Recording) FrameContaining(text string) (Frame, bool) {
	if r == nil {
		return Frame{}, false
	}
	for _, f := range r.Frames {
		if f.Contains(text) {
			return f, true
		}
	}
	return Frame{}, false
}

// FinalFrame returns the last screen, or false when nothing was drawn.
func (r *Recording) FinalFrame() (Frame, bool) {
	if r == nil || len(r.Frames) == 0 {
		return Frame{}, false
	}
	return r.Frames[len(r.Frames)-1], true
}
