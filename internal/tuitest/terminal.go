package tuitest

import (
	"bytes"
	"io"
)

// terminalResponder answers the queries a TUI sends on startup (cursor
// position, foreground and background colors) so programs under test do not
// stall waiting for a real terminal.
type terminalResponder struct {
	w   io.Writer
	buf []byte
}

type terminalReply struct {
	query []byte
	reply []byte
}

var terminalReplies = []terminalReply{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b]10;?\x07"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{[]byte("\x1b]10;?\x1b\\"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{[]byte("\x1b]11;?\x07"), []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{[]byte("\x1b]11;?\x1b\\"), []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

func newTerminalResponder(w io.Writer) *terminalResponder {
	return &terminalResponder{w: w, buf: make([]byte, 0, 128)}
}

func (tr *terminalResponder) Process(chunk []byte) {
	tr.buf = append(tr.buf, chunk...)
	for tr.answerOne() {
	}
	// Keep a small tail so sequences split across reads are still seen.
	if len(tr.buf) > 256 {
		tr.buf = tr.buf[len(tr.buf)-64:]
	}
}

// answerOne replies to the earliest pending query and drops the buffer up to
// its end.
func (tr *terminalResponder) answerOne() bool {
	first, end := -1, 0
	var reply []byte
	for _, r := range terminalReplies {
		idx := bytes.Index(tr.buf, r.query)
		if idx >= 0 && (first < 0 || idx < first) {
			first, end, reply = idx, idx+len(r.query), r.reply
		}
	}
	if first < 0 {
		return false
	}
	tr.buf = tr.buf[end:]
	_, _ = tr.w.Write(reply)
	return true
}
