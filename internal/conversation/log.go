package conversation

import "time"

// Author identifies who produced a turn.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Turn is one message in the follow-up conversation.
type Turn struct {
	ID      int64
	Author  Author
	Text    string
	IsError bool
	At      time.Time
}

// Log is an append-only, ordered list of turns. Log values are immutable:
// Append and Clear return a new Log and never touch the receiver's backing array.
type Log struct {
	turns  []Turn
	lastID int64
}

// Append returns a log with one more turn and the turn that was added.
// IDs increase strictly, even across Clear.
func (l Log) Append(author Author, text string, isError bool) (Log, Turn) {
	turn := Turn{
		ID:      l.lastID + 1,
		Author:  author,
		Text:    text,
		IsError: isError,
		At:      time.Now(),
	}
	next := make([]Turn, len(l.turns), len(l.turns)+1)
	copy(next, l.turns)
	next = append(next, turn)
	return Log{turns: next, lastID: turn.ID}, turn
}

// Clear returns an empty log that continues the ID sequence.
func (l Log) Clear() Log {
	return Log{lastID: l.lastID}
}

// Turns returns the turns oldest first.
func (l Log) Turns() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l Log) Len() int {
	return len(l.turns)
}

// Last returns the newest turn, if any.
func (l Log) Last() (Turn, bool) {
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}
