package session

import (
	"github.com/csheth/medscan/internal/conversation"
	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/scanapi"
)

// Phase is the coarse state of the current image lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAnalyzing
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseReady:
		return "ready"
	default:
		return "idle"
	}
}

// Flags serialize logical operations. Each is set while its request is in
// flight and cleared when that request settles or is superseded.
type Flags struct {
	Analyzing bool
	Chatting  bool
}

// Snapshot is the complete client state at one point in time. Snapshots are
// values: every transition builds a new one, and the pointed-to image and
// analysis are never modified after being stored.
type Snapshot struct {
	Image    *media.Image
	Analysis *scanapi.AnalysisResult
	Log      conversation.Log
	Flags    Flags
	// Err is the banner error; it overlays the phase rather than replacing it.
	Err string

	lifecycle uint64
}

// Phase derives the lifecycle phase from the stored image and analysis.
func (s Snapshot) Phase() Phase {
	switch {
	case s.Image == nil:
		return PhaseIdle
	case s.Analysis != nil:
		return PhaseReady
	default:
		return PhaseAnalyzing
	}
}

// ChatEnabled reports whether a chat message would be accepted right now.
func (s Snapshot) ChatEnabled() bool {
	return s.Analysis != nil && !s.Flags.Chatting
}

// HasError reports whether the error overlay is showing.
func (s Snapshot) HasError() bool {
	return s.Err != ""
}

// Lifecycle identifies the current image lifecycle. It changes on every
// submission and removal.
func (s Snapshot) Lifecycle() uint64 {
	return s.lifecycle
}
