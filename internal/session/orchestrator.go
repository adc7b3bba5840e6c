package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/csheth/medscan/internal/apperr"
	"github.com/csheth/medscan/internal/conversation"
	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/scanapi"
)

// ChatFailureText replaces the reply when a chat call fails.
const ChatFailureText = "Sorry, I encountered an error. Please try again."

// ErrNoAnalysis is returned when a chat message is sent before an analysis exists.
var ErrNoAnalysis = errors.New("no analysis to discuss yet")

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an observer for lifecycle events.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator owns the single source of truth for the image lifecycle.
// It is not safe for concurrent use: one goroutine (the UI loop) applies every
// transition, while Requests it hands out run elsewhere and report back via Settle.
type Orchestrator struct {
	analyzer  scanapi.Analyzer
	chatter   scanapi.Chatter
	observers []Observer
	now       func() time.Time

	snap      Snapshot
	lifecycle uint64
}

func New(analyzer scanapi.Analyzer, chatter scanapi.Chatter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		analyzer: analyzer,
		chatter:  chatter,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	return o.snap
}

// SubmitImage makes img the current image and returns the analysis request for
// it. Any earlier analysis, conversation, error, or in-flight request is
// superseded; their late results will be discarded.
func (o *Orchestrator) SubmitImage(img media.Image) (*Request, error) {
	if img.IsZero() {
		return nil, apperr.InvalidInput("No image to analyze", nil)
	}
	o.lifecycle++
	stored := img
	o.snap = Snapshot{
		Image:     &stored,
		Log:       o.snap.Log.Clear(),
		Flags:     Flags{Analyzing: true},
		lifecycle: o.lifecycle,
	}
	o.emit(Event{Type: EventImageSubmitted, Lifecycle: o.lifecycle, ImageID: img.ID(), Digest: img.ShortDigest(), Origin: string(img.Origin())})

	analyzer := o.analyzer
	return &Request{
		Kind:    RequestAnalysis,
		ImageID: img.ID(),
		ticket:  ticket{lifecycle: o.lifecycle, imageID: img.ID()},
		run: func(ctx context.Context) (scanapi.AnalysisResult, scanapi.ChatReply, error) {
			result, err := analyzer.Analyze(ctx, stored)
			return result, scanapi.ChatReply{}, err
		},
	}, nil
}

// SubmitUpload validates an uploaded file and submits it. A rejected upload
// only sets the error overlay; no request is issued and nothing else changes.
func (o *Orchestrator) SubmitUpload(data []byte, declaredMIME string) (*Request, error) {
	img, err := media.FromUpload(data, declaredMIME)
	if err != nil {
		o.Reject(err)
		return nil, err
	}
	return o.SubmitImage(img)
}

// Reject shows err in the error overlay without touching any other state.
func (o *Orchestrator) Reject(err error) {
	if err == nil {
		return
	}
	next := o.snap
	next.Err = apperr.Message(err)
	o.snap = next
}

// DismissError clears the error overlay.
func (o *Orchestrator) DismissError() {
	if o.snap.Err == "" {
		return
	}
	next := o.snap
	next.Err = ""
	o.snap = next
}

// SendChatMessage appends the user's turn and returns the chat request that
// will answer it. Blank text, or a chat already in flight, is a no-op that
// returns a nil request and nil error.
func (o *Orchestrator) SendChatMessage(text string) (*Request, error) {
	if o.snap.Analysis == nil {
		return nil, ErrNoAnalysis
	}
	message := strings.TrimSpace(text)
	if message == "" || o.snap.Flags.Chatting {
		return nil, nil
	}

	next := o.snap
	next.Log, _ = next.Log.Append(conversation.AuthorUser, message, false)
	next.Flags.Chatting = true
	next.Err = ""
	o.snap = next

	imageID := next.Image.ID()
	o.emit(Event{Type: EventChatSent, Lifecycle: o.lifecycle, ImageID: imageID})

	chatter := o.chatter
	analysisText := next.Analysis.Text
	return &Request{
		Kind:    RequestChat,
		ImageID: imageID,
		ticket:  ticket{lifecycle: o.lifecycle, imageID: imageID},
		run: func(ctx context.Context) (scanapi.AnalysisResult, scanapi.ChatReply, error) {
			reply, err := chatter.Send(ctx, message, analysisText)
			return scanapi.AnalysisResult{}, reply, err
		},
	}, nil
}

// RemoveImage returns to Idle, clearing image, analysis, conversation and error
// in one step. In-flight requests are abandoned. It reports whether anything
// was removed.
func (o *Orchestrator) RemoveImage() bool {
	if o.snap.Image == nil {
		return false
	}
	removed := o.snap.Image.ID()
	o.lifecycle++
	o.snap = Snapshot{
		Log:       o.snap.Log.Clear(),
		lifecycle: o.lifecycle,
	}
	o.emit(Event{Type: EventImageRemoved, Lifecycle: o.lifecycle, ImageID: removed})
	return true
}

// Settle applies a finished request. Outcomes from a superseded lifecycle are
// dropped and Settle returns false.
func (o *Orchestrator) Settle(out Outcome) bool {
	if !o.current(out) {
		discarded := EventAnalysisDiscarded
		if out.Kind == RequestChat {
			discarded = EventChatDiscarded
		}
		o.emit(Event{Type: discarded, Lifecycle: out.ticket.lifecycle, ImageID: out.ticket.imageID, Elapsed: out.Elapsed, Err: out.Err})
		return false
	}

	switch out.Kind {
	case RequestAnalysis:
		o.settleAnalysis(out)
	case RequestChat:
		o.settleChat(out)
	default:
		return false
	}
	return true
}

func (o *Orchestrator) current(out Outcome) bool {
	if out.ticket.lifecycle != o.lifecycle || o.snap.Image == nil {
		return false
	}
	if out.ticket.imageID != o.snap.Image.ID() {
		return false
	}
	switch out.Kind {
	case RequestAnalysis:
		return o.snap.Flags.Analyzing
	case RequestChat:
		return o.snap.Flags.Chatting
	}
	return false
}

func (o *Orchestrator) settleAnalysis(out Outcome) {
	event := Event{Lifecycle: o.lifecycle, ImageID: out.ticket.imageID, Elapsed: out.Elapsed, Err: out.Err}
	if out.Err != nil {
		// The failed image is discarded rather than kept for a retry.
		o.snap = Snapshot{
			Log:       o.snap.Log.Clear(),
			Err:       apperr.Message(out.Err),
			lifecycle: o.lifecycle,
		}
		event.Type = EventAnalysisFailed
		o.emit(event)
		return
	}

	result := out.Analysis
	next := o.snap
	next.Analysis = &result
	next.Flags.Analyzing = false
	o.snap = next
	event.Type = EventAnalysisCompleted
	o.emit(event)
}

func (o *Orchestrator) settleChat(out Outcome) {
	next := o.snap
	event := Event{Lifecycle: o.lifecycle, ImageID: out.ticket.imageID, Elapsed: out.Elapsed, Err: out.Err}
	if out.Err != nil {
		next.Log, _ = next.Log.Append(conversation.AuthorAssistant, ChatFailureText, true)
		event.Type = EventChatFailed
	} else {
		next.Log, _ = next.Log.Append(conversation.AuthorAssistant, out.Reply.Text, false)
		event.Type = EventChatReplied
	}
	next.Flags.Chatting = false
	o.snap = next
	o.emit(event)
}

func (o *Orchestrator) emit(event Event) {
	if len(o.observers) == 0 {
		return
	}
	event.At = o.now()
	if event.Digest == "" && o.snap.Image != nil && o.snap.Image.ID() == event.ImageID && event.ImageID != uuid.Nil {
		event.Digest = o.snap.Image.ShortDigest()
	}
	for _, observer := range o.observers {
		observer.OnEvent(event)
	}
}
