package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/csheth/medscan/internal/scanapi"
)

// RequestKind names the backend call a request performs.
type RequestKind string

const (
	RequestAnalysis RequestKind = "analysis"
	RequestChat     RequestKind = "chat"
)

// ticket binds a request to the lifecycle that issued it.
type ticket struct {
	lifecycle uint64
	imageID   uuid.UUID
}

// Request is a pending backend call produced by a transition. Run performs
// the call without touching orchestrator state, so it may execute on any
// goroutine; its Outcome must be handed back through Orchestrator.Settle.
type Request struct {
	Kind    RequestKind
	ImageID uuid.UUID

	ticket ticket
	run    func(ctx context.Context) (scanapi.AnalysisResult, scanapi.ChatReply, error)
}

// Run executes the call and packages its result.
func (r *Request) Run(ctx context.Context) Outcome {
	started := time.Now()
	analysis, reply, err := r.run(ctx)
	return Outcome{
		Kind:     r.Kind,
		Analysis: analysis,
		Reply:    reply,
		Err:      err,
		Elapsed:  time.Since(started),
		ticket:   r.ticket,
	}
}

// Outcome is the settled result of a Request.
type Outcome struct {
	Kind     RequestKind
	Analysis scanapi.AnalysisResult
	Reply    scanapi.ChatReply
	Err      error
	Elapsed  time.Duration

	ticket ticket
}
