package tui

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/csheth/medscan/internal/logger"
)

type jobKind string

type jobStatus string

const (
	jobKindUpload     jobKind = "upload"
	jobKindAnalyze    jobKind = "analyze"
	jobKindChat       jobKind = "chat"
	jobKindCameraOpen jobKind = "camera_open"
	jobKindCapture    jobKind = "capture"
	jobKindExport     jobKind = "export"
)

const (
	jobStatusRunning   jobStatus = "running"
	jobStatusSucceeded jobStatus = "succeeded"
	jobStatusFailed    jobStatus = "failed"
)

type jobSnapshot struct {
	ID          string
	Kind        jobKind
	Status      jobStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Err         string
	Duration    time.Duration
}

type jobSignalMsg struct {
	Snapshot jobSnapshot
}

type jobResultEnvelope struct {
	Snapshot jobSnapshot
	Payload  tea.Msg
}

type jobRunner func(context.Context) (tea.Msg, error)

// jobStarter launches a runner and reports its lifecycle as messages.
type jobStarter interface {
	Start(kind jobKind, runner jobRunner) tea.Cmd
}

type jobBus struct {
	counter int64
}

func newJobBus() *jobBus {
	return &jobBus{}
}

func (b *jobBus) nextID(kind jobKind) string {
	idx := atomic.AddInt64(&b.counter, 1)
	return fmt.Sprintf("%s-%d", kind, idx)
}

func (b *jobBus) Start(kind jobKind, runner jobRunner) tea.Cmd {
	id := b.nextID(kind)
	started := time.Now()
	startSnapshot := jobSnapshot{ID: id, Kind: kind, Status: jobStatusRunning, StartedAt: started}
	startCmd := func() tea.Msg {
		return jobSignalMsg{Snapshot: startSnapshot}
	}

	runCmd := func() tea.Msg {
		payload, err := runner(context.Background())
		snapshot := jobSnapshot{
			ID:          id,
			Kind:        kind,
			StartedAt:   started,
			CompletedAt: time.Now(),
		}
		entry := logger.WithFields(logrus.Fields{"job": id, "kind": string(kind)})
		if err != nil {
			snapshot.Status = jobStatusFailed
			snapshot.Err = err.Error()
			entry = entry.WithError(err)
		} else {
			snapshot.Status = jobStatusSucceeded
		}
		snapshot.Duration = snapshot.CompletedAt.Sub(started)
		entry.WithFields(logrus.Fields{
			"status":   string(snapshot.Status),
			"duration": snapshot.Duration.String(),
		}).Info("job finished")
		return jobResultEnvelope{Snapshot: snapshot, Payload: payload}
	}

	return tea.Sequence(startCmd, runCmd)
}

// jobTracker keeps the jobs that have started but not yet reported back.
type jobTracker map[string]jobSnapshot

func (t jobTracker) begin(s jobSnapshot) {
	t[s.ID] = s
}

func (t jobTracker) finish(s jobSnapshot) {
	delete(t, s.ID)
}

func (t jobTracker) running(kind jobKind) bool {
	for _, s := range t {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// kinds lists the running job kinds in a stable order.
func (t jobTracker) kinds() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range t {
		if seen[string(s.Kind)] {
			continue
		}
		seen[string(s.Kind)] = true
		out = append(out, string(s.Kind))
	}
	sort.Strings(out)
	return out
}
