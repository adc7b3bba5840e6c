package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType labels a lifecycle transition.
type EventType string

const (
	EventImageSubmitted    EventType = "image_submitted"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisFailed    EventType = "analysis_failed"
	EventAnalysisDiscarded EventType = "analysis_discarded"
	EventChatSent          EventType = "chat_sent"
	EventChatReplied       EventType = "chat_replied"
	EventChatFailed        EventType = "chat_failed"
	EventChatDiscarded     EventType = "chat_discarded"
	EventImageRemoved      EventType = "image_removed"
)

// Event describes one transition.
type Event struct {
	Type      EventType
	At        time.Time
	Lifecycle uint64
	ImageID   uuid.UUID
	Digest    string
	Origin    string
	Elapsed   time.Duration
	Err       error
}

// Observer is notified synchronously after each transition.
type Observer interface {
	OnEvent(event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(event Event) { f(event) }

// LoggingObserver writes every event as a structured log line.
type LoggingObserver struct {
	logger *logrus.Logger
}

func NewLoggingObserver(logger *logrus.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnEvent(event Event) {
	fields := logrus.Fields{
		"event":     string(event.Type),
		"lifecycle": event.Lifecycle,
	}
	if event.ImageID != uuid.Nil {
		fields["image_id"] = event.ImageID.String()
	}
	if event.Digest != "" {
		fields["digest"] = event.Digest
	}
	if event.Origin != "" {
		fields["origin"] = event.Origin
	}
	if event.Elapsed > 0 {
		fields["elapsed"] = event.Elapsed.String()
	}
	entry := o.logger.WithFields(fields)
	if event.Err != nil {
		entry = entry.WithError(event.Err)
	}

	switch event.Type {
	case EventAnalysisFailed, EventChatFailed:
		entry.Warn("session event")
	case EventAnalysisDiscarded, EventChatDiscarded:
		entry.Debug("stale response discarded")
	default:
		entry.Info("session event")
	}
}
