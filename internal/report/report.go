package report

import (
	"context"
	"errors"
	"time"

	"github.com/csheth/medscan/internal/session"
)

// ErrNothingToExport is returned when the session has no analysis yet.
var ErrNothingToExport = errors.New("no analysis to export")

// Turn is one exported chat message.
type Turn struct {
	Author  string    `json:"author"`
	Text    string    `json:"text"`
	IsError bool      `json:"isError,omitempty"`
	At      time.Time `json:"at"`
}

// Report is a point-in-time export of one analyzed image and its conversation.
type Report struct {
	ImageID    string    `json:"imageId"`
	Digest     string    `json:"digest"`
	Origin     string    `json:"origin"`
	MIMEType   string    `json:"mimeType"`
	SizeBytes  int       `json:"sizeBytes"`
	ImageAt    time.Time `json:"imageAt"`
	Analysis   string    `json:"analysis"`
	Confidence float64   `json:"confidence"`
	Turns      []Turn    `json:"turns,omitempty"`
	ExportedAt time.Time `json:"exportedAt"`
}

// Store persists reports and returns where the report was written.
type Store interface {
	Save(ctx context.Context, r Report) (string, error)
}

// FromSnapshot builds a report from the current session state.
func FromSnapshot(s session.Snapshot, at time.Time) (Report, error) {
	if s.Image == nil || s.Analysis == nil {
		return Report{}, ErrNothingToExport
	}
	turns := s.Log.Turns()
	exported := make([]Turn, 0, len(turns))
	for _, t := range turns {
		exported = append(exported, Turn{
			Author:  string(t.Author),
			Text:    t.Text,
			IsError: t.IsError,
			At:      t.At,
		})
	}
	return Report{
		ImageID:    s.Image.ID().String(),
		Digest:     s.Image.Digest(),
		Origin:     string(s.Image.Origin()),
		MIMEType:   s.Image.MIMEType(),
		SizeBytes:  s.Image.Size(),
		ImageAt:    s.Image.CreatedAt(),
		Analysis:   s.Analysis.Text,
		Confidence: s.Analysis.Confidence,
		Turns:      exported,
		ExportedAt: at,
	}, nil
}
