package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/medscan/internal/capture"
	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/report"
	"github.com/csheth/medscan/internal/session"
)

func readUploadJob(loader *media.Loader, seq int, source string, timeout time.Duration) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		upload, err := loader.Read(ctx, source)
		return uploadReadMsg{seq: seq, upload: upload, err: err}, err
	}
}

// requestJob runs a pending orchestrator request. The outcome is always
// delivered; the orchestrator decides whether it is still current.
func requestJob(req *session.Request, timeout time.Duration) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		out := req.Run(ctx)
		return sessionOutcomeMsg{outcome: out}, out.Err
	}
}

func openCameraJob(camera *capture.Camera, token int, timeout time.Duration) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		s, err := camera.Open(ctx)
		return cameraOpenedMsg{token: token, session: s, err: err}, err
	}
}

func captureFrameJob(s *capture.Session, token int, timeout time.Duration) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		img, err := s.CaptureFrame(ctx)
		return frameCapturedMsg{token: token, image: img, err: err}, err
	}
}

func exportReportJob(store report.Store, r report.Report, timeout time.Duration) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		location, err := store.Save(ctx, r)
		return reportSavedMsg{location: location, err: err}, err
	}
}
