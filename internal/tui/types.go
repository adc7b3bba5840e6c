package tui

import (
	"github.com/csheth/medscan/internal/capture"
	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/session"
)

type stage int

const (
	stageMain stage = iota
	stageCamera
)

const heroTitle = "Medical AI Scanner"

const heroTagline = "Upload or scan an image, then ask about the findings."

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	confidenceBarWidth        = 24
)

type composerMode int

const (
	composerModeSource composerMode = iota
	composerModeChat
)

const (
	composerSourcePlaceholder = "Path or URL of an image to analyze…"
	composerChatPlaceholder   = "Type your question..."
	composerIdlePlaceholder   = "Upload an image first"
)

type uploadReadMsg struct {
	seq    int
	upload media.Upload
	err    error
}

type sessionOutcomeMsg struct {
	outcome session.Outcome
}

type cameraOpenedMsg struct {
	token   int
	session *capture.Session
	err     error
}

type frameCapturedMsg struct {
	token int
	image media.Image
	err   error
}

type reportSavedMsg struct {
	location string
	err      error
}
