package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/csheth/medscan/internal/apperr"
	"github.com/csheth/medscan/internal/capture"
	"github.com/csheth/medscan/internal/logger"
	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/report"
	"github.com/csheth/medscan/internal/session"
)

// Config wires runtime options into the TUI program.
type Config struct {
	Session *session.Orchestrator
	Loader  *media.Loader
	Camera  *capture.Camera
	Reports report.Store
	// Backend names the analysis service in the status bar.
	Backend string

	AnalyzeTimeout time.Duration
	ChatTimeout    time.Duration
	CaptureTimeout time.Duration

	Markdown bool
}

const (
	defaultAnalyzeTimeout = 90 * time.Second
	defaultChatTimeout    = 60 * time.Second
	defaultCaptureTimeout = 10 * time.Second
	exportTimeout         = 30 * time.Second
)

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.AnalyzeTimeout <= 0 {
		config.AnalyzeTimeout = defaultAnalyzeTimeout
	}
	if config.ChatTimeout <= 0 {
		config.ChatTimeout = defaultChatTimeout
	}
	if config.CaptureTimeout <= 0 {
		config.CaptureTimeout = defaultCaptureTimeout
	}
	if config.Loader == nil {
		config.Loader = media.NewLoader(nil, media.DefaultMaxUploadBytes)
	}

	composer := textinput.New()
	composer.Placeholder = composerSourcePlaceholder
	composer.Focus()
	composer.CharLimit = 1024
	composer.Width = 70

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 10)
	vp.MouseWheelEnabled = true

	m := &model{
		config:        config,
		stage:         stageMain,
		composer:      composer,
		composerMode:  composerModeSource,
		spinner:       spin,
		viewport:      vp,
		layout:        newPageLayout(),
		jobs:          newJobBus(),
		running:       jobTracker{},
		text:          newTextRenderer(config.Markdown),
		viewportDirty: true,
		infoMessage:   "Type a file path or image URL and press Enter, or press Ctrl+O to open the camera.",
	}
	return m
}

type model struct {
	config Config
	stage  stage

	composer     textinput.Model
	composerMode composerMode
	spinner      spinner.Model
	viewport     viewport.Model
	layout       pageLayout

	jobs    jobStarter
	running jobTracker
	text    *textRenderer

	camSession *capture.Session
	camToken   int
	camStatus  string
	camErr     string

	uploadSeq     int
	infoMessage   string
	noticeError   string
	helpVisible   bool
	viewportDirty bool
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) snapshot() session.Snapshot {
	if m.config.Session == nil {
		return session.Snapshot{}
	}
	return m.config.Session.Snapshot()
}

func (m *model) busy() bool {
	snap := m.snapshot()
	return snap.Flags.Analyzing || snap.Flags.Chatting || len(m.running) > 0
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			if m.snapshot().Flags.Chatting {
				m.markViewportDirty()
			}
			return m, cmd
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.shutdownCamera()
			return m, tea.Quit
		}
		if m.stage == stageCamera {
			return m.handleCameraKey(msg)
		}
		return m.handleKey(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.viewport.Width = m.layout.viewportWidth
		m.viewport.Height = m.layout.viewportHeight
		m.composer.Width = m.layout.viewportWidth - 4
		m.markViewportDirty()
		return m, nil
	case jobSignalMsg:
		m.running.begin(msg.Snapshot)
		return m, nil
	case jobResultEnvelope:
		m.running.finish(msg.Snapshot)
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case uploadReadMsg:
		return m.handleUploadRead(msg)
	case sessionOutcomeMsg:
		return m.handleOutcome(msg)
	case cameraOpenedMsg:
		return m.handleCameraOpened(msg)
	case frameCapturedMsg:
		return m.handleFrameCaptured(msg)
	case reportSavedMsg:
		if msg.err != nil {
			m.noticeError = fmt.Sprintf("Export failed: %v", msg.err)
			return m, nil
		}
		logger.WithField("location", msg.location).Info("report exported")
		m.noticeError = ""
		m.infoMessage = fmt.Sprintf("Report saved to %s", msg.location)
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+o":
		return m, m.openCamera()
	case "ctrl+x":
		m.removeImage()
		return m, nil
	case "ctrl+e":
		if m.config.Session != nil {
			m.config.Session.DismissError()
		}
		m.noticeError = ""
		return m, nil
	case "ctrl+s":
		return m, m.exportReport()
	case "tab":
		m.toggleComposerMode()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	case "esc":
		if m.helpVisible {
			m.helpVisible = false
			return m, nil
		}
		m.composer.SetValue("")
		return m, nil
	case "?":
		if strings.TrimSpace(m.composer.Value()) == "" {
			m.helpVisible = !m.helpVisible
			return m, nil
		}
	case "enter":
		return m, m.submitComposer()
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(key)
	return m, cmd
}

func (m *model) handleCameraKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.closeCamera("Camera closed.")
		return m, nil
	case "enter", " ":
		return m, m.captureFrame()
	case "r":
		if m.camSession == nil && !m.running.running(jobKindCameraOpen) {
			return m, m.openCamera()
		}
	}
	return m, nil
}

func (m *model) submitComposer() tea.Cmd {
	value := strings.TrimSpace(m.composer.Value())
	if m.composerMode == composerModeChat {
		return m.sendChat(value)
	}
	if value == "" {
		m.infoMessage = "Enter a file path or image URL."
		return nil
	}
	m.composer.SetValue("")
	m.uploadSeq++
	m.noticeError = ""
	m.infoMessage = fmt.Sprintf("Loading %s…", previewText(value, 60))
	return tea.Batch(
		m.jobs.Start(jobKindUpload, readUploadJob(m.config.Loader, m.uploadSeq, value, m.config.AnalyzeTimeout)),
		m.spinner.Tick,
	)
}

func (m *model) sendChat(value string) tea.Cmd {
	if m.config.Session == nil {
		return nil
	}
	req, err := m.config.Session.SendChatMessage(value)
	if errors.Is(err, session.ErrNoAnalysis) {
		m.infoMessage = "Upload an image to start the conversation."
		m.setComposerMode(composerModeSource)
		return nil
	}
	if err != nil {
		m.noticeError = apperr.Message(err)
		return nil
	}
	if req == nil {
		if value != "" {
			m.infoMessage = "Wait for the assistant to reply."
		}
		return nil
	}
	m.composer.SetValue("")
	m.infoMessage = ""
	m.markViewportDirty()
	return m.startRequest(req)
}

func (m *model) startRequest(req *session.Request) tea.Cmd {
	kind, timeout := jobKindAnalyze, m.config.AnalyzeTimeout
	if req.Kind == session.RequestChat {
		kind, timeout = jobKindChat, m.config.ChatTimeout
	}
	return tea.Batch(m.jobs.Start(kind, requestJob(req, timeout)), m.spinner.Tick)
}

func (m *model) handleUploadRead(msg uploadReadMsg) (tea.Model, tea.Cmd) {
	if msg.seq != m.uploadSeq || m.config.Session == nil {
		return m, nil
	}
	if msg.err != nil {
		m.config.Session.Reject(msg.err)
		m.infoMessage = ""
		return m, nil
	}
	req, err := m.config.Session.SubmitUpload(msg.upload.Data, msg.upload.DeclaredMIME)
	if err != nil {
		m.infoMessage = ""
		return m, nil
	}
	m.beginAnalysis(fmt.Sprintf("Analyzing %s…", msg.upload.Name))
	return m, m.startRequest(req)
}

func (m *model) beginAnalysis(info string) {
	m.setComposerMode(composerModeSource)
	m.infoMessage = info
	m.noticeError = ""
	m.viewport.SetYOffset(0)
	m.markViewportDirty()
}

func (m *model) handleOutcome(msg sessionOutcomeMsg) (tea.Model, tea.Cmd) {
	if m.config.Session == nil || !m.config.Session.Settle(msg.outcome) {
		return m, nil
	}
	m.markViewportDirty()
	if msg.outcome.Kind != session.RequestAnalysis {
		return m, nil
	}
	if msg.outcome.Err != nil {
		m.infoMessage = "Try another image."
		m.setComposerMode(composerModeSource)
		return m, nil
	}
	m.infoMessage = "Analysis ready. Ask any questions about your analysis."
	m.setComposerMode(composerModeChat)
	return m, nil
}

func (m *model) removeImage() {
	if m.config.Session == nil || !m.config.Session.RemoveImage() {
		m.infoMessage = "No image to remove."
		return
	}
	m.setComposerMode(composerModeSource)
	m.infoMessage = "Image removed."
	m.markViewportDirty()
}

func (m *model) exportReport() tea.Cmd {
	r, err := report.FromSnapshot(m.snapshot(), time.Now().UTC())
	if errors.Is(err, report.ErrNothingToExport) {
		m.infoMessage = "Nothing to export yet. Analyze an image first."
		return nil
	}
	if m.config.Reports == nil {
		m.infoMessage = "Report export is not configured."
		return nil
	}
	m.infoMessage = "Exporting report…"
	return tea.Batch(m.jobs.Start(jobKindExport, exportReportJob(m.config.Reports, r, exportTimeout)), m.spinner.Tick)
}

func (m *model) openCamera() tea.Cmd {
	m.camToken++
	m.stage = stageCamera
	m.camErr = ""
	m.camStatus = fmt.Sprintf("Starting camera (%s)…", m.config.Camera.Name())
	return tea.Batch(
		m.jobs.Start(jobKindCameraOpen, openCameraJob(m.config.Camera, m.camToken, m.config.CaptureTimeout)),
		m.spinner.Tick,
	)
}

func (m *model) handleCameraOpened(msg cameraOpenedMsg) (tea.Model, tea.Cmd) {
	if msg.token != m.camToken || m.stage != stageCamera {
		if msg.session != nil {
			m.closeSession(msg.session)
		}
		return m, nil
	}
	if msg.err != nil {
		m.camErr = apperr.Message(msg.err)
		m.camStatus = ""
		return m, nil
	}
	m.camSession = msg.session
	m.camStatus = "Camera ready. Press Enter to capture."
	return m, nil
}

func (m *model) captureFrame() tea.Cmd {
	if m.camSession == nil || m.running.running(jobKindCapture) {
		return nil
	}
	m.camErr = ""
	m.camStatus = "Capturing…"
	return tea.Batch(
		m.jobs.Start(jobKindCapture, captureFrameJob(m.camSession, m.camToken, m.config.CaptureTimeout)),
		m.spinner.Tick,
	)
}

func (m *model) handleFrameCaptured(msg frameCapturedMsg) (tea.Model, tea.Cmd) {
	if msg.token != m.camToken || m.stage != stageCamera {
		return m, nil
	}
	if msg.err != nil {
		m.camErr = apperr.Message(msg.err)
		m.camStatus = "Press Enter to try again."
		return m, nil
	}
	m.closeCamera("")
	if m.config.Session == nil {
		return m, nil
	}
	req, err := m.config.Session.SubmitImage(msg.image)
	if err != nil {
		m.config.Session.Reject(err)
		return m, nil
	}
	m.uploadSeq++
	m.beginAnalysis("Analyzing captured image…")
	return m, m.startRequest(req)
}

// closeCamera leaves the overlay and releases the live session. Bumping the
// token turns any pending open or capture result into a no-op.
func (m *model) closeCamera(info string) {
	m.camToken++
	if m.camSession != nil {
		m.closeSession(m.camSession)
		m.camSession = nil
	}
	m.stage = stageMain
	m.camErr = ""
	m.camStatus = ""
	if info != "" {
		m.infoMessage = info
	}
}

func (m *model) closeSession(s *capture.Session) {
	if err := s.Close(); err != nil {
		logger.WithError(err).Warn("camera release failed")
	}
}

func (m *model) shutdownCamera() {
	m.closeCamera("")
	if err := m.config.Camera.Release(); err != nil {
		logger.WithError(err).Warn("camera release failed")
	}
}

func (m *model) toggleComposerMode() {
	if m.composerMode == composerModeChat {
		m.setComposerMode(composerModeSource)
		m.infoMessage = "Enter a new image to replace the current one. Tab returns to chat."
		return
	}
	if m.snapshot().Analysis == nil {
		m.infoMessage = "Upload an image to start the conversation."
		return
	}
	m.setComposerMode(composerModeChat)
	m.infoMessage = ""
}

func (m *model) setComposerMode(mode composerMode) {
	if m.composerMode != mode {
		m.composer.SetValue("")
	}
	m.composerMode = mode
	switch mode {
	case composerModeChat:
		m.composer.Placeholder = composerChatPlaceholder
	default:
		m.composer.Placeholder = composerSourcePlaceholder
	}
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if !m.viewportDirty {
		return
	}
	m.viewport.SetContent(m.buildTranscript())
	m.viewport.GotoBottom()
	m.viewportDirty = false
}

var (
	titleStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	userLabelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8ecae6"))
	replyLabelStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a3be8c"))

	heroAccentColor        = lipgloss.Color("#3a86ff")
	heroEmberColor         = lipgloss.Color("#001433")
	heroTextColor          = lipgloss.Color("#e0f0ff")
	heroSecondaryTextColor = lipgloss.Color("#8ecae6")

	heroBoxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(heroAccentColor).Padding(0, 2)
	taglineStyle       = lipgloss.NewStyle().Foreground(heroSecondaryTextColor).Italic(true)
	errorBannerStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Foreground(lipgloss.Color("9")).Padding(0, 1)
	panelStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 1)
	overlayStyle       = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(heroAccentColor).Padding(1, 2)
	barFilledStyle     = lipgloss.NewStyle().Foreground(heroAccentColor)
	barEmptyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#3b3b4f"))
	statusBarStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle           = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	legendBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(1, 2)
	logoFaceStyle      = lipgloss.NewStyle().Bold(true).Foreground(heroTextColor).Background(heroEmberColor)
	logoShadowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#000a1a"))
	logoContainerStyle = lipgloss.NewStyle().Padding(0, 1)
)
