package tui

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/csheth/medscan/internal/capture"
	"github.com/csheth/medscan/internal/logger"
	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/report"
	"github.com/csheth/medscan/internal/scanapi"
	"github.com/csheth/medscan/internal/session"
)

type fakeAnalyzer struct {
	result scanapi.AnalysisResult
	err    error
}

func (f fakeAnalyzer) Analyze(ctx context.Context, img media.Image) (scanapi.AnalysisResult, error) {
	return f.result, f.err
}

type fakeChatter struct {
	reply string
	err   error
}

func (f fakeChatter) Send(ctx context.Context, message, analysis string) (scanapi.ChatReply, error) {
	return scanapi.ChatReply{Text: f.reply}, f.err
}

type recordedJob struct {
	kind   jobKind
	runner jobRunner
}

// recordingJobs captures runners instead of scheduling them so tests decide
// when, and in which order, each job reports back.
type recordingJobs struct {
	jobs []recordedJob
}

func (r *recordingJobs) Start(kind jobKind, runner jobRunner) tea.Cmd {
	r.jobs = append(r.jobs, recordedJob{kind: kind, runner: runner})
	return nil
}

func (r *recordingJobs) kinds() []jobKind {
	out := make([]jobKind, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.kind
	}
	return out
}

func (r *recordingJobs) finish(t *testing.T, m *model, idx int) {
	t.Helper()
	if idx >= len(r.jobs) {
		t.Fatalf("job %d not started; have %v", idx, r.kinds())
	}
	msg, _ := r.jobs[idx].runner(context.Background())
	m.Update(msg)
}

type memoryStore struct {
	mu      sync.Mutex
	reports []report.Report
}

func (s *memoryStore) Save(ctx context.Context, r report.Report) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return "memory://reports/1", nil
}

func newTestModel(t *testing.T, config Config) (*model, *recordingJobs) {
	t.Helper()
	if config.Session == nil {
		config.Session = session.New(
			fakeAnalyzer{result: scanapi.AnalysisResult{Text: "Benign nodule", Confidence: 87}},
			fakeChatter{reply: "It looks benign."},
		)
	}
	teaModel, ok := New(config).(*model)
	if !ok {
		t.Fatalf("expected *model, got %T", teaModel)
	}
	jobs := &recordingJobs{}
	teaModel.jobs = jobs
	return teaModel, jobs
}

func writeFixture(t *testing.T, name string, encode func(*bytes.Buffer, image.Image) error) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func pngFixture(t *testing.T) string {
	return writeFixture(t, "scan.png", func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) })
}

func jpegFixture(t *testing.T) string {
	return writeFixture(t, "frame.jpg", func(b *bytes.Buffer, img image.Image) error { return jpeg.Encode(b, img, nil) })
}

func typeAndSubmit(m *model, value string) {
	m.composer.SetValue(value)
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func analyze(t *testing.T, m *model, jobs *recordingJobs) {
	t.Helper()
	typeAndSubmit(m, pngFixture(t))
	jobs.finish(t, m, len(jobs.jobs)-1)
	jobs.finish(t, m, len(jobs.jobs)-1)
}

func TestUploadAnalyzeAndChat(t *testing.T) {
	m, jobs := newTestModel(t, Config{})

	typeAndSubmit(m, pngFixture(t))
	if got := jobs.kinds(); len(got) != 1 || got[0] != jobKindUpload {
		t.Fatalf("expected upload job, got %v", got)
	}
	jobs.finish(t, m, 0)
	if got := jobs.kinds(); len(got) != 2 || got[1] != jobKindAnalyze {
		t.Fatalf("expected analyze job after upload, got %v", got)
	}
	if !m.snapshot().Flags.Analyzing {
		t.Fatal("analyzing flag should be set while the request is pending")
	}
	if view := m.View(); !strings.Contains(view, "Analyzing image...") {
		t.Fatalf("analyzing indicator missing:\n%s", view)
	}

	jobs.finish(t, m, 1)
	snap := m.snapshot()
	if snap.Phase() != session.PhaseReady || !snap.ChatEnabled() {
		t.Fatalf("expected ready with chat enabled, got %s", snap.Phase())
	}
	if m.composerMode != composerModeChat {
		t.Fatalf("composer should switch to chat, got %v", m.composerMode)
	}
	view := m.View()
	for _, want := range []string{"Analysis Results", "Benign nodule", "87%", "Ask any questions about your analysis"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	typeAndSubmit(m, "Is this serious?")
	if got := jobs.kinds(); len(got) != 3 || got[2] != jobKindChat {
		t.Fatalf("expected chat job, got %v", got)
	}
	if m.composer.Value() != "" {
		t.Fatalf("composer should clear after sending, got %q", m.composer.Value())
	}
	if !strings.Contains(m.buildTranscript(), "Thinking") {
		t.Fatal("pending reply indicator missing")
	}

	jobs.finish(t, m, 2)
	transcript := m.buildTranscript()
	if !strings.Contains(transcript, "Is this serious?") || !strings.Contains(transcript, "It looks benign.") {
		t.Fatalf("transcript missing turns:\n%s", transcript)
	}
	if m.snapshot().Log.Len() != 2 {
		t.Fatalf("expected two turns, got %d", m.snapshot().Log.Len())
	}
}

func TestNonImageUploadShowsBannerWithoutAnalysis(t *testing.T) {
	m, jobs := newTestModel(t, Config{})
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	typeAndSubmit(m, path)
	jobs.finish(t, m, 0)

	if len(jobs.jobs) != 1 {
		t.Fatalf("no analysis should start, got %v", jobs.kinds())
	}
	snap := m.snapshot()
	if snap.Err != "Please upload an image file" {
		t.Fatalf("unexpected banner %q", snap.Err)
	}
	if !strings.Contains(m.View(), "Please upload an image file") {
		t.Fatal("banner not rendered")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlE})
	if m.snapshot().HasError() {
		t.Fatal("ctrl+e should dismiss the banner")
	}
}

func TestMissingFileSetsBanner(t *testing.T) {
	m, jobs := newTestModel(t, Config{})
	typeAndSubmit(m, filepath.Join(t.TempDir(), "absent.png"))
	jobs.finish(t, m, 0)
	if !strings.HasPrefix(m.snapshot().Err, "File not found") {
		t.Fatalf("unexpected banner %q", m.snapshot().Err)
	}
}

func TestSupersededUploadReadIsDropped(t *testing.T) {
	m, jobs := newTestModel(t, Config{})
	typeAndSubmit(m, pngFixture(t))
	typeAndSubmit(m, pngFixture(t))

	jobs.finish(t, m, 0)
	if len(jobs.jobs) != 2 {
		t.Fatalf("stale read should not start an analysis, got %v", jobs.kinds())
	}
	jobs.finish(t, m, 1)
	if got := jobs.kinds(); len(got) != 3 || got[2] != jobKindAnalyze {
		t.Fatalf("latest read should start analysis, got %v", got)
	}
}

func TestAnalysisFailureReturnsToIdle(t *testing.T) {
	orch := session.New(
		fakeAnalyzer{err: errors.New("boom")},
		fakeChatter{},
	)
	m, jobs := newTestModel(t, Config{Session: orch})
	analyze(t, m, jobs)

	snap := m.snapshot()
	if snap.Phase() != session.PhaseIdle || !snap.HasError() {
		t.Fatalf("expected idle with banner, got %s err=%q", snap.Phase(), snap.Err)
	}
	if m.composerMode != composerModeSource {
		t.Fatal("composer should stay in source mode after a failed analysis")
	}
}

func TestChatFailureRendersInlineError(t *testing.T) {
	orch := session.New(
		fakeAnalyzer{result: scanapi.AnalysisResult{Text: "Benign nodule", Confidence: 87}},
		fakeChatter{err: errors.New("down")},
	)
	m, jobs := newTestModel(t, Config{Session: orch})
	analyze(t, m, jobs)

	typeAndSubmit(m, "hello")
	jobs.finish(t, m, len(jobs.jobs)-1)

	if !strings.Contains(m.buildTranscript(), session.ChatFailureText) {
		t.Fatalf("error turn missing:\n%s", m.buildTranscript())
	}
	if m.snapshot().Analysis == nil {
		t.Fatal("chat failure must not clear the analysis")
	}
}

func TestChatBeforeAnalysisIsRejected(t *testing.T) {
	m, jobs := newTestModel(t, Config{})
	m.setComposerMode(composerModeChat)
	typeAndSubmit(m, "hello")

	if len(jobs.jobs) != 0 {
		t.Fatalf("no request expected, got %v", jobs.kinds())
	}
	if m.snapshot().Log.Len() != 0 {
		t.Fatal("no turn should be appended")
	}
	if m.composerMode != composerModeSource {
		t.Fatal("composer should fall back to source mode")
	}
}

func TestRemoveImageResetsComposer(t *testing.T) {
	m, jobs := newTestModel(t, Config{})
	analyze(t, m, jobs)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	if m.snapshot().Phase() != session.PhaseIdle {
		t.Fatalf("expected idle after removal, got %s", m.snapshot().Phase())
	}
	if m.composerMode != composerModeSource {
		t.Fatal("composer should return to source mode")
	}
	if !strings.Contains(m.View(), "Upload an image to start the conversation") {
		t.Fatal("chat placeholder missing after removal")
	}
}

func TestTabSwitchesComposerOnlyWithAnalysis(t *testing.T) {
	m, jobs := newTestModel(t, Config{})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.composerMode != composerModeSource {
		t.Fatal("tab should not enter chat without an analysis")
	}

	analyze(t, m, jobs)
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.composerMode != composerModeSource {
		t.Fatal("tab should switch back to the image source")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.composerMode != composerModeChat {
		t.Fatal("tab should return to chat")
	}
}

func TestCameraCaptureSubmitsImage(t *testing.T) {
	camera := capture.NewCamera(capture.StillDevice{Path: jpegFixture(t)})
	m, jobs := newTestModel(t, Config{Camera: camera})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	if m.stage != stageCamera {
		t.Fatalf("expected camera overlay, got %v", m.stage)
	}
	jobs.finish(t, m, 0)
	if m.camSession == nil || !camera.Active() {
		t.Fatal("camera session should be live after open")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := jobs.kinds(); len(got) != 2 || got[1] != jobKindCapture {
		t.Fatalf("expected capture job, got %v", got)
	}
	jobs.finish(t, m, 1)

	if m.stage != stageMain {
		t.Fatal("overlay should close after capture")
	}
	if camera.Active() {
		t.Fatal("camera must be released after capture")
	}
	snap := m.snapshot()
	if snap.Image == nil || snap.Image.Origin() != media.OriginCaptured || !snap.Flags.Analyzing {
		t.Fatal("captured image should be submitted for analysis")
	}
	if got := jobs.kinds(); got[len(got)-1] != jobKindAnalyze {
		t.Fatalf("expected analyze job, got %v", got)
	}
}

func TestCameraOpenedAfterCloseIsReleased(t *testing.T) {
	camera := capture.NewCamera(capture.StillDevice{Path: jpegFixture(t)})
	m, jobs := newTestModel(t, Config{Camera: camera})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	jobs.finish(t, m, 0)

	if camera.Active() {
		t.Fatal("late open must release its session")
	}
	if m.stage != stageMain || m.camSession != nil {
		t.Fatal("late open must not reopen the overlay")
	}
}

func TestCameraFailureStaysInOverlay(t *testing.T) {
	camera := capture.NewCamera(capture.StillDevice{Path: filepath.Join(t.TempDir(), "absent.jpg")})
	m, jobs := newTestModel(t, Config{Camera: camera})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	jobs.finish(t, m, 0)

	if m.stage != stageCamera || m.camErr == "" {
		t.Fatalf("device error should show in the overlay (stage=%v err=%q)", m.stage, m.camErr)
	}
	if m.snapshot().HasError() {
		t.Fatal("device errors must not touch the session banner")
	}
	if !strings.Contains(m.View(), "r: retry") {
		t.Fatal("retry hint missing")
	}
}

func TestQuitReleasesCamera(t *testing.T) {
	camera := capture.NewCamera(capture.StillDevice{Path: jpegFixture(t)})
	m, jobs := newTestModel(t, Config{Camera: camera})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	jobs.finish(t, m, 0)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if camera.Active() {
		t.Fatal("quit must release the camera")
	}
}

func TestExportReport(t *testing.T) {
	store := &memoryStore{}
	m, jobs := newTestModel(t, Config{Reports: store})
	hook := logtest.NewLocal(logger.Logger)
	level := logger.Logger.GetLevel()
	logger.Logger.SetLevel(logrus.InfoLevel)
	t.Cleanup(func() {
		logger.Logger.SetLevel(level)
		logger.Logger.ReplaceHooks(make(logrus.LevelHooks))
	})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if len(jobs.jobs) != 0 || !strings.Contains(m.infoMessage, "Nothing to export") {
		t.Fatalf("export without analysis should be refused, info=%q", m.infoMessage)
	}

	analyze(t, m, jobs)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	jobs.finish(t, m, len(jobs.jobs)-1)

	if len(store.reports) != 1 || store.reports[0].Analysis != "Benign nodule" {
		t.Fatalf("unexpected reports %+v", store.reports)
	}
	if !strings.Contains(m.infoMessage, "memory://reports/1") {
		t.Fatalf("saved location not reported: %q", m.infoMessage)
	}
	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "report exported" && entry.Data["location"] == "memory://reports/1" {
			logged = true
		}
	}
	if !logged {
		t.Fatal("export location was not logged")
	}
}

func TestHelpToggleOnlyWithEmptyComposer(t *testing.T) {
	m, _ := newTestModel(t, Config{})
	question := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}}

	m.Update(question)
	if !m.helpVisible {
		t.Fatal("? should open the cheatsheet")
	}
	if !strings.Contains(m.View(), "Key Cheatsheet") {
		t.Fatal("cheatsheet not rendered")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.helpVisible {
		t.Fatal("esc should close the cheatsheet")
	}

	m.composer.SetValue("what")
	m.Update(question)
	if m.helpVisible || m.composer.Value() != "what?" {
		t.Fatalf("? should be typed into a non-empty composer, got %q", m.composer.Value())
	}
}

func TestJobTrackerKinds(t *testing.T) {
	tracker := jobTracker{}
	tracker.begin(jobSnapshot{ID: "chat-2", Kind: jobKindChat})
	tracker.begin(jobSnapshot{ID: "analyze-1", Kind: jobKindAnalyze})
	tracker.begin(jobSnapshot{ID: "chat-3", Kind: jobKindChat})

	if got := strings.Join(tracker.kinds(), ","); got != "analyze,chat" {
		t.Fatalf("unexpected kinds %q", got)
	}
	tracker.finish(jobSnapshot{ID: "analyze-1"})
	if tracker.running(jobKindAnalyze) {
		t.Fatal("finished job still tracked")
	}
}
