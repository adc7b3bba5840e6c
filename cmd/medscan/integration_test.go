package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/csheth/medscan/internal/stub"
	"github.com/csheth/medscan/internal/tuitest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestUploadAnalyzeAndChatAgainstStub(t *testing.T) {
	t.Parallel()

	server := newStubServer(t)
	cmdDir := moduleDir(t)
	binary := buildBinary(t, cmdDir)
	scan := writeImage(t, "scan.png", png.Encode)
	work := t.TempDir()

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "-no-alt-screen", "-endpoint", server.URL, "-report", filepath.Join(work, "reports.json")},
		Dir:     work,
		Env:     isolatedEnv(work),
		Width:   120,
		Height:  60,
		Steps: []tuitest.Step{
			tuitest.WaitFor("Medical AI Scanner"),
			tuitest.Type(scan),
			{Input: tuitest.KeyEnter},
			tuitest.WaitFor("87%"),
			tuitest.Type("Is this serious?"),
			{Input: tuitest.KeyEnter},
			tuitest.WaitFor("Regarding the finding"),
			{Delay: 200 * time.Millisecond, Input: tuitest.KeyCtrlC},
		},
		Timeout:        20 * time.Second,
		AllowInterrupt: true,
	})
	if err != nil {
		t.Fatalf("run CLI: %v", err)
	}

	for _, want := range []string{"Medical AI Scanner", "Analysis Results", "Benign nodule", "87%", "Regarding the finding"} {
		if _, ok := rec.FrameContaining(want); !ok {
			frame, _ := rec.FinalFrame()
			t.Fatalf("no frame contained %q; final frame:\n%s", want, frame.Plain)
		}
	}
}

func TestCameraCaptureAgainstStub(t *testing.T) {
	t.Parallel()

	server := newStubServer(t)
	cmdDir := moduleDir(t)
	binary := buildBinary(t, cmdDir)
	still := writeImage(t, "frame.jpg", func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, nil)
	})
	work := t.TempDir()

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "-no-alt-screen", "-endpoint", server.URL, "-camera-still", still},
		Dir:     work,
		Env:     isolatedEnv(work),
		Width:   120,
		Height:  60,
		Steps: []tuitest.Step{
			tuitest.WaitFor("Medical AI Scanner"),
			{Input: tuitest.KeyCtrlO},
			tuitest.WaitFor("Camera ready"),
			{Input: tuitest.KeyEnter},
			tuitest.WaitFor("87%"),
			{Delay: 200 * time.Millisecond, Input: tuitest.KeyCtrlC},
		},
		Timeout:        20 * time.Second,
		AllowInterrupt: true,
	})
	if err != nil {
		t.Fatalf("run CLI: %v", err)
	}
	if _, ok := rec.FrameContaining("Captured image"); !ok {
		frame, _ := rec.FinalFrame()
		t.Fatalf("captured image never shown; final frame:\n%s", frame.Plain)
	}
}

func TestAnalysisFailureShowsBanner(t *testing.T) {
	t.Parallel()

	opts := stub.DefaultOptions()
	opts.FailAnalyze = true
	server := httptest.NewServer(stub.NewHandler(opts))
	t.Cleanup(server.Close)

	cmdDir := moduleDir(t)
	binary := buildBinary(t, cmdDir)
	scan := writeImage(t, "scan.png", png.Encode)
	work := t.TempDir()

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "-no-alt-screen", "-endpoint", server.URL},
		Dir:     work,
		Env:     isolatedEnv(work),
		Width:   120,
		Height:  60,
		Steps: []tuitest.Step{
			tuitest.WaitFor("Medical AI Scanner"),
			tuitest.Type(scan),
			{Input: tuitest.KeyEnter},
			tuitest.WaitFor("Analysis failed: Bad Gateway"),
			{Delay: 200 * time.Millisecond, Input: tuitest.KeyCtrlC},
		},
		Timeout:        20 * time.Second,
		AllowInterrupt: true,
	})
	if err != nil {
		t.Fatalf("run CLI: %v", err)
	}
	frame, _ := rec.FinalFrame()
	if strings.Contains(frame.Plain, "Analysis Results") {
		t.Fatalf("failed analysis must not show results:\n%s", frame.Plain)
	}
}

func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(stub.NewHandler(stub.DefaultOptions()))
	t.Cleanup(server.Close)
	return server
}

// isolatedEnv keeps the developer's .env and MEDSCAN_* settings out of the run.
func isolatedEnv(dir string) []string {
	return []string{
		"MEDSCAN_REPORT_BUCKET=",
		"MEDSCAN_LOG_FILE=" + filepath.Join(dir, "medscan.log"),
		"LOG_LEVEL=debug",
	}
}

func writeImage(t *testing.T, name string, encode func(io.Writer, image.Image) error) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 180, G: 40, B: 40, A: 255})
	}
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func moduleDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Dir(file)
}

func buildBinary(t *testing.T, cmdDir string) string {
	t.Helper()
	name := "medscan-integration"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binPath := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build CLI: %v\n%s", err, output)
	}
	return binPath
}
