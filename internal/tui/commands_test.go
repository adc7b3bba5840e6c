package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/scanapi"
	"github.com/csheth/medscan/internal/session"
)

func TestRequestJobReportsOutcome(t *testing.T) {
	orch := session.New(fakeAnalyzer{err: errors.New("offline")}, fakeChatter{})
	img, err := media.FromUpload([]byte("\x89PNG\r\n\x1a\n"), "image/png")
	if err != nil {
		t.Fatalf("image: %v", err)
	}
	req, err := orch.SubmitImage(img)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	msg, runErr := requestJob(req, defaultAnalyzeTimeout)(context.Background())
	if runErr == nil {
		t.Fatal("job error should mirror the outcome error")
	}
	out, ok := msg.(sessionOutcomeMsg)
	if !ok {
		t.Fatalf("expected sessionOutcomeMsg, got %T", msg)
	}
	if out.outcome.Kind != session.RequestAnalysis {
		t.Fatalf("unexpected kind %q", out.outcome.Kind)
	}
}

func TestReadUploadJobCarriesSequence(t *testing.T) {
	loader := media.NewLoader(nil, media.DefaultMaxUploadBytes)
	msg, err := readUploadJob(loader, 7, pngFixture(t), defaultAnalyzeTimeout)(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	read := msg.(uploadReadMsg)
	if read.seq != 7 || read.upload.Name != "scan.png" || len(read.upload.Data) == 0 {
		t.Fatalf("unexpected read %+v", read)
	}
}

func TestTextRendererPlainWraps(t *testing.T) {
	r := newTextRenderer(false)
	out := r.render(strings.Repeat("word ", 20), 20)
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 20 {
			t.Fatalf("line exceeds width: %q", line)
		}
	}
}

func TestTextRendererMarkdown(t *testing.T) {
	r := newTextRenderer(true)
	out := r.render("Finding: **benign** nodule", 60)
	if strings.Contains(out, "**") {
		t.Fatalf("markdown emphasis not rendered: %q", out)
	}
	if !strings.Contains(out, "benign") {
		t.Fatalf("content lost: %q", out)
	}
}

var _ scanapi.Analyzer = fakeAnalyzer{}
