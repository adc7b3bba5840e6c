package scanapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/csheth/medscan/internal/media"
)

const (
	defaultEndpoint    = "http://localhost:3000"
	defaultHTTPTimeout = 2 * time.Minute
)

// AnalysisResult is the service's diagnostic text and its confidence in [0,100].
type AnalysisResult struct {
	Text       string
	Confidence float64
}

// ChatReply is one assistant answer.
type ChatReply struct {
	Text string
}

// Analyzer submits an image for analysis.
type Analyzer interface {
	Analyze(ctx context.Context, img media.Image) (AnalysisResult, error)
}

// Chatter sends a follow-up question together with the analysis text it refers to.
type Chatter interface {
	Send(ctx context.Context, message, analysis string) (ChatReply, error)
}

// Client exposes both backend contracts.
type Client interface {
	Analyzer
	Chatter
	Name() string
}

// ErrEmptyMessage is the cause of a chat error raised for a blank message.
var ErrEmptyMessage = errors.New("message cannot be empty")

// Config describes how to reach the analysis service.
type Config struct {
	Endpoint   string
	HTTPClient *http.Client
}

// New builds an HTTP client. An empty endpoint falls back to MEDSCAN_ENDPOINT
// and then to the local development server.
func New(cfg Config) Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		if env := os.Getenv("MEDSCAN_ENDPOINT"); env != "" {
			endpoint = env
		} else {
			endpoint = defaultEndpoint
		}
	}
	return &httpClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   pickHTTPClient(cfg.HTTPClient),
	}
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	// Per-call deadlines come from the caller's context.
	return &http.Client{Timeout: defaultHTTPTimeout}
}
