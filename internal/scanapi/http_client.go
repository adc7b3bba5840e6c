package scanapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/csheth/medscan/internal/apperr"
	"github.com/csheth/medscan/internal/media"
)

const maxResponseBytes = 1 << 20

type httpClient struct {
	endpoint string
	client   *http.Client
}

func (c *httpClient) Name() string {
	return fmt.Sprintf("MedScan API (%s)", c.endpoint)
}

type analyzeRequest struct {
	Image string `json:"image"`
}

type analyzeResponse struct {
	Analysis   string   `json:"analysis"`
	Confidence *float64 `json:"confidence"`
}

type chatRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

type chatResponse struct {
	Message string `json:"message"`
}

func (c *httpClient) Analyze(ctx context.Context, img media.Image) (AnalysisResult, error) {
	const prefix = "Failed to analyze image: "
	if img.IsZero() {
		return AnalysisResult{}, apperr.Analysis(prefix+"no image", 0, nil)
	}

	var parsed analyzeResponse
	status, err := c.post(ctx, "/analyze", analyzeRequest{Image: img.DataURL()}, &parsed)
	if err != nil {
		var failed *statusError
		if errors.As(err, &failed) {
			return AnalysisResult{}, apperr.Analysis(prefix+"Analysis failed: "+failed.Reason, status, err)
		}
		return AnalysisResult{}, apperr.Analysis(prefix+err.Error(), 0, err)
	}

	text := strings.TrimSpace(parsed.Analysis)
	if text == "" {
		return AnalysisResult{}, apperr.Analysis(prefix+"empty analysis", status, nil)
	}
	if parsed.Confidence == nil {
		return AnalysisResult{}, apperr.Analysis(prefix+"missing confidence", status, nil)
	}
	confidence := *parsed.Confidence
	if confidence < 0 || confidence > 100 {
		return AnalysisResult{}, apperr.Analysis(
			fmt.Sprintf("%sconfidence %.1f out of range", prefix, confidence), status, nil)
	}
	return AnalysisResult{Text: text, Confidence: confidence}, nil
}

func (c *httpClient) Send(ctx context.Context, message, analysis string) (ChatReply, error) {
	const prefix = "Failed to get chat response: "
	if strings.TrimSpace(message) == "" {
		return ChatReply{}, apperr.Chat(prefix+ErrEmptyMessage.Error(), 0, ErrEmptyMessage)
	}

	var parsed chatResponse
	status, err := c.post(ctx, "/chat", chatRequest{Message: message, Context: analysis}, &parsed)
	if err != nil {
		var failed *statusError
		if errors.As(err, &failed) {
			return ChatReply{}, apperr.Chat(prefix+"Chat failed: "+failed.Reason, status, err)
		}
		return ChatReply{}, apperr.Chat(prefix+err.Error(), 0, err)
	}
	text := strings.TrimSpace(parsed.Message)
	if text == "" {
		return ChatReply{}, apperr.Chat(prefix+"empty reply", status, nil)
	}
	return ChatReply{Text: text}, nil
}

// post sends payload as JSON and decodes a 2xx body into out. A failure status
// comes back as *statusError.
func (c *httpClient) post(ctx context.Context, path string, payload, out any) (int, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(buf))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &statusError{
			Path:   path,
			Code:   resp.StatusCode,
			Reason: reasonPhrase(resp),
			Body:   strings.TrimSpace(string(body)),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return 0, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}

// statusError is a non-2xx answer from the service.
type statusError struct {
	Path   string
	Code   int
	Reason string
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("POST %s: %d %s (%s)", e.Path, e.Code, e.Reason, e.Body)
}

// reasonPhrase is the text the server sent after the status code, falling
// back to the standard phrase when it sent none.
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	if reason == "" {
		reason = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return reason
}
