package stub

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/csheth/medscan/internal/logger"
)

// Options configures the canned backend.
type Options struct {
	Analysis     string
	Confidence   float64
	FailAnalyze  bool
	FailChat     bool
	Latency      time.Duration
	MaxBodyBytes int64
}

// DefaultOptions returns the responses used for local development.
func DefaultOptions() Options {
	return Options{
		Analysis:     "Benign nodule",
		Confidence:   87,
		MaxBodyBytes: 16 << 20,
	}
}

type analyzeRequest struct {
	Image string `json:"image" binding:"required"`
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
	Context string `json:"context"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewHandler serves /analyze, /chat and /health with canned answers.
func NewHandler(opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultOptions().MaxBodyBytes
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), bodyLimiter(opts.MaxBodyBytes))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})
	r.POST("/analyze", analyze(opts))
	r.POST("/chat", chat(opts))
	return r
}

func analyze(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		mediaType, err := decodeImage(req.Image)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid image payload", err)
			return
		}
		if !wait(c, opts.Latency) {
			return
		}
		if opts.FailAnalyze {
			respondError(c, http.StatusBadGateway, "analysis model unavailable", nil)
			return
		}
		logger.WithFields(logrus.Fields{"mime": mediaType}).Debug("stub analysis served")
		c.JSON(http.StatusOK, gin.H{
			"analysis":   opts.Analysis,
			"confidence": opts.Confidence,
		})
	}
}

func chat(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		if !wait(c, opts.Latency) {
			return
		}
		if opts.FailChat {
			respondError(c, http.StatusInternalServerError, "chat model unavailable", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": reply(req.Message, req.Context)})
	}
}

func reply(message, analysis string) string {
	analysis = strings.TrimSpace(analysis)
	if analysis == "" {
		return "I need an analysis before I can answer questions about it."
	}
	return "Regarding the finding \"" + analysis + "\": " + strings.TrimSpace(message) +
		" This stub cannot give medical advice; please consult a clinician."
}

// decodeImage checks that payload is a base64 data URL holding an image and
// returns its sniffed media type.
func decodeImage(payload string) (string, error) {
	const marker = ";base64,"
	idx := strings.Index(payload, marker)
	if !strings.HasPrefix(payload, "data:") || idx < 0 {
		return "", errInvalidPayload("expected a base64 data URL")
	}
	data, err := base64.StdEncoding.DecodeString(payload[idx+len(marker):])
	if err != nil {
		return "", err
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		declared := payload[len("data:"):idx]
		if !strings.HasPrefix(declared, "image/") {
			return "", errInvalidPayload("payload is not an image")
		}
		return declared, nil
	}
	return detected.String(), nil
}

type errInvalidPayload string

func (e errInvalidPayload) Error() string { return string(e) }

func wait(c *gin.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-c.Request.Context().Done():
		c.Abort()
		return false
	}
}

func respondError(c *gin.Context, status int, message string, err error) {
	resp := errorResponse{Error: http.StatusText(status), Message: message}
	if err != nil {
		resp.Message = message + ": " + err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"ip":       c.ClientIP(),
		}).Info("stub request")
	}
}

func bodyLimiter(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			respondError(c, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
