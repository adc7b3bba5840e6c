package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/csheth/medscan/internal/apperr"
)

const (
	defaultEndpoint       = "http://localhost:3000"
	defaultCameraNode     = "/dev/video0"
	defaultReportFile     = "medscan-reports.json"
	defaultCacheSize      = 32
	defaultMaxUploadBytes = 10 << 20
	maxCacheSize          = 4096
)

// Bucket holds the optional S3-compatible report destination.
type Bucket struct {
	Name      string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	UseSSL    bool
}

// Enabled reports whether reports should go to object storage.
func (b Bucket) Enabled() bool {
	return strings.TrimSpace(b.Name) != ""
}

type Config struct {
	Endpoint       string
	AnalyzeTimeout time.Duration
	ChatTimeout    time.Duration
	CaptureTimeout time.Duration
	MaxUploadBytes int64
	CacheSize      int

	CameraNode    string
	CameraStill   string
	CameraCommand []string

	ReportPath   string
	ReportBucket Bucket

	LogFile  string
	LogLevel string

	NoAltScreen bool
	Markdown    bool
}

// Load reads .env files (default ".env"; missing files are ignored), then
// parses args with environment-backed defaults and validates the result.
func Load(args []string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Config("failed to read .env file", err)
	}

	cfg := &Config{}
	var cameraCommand string
	fset := newFlagSet(cfg, &cameraCommand)
	fset.SetOutput(io.Discard)
	if err := fset.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, apperr.Config(fmt.Sprintf("invalid arguments: %v", err), err)
	}
	cfg.CameraCommand = strings.Fields(cameraCommand)

	cfg.ReportBucket = Bucket{
		Name:      os.Getenv("MEDSCAN_REPORT_BUCKET"),
		Endpoint:  os.Getenv("MEDSCAN_S3_ENDPOINT"),
		Region:    os.Getenv("MEDSCAN_S3_REGION"),
		AccessKey: os.Getenv("MEDSCAN_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("MEDSCAN_S3_SECRET_KEY"),
		Prefix:    os.Getenv("MEDSCAN_S3_PREFIX"),
		UseSSL:    parseBoolOrDefault("MEDSCAN_S3_USE_SSL", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ReportPath != "" {
		abs, err := filepath.Abs(cfg.ReportPath)
		if err != nil {
			return nil, apperr.Config("failed to resolve report path", err)
		}
		cfg.ReportPath = abs
	}
	return cfg, nil
}

// Usage lists every flag with its current default.
func Usage(w io.Writer) {
	var cameraCommand string
	fset := newFlagSet(&Config{}, &cameraCommand)
	fset.SetOutput(w)
	fset.PrintDefaults()
}

func newFlagSet(cfg *Config, cameraCommand *string) *flag.FlagSet {
	fset := flag.NewFlagSet("medscan", flag.ContinueOnError)
	fset.StringVar(&cfg.Endpoint, "endpoint", getEnvOrDefault("MEDSCAN_ENDPOINT", defaultEndpoint), "analysis service base URL")
	fset.DurationVar(&cfg.AnalyzeTimeout, "analyze-timeout", parseDurationOrDefault("MEDSCAN_ANALYZE_TIMEOUT", 90*time.Second), "deadline for one analysis request")
	fset.DurationVar(&cfg.ChatTimeout, "chat-timeout", parseDurationOrDefault("MEDSCAN_CHAT_TIMEOUT", 60*time.Second), "deadline for one chat request")
	fset.DurationVar(&cfg.CaptureTimeout, "capture-timeout", parseDurationOrDefault("MEDSCAN_CAPTURE_TIMEOUT", 10*time.Second), "deadline for opening the camera or grabbing a frame")
	fset.Int64Var(&cfg.MaxUploadBytes, "max-upload", parseIntOrDefault("MEDSCAN_MAX_UPLOAD", defaultMaxUploadBytes), "maximum upload size in bytes")
	fset.IntVar(&cfg.CacheSize, "cache-size", int(parseIntOrDefault("MEDSCAN_CACHE_SIZE", defaultCacheSize)), "analyses to memoize by image digest (0 disables)")
	fset.StringVar(&cfg.CameraNode, "camera", getEnvOrDefault("MEDSCAN_CAMERA", defaultCameraNode), "V4L2 camera device node")
	fset.StringVar(&cfg.CameraStill, "camera-still", os.Getenv("MEDSCAN_CAMERA_STILL"), "serve this JPEG as the camera feed")
	fset.StringVar(cameraCommand, "camera-command", os.Getenv("MEDSCAN_CAMERA_COMMAND"), "frame grabber command; {device} is replaced with the camera node")
	fset.StringVar(&cfg.ReportPath, "report", getEnvOrDefault("MEDSCAN_REPORT_PATH", filepath.Join(".", defaultReportFile)), "path to the exported reports JSON file")
	fset.StringVar(&cfg.LogFile, "log-file", os.Getenv("MEDSCAN_LOG_FILE"), "append structured logs to this file")
	fset.StringVar(&cfg.LogLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "info"), "debug, info, warn or error")
	fset.BoolVar(&cfg.NoAltScreen, "no-alt-screen", false, "disable the alternate screen buffer")
	fset.BoolVar(&cfg.Markdown, "markdown", parseBoolOrDefault("MEDSCAN_MARKDOWN", false), "render analysis and replies as markdown")
	return fset
}

func (c *Config) validate() error {
	u, err := url.Parse(strings.TrimSpace(c.Endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Config(fmt.Sprintf("invalid endpoint: %q", c.Endpoint), err)
	}
	if c.AnalyzeTimeout <= 0 || c.ChatTimeout <= 0 || c.CaptureTimeout <= 0 {
		return apperr.Config(fmt.Sprintf("timeouts must be > 0 (got analyze=%s, chat=%s, capture=%s)",
			c.AnalyzeTimeout, c.ChatTimeout, c.CaptureTimeout), nil)
	}
	if c.MaxUploadBytes <= 0 {
		return apperr.Config(fmt.Sprintf("max-upload must be > 0 (got %d)", c.MaxUploadBytes), nil)
	}
	if c.CacheSize < 0 || c.CacheSize > maxCacheSize {
		return apperr.Config(fmt.Sprintf("cache-size must be between 0 and %d (got %d)", maxCacheSize, c.CacheSize), nil)
	}
	if c.ReportBucket.Enabled() {
		if c.ReportBucket.Endpoint == "" || c.ReportBucket.AccessKey == "" || c.ReportBucket.SecretKey == "" {
			return apperr.Config("MEDSCAN_REPORT_BUCKET requires MEDSCAN_S3_ENDPOINT, MEDSCAN_S3_ACCESS_KEY and MEDSCAN_S3_SECRET_KEY", nil)
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
