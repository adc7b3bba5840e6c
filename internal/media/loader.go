package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/csheth/medscan/internal/apperr"
)

// DefaultMaxUploadBytes caps uploads read from disk or fetched over HTTP.
const DefaultMaxUploadBytes int64 = 10 << 20

// Upload is the raw content of a user-selected file before validation.
type Upload struct {
	Name         string
	Data         []byte
	DeclaredMIME string
}

// Loader reads uploads from local paths or http(s) URLs.
type Loader struct {
	client   *http.Client
	maxBytes int64
}

// NewLoader returns a loader; a nil client gets a fetcher tuned for single
// image downloads.
func NewLoader(client *http.Client, maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          4,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		}
	}
	return &Loader{client: client, maxBytes: maxBytes}
}

// Read loads source, which is either a file path or an http(s) URL.
func (l *Loader) Read(ctx context.Context, source string) (Upload, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Upload{}, apperr.InvalidInput("Enter an image path or URL.", nil)
	}
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return l.fetch(ctx, u.String())
	}
	return l.readFile(expandHome(source))
}

func (l *Loader) readFile(path string) (Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Upload{}, apperr.InvalidInput(fmt.Sprintf("File not found: %s", path), err)
		}
		return Upload{}, apperr.InvalidInput(fmt.Sprintf("Cannot read %s", path), err)
	}
	if info.IsDir() {
		return Upload{}, apperr.InvalidInput(fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() > l.maxBytes {
		return Upload{}, tooLarge(l.maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, apperr.InvalidInput(fmt.Sprintf("Cannot read %s", path), err)
	}
	return Upload{
		Name:         filepath.Base(path),
		Data:         data,
		DeclaredMIME: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}, nil
}

func (l *Loader) fetch(ctx context.Context, imageURL string) (Upload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return Upload{}, apperr.InvalidInput("Invalid image URL", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "medscan/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return Upload{}, apperr.InvalidInput("Failed to fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Upload{}, apperr.InvalidInput(
			fmt.Sprintf("Failed to fetch image: %s", statusText(resp)),
			fmt.Errorf("fetch %s: status code %d", imageURL, resp.StatusCode),
		)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return Upload{}, apperr.InvalidInput("Failed to fetch image", err)
	}
	if int64(len(data)) > l.maxBytes {
		return Upload{}, tooLarge(l.maxBytes)
	}
	name := filepath.Base(req.URL.Path)
	if name == "." || name == "/" {
		name = req.URL.Host
	}
	return Upload{Name: name, Data: data, DeclaredMIME: resp.Header.Get("Content-Type")}, nil
}

func tooLarge(limit int64) error {
	return apperr.InvalidInput(fmt.Sprintf("Image exceeds the %s upload limit", humanize.IBytes(uint64(limit))), nil)
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
