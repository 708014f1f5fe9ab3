// Package share turns a rendered strip into a scannable link.
//
// A [Link] uploads the strip through an [Uploader] exactly once per
// render and remembers the resulting URL. The URL is made absolute
// against the service base URL and rendered as a QR code, either as a PNG
// for the web or as block characters for the terminal.
package share

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/inflight"
)

// FailedMessage is shown when the upload fails.
const FailedMessage = "Could not prepare the QR code. Please try again."

// ErrBusy is returned when an upload for the link is already running.
var ErrBusy = errors.New("share upload already in progress")

// Uploader stores a PNG strip and returns its retrieval URL, which may be
// relative to the service.
type Uploader interface {
	Upload(ctx context.Context, png []byte) (string, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, png []byte) (string, error)

func (f UploaderFunc) Upload(ctx context.Context, png []byte) (string, error) {
	return f(ctx, png)
}

// Absolute resolves a relative retrieval URL against base. URLs that
// already carry a scheme are returned unchanged.
func Absolute(base, url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") || base == "" {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return strings.TrimRight(base, "/") + url
}

// Link holds the share URL of the current render.
//
// Only one upload runs at a time; a concurrent request fails with ErrBusy
// instead of waiting. A successful upload is reused for as long as the
// render hash is unchanged. Failures are never retried automatically.
type Link struct {
	uploader Uploader
	baseURL  string
	logger   *log.Logger

	token inflight.Token

	mu   sync.Mutex
	hash string
	url  string
}

// NewLink creates a link that uploads through u.
func NewLink(u Uploader, baseURL string, logger *log.Logger) *Link {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Link{uploader: u, baseURL: baseURL, logger: logger}
}

// Get returns the share URL for the render identified by hash, uploading
// png if this render has not been uploaded yet.
func (l *Link) Get(ctx context.Context, hash string, png []byte) (string, error) {
	if url, ok := l.cached(hash); ok {
		return url, nil
	}
	return l.upload(ctx, hash, png, true)
}

// Retry forgets any URL for hash and uploads once more.
func (l *Link) Retry(ctx context.Context, hash string, png []byte) (string, error) {
	l.mu.Lock()
	if l.hash == hash {
		l.hash, l.url = "", ""
	}
	l.mu.Unlock()
	return l.upload(ctx, hash, png, false)
}

// URL returns the current share URL, or "" before a successful upload.
func (l *Link) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// Busy reports whether an upload is running.
func (l *Link) Busy() bool { return l.token.Held() }

// Reset forgets the current URL, e.g. after a retake.
func (l *Link) Reset() {
	l.mu.Lock()
	l.hash, l.url = "", ""
	l.mu.Unlock()
}

func (l *Link) cached(hash string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.url != "" && l.hash == hash {
		return l.url, true
	}
	return "", false
}

// upload runs one upload under the token. With reuse set, a URL stored for
// hash by an upload that finished while we were checking is returned as is.
func (l *Link) upload(ctx context.Context, hash string, png []byte, reuse bool) (string, error) {
	if !l.token.TryAcquire() {
		return "", ErrBusy
	}
	defer l.token.Release()
	if reuse {
		if url, ok := l.cached(hash); ok {
			return url, nil
		}
	}

	url, err := l.uploader.Upload(ctx, png)
	if err == nil && url == "" {
		err = errors.New("invalid response payload")
	}
	if err != nil {
		l.logger.Error("create share link", "error", err)
		return "", perrors.Wrap(perrors.ErrCodeUploadFailed, err, FailedMessage)
	}

	abs := Absolute(l.baseURL, url)
	l.mu.Lock()
	l.hash, l.url = hash, abs
	l.mu.Unlock()
	l.logger.Debug("share link ready", "url", abs)
	return abs, nil
}
