package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/sicodev/photobooth/pkg/buildinfo"
)

// ErrNotStarted is returned by Frame before Start succeeded.
var ErrNotStarted = errors.New("camera not started")

// SnapshotCamera reads frames from an HTTP endpoint that returns the
// current picture as JPEG or PNG, such as an IP camera or a webcam bridge.
type SnapshotCamera struct {
	url    string
	client *http.Client

	mu      sync.Mutex
	started bool
}

// NewSnapshotCamera creates a camera for the given snapshot URL.
func NewSnapshotCamera(url string, timeout time.Duration) *SnapshotCamera {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SnapshotCamera{url: url, client: &http.Client{Timeout: timeout}}
}

// Start checks that the endpoint answers with an image.
func (c *SnapshotCamera) Start(ctx context.Context) error {
	if _, err := c.fetch(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

func (c *SnapshotCamera) Frame(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}
	return c.fetch(ctx)
}

func (c *SnapshotCamera) Stop() error {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
	return nil
}

func (c *SnapshotCamera) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot: %s", resp.Status)
	}
	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	return img, nil
}

// DirCamera replays the image files of a directory in name order, wrapping
// around at the end.
type DirCamera struct {
	dir string

	mu    sync.Mutex
	files []string
	next  int
}

// NewDirCamera creates a camera over dir.
func NewDirCamera(dir string) *DirCamera {
	return &DirCamera{dir: dir}
}

// Start lists the directory; a directory without images is an error.
func (c *DirCamera) Start(context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read frames dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(c.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no frames in %s", c.dir)
	}
	slices.Sort(files)

	c.mu.Lock()
	c.files = files
	c.next = 0
	c.mu.Unlock()
	return nil
}

func (c *DirCamera) Frame(context.Context) (image.Image, error) {
	c.mu.Lock()
	if len(c.files) == 0 {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	path := c.files[c.next%len(c.files)]
	c.next++
	c.mu.Unlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	return img, nil
}

func (c *DirCamera) Stop() error {
	c.mu.Lock()
	c.files = nil
	c.mu.Unlock()
	return nil
}
