package share

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sicodev/photobooth/pkg/buildinfo"
	"github.com/sicodev/photobooth/pkg/dataurl"
)

// RenderPath is the persistence endpoint of the service.
const RenderPath = "/api/render"

// Client uploads strips to a running photobooth service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type renderRequest struct {
	ImageData string `json:"imageData"`
}

type renderResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Upload posts png to the persistence endpoint and returns the URL from
// the response as given, relative or absolute.
func (c *Client) Upload(ctx context.Context, png []byte) (string, error) {
	body, err := json.Marshal(renderRequest{ImageData: dataurl.EncodePNG(png)})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RenderPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	var out renderResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Message != "" {
			return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, out.Message)
		}
		return "", fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	if decodeErr != nil || out.URL == "" {
		return "", fmt.Errorf("invalid response payload")
	}
	return out.URL, nil
}
