package storage

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
)

// DefaultBlobAPI is the base URL of the hosted blob API.
const DefaultBlobAPI = "https://blob.vercel-storage.com"

const blobAPIVersion = "7"

// BlobStore uploads renders to a blob API with public read access.
type BlobStore struct {
	apiURL string
	token  string
	client *http.Client
}

// BlobOptions configures a BlobStore.
type BlobOptions struct {
	// APIURL overrides DefaultBlobAPI.
	APIURL  string
	Token   string
	Timeout time.Duration
}

// NewBlobStore creates a blob store. The token must be non-empty.
func NewBlobStore(opts BlobOptions) *BlobStore {
	if opts.APIURL == "" {
		opts.APIURL = DefaultBlobAPI
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &BlobStore{
		apiURL: strings.TrimRight(opts.APIURL, "/"),
		token:  opts.Token,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (s *BlobStore) Name() string { return "blob" }

type blobResponse struct {
	URL   string `json:"url"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Put uploads data to renders/<id>.png and returns the public URL.
func (s *BlobStore) Put(ctx context.Context, id string, data []byte) (string, error) {
	endpoint := s.apiURL + "/renders/" + Filename(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("blob request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("x-api-version", blobAPIVersion)
	req.Header.Set("x-content-type", "image/png")
	req.Header.Set("x-add-random-suffix", "0")
	req.ContentLength = int64(len(data))

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("blob response: %w", err)
	}

	var out blobResponse
	jsonErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if jsonErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("blob upload: %s: %s", resp.Status, out.Error.Message)
		}
		return "", fmt.Errorf("blob upload: %s", resp.Status)
	}
	if jsonErr != nil {
		return "", fmt.Errorf("blob response: %w", jsonErr)
	}
	if out.URL == "" {
		return "", fmt.Errorf("blob response: missing url")
	}
	return out.URL, nil
}
