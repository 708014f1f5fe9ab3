// Package storage persists rendered strips and hands back a retrieval URL.
//
// A [Service] validates an incoming PNG data URL, assigns a fresh id and
// writes the bytes to a backend:
//   - BlobStore: a remote blob API addressed by a read/write token
//   - GridFSStore: a MongoDB GridFS bucket
//   - LocalStore: a directory served by this process at /renders/<id>.png
//
// The remote backend is preferred when configured. If it fails, the
// service falls back to local storage unless remote storage is required,
// in which case the request fails.
package storage

import (
	"context"
	"errors"
	"io"
)

// MaxBytes caps the decoded size of a stored render.
const MaxBytes = 6 * 1024 * 1024

// RoutePrefix is the path under which locally stored renders are served.
const RoutePrefix = "/renders/"

// User-facing messages.
const (
	MsgInvalidPayload = "Invalid image payload."
	MsgSize           = "Image too large or empty."
	MsgNotConfigured  = "Blob storage is not configured. Set the BLOB_READ_WRITE_TOKEN environment variable."
	MsgRemoteFailed   = "Could not store the render (blob error)."
	MsgStoreFailed    = "An error occurred while saving the render."
)

// ErrNotFound is returned when a stored render does not exist.
var ErrNotFound = errors.New("render not found")

// Record identifies a stored render.
type Record struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Store writes render bytes.
type Store interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Put stores data as <id>.png and returns its retrieval URL. A
	// relative URL is resolved against the service base URL by clients.
	Put(ctx context.Context, id string, data []byte) (string, error)
}

// Reader is implemented by stores whose renders this process serves.
type Reader interface {
	// Open returns the bytes of render id, or ErrNotFound.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// Filename returns the stored file name of render id.
func Filename(id string) string {
	return id + ".png"
}
