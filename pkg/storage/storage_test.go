package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/sicodev/photobooth/pkg/dataurl"
	perrors "github.com/sicodev/photobooth/pkg/errors"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake render")

func TestPersistLocal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public", "renders")
	svc := NewService(Options{Local: NewLocalStore(dir)})

	rec, err := svc.Persist(context.Background(), dataurl.EncodePNG(pngBytes))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Errorf("id %q is not a UUID", rec.ID)
	}
	if rec.URL != "/renders/"+rec.ID+".png" {
		t.Errorf("url = %q", rec.URL)
	}

	got, err := os.ReadFile(filepath.Join(dir, rec.ID+".png"))
	if err != nil {
		t.Fatalf("stored file: %v", err)
	}
	if !bytes.Equal(got, pngBytes) {
		t.Error("stored bytes differ from the decoded payload")
	}
}

func TestPersistFreshIDs(t *testing.T) {
	svc := NewService(Options{Local: NewLocalStore(t.TempDir())})
	ctx := context.Background()
	payload := dataurl.EncodePNG(pngBytes)

	a, err := svc.Persist(ctx, payload)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Persist(ctx, payload)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Error("identical payloads must still get distinct ids")
	}
}

func TestPersistRejectsBadPayloads(t *testing.T) {
	svc := NewService(Options{Local: NewLocalStore(t.TempDir()), MaxBytes: 16})

	tests := []struct {
		name    string
		payload string
		code    perrors.Code
		msg     string
	}{
		{"empty string", "", perrors.ErrCodeInvalidPayload, MsgInvalidPayload},
		{"jpeg prefix", "data:image/jpeg;base64,aGk=", perrors.ErrCodeInvalidPayload, MsgInvalidPayload},
		{"plain base64", "aGk=", perrors.ErrCodeInvalidPayload, MsgInvalidPayload},
		{"bad base64", dataurl.PNGPrefix + "%%%", perrors.ErrCodeInvalidPayload, MsgInvalidPayload},
		{"zero bytes", dataurl.PNGPrefix, perrors.ErrCodePayloadSize, MsgSize},
		{"too large", dataurl.EncodePNG(make([]byte, 17)), perrors.ErrCodePayloadSize, MsgSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Persist(context.Background(), tt.payload)
			if !perrors.Is(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			if got := perrors.UserMessage(err); got != tt.msg {
				t.Errorf("message = %q, want %q", got, tt.msg)
			}
			if perrors.StatusOf(err) != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", perrors.StatusOf(err))
			}
		})
	}
}

func TestPersistSizeBoundary(t *testing.T) {
	svc := NewService(Options{Local: NewLocalStore(t.TempDir()), MaxBytes: 16})
	if _, err := svc.Persist(context.Background(), dataurl.EncodePNG(make([]byte, 16))); err != nil {
		t.Errorf("payload at the limit should be accepted: %v", err)
	}
}

func TestPersistRemoteRequiredWithoutRemote(t *testing.T) {
	svc := NewService(Options{Local: NewLocalStore(t.TempDir()), RemoteRequired: true})

	// Configuration is checked before the payload.
	_, err := svc.Persist(context.Background(), "not even a data url")
	if !perrors.Is(err, perrors.ErrCodeConfig) {
		t.Fatalf("err = %v, want CONFIG", err)
	}
	if perrors.StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("status = %d", perrors.StatusOf(err))
	}
	if perrors.UserMessage(err) != MsgNotConfigured {
		t.Errorf("message = %q", perrors.UserMessage(err))
	}
}

type blobServer struct {
	*httptest.Server
	calls atomic.Int32
	fail  bool
}

func newBlobServer(t *testing.T, fail bool) *blobServer {
	t.Helper()
	bs := &blobServer{fail: fail}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs.calls.Add(1)
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("x-content-type") != "image/png" {
			t.Errorf("content type = %q", r.Header.Get("x-content-type"))
		}
		if !strings.HasPrefix(r.URL.Path, "/renders/") || !strings.HasSuffix(r.URL.Path, ".png") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if bs.fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":"service_unavailable","message":"try later"}}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		if !bytes.Equal(body, pngBytes) {
			t.Error("uploaded bytes differ")
		}
		json.NewEncoder(w).Encode(map[string]string{
			"url":      "https://public.blob.example" + r.URL.Path,
			"pathname": strings.TrimPrefix(r.URL.Path, "/"),
		})
	}))
	t.Cleanup(bs.Close)
	return bs
}

func TestPersistRemote(t *testing.T) {
	bs := newBlobServer(t, false)
	dir := t.TempDir()
	svc := NewService(Options{
		Remote: NewBlobStore(BlobOptions{APIURL: bs.URL, Token: "tok"}),
		Local:  NewLocalStore(dir),
	})

	rec, err := svc.Persist(context.Background(), dataurl.EncodePNG(pngBytes))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if rec.URL != "https://public.blob.example/renders/"+rec.ID+".png" {
		t.Errorf("url = %q", rec.URL)
	}
	if _, err := os.Stat(filepath.Join(dir, rec.ID+".png")); !os.IsNotExist(err) {
		t.Error("remote success must not write locally")
	}
}

func TestPersistRemoteFailureFallsBack(t *testing.T) {
	bs := newBlobServer(t, true)
	dir := t.TempDir()
	svc := NewService(Options{
		Remote: NewBlobStore(BlobOptions{APIURL: bs.URL, Token: "tok"}),
		Local:  NewLocalStore(dir),
	})

	rec, err := svc.Persist(context.Background(), dataurl.EncodePNG(pngBytes))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if rec.URL != "/renders/"+rec.ID+".png" {
		t.Errorf("fallback url = %q", rec.URL)
	}
	if bs.calls.Load() != 1 {
		t.Errorf("remote called %d times, want exactly 1", bs.calls.Load())
	}
}

func TestPersistRemoteFailureWhenRequired(t *testing.T) {
	bs := newBlobServer(t, true)
	dir := t.TempDir()
	svc := NewService(Options{
		Remote:         NewBlobStore(BlobOptions{APIURL: bs.URL, Token: "tok"}),
		Local:          NewLocalStore(dir),
		RemoteRequired: true,
	})

	_, err := svc.Persist(context.Background(), dataurl.EncodePNG(pngBytes))
	if !perrors.Is(err, perrors.ErrCodeStorage) {
		t.Fatalf("err = %v, want STORAGE", err)
	}
	if perrors.UserMessage(err) != MsgRemoteFailed {
		t.Errorf("message = %q", perrors.UserMessage(err))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Error("required remote failure must not fall back to local")
	}
}

func TestBlobStoreErrorMessage(t *testing.T) {
	bs := newBlobServer(t, true)
	_, err := NewBlobStore(BlobOptions{APIURL: bs.URL, Token: "tok"}).Put(context.Background(), "x", pngBytes)
	if err == nil || !strings.Contains(err.Error(), "try later") {
		t.Errorf("err = %v", err)
	}
}

func TestLocalWriteFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	os.WriteFile(blocker, []byte("x"), 0o644)
	svc := NewService(Options{Local: NewLocalStore(filepath.Join(blocker, "renders"))})

	_, err := svc.Persist(context.Background(), dataurl.EncodePNG(pngBytes))
	if !perrors.Is(err, perrors.ErrCodeStorage) {
		t.Fatalf("err = %v, want STORAGE", err)
	}
	if perrors.UserMessage(err) != MsgStoreFailed {
		t.Errorf("message = %q", perrors.UserMessage(err))
	}
}

func TestOpen(t *testing.T) {
	svc := NewService(Options{Local: NewLocalStore(t.TempDir())})
	ctx := context.Background()

	rec, err := svc.Persist(ctx, dataurl.EncodePNG(pngBytes))
	if err != nil {
		t.Fatal(err)
	}
	rc, err := svc.Open(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, pngBytes) {
		t.Error("served bytes differ from stored bytes")
	}

	if _, err := svc.Open(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) err = %v, want ErrNotFound", err)
	}
}

func TestGridFSStore(t *testing.T) {
	uri := os.Getenv("PHOTOBOOTH_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PHOTOBOOTH_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	st, err := NewGridFSStore(ctx, GridFSConfig{URI: uri, Database: "photobooth_test"})
	if err != nil {
		t.Fatalf("NewGridFSStore: %v", err)
	}
	defer st.Close()

	id := uuid.NewString()
	url, err := st.Put(ctx, id, pngBytes)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "/renders/"+id+".png" {
		t.Errorf("url = %q", url)
	}
	rc, err := st.Open(ctx, id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, pngBytes) {
		t.Error("gridfs round trip differs")
	}
	if _, err := st.Open(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing render err = %v", err)
	}
}
