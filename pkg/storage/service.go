package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sicodev/photobooth/pkg/dataurl"
	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/observability"
)

// Options configures a Service.
type Options struct {
	// Remote is the preferred backend. Nil means local only.
	Remote Store

	// Local is the fallback backend.
	Local *LocalStore

	// RemoteRequired forbids local storage: a missing remote backend or
	// a remote failure fails the request.
	RemoteRequired bool

	// MaxBytes overrides MaxBytes.
	MaxBytes int

	Logger *log.Logger

	// NewID generates record ids. Tests replace it.
	NewID func() (string, error)
}

// Service persists renders. Each call is independent; there is no update,
// listing or deletion of stored renders.
type Service struct {
	remote         Store
	local          *LocalStore
	remoteRequired bool
	maxBytes       int
	logger         *log.Logger
	newID          func() (string, error)
}

// NewService creates a persistence service.
func NewService(opts Options) *Service {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = MaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if opts.NewID == nil {
		opts.NewID = newUUID
	}
	return &Service{
		remote:         opts.Remote,
		local:          opts.Local,
		remoteRequired: opts.RemoteRequired,
		maxBytes:       opts.MaxBytes,
		logger:         opts.Logger,
		newID:          opts.NewID,
	}
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Ready reports a configuration error that would fail every request.
func (s *Service) Ready() error {
	if s.remoteRequired && s.remote == nil {
		return perrors.New(perrors.ErrCodeConfig, MsgNotConfigured)
	}
	if s.remote == nil && s.local == nil {
		return perrors.New(perrors.ErrCodeConfig, MsgStoreFailed)
	}
	return nil
}

// Backend names the backend new renders go to first.
func (s *Service) Backend() string {
	if s.remote != nil {
		return s.remote.Name()
	}
	return "local"
}

// MaxBytes returns the decoded size cap.
func (s *Service) MaxBytes() int { return s.maxBytes }

// Persist stores the PNG carried by a data URL.
func (s *Service) Persist(ctx context.Context, imageData string) (*Record, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	data, err := dataurl.DecodePNG(imageData)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidPayload, err, MsgInvalidPayload)
	}
	return s.PersistBytes(ctx, data)
}

// PersistBytes stores raw PNG bytes under a fresh id.
func (s *Service) PersistBytes(ctx context.Context, data []byte) (*Record, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data) > s.maxBytes {
		return nil, perrors.New(perrors.ErrCodePayloadSize, MsgSize)
	}

	id, err := s.newID()
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInternal, err, MsgStoreFailed)
	}

	if s.remote != nil {
		url, err := s.put(ctx, s.remote, id, data)
		if err == nil {
			return &Record{ID: id, URL: url}, nil
		}
		s.logger.Error("remote render upload failed", "backend", s.remote.Name(), "id", id, "error", err)
		if s.remoteRequired || s.local == nil {
			return nil, perrors.Wrap(perrors.ErrCodeStorage, err, MsgRemoteFailed)
		}
		observability.Storage().OnFallback(ctx, s.remote.Name(), s.local.Name(), err)
	}

	url, err := s.put(ctx, s.local, id, data)
	if err != nil {
		s.logger.Error("persist render", "id", id, "error", err)
		return nil, perrors.Wrap(perrors.ErrCodeStorage, err, MsgStoreFailed)
	}
	return &Record{ID: id, URL: url}, nil
}

func (s *Service) put(ctx context.Context, st Store, id string, data []byte) (string, error) {
	start := time.Now()
	url, err := st.Put(ctx, id, data)
	observability.Storage().OnStore(ctx, st.Name(), len(data), time.Since(start), err)
	if err == nil {
		s.logger.Info("stored render", "backend", st.Name(), "id", id, "bytes", len(data))
	}
	return url, err
}

// Open returns a stored render served by this process. Local storage is
// checked first, then the remote backend if it can be read back.
func (s *Service) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if s.local != nil {
		rc, err := s.local.Open(ctx, id)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return rc, err
		}
	}
	if r, ok := s.remote.(Reader); ok {
		return r.Open(ctx, id)
	}
	return nil, ErrNotFound
}
