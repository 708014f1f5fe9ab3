// Package session holds the capture session: the explicit context object
// that owns the ordered still sequence and hands it from the capture flow
// to the composite renderer.
//
// Backends:
//   - memory: in-process map for a single service instance and tests
//   - file: JSON files, used by the terminal booth so a crash keeps photos
//   - redis: shared storage for several service instances
//
// # Usage
//
//	sess, err := session.New(5, session.DefaultTTL)
//	if err != nil {
//	    return err
//	}
//	if err := sess.Append(dataURL); err != nil {
//	    return err // ErrFull once four stills are held
//	}
//	store.Set(ctx, sess)
//
//	sess, err = store.Get(ctx, id)
//	if sess == nil {
//	    // not found or expired: start over at the capture screen
//	}
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxPhotos is the number of stills a session holds; it equals the number
// of slots on the strip.
const MaxPhotos = 4

// HandoffKey names the handoff payload in JSON documents and storage.
const HandoffKey = "capturedPhotos"

// Default durations.
const (
	// DefaultTTL is how long an idle session is kept.
	DefaultTTL = 2 * time.Hour

	// DefaultTimer is the countdown used when none is chosen.
	DefaultTimer = 3
)

// Sentinel errors for session operations.
var (
	// ErrFull is returned when appending to a sequence that already holds
	// MaxPhotos stills.
	ErrFull = errors.New("session already holds the maximum number of photos")

	// ErrNotFound is returned when a session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
)

// State is the capture state of a session.
type State string

const (
	// StateCapturing accepts new stills.
	StateCapturing State = "capturing"

	// StateComplete means the sequence is full and handed off.
	StateComplete State = "complete"
)

// Session is one booth visit.
type Session struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	Timer int    `json:"timer"`

	// Photos is the handoff payload: data URLs in capture order.
	Photos []string `json:"capturedPhotos,omitempty"`

	// ShareURL is the retrieval URL of the uploaded composite, valid only
	// while ShareHash matches the current composite.
	ShareURL  string `json:"share_url,omitempty"`
	ShareHash string `json:"share_hash,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates an empty capturing session.
func New(timer int, ttl time.Duration) (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	if timer == 0 {
		timer = DefaultTimer
	}
	now := time.Now()
	return &Session{
		ID:        id.String(),
		State:     StateCapturing,
		Timer:     timer,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Count returns the number of stills held.
func (s *Session) Count() int { return len(s.Photos) }

// Full reports whether the sequence holds MaxPhotos stills.
func (s *Session) Full() bool { return len(s.Photos) >= MaxPhotos }

// Append adds a still at the tail. Filling the sequence moves the session
// to StateComplete.
func (s *Session) Append(dataURL string) error {
	if s.Full() {
		return ErrFull
	}
	s.Photos = append(s.Photos, dataURL)
	s.invalidateShare()
	if s.Full() {
		s.State = StateComplete
	}
	return nil
}

// RemoveLast drops the most recent still and reports whether one was
// removed. The session returns to StateCapturing.
func (s *Session) RemoveLast() bool {
	if len(s.Photos) == 0 {
		return false
	}
	s.Photos = s.Photos[:len(s.Photos)-1]
	if len(s.Photos) == 0 {
		s.Photos = nil
	}
	s.State = StateCapturing
	s.invalidateShare()
	return true
}

// Finish ends capture early with whatever the sequence holds.
func (s *Session) Finish() {
	s.State = StateComplete
}

// Clear drops the whole handoff payload.
func (s *Session) Clear() {
	s.Photos = nil
	s.State = StateCapturing
	s.invalidateShare()
}

// Handoff encodes the payload as a JSON array of data URLs, the format
// the renderer reads. An empty sequence encodes as nil: nothing to hand off.
func (s *Session) Handoff() ([]byte, error) {
	if len(s.Photos) == 0 {
		return nil, nil
	}
	return json.Marshal(s.Photos)
}

// Touch pushes the expiry out by ttl from now.
func (s *Session) Touch(ttl time.Duration) {
	s.ExpiresAt = time.Now().Add(ttl)
}

func (s *Session) invalidateShare() {
	s.ShareURL = ""
	s.ShareHash = ""
}

// Store is the interface for session storage backends.
type Store interface {
	// Get retrieves a session by ID.
	// Returns nil, nil if the session doesn't exist or has expired.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Set stores a session.
	Set(ctx context.Context, session *Session) error

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error

	// Cleanup removes expired sessions (may be a no-op when the backend
	// expires keys itself).
	Cleanup(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
