// Package inflight provides single-slot task tokens.
//
// A token admits at most one outstanding task. A second request while the
// token is held is rejected, never queued; callers surface the rejection
// (ErrBusy, HTTP 409) and let the user try again.
package inflight

import (
	"sync"
	"sync/atomic"
)

// Token is a single-slot guard. The zero value is ready to use.
type Token struct {
	held atomic.Bool
}

// TryAcquire takes the token and reports whether it was free.
func (t *Token) TryAcquire() bool {
	return t.held.CompareAndSwap(false, true)
}

// Release frees the token.
func (t *Token) Release() {
	t.held.Store(false)
}

// Held reports whether a task currently owns the token.
func (t *Token) Held() bool {
	return t.held.Load()
}

// Set holds one token per key, e.g. per session id.
type Set struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewSet creates an empty token set.
func NewSet() *Set {
	return &Set{held: make(map[string]struct{})}
}

// TryAcquire takes the token for key and reports whether it was free.
func (s *Set) TryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.held[key]; ok {
		return false
	}
	s.held[key] = struct{}{}
	return true
}

// Release frees the token for key.
func (s *Set) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, key)
}
