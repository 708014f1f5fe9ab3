// Package observability provides hooks for metrics, tracing, and logging.
//
// Libraries emit events through package-level hook registries; main
// installs concrete implementations at startup. Defaults are no-ops, so a
// library never needs to check whether anybody is listening.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetCaptureHooks(&myCaptureHooks{})
//	    observability.SetStorageHooks(&myStorageHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Render().OnComposeStart(ctx, len(stills))
//	// ... compose ...
//	observability.Render().OnComposeComplete(ctx, len(stills), duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Capture Hooks
// =============================================================================

// CaptureHooks receives events from the capture flow.
type CaptureHooks interface {
	// OnCapture records a finished shutter cycle. count is the sequence
	// length after the capture; err is non-nil when the capture aborted.
	OnCapture(ctx context.Context, sessionID string, count int, duration time.Duration, err error)

	// OnRetake records removal of the most recent still.
	OnRetake(ctx context.Context, sessionID string, count int)

	// OnComplete records the CAPTURING → COMPLETE transition.
	OnComplete(ctx context.Context, sessionID string, count int)
}

// =============================================================================
// Render Hooks
// =============================================================================

// RenderHooks receives events from the composite renderer.
type RenderHooks interface {
	OnComposeStart(ctx context.Context, stills int)
	OnComposeComplete(ctx context.Context, stills int, duration time.Duration, err error)
}

// =============================================================================
// Storage Hooks
// =============================================================================

// StorageHooks receives events from render persistence.
type StorageHooks interface {
	// OnStore records a persistence attempt on the named backend.
	OnStore(ctx context.Context, backend string, size int, duration time.Duration, err error)

	// OnFallback records a remote failure that fell back to local storage.
	OnFallback(ctx context.Context, from, to string, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCaptureHooks is a no-op implementation of CaptureHooks.
type NoopCaptureHooks struct{}

func (NoopCaptureHooks) OnCapture(context.Context, string, int, time.Duration, error) {}
func (NoopCaptureHooks) OnRetake(context.Context, string, int)                        {}
func (NoopCaptureHooks) OnComplete(context.Context, string, int)                      {}

// NoopRenderHooks is a no-op implementation of RenderHooks.
type NoopRenderHooks struct{}

func (NoopRenderHooks) OnComposeStart(context.Context, int)                              {}
func (NoopRenderHooks) OnComposeComplete(context.Context, int, time.Duration, error)     {}

// NoopStorageHooks is a no-op implementation of StorageHooks.
type NoopStorageHooks struct{}

func (NoopStorageHooks) OnStore(context.Context, string, int, time.Duration, error) {}
func (NoopStorageHooks) OnFallback(context.Context, string, string, error)          {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	captureHooks CaptureHooks = NoopCaptureHooks{}
	renderHooks  RenderHooks  = NoopRenderHooks{}
	storageHooks StorageHooks = NoopStorageHooks{}
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	hooksMu      sync.RWMutex
)

// SetCaptureHooks registers custom capture hooks.
func SetCaptureHooks(h CaptureHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		captureHooks = h
	}
}

// SetRenderHooks registers custom render hooks.
func SetRenderHooks(h RenderHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		renderHooks = h
	}
}

// SetStorageHooks registers custom storage hooks.
func SetStorageHooks(h StorageHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storageHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Capture returns the registered capture hooks.
func Capture() CaptureHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return captureHooks
}

// Render returns the registered render hooks.
func Render() RenderHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return renderHooks
}

// Storage returns the registered storage hooks.
func Storage() StorageHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storageHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	captureHooks = NoopCaptureHooks{}
	renderHooks = NoopRenderHooks{}
	storageHooks = NoopStorageHooks{}
	cacheHooks = NoopCacheHooks{}
}
