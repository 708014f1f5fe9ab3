// Package cache stores rendered artifacts so identical inputs are encoded
// only once.
//
// Backends:
//   - FileCache: entries as JSON files under a directory (CLI and single host)
//   - RedisCache: entries in Redis (several service instances)
//   - NullCache: never stores anything (caching disabled)
//
// Keys come from a Keyer so every backend agrees on the layout, and a
// ScopedKeyer can isolate one tenant or session from another.
package cache

import (
	"context"
	"time"
)

// Default entry lifetimes.
const (
	// TTLComposite bounds how long an encoded composite strip is kept.
	TTLComposite = 24 * time.Hour

	// TTLQR bounds how long a rendered QR code image is kept.
	TTLQR = 7 * 24 * time.Hour
)

// Cache is the interface for artifact storage backends.
type Cache interface {
	// Get returns the cached bytes and whether the key was a hit.
	// A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer generates cache keys.
type Keyer interface {
	// CompositeKey returns the key for a composite strip rendered from
	// inputs whose combined hash is inputsHash.
	CompositeKey(inputsHash string, opts CompositeKeyOpts) string

	// QRKey returns the key for a QR code image of url.
	QRKey(url string, size int) string
}

// CompositeKeyOpts holds the render parameters that change the output bytes.
type CompositeKeyOpts struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Slots  int `json:"slots"`
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// CompositeKey implements Keyer.
func (DefaultKeyer) CompositeKey(inputsHash string, opts CompositeKeyOpts) string {
	return hashKey("composite", inputsHash, opts)
}

// QRKey implements Keyer.
func (DefaultKeyer) QRKey(url string, size int) string {
	return hashKey("qr", url, size)
}
