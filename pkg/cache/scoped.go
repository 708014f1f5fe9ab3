package cache

// ScopedKeyer wraps a Keyer with a prefix for isolation.
// The server scopes composite keys per booth so two booths sharing one
// Redis never read each other's strips.
//
// Example usage:
//
//	boothKeyer := NewScopedKeyer(NewDefaultKeyer(), "booth:lobby:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// CompositeKey generates a prefixed composite key.
func (k *ScopedKeyer) CompositeKey(inputsHash string, opts CompositeKeyOpts) string {
	return k.prefix + k.inner.CompositeKey(inputsHash, opts)
}

// QRKey generates a prefixed QR key.
func (k *ScopedKeyer) QRKey(url string, size int) string {
	return k.prefix + k.inner.QRKey(url, size)
}
