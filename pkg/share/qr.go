package share

import (
	"context"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/sicodev/photobooth/pkg/cache"
	"github.com/sicodev/photobooth/pkg/dataurl"
	"github.com/sicodev/photobooth/pkg/observability"
)

// DefaultQRSize is the edge length of QR code images in pixels.
const DefaultQRSize = 256

// QR renders QR codes, caching PNG output by URL and size.
type QR struct {
	cache cache.Cache
	keyer cache.Keyer
}

// NewQR creates a QR renderer. Nil arguments disable caching and use the
// default keyer.
func NewQR(c cache.Cache, keyer cache.Keyer) *QR {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &QR{cache: c, keyer: keyer}
}

// PNG returns a QR code for url as PNG bytes.
func (q *QR) PNG(ctx context.Context, url string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	key := q.keyer.QRKey(url, size)
	if data, hit, err := q.cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "qr")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "qr")

	data, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, err
	}
	if err := q.cache.Set(ctx, key, data, cache.TTLQR); err == nil {
		observability.Cache().OnCacheSet(ctx, "qr", len(data))
	}
	return data, nil
}

// DataURL returns a QR code for url as a PNG data URL.
func (q *QR) DataURL(ctx context.Context, url string, size int) (string, error) {
	data, err := q.PNG(ctx, url, size)
	if err != nil {
		return "", err
	}
	return dataurl.EncodePNG(data), nil
}

// Terminal returns a QR code for url drawn with half-block characters.
func Terminal(url string) (string, error) {
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return code.ToSmallString(false), nil
}
