package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sicodev/photobooth/pkg/observability"
)

// logHooks reports observability events through the CLI logger. Routine
// events go to debug; failures and fallbacks are surfaced at warn.
type logHooks struct {
	logger *log.Logger
}

// installLogHooks registers logHooks for every hook family.
func installLogHooks(logger *log.Logger) {
	h := &logHooks{logger: logger}
	observability.SetCaptureHooks(h)
	observability.SetRenderHooks(h)
	observability.SetStorageHooks(h)
	observability.SetCacheHooks(h)
}

func (h *logHooks) OnCapture(_ context.Context, id string, count int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("capture aborted", "session", id, "count", count, "error", err)
		return
	}
	h.logger.Debug("capture", "session", id, "count", count, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnRetake(_ context.Context, id string, count int) {
	h.logger.Debug("retake", "session", id, "count", count)
}

func (h *logHooks) OnComplete(_ context.Context, id string, count int) {
	h.logger.Debug("capture complete", "session", id, "count", count)
}

func (h *logHooks) OnComposeStart(_ context.Context, stills int) {
	h.logger.Debug("compose start", "stills", stills)
}

func (h *logHooks) OnComposeComplete(_ context.Context, stills int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("compose failed", "stills", stills, "error", err)
		return
	}
	h.logger.Debug("compose done", "stills", stills, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnStore(_ context.Context, backend string, size int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("store failed", "backend", backend, "bytes", size, "error", err)
		return
	}
	h.logger.Debug("store", "backend", backend, "bytes", size, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnFallback(_ context.Context, from, to string, err error) {
	h.logger.Warn("storage fallback", "from", from, "to", to, "error", err)
}

func (h *logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

var (
	_ observability.CaptureHooks = (*logHooks)(nil)
	_ observability.RenderHooks  = (*logHooks)(nil)
	_ observability.StorageHooks = (*logHooks)(nil)
	_ observability.CacheHooks   = (*logHooks)(nil)
)
