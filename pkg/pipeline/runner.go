package pipeline

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/sicodev/photobooth/pkg/cache"
	"github.com/sicodev/photobooth/pkg/composite"
	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/observability"
)

// LoadFailedMessage is shown when the template or a still cannot be
// decoded. The only recovery is a fresh capture.
const LoadFailedMessage = "Failed to prepare the photo. Please retake from the start."

// Runner encapsulates render execution with caching.
// Both CLI and API use it to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger. Multiple
// goroutines can safely use the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute renders the handoff in opts into a PNG strip.
//
// A payload with nothing to render fails with NO_PHOTOS before anything
// is decoded. A template or still that cannot be decoded fails with
// IMAGE_LOAD and no artifact is produced.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	opts.SetDefaults()

	stills, err := composite.Sanitize(opts.Handoff)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeNoPhotos, err, "no photos to render")
	}

	parts := make([][]byte, 0, len(stills)+1)
	parts = append(parts, opts.Template)
	for _, s := range stills {
		parts = append(parts, []byte(s))
	}
	result := &Result{
		Hash:   cache.HashAll(parts...),
		Stills: len(stills),
	}
	cacheKey := r.Keyer.CompositeKey(result.Hash, CompositeKeyOpts(len(stills)))

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "composite")
			result.PNG = data
			result.CacheHit = true
			opts.Logger.Debug("composite cache hit", "hash", result.Hash[:12])
			return result, nil
		}
		observability.Cache().OnCacheMiss(ctx, "composite")
	}

	hooks := observability.Render()
	hooks.OnComposeStart(ctx, len(stills))
	start := time.Now()

	data, err := r.render(ctx, opts.Template, stills, &result.Stats)
	hooks.OnComposeComplete(ctx, len(stills), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	result.PNG = data

	if err := r.Cache.Set(ctx, cacheKey, data, cache.TTLComposite); err != nil {
		opts.Logger.Warn("cache composite", "error", err)
	} else {
		observability.Cache().OnCacheSet(ctx, "composite", len(data))
	}

	opts.Logger.Info("rendered composite",
		"stills", len(stills),
		"bytes", len(data),
		"load", result.Stats.LoadTime,
		"compose", result.Stats.ComposeTime,
		"encode", result.Stats.EncodeTime)

	return result, nil
}

func (r *Runner) render(ctx context.Context, template []byte, stills []string, stats *Stats) ([]byte, error) {
	loadStart := time.Now()
	tmpl, imgs, err := Load(ctx, template, stills)
	if err != nil {
		return nil, err
	}
	stats.LoadTime = time.Since(loadStart)

	composeStart := time.Now()
	canvas := composite.Compose(tmpl, imgs)
	stats.ComposeTime = time.Since(composeStart)

	encodeStart := time.Now()
	data, err := composite.Encode(canvas)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInternal, err, "encode composite")
	}
	stats.EncodeTime = time.Since(encodeStart)
	return data, nil
}

// Load decodes the template and stills concurrently. The first failure
// cancels the remaining work and is returned as IMAGE_LOAD.
func Load(ctx context.Context, template []byte, stills []string) (image.Image, []image.Image, error) {
	g, ctx := errgroup.WithContext(ctx)

	var tmpl image.Image
	imgs := make([]image.Image, len(stills))

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := composite.DecodeBytes(template)
		if err != nil {
			return perrors.Wrap(perrors.ErrCodeImageLoad, err, LoadFailedMessage)
		}
		tmpl = img
		return nil
	})

	for i, s := range stills {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := composite.DecodeStill(s)
			if err != nil {
				return perrors.Wrap(perrors.ErrCodeImageLoad, err, LoadFailedMessage)
			}
			imgs[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var pe *perrors.Error
		if !errors.As(err, &pe) {
			err = perrors.Wrap(perrors.ErrCodeImageLoad, err, LoadFailedMessage)
		}
		return nil, nil, err
	}
	return tmpl, imgs, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
