// Package pipeline renders a session handoff into the composite strip.
//
// This package implements the sanitize → load → compose → encode pipeline
// shared by the HTTP service and the terminal booth, so both produce the
// same bytes for the same inputs and share one artifact cache.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Sanitize: decode the handoff payload and drop unusable entries
//  2. Load: decode the template and every still concurrently; the first
//     failure cancels the rest and no artifact is produced
//  3. Compose: draw stills into their slots, template last
//  4. Encode: PNG-encode once and cache by input hash
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Handoff:  payload,
//	    Template: templatePNG,
//	})
//	if errors.Is(err, errors.ErrCodeNoPhotos) {
//	    // redirect to capture
//	}
//	os.WriteFile("photobooth.png", result.PNG, 0o644)
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sicodev/photobooth/pkg/cache"
	"github.com/sicodev/photobooth/pkg/composite"
)

// Options contains the inputs of one render.
type Options struct {
	// Handoff is the JSON array of still data URLs.
	Handoff []byte `json:"capturedPhotos"`

	// Template is the encoded overlay. Nil selects the built-in frame.
	Template []byte `json:"-"`

	// Refresh skips the cache lookup; the result is still cached.
	Refresh bool `json:"refresh,omitempty"`

	Logger *log.Logger `json:"-"`
}

// Result contains the outputs of a render.
type Result struct {
	// PNG is the encoded composite strip.
	PNG []byte

	// Hash identifies the inputs (template and stills). Two renders with
	// the same hash produce the same bytes.
	Hash string

	// Stills is the number of stills drawn.
	Stills int

	Stats    Stats
	CacheHit bool
}

// Stats contains render timings.
type Stats struct {
	LoadTime    time.Duration
	ComposeTime time.Duration
	EncodeTime  time.Duration
}

// SetDefaults fills unset options. It is idempotent.
func (o *Options) SetDefaults() {
	if o.Template == nil {
		o.Template = composite.DefaultTemplatePNG()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// CompositeKeyOpts returns cache key options for a strip of n stills.
func CompositeKeyOpts(n int) cache.CompositeKeyOpts {
	return cache.CompositeKeyOpts{
		Width:  composite.Width,
		Height: composite.Height,
		Slots:  n,
	}
}
