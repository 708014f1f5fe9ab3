// Package capture turns camera frames into the ordered still sequence of a
// session.
//
// A [Flow] owns one camera and one session. Each shutter event runs a
// countdown, grabs a frame, and passes it through [Process]: center-crop
// to the still aspect ratio, mirror, scale to [StillWidth]×[StillHeight].
// The encoded still is appended to the session until it holds
// [session.MaxPhotos], at which point the flow completes and hands the
// sequence off.
//
// # Usage
//
//	cam := capture.NewDirCamera("./frames")
//	flow := capture.NewFlow(cam, sess, capture.Options{
//	    Feedback:   fb,
//	    OnComplete: func(ctx context.Context, s *session.Session) error {
//	        return store.Set(ctx, s)
//	    },
//	})
//	if err := flow.Start(ctx); err != nil {
//	    logger.Warn("camera unavailable", "error", err)
//	}
//	defer flow.Close()
//
//	res, err := flow.TakePhoto(ctx)
package capture

import (
	"context"
	"image"
)

// Camera is a source of preview frames.
type Camera interface {
	// Start acquires the device. It is called once per flow.
	Start(ctx context.Context) error

	// Frame returns the current frame.
	Frame(ctx context.Context) (image.Image, error)

	// Stop releases the device. Stopping an unstarted camera is a no-op.
	Stop() error
}

// Feedback receives the user-facing side effects of a shutter cycle.
type Feedback interface {
	// Countdown reports the seconds remaining; 0 clears the display.
	Countdown(remaining int)

	// Flash shows the shutter flash.
	Flash()

	// Shutter plays the shutter sound. Errors are logged and ignored.
	Shutter() error
}

// NopFeedback discards all feedback.
type NopFeedback struct{}

func (NopFeedback) Countdown(int)  {}
func (NopFeedback) Flash()         {}
func (NopFeedback) Shutter() error { return nil }
