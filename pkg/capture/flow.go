package capture

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/inflight"
	"github.com/sicodev/photobooth/pkg/observability"
	"github.com/sicodev/photobooth/pkg/session"
)

// ErrBusy is returned when a shutter cycle is already running.
var ErrBusy = errors.New("capture already in progress")

// SessionFunc receives a copy of the session after a change.
type SessionFunc func(ctx context.Context, sess *session.Session) error

// Options configures a Flow.
type Options struct {
	// Feedback receives countdown ticks, the flash and the shutter sound.
	Feedback Feedback

	Logger *log.Logger

	// OnChange is called after every change to the sequence, typically to
	// write the handoff to a session store.
	OnChange SessionFunc

	// OnComplete is called when the flow finalizes: on the capture that
	// fills the sequence, on Finish, and on TakePhoto while complete.
	OnComplete SessionFunc

	// Sleep waits between countdown ticks. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result describes the outcome of TakePhoto.
type Result struct {
	// Index is the slot of the new still, or -1 when nothing was captured.
	Index    int
	Count    int
	Complete bool
}

// Flow is the capture state machine for one session: CAPTURING until the
// sequence is full (or finished early), then COMPLETE.
//
// At most one shutter cycle runs at a time. A second TakePhoto while one
// is in flight fails with ErrBusy; it is never queued.
type Flow struct {
	cam        Camera
	feedback   Feedback
	logger     *log.Logger
	onChange   SessionFunc
	onComplete SessionFunc
	sleep      func(ctx context.Context, d time.Duration) error

	token     inflight.Token
	countdown atomic.Int32

	mu      sync.Mutex
	sess    *session.Session
	started bool
	camErr  error

	closeOnce sync.Once
	done      chan struct{}
}

// NewFlow creates a flow over cam that fills sess.
func NewFlow(cam Camera, sess *session.Session, opts Options) *Flow {
	if opts.Feedback == nil {
		opts.Feedback = NopFeedback{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Flow{
		cam:        cam,
		feedback:   opts.Feedback,
		logger:     opts.Logger,
		onChange:   opts.OnChange,
		onComplete: opts.OnComplete,
		sleep:      opts.Sleep,
		sess:       sess,
		done:       make(chan struct{}),
	}
}

// Start acquires the camera. On failure the flow stays usable without a
// preview and TakePhoto reports CAMERA_UNAVAILABLE; there is no retry.
// The camera is released by Close or when ctx is cancelled.
func (f *Flow) Start(ctx context.Context) error {
	if err := f.cam.Start(ctx); err != nil {
		f.logger.Warn("camera unavailable", "error", err)
		f.mu.Lock()
		f.camErr = err
		f.mu.Unlock()
		return perrors.Wrap(perrors.ErrCodeCameraUnavailable, err, "camera unavailable")
	}

	f.mu.Lock()
	f.started = true
	f.camErr = nil
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-f.done:
		}
	}()
	return nil
}

// Close releases the camera. It is safe to call more than once.
func (f *Flow) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		f.mu.Lock()
		started := f.started
		f.started = false
		f.mu.Unlock()
		if started {
			err = f.cam.Stop()
		}
	})
	return err
}

// TakePhoto runs one shutter cycle: countdown, flash, shutter sound,
// frame grab, processing, append. Filling the sequence completes the
// flow. On a complete flow it finalizes again without capturing.
func (f *Flow) TakePhoto(ctx context.Context) (Result, error) {
	if !f.token.TryAcquire() {
		return Result{Index: -1}, ErrBusy
	}
	defer f.token.Release()

	f.mu.Lock()
	if f.sess.State == session.StateComplete {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return Result{Index: -1, Count: snap.Count(), Complete: true}, f.finalize(ctx, snap)
	}
	timer, started, camErr := f.sess.Timer, f.started, f.camErr
	f.mu.Unlock()

	if !started {
		if camErr == nil {
			camErr = ErrNotStarted
		}
		return Result{Index: -1}, perrors.Wrap(perrors.ErrCodeCameraUnavailable, camErr, "camera unavailable")
	}

	start := time.Now()
	still, err := f.shoot(ctx, timer)
	if err != nil {
		f.logger.Error("capture failed", "session", f.sess.ID, "error", err)
		observability.Capture().OnCapture(ctx, f.sess.ID, f.Count(), time.Since(start), err)
		return Result{Index: -1}, err
	}

	f.mu.Lock()
	if err := f.sess.Append(still); err != nil {
		f.mu.Unlock()
		return Result{Index: -1}, perrors.Wrap(perrors.ErrCodeSessionComplete, err, "sequence is full")
	}
	snap := f.snapshotLocked()
	f.mu.Unlock()

	res := Result{
		Index:    snap.Count() - 1,
		Count:    snap.Count(),
		Complete: snap.State == session.StateComplete,
	}
	observability.Capture().OnCapture(ctx, snap.ID, res.Count, time.Since(start), nil)
	f.logger.Debug("captured still", "session", snap.ID, "slot", res.Index)

	if err := f.changed(ctx, snap); err != nil {
		return res, err
	}
	if res.Complete {
		observability.Capture().OnComplete(ctx, snap.ID, res.Count)
		return res, f.finalize(ctx, snap)
	}
	return res, nil
}

// RetakePrevious removes the most recent still and reports whether one
// was removed. It does nothing while a capture is in flight or when the
// sequence is empty. A complete flow returns to capturing.
func (f *Flow) RetakePrevious(ctx context.Context) (bool, error) {
	if !f.token.TryAcquire() {
		return false, nil
	}
	defer f.token.Release()

	f.mu.Lock()
	removed := f.sess.RemoveLast()
	snap := f.snapshotLocked()
	f.mu.Unlock()

	if !removed {
		return false, nil
	}
	observability.Capture().OnRetake(ctx, snap.ID, snap.Count())
	return true, f.changed(ctx, snap)
}

// Finish completes the flow with the stills taken so far.
func (f *Flow) Finish(ctx context.Context) error {
	if !f.token.TryAcquire() {
		return ErrBusy
	}
	defer f.token.Release()

	f.mu.Lock()
	if f.sess.Count() == 0 {
		f.mu.Unlock()
		return perrors.New(perrors.ErrCodeNoPhotos, "no photos taken yet")
	}
	f.sess.Finish()
	snap := f.snapshotLocked()
	f.mu.Unlock()

	if err := f.changed(ctx, snap); err != nil {
		return err
	}
	observability.Capture().OnComplete(ctx, snap.ID, snap.Count())
	return f.finalize(ctx, snap)
}

// SetTimer selects the countdown length for later captures.
func (f *Flow) SetTimer(seconds int) error {
	if err := perrors.ValidateTimer(seconds); err != nil {
		return err
	}
	f.mu.Lock()
	f.sess.Timer = seconds
	f.mu.Unlock()
	return nil
}

// Session returns a copy of the session.
func (f *Flow) Session() *session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Count returns the number of stills held.
func (f *Flow) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess.Count()
}

// State returns the capture state.
func (f *Flow) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess.State
}

// Busy reports whether a shutter cycle is running.
func (f *Flow) Busy() bool { return f.token.Held() }

// Countdown returns the seconds left on the running countdown, or 0.
func (f *Flow) Countdown() int { return int(f.countdown.Load()) }

// CameraReady reports whether the camera was acquired.
func (f *Flow) CameraReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *Flow) shoot(ctx context.Context, timer int) (string, error) {
	defer f.tick(0)
	for n := timer; n > 0; n-- {
		f.tick(n)
		if err := f.sleep(ctx, time.Second); err != nil {
			return "", err
		}
	}
	f.tick(0)

	f.feedback.Flash()
	if err := f.feedback.Shutter(); err != nil {
		f.logger.Debug("shutter sound failed", "error", err)
	}

	frame, err := f.cam.Frame(ctx)
	if err != nil {
		return "", perrors.Wrap(perrors.ErrCodeCaptureFailed, err, "grab frame")
	}
	img, err := Process(frame)
	if err != nil {
		return "", perrors.Wrap(perrors.ErrCodeCaptureFailed, err, "process frame")
	}
	still, err := Encode(img)
	if err != nil {
		return "", perrors.Wrap(perrors.ErrCodeCaptureFailed, err, "encode still")
	}
	return still, nil
}

func (f *Flow) tick(n int) {
	if int(f.countdown.Swap(int32(n))) == n {
		return
	}
	f.feedback.Countdown(n)
}

func (f *Flow) changed(ctx context.Context, snap *session.Session) error {
	if f.onChange == nil {
		return nil
	}
	return f.onChange(ctx, snap)
}

func (f *Flow) finalize(ctx context.Context, snap *session.Session) error {
	if f.onComplete == nil {
		return nil
	}
	return f.onComplete(ctx, snap)
}

func (f *Flow) snapshotLocked() *session.Session {
	c := *f.sess
	c.Photos = slices.Clone(f.sess.Photos)
	return &c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
