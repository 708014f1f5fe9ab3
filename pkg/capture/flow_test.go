package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/session"
)

type fakeCamera struct {
	mu       sync.Mutex
	startErr error
	frameErr error
	frames   int
	stops    int
}

func (c *fakeCamera) Start(context.Context) error { return c.startErr }

func (c *fakeCamera) Frame(context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frameErr != nil {
		return nil, c.frameErr
	}
	c.frames++
	return splitFrame(640, 480), nil
}

func (c *fakeCamera) Stop() error {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	return nil
}

type recordingFeedback struct {
	mu         sync.Mutex
	ticks      []int
	flashes    int
	shutterErr error
}

func (r *recordingFeedback) Countdown(n int) {
	r.mu.Lock()
	r.ticks = append(r.ticks, n)
	r.mu.Unlock()
}

func (r *recordingFeedback) Flash() {
	r.mu.Lock()
	r.flashes++
	r.mu.Unlock()
}

func (r *recordingFeedback) Shutter() error { return r.shutterErr }

func noSleep(context.Context, time.Duration) error { return nil }

type flowHarness struct {
	flow      *Flow
	cam       *fakeCamera
	fb        *recordingFeedback
	changes   []*session.Session
	completes []*session.Session
}

func newHarness(t *testing.T, opts Options) *flowHarness {
	t.Helper()
	sess, err := session.New(3, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	h := &flowHarness{cam: &fakeCamera{}, fb: &recordingFeedback{}}
	if opts.Sleep == nil {
		opts.Sleep = noSleep
	}
	opts.Feedback = h.fb
	opts.OnChange = func(_ context.Context, s *session.Session) error {
		h.changes = append(h.changes, s)
		return nil
	}
	opts.OnComplete = func(_ context.Context, s *session.Session) error {
		h.completes = append(h.completes, s)
		return nil
	}
	h.flow = NewFlow(h.cam, sess, opts)
	if err := h.flow.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { h.flow.Close() })
	return h
}

func TestFlowFillsSequenceAndCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	for i := 0; i < session.MaxPhotos; i++ {
		res, err := h.flow.TakePhoto(ctx)
		if err != nil {
			t.Fatalf("TakePhoto %d: %v", i, err)
		}
		if res.Index != i || res.Count != i+1 {
			t.Errorf("TakePhoto %d = %+v", i, res)
		}
		if res.Complete != (i == session.MaxPhotos-1) {
			t.Errorf("TakePhoto %d Complete = %v", i, res.Complete)
		}
	}

	if h.flow.State() != session.StateComplete {
		t.Errorf("State = %s, want complete", h.flow.State())
	}
	if len(h.completes) != 1 {
		t.Fatalf("OnComplete called %d times, want 1", len(h.completes))
	}
	if got := h.completes[0].Count(); got != session.MaxPhotos {
		t.Errorf("handoff holds %d stills", got)
	}
	if len(h.changes) != session.MaxPhotos {
		t.Errorf("OnChange called %d times", len(h.changes))
	}
	if h.fb.flashes != session.MaxPhotos {
		t.Errorf("flashes = %d", h.fb.flashes)
	}
}

func TestFlowCountdownTicks(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.flow.SetTimer(5); err != nil {
		t.Fatal(err)
	}
	if _, err := h.flow.TakePhoto(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []int{5, 4, 3, 2, 1, 0}
	if len(h.fb.ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", h.fb.ticks, want)
	}
	for i := range want {
		if h.fb.ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", h.fb.ticks, want)
		}
	}
	if h.flow.Countdown() != 0 {
		t.Errorf("Countdown after capture = %d", h.flow.Countdown())
	}
}

func TestFlowTakePhotoWhenCompleteRefinalizes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	for i := 0; i < session.MaxPhotos; i++ {
		if _, err := h.flow.TakePhoto(ctx); err != nil {
			t.Fatal(err)
		}
	}
	frames := h.cam.frames

	res, err := h.flow.TakePhoto(ctx)
	if err != nil {
		t.Fatalf("TakePhoto on complete flow: %v", err)
	}
	if res.Index != -1 || !res.Complete || res.Count != session.MaxPhotos {
		t.Errorf("result = %+v", res)
	}
	if h.cam.frames != frames {
		t.Error("complete flow must not grab another frame")
	}
	if len(h.completes) != 2 {
		t.Errorf("OnComplete called %d times, want 2", len(h.completes))
	}
}

func TestFlowRejectsConcurrentCapture(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h := newHarness(t, Options{
		Sleep: func(context.Context, time.Duration) error {
			once.Do(func() { close(entered) })
			<-release
			return nil
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.flow.TakePhoto(ctx)
		done <- err
	}()
	<-entered

	if !h.flow.Busy() {
		t.Error("Busy should report the running capture")
	}
	if _, err := h.flow.TakePhoto(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("second TakePhoto err = %v, want ErrBusy", err)
	}
	if removed, err := h.flow.RetakePrevious(ctx); removed || err != nil {
		t.Errorf("RetakePrevious during capture = %v, %v", removed, err)
	}
	if err := h.flow.Finish(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("Finish during capture err = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first TakePhoto: %v", err)
	}
	if h.flow.Count() != 1 {
		t.Errorf("Count = %d, want 1", h.flow.Count())
	}
}

func TestFlowRetakePrevious(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	if removed, _ := h.flow.RetakePrevious(ctx); removed {
		t.Error("retake on empty sequence should be a no-op")
	}

	for i := 0; i < session.MaxPhotos; i++ {
		if _, err := h.flow.TakePhoto(ctx); err != nil {
			t.Fatal(err)
		}
	}
	first := h.flow.Session().Photos[0]

	removed, err := h.flow.RetakePrevious(ctx)
	if err != nil || !removed {
		t.Fatalf("RetakePrevious = %v, %v", removed, err)
	}
	if h.flow.State() != session.StateCapturing {
		t.Errorf("State = %s, want capturing", h.flow.State())
	}
	last := h.changes[len(h.changes)-1]
	if last.Count() != session.MaxPhotos-1 || last.Photos[0] != first {
		t.Errorf("handoff after retake holds %d stills", last.Count())
	}

	for h.flow.Count() > 0 {
		if _, err := h.flow.RetakePrevious(ctx); err != nil {
			t.Fatal(err)
		}
	}
	last = h.changes[len(h.changes)-1]
	if payload, _ := last.Handoff(); payload != nil {
		t.Errorf("handoff should be cleared, got %s", payload)
	}
}

func TestFlowFinishEarly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	if err := h.flow.Finish(ctx); !perrors.Is(err, perrors.ErrCodeNoPhotos) {
		t.Errorf("Finish with no stills err = %v, want NO_PHOTOS", err)
	}

	if _, err := h.flow.TakePhoto(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.flow.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if h.flow.State() != session.StateComplete {
		t.Errorf("State = %s", h.flow.State())
	}
	if len(h.completes) != 1 || h.completes[0].Count() != 1 {
		t.Errorf("partial handoff not delivered: %d", len(h.completes))
	}
}

func TestFlowCaptureFailureReleasesToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.cam.frameErr = errors.New("sensor unplugged")

	if _, err := h.flow.TakePhoto(ctx); !perrors.Is(err, perrors.ErrCodeCaptureFailed) {
		t.Fatalf("err = %v, want CAPTURE_FAILED", err)
	}
	if h.flow.Count() != 0 || h.flow.Busy() {
		t.Errorf("failed capture left count %d busy %v", h.flow.Count(), h.flow.Busy())
	}

	h.cam.frameErr = nil
	if _, err := h.flow.TakePhoto(ctx); err != nil {
		t.Errorf("TakePhoto after failure: %v", err)
	}
}

func TestFlowShutterErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, Options{})
	h.fb.shutterErr = errors.New("no audio device")

	if _, err := h.flow.TakePhoto(context.Background()); err != nil {
		t.Errorf("TakePhoto with broken shutter sound: %v", err)
	}
}

func TestFlowCancelDuringCountdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, Options{Sleep: sleepContext})
	cancel()

	if _, err := h.flow.TakePhoto(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if h.flow.Count() != 0 {
		t.Error("cancelled capture must not append")
	}
}

func TestFlowCameraUnavailable(t *testing.T) {
	sess, _ := session.New(3, time.Hour)
	cam := &fakeCamera{startErr: errors.New("permission denied")}
	flow := NewFlow(cam, sess, Options{Sleep: noSleep})

	if err := flow.Start(context.Background()); !perrors.Is(err, perrors.ErrCodeCameraUnavailable) {
		t.Errorf("Start err = %v", err)
	}
	if flow.CameraReady() {
		t.Error("CameraReady should be false")
	}
	if _, err := flow.TakePhoto(context.Background()); !perrors.Is(err, perrors.ErrCodeCameraUnavailable) {
		t.Errorf("TakePhoto err = %v, want CAMERA_UNAVAILABLE", err)
	}
	if err := flow.Close(); err != nil || cam.stops != 0 {
		t.Errorf("Close of unacquired camera: err %v stops %d", err, cam.stops)
	}
}

func TestFlowSetTimer(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.flow.SetTimer(7); !perrors.Is(err, perrors.ErrCodeInvalidTimer) {
		t.Errorf("SetTimer(7) err = %v", err)
	}
	if err := h.flow.SetTimer(10); err != nil {
		t.Errorf("SetTimer(10): %v", err)
	}
	if got := h.flow.Session().Timer; got != 10 {
		t.Errorf("Timer = %d", got)
	}
}

func TestFlowCloseReleasesCameraOnce(t *testing.T) {
	h := newHarness(t, Options{})
	h.flow.Close()
	h.flow.Close()
	if h.cam.stops != 1 {
		t.Errorf("Stop called %d times, want 1", h.cam.stops)
	}
}

func TestFlowReleasesCameraOnContextCancel(t *testing.T) {
	sess, _ := session.New(3, time.Hour)
	cam := &fakeCamera{}
	flow := NewFlow(cam, sess, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	if err := flow.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for flow.CameraReady() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if flow.CameraReady() {
		t.Error("camera should be released after cancel")
	}
}
