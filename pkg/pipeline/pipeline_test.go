package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/sicodev/photobooth/pkg/cache"
	"github.com/sicodev/photobooth/pkg/dataurl"
	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/observability"
)

func stillURL(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 43, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 43; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return dataurl.EncodePNG(buf.Bytes())
}

func handoff(t *testing.T, stills ...string) []byte {
	t.Helper()
	data, err := json.Marshal(stills)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newRunner(t *testing.T) (*Runner, *cache.FileCache) {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewRunner(fc, nil, nil), fc
}

func TestExecuteRendersStrip(t *testing.T) {
	r, _ := newRunner(t)
	red := color.RGBA{R: 255, A: 255}

	res, err := r.Execute(context.Background(), Options{
		Handoff: handoff(t, stillURL(t, red), stillURL(t, red)),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Stills != 2 || res.CacheHit {
		t.Errorf("result = stills %d hit %v", res.Stills, res.CacheHit)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(res.PNG))
	if err != nil {
		t.Fatalf("output is not PNG: %v", err)
	}
	if cfg.Width != 500 || cfg.Height != 1500 {
		t.Errorf("strip is %dx%d", cfg.Width, cfg.Height)
	}
}

func TestExecuteNoPhotos(t *testing.T) {
	r, _ := newRunner(t)
	for _, payload := range []string{"", "[]", `[0, ""]`, `{"a":1}`} {
		_, err := r.Execute(context.Background(), Options{Handoff: []byte(payload)})
		if !perrors.Is(err, perrors.ErrCodeNoPhotos) {
			t.Errorf("payload %q: err = %v, want NO_PHOTOS", payload, err)
		}
	}
}

func TestExecuteCachesIdenticalInputs(t *testing.T) {
	r, _ := newRunner(t)
	ctx := context.Background()
	opts := Options{Handoff: handoff(t, stillURL(t, color.White))}

	first, err := r.Execute(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Execute(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit {
		t.Error("second render of identical inputs should hit the cache")
	}
	if first.Hash != second.Hash || !bytes.Equal(first.PNG, second.PNG) {
		t.Error("cached render should match the original")
	}

	opts.Refresh = true
	third, err := r.Execute(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if third.CacheHit {
		t.Error("Refresh should bypass the cache")
	}
}

func TestExecuteHashTracksInputs(t *testing.T) {
	r, _ := newRunner(t)
	ctx := context.Background()
	white, black := stillURL(t, color.White), stillURL(t, color.Black)

	a, _ := r.Execute(ctx, Options{Handoff: handoff(t, white, black)})
	b, _ := r.Execute(ctx, Options{Handoff: handoff(t, black, white)})
	if a == nil || b == nil {
		t.Fatal("Execute failed")
	}
	if a.Hash == b.Hash {
		t.Error("reordered stills must produce a different hash")
	}
}

func TestExecuteLoadFailureProducesNothing(t *testing.T) {
	r, fc := newRunner(t)
	ctx := context.Background()
	good := stillURL(t, color.White)
	bad := dataurl.EncodePNG([]byte("not a png"))

	res, err := r.Execute(ctx, Options{Handoff: handoff(t, good, bad, good)})
	if !perrors.Is(err, perrors.ErrCodeImageLoad) {
		t.Fatalf("err = %v, want IMAGE_LOAD", err)
	}
	if res != nil {
		t.Error("failed render must not return a result")
	}
	if perrors.UserMessage(err) != LoadFailedMessage {
		t.Errorf("message = %q", perrors.UserMessage(err))
	}
	if n, _ := fc.Clear(); n != 0 {
		t.Errorf("failed render cached %d entries", n)
	}
}

func TestExecuteBadTemplate(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.Execute(context.Background(), Options{
		Handoff:  handoff(t, stillURL(t, color.White)),
		Template: []byte("garbage"),
	})
	if !perrors.Is(err, perrors.ErrCodeImageLoad) {
		t.Errorf("err = %v, want IMAGE_LOAD", err)
	}
}

type recordingRenderHooks struct {
	observability.NoopRenderHooks
	mu     sync.Mutex
	starts int
	errs   []error
}

func (h *recordingRenderHooks) OnComposeStart(context.Context, int) {
	h.mu.Lock()
	h.starts++
	h.mu.Unlock()
}

func (h *recordingRenderHooks) OnComposeComplete(_ context.Context, _ int, _ time.Duration, err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func TestExecuteRenderHooks(t *testing.T) {
	hooks := &recordingRenderHooks{}
	observability.SetRenderHooks(hooks)
	defer observability.Reset()

	r := NewRunner(nil, nil, nil)
	ctx := context.Background()
	if _, err := r.Execute(ctx, Options{Handoff: handoff(t, stillURL(t, color.White))}); err != nil {
		t.Fatal(err)
	}
	r.Execute(ctx, Options{Handoff: handoff(t, "data:image/png;base64,AAAA")})

	if hooks.starts != 2 || len(hooks.errs) != 2 {
		t.Fatalf("hooks saw %d starts, %d completes", hooks.starts, len(hooks.errs))
	}
	if hooks.errs[0] != nil || hooks.errs[1] == nil {
		t.Errorf("errs = %v", hooks.errs)
	}
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Load(ctx, nil, []string{stillURL(t, color.White)})
	if !perrors.Is(err, perrors.ErrCodeImageLoad) {
		t.Errorf("err = %v, want IMAGE_LOAD", err)
	}
}
