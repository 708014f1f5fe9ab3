package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sicodev/photobooth/internal/config"
	"github.com/sicodev/photobooth/pkg/cache"
	"github.com/sicodev/photobooth/pkg/capture"
	"github.com/sicodev/photobooth/pkg/composite"
)

func newTestCLI(t *testing.T, cfgBody string) (*CLI, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))

	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(io.Discard, LogInfo)
	c.ConfigPath = cfgPath
	return c, dir
}

func execute(t *testing.T, c *CLI, args ...string) error {
	t.Helper()
	cfgPath := c.ConfigPath
	root := c.RootCommand()
	root.SetArgs(append(args, "--config", cfgPath))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func stillDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{30, uint8(y / 2), 200, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	still, err := capture.ProcessFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	return still
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	for _, name := range []string{"serve", "booth", "compose", "share", "cache", "config", "completion"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestComposeCommandWritesStrip(t *testing.T) {
	c, dir := newTestCLI(t, "")

	still := stillDataURL(t)
	payload, _ := json.Marshal([]string{still, still, still})
	input := filepath.Join(dir, "handoff.json")
	if err := os.WriteFile(input, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out", "strip.png")

	if err := execute(t, c, "compose", input, "-o", out); err != nil {
		t.Fatalf("compose: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("strip not written: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("strip is not a PNG: %v", err)
	}
	if cfg.Width != composite.Width || cfg.Height != composite.Height {
		t.Errorf("strip is %dx%d", cfg.Width, cfg.Height)
	}
}

func TestComposeCommandNoPhotos(t *testing.T) {
	c, dir := newTestCLI(t, "")
	input := filepath.Join(dir, "empty.json")
	os.WriteFile(input, []byte("[]"), 0o644)

	err := execute(t, c, "compose", input, "-o", filepath.Join(dir, "strip.png"))
	if err == nil {
		t.Fatal("empty handoff should fail")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "strip.png")); statErr == nil {
		t.Error("no strip should be written for an empty handoff")
	}
}

func TestComposeCommandNeedsInput(t *testing.T) {
	c, _ := newTestCLI(t, "")
	if err := execute(t, c, "compose"); err == nil {
		t.Error("compose without input should fail")
	}
}

func TestCacheClearCommand(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "strips")
	c, _ := newTestCLI(t, fmt.Sprintf("[render]\ncache_dir = %q\n", cacheDir))

	fc, err := cache.NewFileCache(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, k := range []string{"a", "b"} {
		fc.Set(ctx, k, []byte(k), time.Hour)
	}

	if err := execute(t, c, "cache", "clear"); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	if _, hit, _ := fc.Get(ctx, "a"); hit {
		t.Error("cache clear should remove entries")
	}
}

func TestConfigInitCommand(t *testing.T) {
	dir := t.TempDir()
	c := New(io.Discard, LogInfo)
	c.ConfigPath = filepath.Join(dir, "nested", "config.toml")

	root := c.RootCommand()
	root.SetArgs([]string{"config", "init", "--config", c.ConfigPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	cfg, found, err := config.Load(c.ConfigPath)
	if err != nil || !found {
		t.Fatalf("written config does not load: found %v err %v", found, err)
	}
	if cfg.Server.Addr != config.Default().Server.Addr {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestConfigTableMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.BlobToken = "vercel_blob_rw_secret_token_42"

	out := configTable(&cfg)
	if strings.Contains(out, "vercel_blob_rw_secret_token_42") {
		t.Error("blob token should be masked")
	}
	if !strings.Contains(out, "storage.render_dir") {
		t.Error("table should list storage.render_dir")
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"short":            "********",
		"abcdefghijklmnop": "abcd…op",
	}
	for in, want := range tests {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewStorageServiceLocalOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.RenderDir = t.TempDir()

	svc, closeFn, err := newStorageService(context.Background(), &cfg, New(io.Discard, LogInfo))
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if svc.Backend() != "local" {
		t.Errorf("backend = %q, want local", svc.Backend())
	}
	if err := svc.Ready(); err != nil {
		t.Errorf("Ready: %v", err)
	}
}

func TestNewStorageServiceRemoteRequired(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.RemoteRequired = true

	svc, closeFn, err := newStorageService(context.Background(), &cfg, New(io.Discard, LogInfo))
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if err := svc.Ready(); err == nil {
		t.Error("remote required without a remote store should not be ready")
	}
}

func TestNewSessionStoreBackends(t *testing.T) {
	cfg := config.Default()
	store, err := newSessionStore(context.Background(), &cfg)
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	cfg.Session.Backend = config.BackendFile
	cfg.Session.Dir = t.TempDir()
	store, err = newSessionStore(context.Background(), &cfg)
	if err != nil {
		t.Fatal(err)
	}
	store.Close()
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	h := &logHooks{logger: newLogger(&buf, LogInfo)}
	ctx := context.Background()

	h.OnCacheHit(ctx, "composite")
	if buf.Len() != 0 {
		t.Error("routine events should log at debug")
	}

	h.OnFallback(ctx, "blob", "local", errors.New("503"))
	if !strings.Contains(buf.String(), "storage fallback") {
		t.Errorf("fallback should be logged, got %q", buf.String())
	}
}
