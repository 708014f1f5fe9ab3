// Package config loads photobooth settings from an optional TOML file and
// the environment. Environment variables win over the file; defaults fill
// whatever neither sets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/sicodev/photobooth/pkg/storage"
)

// Server contains HTTP listener settings.
type Server struct {
	Addr string `toml:"addr" env:"PHOTOBOOTH_ADDR"`

	// BaseURL makes relative render URLs absolute. When empty the request
	// host is used.
	BaseURL      string        `toml:"base_url" env:"PHOTOBOOTH_BASE_URL"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// Storage contains render persistence settings.
type Storage struct {
	RenderDir      string `toml:"render_dir" env:"PHOTOBOOTH_RENDER_DIR"`
	BlobToken      string `toml:"blob_token" env:"BLOB_READ_WRITE_TOKEN"`
	BlobAPIURL     string `toml:"blob_api_url"`
	RemoteRequired bool   `toml:"remote_required"`
	MongoURI       string `toml:"mongo_uri" env:"PHOTOBOOTH_MONGO_URI"`
	MongoDatabase  string `toml:"mongo_database"`
	MaxBytes       int    `toml:"max_bytes"`

	// Vercel is set on hosted deployments, which have no writable disk.
	// Any non-empty value makes remote storage required.
	Vercel string `toml:"-" env:"VERCEL"`
}

// Session contains capture session storage settings.
type Session struct {
	Backend       string        `toml:"backend" env:"PHOTOBOOTH_SESSION_BACKEND"`
	Dir           string        `toml:"dir"`
	RedisAddr     string        `toml:"redis_addr" env:"PHOTOBOOTH_REDIS_ADDR"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	TTL           time.Duration `toml:"ttl"`
}

// Render contains composite settings.
type Render struct {
	// Template is a PNG overlay; empty selects the built-in frame.
	Template string `toml:"template" env:"PHOTOBOOTH_TEMPLATE"`
	CacheDir string `toml:"cache_dir"`
	NoCache  bool   `toml:"no_cache"`
}

// Capture contains booth camera settings.
type Capture struct {
	Timer     int    `toml:"timer"`
	CameraURL string `toml:"camera_url" env:"PHOTOBOOTH_CAMERA_URL"`
	FramesDir string `toml:"frames_dir"`
}

// Config encapsulates all configuration values for the photobooth.
//
// Configuration sections by subsystem:
//   - Server: HTTP listener and public base URL
//   - Storage: where rendered strips are persisted
//   - Session: where in-progress capture sessions live
//   - Render: template overlay and artifact cache
//   - Capture: booth camera source and countdown
type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Session Session `toml:"session"`
	Render  Render  `toml:"render"`
	Capture Capture `toml:"capture"`
}

// Session backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:         ":3000",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: Storage{
			RenderDir:     filepath.Join("public", "renders"),
			BlobAPIURL:    storage.DefaultBlobAPI,
			MongoDatabase: "photobooth",
			MaxBytes:      storage.MaxBytes,
		},
		Session: Session{
			Backend: BackendMemory,
			TTL:     2 * time.Hour,
		},
		Capture: Capture{
			Timer: 3,
		},
	}
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "photobooth", "config.toml")
	}
	return "photobooth.toml"
}

// Load reads path (or the default location when path is empty), applies
// environment overrides and validates the result. A missing file is not
// an error; the returned bool reports whether one was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	exists := true
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("parse config %s: %w", path, err)
		}
		if explicit {
			return nil, false, fmt.Errorf("config file not found: %s", path)
		}
		exists = false
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, false, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

func (c *Config) normalize() error {
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if c.Storage.Vercel != "" {
		c.Storage.RemoteRequired = true
	}

	for _, p := range []*string{&c.Storage.RenderDir, &c.Session.Dir, &c.Render.Template, &c.Render.CacheDir, &c.Capture.FramesDir} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// RemoteConfigured reports whether a remote render store is configured.
func (c *Config) RemoteConfigured() bool {
	return c.Storage.BlobToken != "" || c.Storage.MongoURI != ""
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
