package config

import (
	"fmt"

	perrors "github.com/sicodev/photobooth/pkg/errors"
)

// Validate ensures the configuration is usable. A remote-required
// deployment without remote credentials is allowed to start: the
// persistence endpoint reports the problem per request.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return perrors.New(perrors.ErrCodeConfig, "server.addr must be set")
	}
	if c.Server.BaseURL != "" {
		if err := perrors.ValidateURL(c.Server.BaseURL); err != nil {
			return perrors.Wrap(perrors.ErrCodeConfig, err, "server.base_url")
		}
	}
	if err := perrors.ValidatePath(c.Storage.RenderDir); err != nil {
		return perrors.Wrap(perrors.ErrCodeConfig, err, "storage.render_dir")
	}
	if c.Storage.MaxBytes <= 0 {
		return perrors.New(perrors.ErrCodeConfig, "storage.max_bytes must be positive")
	}
	if c.Storage.BlobToken != "" {
		if err := perrors.ValidateURL(c.Storage.BlobAPIURL); err != nil {
			return perrors.Wrap(perrors.ErrCodeConfig, err, "storage.blob_api_url")
		}
	}

	switch c.Session.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if c.Session.RedisAddr == "" {
			return perrors.New(perrors.ErrCodeConfig, "session.redis_addr is required for the redis backend")
		}
	default:
		return perrors.New(perrors.ErrCodeConfig, "session.backend must be memory, file or redis, got %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return perrors.New(perrors.ErrCodeConfig, "session.ttl must be positive")
	}

	if err := perrors.ValidateTimer(c.Capture.Timer); err != nil {
		return perrors.Wrap(perrors.ErrCodeConfig, err, "capture.timer")
	}
	if c.Capture.CameraURL != "" {
		if err := perrors.ValidateURL(c.Capture.CameraURL); err != nil {
			return perrors.Wrap(perrors.ErrCodeConfig, err, "capture.camera_url")
		}
	}
	return nil
}

// Sample is a commented configuration file with the defaults.
func Sample() string {
	d := Default()
	return fmt.Sprintf(`# photobooth configuration

[server]
addr = %q
# base_url = "https://booth.example.com"
read_timeout = %q
write_timeout = %q

[storage]
render_dir = %q
# blob_token = ""        # or BLOB_READ_WRITE_TOKEN
# remote_required = false
# mongo_uri = "mongodb://localhost:27017"
mongo_database = %q
max_bytes = %d

[session]
backend = %q           # memory, file or redis
# redis_addr = "localhost:6379"
ttl = %q

[render]
# template = "layout.png"
# cache_dir = "~/.cache/photobooth"
no_cache = false

[capture]
timer = %d
# camera_url = "http://camera.local/snapshot.jpg"
# frames_dir = "./frames"
`,
		d.Server.Addr, d.Server.ReadTimeout, d.Server.WriteTimeout,
		d.Storage.RenderDir, d.Storage.MongoDatabase, d.Storage.MaxBytes,
		d.Session.Backend, d.Session.TTL,
		d.Capture.Timer)
}
