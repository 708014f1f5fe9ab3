package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sicodev/photobooth/internal/config"
	"github.com/sicodev/photobooth/pkg/buildinfo"
	"github.com/sicodev/photobooth/pkg/cache"
	"github.com/sicodev/photobooth/pkg/composite"
	"github.com/sicodev/photobooth/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "photobooth"

	// redisKeyPrefix scopes cache keys shared with the session store.
	redisKeyPrefix = "photobooth:"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// ConfigPath is set by the --config flag; empty uses the default
	// location.
	ConfigPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Photobooth captures four-photo strips",
		Long: `Photobooth runs a four-shot photo booth: a countdown capture flow, a
composite renderer that lays the stills into a decorated strip, and an
HTTP service that stores rendered strips and serves them back.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.ConfigPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.boothCommand())
	root.AddCommand(c.composeCommand())
	root.AddCommand(c.shareCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the configuration selected by --config.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, found, err := config.Load(c.ConfigPath)
	if err != nil {
		return nil, err
	}
	if found {
		c.Logger.Debug("loaded config", "path", c.configPath())
	}
	return cfg, nil
}

func (c *CLI) configPath() string {
	if c.ConfigPath != "" {
		return c.ConfigPath
	}
	return config.DefaultConfigPath()
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(cfg *config.Config) (*pipeline.Runner, error) {
	fc, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	if fc == nil {
		return pipeline.NewRunner(nil, nil, c.Logger), nil
	}
	return pipeline.NewRunner(fc, nil, c.Logger), nil
}

// newCache returns the artifact cache: none when disabled, otherwise the
// configured directory or the XDG cache directory.
func newCache(cfg *config.Config) (*cache.FileCache, error) {
	if cfg.Render.NoCache {
		return nil, nil
	}
	dir := cfg.Render.CacheDir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			return nil, nil
		}
	}
	return cache.NewFileCache(dir)
}

// sharedCache returns the cache for the HTTP service. Instances that share
// sessions through Redis also share rendered artifacts there.
func (c *CLI) sharedCache(ctx context.Context, cfg *config.Config) (cache.Cache, cache.Keyer, error) {
	if cfg.Render.NoCache {
		return cache.NewNullCache(), nil, nil
	}
	if cfg.Session.Backend == config.BackendRedis {
		rc, err := cache.DialRedisCache(ctx, &redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return rc, cache.NewScopedKeyer(cache.NewDefaultKeyer(), redisKeyPrefix), nil
	}
	fc, err := newCache(cfg)
	if err != nil {
		return nil, nil, err
	}
	if fc == nil {
		return cache.NewNullCache(), nil, nil
	}
	return fc, nil, nil
}

// loadTemplate reads the configured overlay. Nil selects the built-in frame.
func loadTemplate(cfg *config.Config) ([]byte, error) {
	if cfg.Render.Template == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.Render.Template)
	if err != nil {
		return nil, err
	}
	if _, err := composite.DecodeBytes(data); err != nil {
		return nil, err
	}
	return data, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/photobooth/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// stateDir returns the directory the booth keeps session files in.
func stateDir() (string, error) {
	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
		return filepath.Join(stateHome, appName, "sessions"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", appName, "sessions"), nil
}
