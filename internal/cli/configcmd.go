package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sicodev/photobooth/internal/config"
)

// configCommand creates the config command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(c.configInitCommand())
	cmd.AddCommand(c.configShowCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(c.configPath())
		},
	})

	return cmd
}

func (c *CLI) configInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented sample configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath()
			if _, err := os.Stat(path); err == nil && !force {
				printWarning("%s already exists", path)
				printNextStep("Overwrite it", appName+" config init --force")
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.Sample()), 0o644); err != nil {
				return err
			}
			printSuccess("Wrote configuration")
			printFile(path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func (c *CLI) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, the file and environment overrides are applied. Secrets are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			fmt.Println(configTable(cfg))
			return nil
		},
	}
}

// configTable renders cfg as a key/value table with secrets masked.
func configTable(cfg *config.Config) string {
	rows := [][]string{
		{"server.addr", cfg.Server.Addr},
		{"server.base_url", cfg.Server.BaseURL},
		{"server.read_timeout", cfg.Server.ReadTimeout.String()},
		{"server.write_timeout", cfg.Server.WriteTimeout.String()},
		{"storage.render_dir", cfg.Storage.RenderDir},
		{"storage.blob_token", mask(cfg.Storage.BlobToken)},
		{"storage.remote_required", strconv.FormatBool(cfg.Storage.RemoteRequired)},
		{"storage.mongo_uri", mask(cfg.Storage.MongoURI)},
		{"storage.max_bytes", strconv.Itoa(cfg.Storage.MaxBytes)},
		{"session.backend", cfg.Session.Backend},
		{"session.redis_addr", cfg.Session.RedisAddr},
		{"session.ttl", cfg.Session.TTL.String()},
		{"render.template", orDefault(cfg.Render.Template, "built-in")},
		{"render.no_cache", strconv.FormatBool(cfg.Render.NoCache)},
		{"capture.timer", strconv.Itoa(cfg.Capture.Timer)},
		{"capture.camera_url", cfg.Capture.CameraURL},
		{"capture.frames_dir", cfg.Capture.FramesDir},
	}

	keyStyle := lipgloss.NewStyle().Foreground(colorGray).PaddingRight(1)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite).PaddingLeft(1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return keyStyle
			}
			return valueStyle
		}).
		Render()
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "…" + secret[len(secret)-2:]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
