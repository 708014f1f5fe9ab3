package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sicodev/photobooth/pkg/cache"
	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/share"
)

// shareCommand creates the share command.
func (c *CLI) shareCommand() *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "share <strip.png>",
		Short: "Upload a strip and print its QR code",
		Long: `Upload a rendered strip to a running photobooth service through
POST /api/render and print the retrieval URL as a terminal QR code.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				cfg, err := c.loadConfig()
				if err != nil {
					return err
				}
				serverURL = cfg.Server.BaseURL
			}
			if err := perrors.ValidateURL(serverURL); err != nil {
				return fmt.Errorf("--server: %w", err)
			}
			return c.runShare(cmd.Context(), args[0], serverURL, timeout)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "photobooth service URL (default: server.base_url)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "upload timeout")

	return cmd
}

func (c *CLI) runShare(ctx context.Context, path, serverURL string, timeout time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	link := share.NewLink(share.NewClient(serverURL, timeout), serverURL, loggerFromContext(ctx))

	spinner := newSpinnerWithContext(ctx, "Uploading strip...")
	spinner.Start()
	url, err := link.Get(ctx, cache.Hash(data), data)
	if err != nil {
		spinner.StopWithError(perrors.UserMessage(err))
		return err
	}
	spinner.Stop()

	qr, err := share.Terminal(url)
	if err != nil {
		return err
	}
	fmt.Print(qr)
	printSuccess("Shared")
	printKeyValue("URL", StyleLink.Render(url))
	return nil
}
