package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sicodev/photobooth/internal/config"
	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/pipeline"
	"github.com/sicodev/photobooth/pkg/session"
)

type composeOptions struct {
	sessionID string
	output    string
	refresh   bool
}

// composeCommand creates the compose command.
func (c *CLI) composeCommand() *cobra.Command {
	var opts composeOptions

	cmd := &cobra.Command{
		Use:   "compose [handoff.json]",
		Short: "Render captured photos into a strip",
		Long: `Render a handoff payload into a 500×1500 PNG strip.

The payload is a JSON array of still data URLs, read from the given file,
from stdin with "-", or from a booth session with --session.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			var input string
			if len(args) == 1 {
				input = args[0]
			}
			return c.runCompose(cmd.Context(), cfg, input, opts)
		},
	}

	cmd.Flags().StringVar(&opts.sessionID, "session", "", "render the stills of a booth session")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "photobooth.png", "output file")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ignore cached strips")

	return cmd
}

func (c *CLI) runCompose(ctx context.Context, cfg *config.Config, input string, opts composeOptions) error {
	handoff, err := readHandoff(ctx, input, opts.sessionID)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(cfg)
	if err != nil {
		return err
	}
	defer runner.Close()

	template, err := loadTemplate(cfg)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}

	prog := newProgress(loggerFromContext(ctx))
	spinner := newSpinnerWithContext(ctx, "Rendering strip...")
	spinner.Start()

	res, err := runner.Execute(ctx, pipeline.Options{
		Handoff:  handoff,
		Template: template,
		Refresh:  opts.refresh,
	})
	if err != nil {
		spinner.StopWithError(perrors.UserMessage(err))
		return err
	}
	spinner.Stop()

	if err := writeStrip(opts.output, res.PNG); err != nil {
		return err
	}
	prog.done("Rendered strip")

	printSuccess("Strip saved")
	printRenderStats(res.Stills, len(res.PNG), res.CacheHit)
	printFile(opts.output)
	printNewline()
	printNextStep("Share it", fmt.Sprintf("%s share %s --server http://localhost:3000", appName, opts.output))
	return nil
}

// readHandoff loads the payload from a booth session, stdin or a file.
func readHandoff(ctx context.Context, input, sessionID string) ([]byte, error) {
	if sessionID != "" {
		if err := perrors.ValidateID(sessionID); err != nil {
			return nil, err
		}
		dir, err := stateDir()
		if err != nil {
			return nil, err
		}
		store, err := session.NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		sess, err := store.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, perrors.New(perrors.ErrCodeSessionNotFound, "session %s not found", sessionID)
		}
		return sess.Handoff()
	}

	switch input {
	case "":
		return nil, fmt.Errorf("nothing to render: pass a handoff file, - for stdin, or --session")
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(input)
	}
}
