package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sicodev/photobooth/pkg/capture"
	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/pipeline"
	"github.com/sicodev/photobooth/pkg/session"
	"github.com/sicodev/photobooth/pkg/share"
)

// boothCommand creates the booth command.
func (c *CLI) boothCommand() *cobra.Command {
	var (
		cameraURL string
		framesDir string
		output    string
		serverURL string
		timer     int
	)

	cmd := &cobra.Command{
		Use:   "booth",
		Short: "Run the capture booth in the terminal",
		Long: `Run the four-shot capture flow in the terminal.

Frames come from an HTTP snapshot camera (--camera-url) or a directory of
images (--frames). Each shot counts down, flashes and rings the terminal
bell. When four stills are taken the strip is rendered to --output; with
--server the strip can be uploaded and shown as a QR code.

Keys: space take photo · backspace retake previous · tab focus timer
      (space/enter then cycles 3/5/10s) · f finish early · s share · r retry share · q quit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cameraURL == "" {
				cameraURL = cfg.Capture.CameraURL
			}
			if framesDir == "" {
				framesDir = cfg.Capture.FramesDir
			}
			if timer == 0 {
				timer = cfg.Capture.Timer
			}

			var cam capture.Camera
			switch {
			case cameraURL != "":
				if err := perrors.ValidateURL(cameraURL); err != nil {
					return err
				}
				cam = capture.NewSnapshotCamera(cameraURL, 10*time.Second)
			case framesDir != "":
				cam = capture.NewDirCamera(framesDir)
			default:
				return fmt.Errorf("no camera: set --camera-url or --frames")
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

			return c.runBooth(cmd.Context(), boothOptions{
				camera:    cam,
				runner:    runner,
				template:  template,
				output:    output,
				serverURL: serverURL,
				timer:     timer,
				ttl:       cfg.Session.TTL,
			})
		},
	}

	cmd.Flags().StringVar(&cameraURL, "camera-url", "", "HTTP snapshot camera URL")
	cmd.Flags().StringVar(&framesDir, "frames", "", "directory of frames to cycle through")
	cmd.Flags().StringVarP(&output, "output", "o", "photobooth.png", "where to write the strip")
	cmd.Flags().StringVar(&serverURL, "server", "", "photobooth service URL for sharing")
	cmd.Flags().IntVarP(&timer, "timer", "t", 0, "countdown seconds (3, 5 or 10)")

	return cmd
}

type boothOptions struct {
	camera    capture.Camera
	runner    *pipeline.Runner
	template  []byte
	output    string
	serverURL string
	timer     int
	ttl       time.Duration
}

func (c *CLI) runBooth(ctx context.Context, opts boothOptions) error {
	if err := perrors.ValidateTimer(opts.timer); err != nil {
		return err
	}

	dir, err := stateDir()
	if err != nil {
		return err
	}
	store, err := session.NewFileStore(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	// The TUI owns the terminal; logs go to a file next to the sessions.
	logFile, err := os.OpenFile(filepath.Join(dir, "booth.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := newLogger(logFile, c.Logger.GetLevel())
	installLogHooks(logger)

	sess, err := session.New(opts.timer, opts.ttl)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, sess); err != nil {
		return err
	}

	fb := &teaFeedback{bell: os.Stderr}
	flow := capture.NewFlow(opts.camera, sess, capture.Options{
		Feedback: fb,
		Logger:   logger,
		OnChange: func(ctx context.Context, s *session.Session) error {
			return store.Set(ctx, s)
		},
		OnComplete: func(ctx context.Context, s *session.Session) error {
			logger.Info("handoff", "session", s.ID, "photos", s.Count())
			return store.Set(ctx, s)
		},
	})
	camErr := flow.Start(ctx)
	defer flow.Close()

	var link *share.Link
	if opts.serverURL != "" {
		link = share.NewLink(share.NewClient(opts.serverURL, 30*time.Second), opts.serverURL, logger)
	}

	m := newBoothModel(ctx, flow, opts.runner, opts.template, opts.output, link)
	if camErr != nil {
		m.status = perrors.UserMessage(camErr)
	}

	p := tea.NewProgram(m, tea.WithContext(ctx))
	fb.send = p.Send
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	if bm, ok := final.(boothModel); ok && bm.result != nil {
		printSuccess("Strip saved")
		printFile(bm.output)
		if bm.shareURL != "" {
			printKeyValue("Share", StyleLink.Render(bm.shareURL))
		}
	}
	return ctx.Err()
}

// =============================================================================
// Feedback
// =============================================================================

// teaFeedback forwards countdown and flash events to the TUI and rings the
// terminal bell as the shutter sound.
type teaFeedback struct {
	send func(tea.Msg)
	bell io.Writer
}

func (f *teaFeedback) Countdown(n int) {
	if f.send != nil {
		f.send(countdownMsg(n))
	}
}

func (f *teaFeedback) Flash() {
	if f.send != nil {
		f.send(flashMsg{})
	}
}

func (f *teaFeedback) Shutter() error {
	_, err := io.WriteString(f.bell, "\a")
	return err
}

// =============================================================================
// Messages
// =============================================================================

type (
	countdownMsg int
	flashMsg     struct{}
	flashOffMsg  struct{}

	captureMsg struct {
		res capture.Result
		err error
	}
	retakeMsg struct {
		removed bool
		err     error
	}
	finishMsg struct{ err error }
	renderMsg struct {
		res *pipeline.Result
		err error
	}
	shareMsg struct {
		url string
		qr  string
		err error
	}
)

const flashDuration = 150 * time.Millisecond

// =============================================================================
// boothModel
// =============================================================================

// boothModel is the bubbletea model of the terminal booth.
// boothFocus is the control that receives space and enter.
type boothFocus int

const (
	focusShutter boothFocus = iota
	focusTimer
)

type boothModel struct {
	ctx      context.Context
	flow     *capture.Flow
	runner   *pipeline.Runner
	template []byte
	output   string
	link     *share.Link

	focus     boothFocus
	countdown int
	flash     bool
	busy      bool
	status    string

	rendering   bool
	result      *pipeline.Result
	sharing     bool
	shareURL    string
	qr          string
	shareFailed bool
}

func newBoothModel(ctx context.Context, flow *capture.Flow, runner *pipeline.Runner, template []byte, output string, link *share.Link) boothModel {
	return boothModel{
		ctx:      ctx,
		flow:     flow,
		runner:   runner,
		template: template,
		output:   output,
		link:     link,
	}
}

func (m boothModel) Init() tea.Cmd {
	return nil
}

func (m boothModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case countdownMsg:
		m.countdown = int(msg)
		return m, nil

	case flashMsg:
		m.flash = true
		return m, tea.Tick(flashDuration, func(time.Time) tea.Msg { return flashOffMsg{} })

	case flashOffMsg:
		m.flash = false
		return m, nil

	case captureMsg:
		m.busy = false
		m.countdown = 0
		if msg.err != nil {
			if !errors.Is(msg.err, capture.ErrBusy) {
				m.status = perrors.UserMessage(msg.err)
			}
			return m, nil
		}
		m.status = ""
		if msg.res.Complete {
			return m.startRender()
		}
		return m, nil

	case retakeMsg:
		if msg.err != nil {
			m.status = perrors.UserMessage(msg.err)
		} else if msg.removed {
			m.clearResult()
			m.status = "Retaking the previous photo."
		}
		return m, nil

	case finishMsg:
		m.busy = false
		if msg.err != nil {
			m.status = perrors.UserMessage(msg.err)
			return m, nil
		}
		return m.startRender()

	case renderMsg:
		m.rendering = false
		if msg.err != nil {
			m.status = perrors.UserMessage(msg.err)
			return m, nil
		}
		m.result = msg.res
		m.status = ""
		return m, nil

	case shareMsg:
		m.sharing = false
		if msg.err != nil {
			m.shareFailed = true
			m.status = perrors.UserMessage(msg.err)
			return m, nil
		}
		m.shareFailed = false
		m.shareURL = msg.url
		m.qr = msg.qr
		m.status = ""
		return m, nil
	}
	return m, nil
}

func (m boothModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case " ", "enter":
		if m.focus == focusTimer {
			return m.cycleTimer(), nil
		}
		if m.busy || m.rendering {
			return m, nil
		}
		m.busy = true
		return m, m.takePhoto()

	case "backspace":
		if m.busy || m.rendering {
			return m, nil
		}
		return m, m.retake()

	case "tab", "shift+tab":
		if m.focus == focusShutter {
			m.focus = focusTimer
		} else {
			m.focus = focusShutter
		}
		return m, nil

	case "f":
		if m.busy || m.rendering || m.flow.State() == session.StateComplete {
			return m, nil
		}
		m.busy = true
		return m, m.finish()

	case "s":
		if m.result == nil || m.link == nil || m.sharing || m.shareFailed || m.shareURL != "" {
			return m, nil
		}
		m.sharing = true
		return m, m.share(false)

	case "r":
		if !m.shareFailed || m.sharing || m.result == nil {
			return m, nil
		}
		m.sharing = true
		return m, m.share(true)
	}
	return m, nil
}

// cycleTimer moves the countdown to the next allowed value. The timer is
// fixed while a capture runs.
func (m boothModel) cycleTimer() boothModel {
	if m.busy {
		return m
	}
	if err := m.flow.SetTimer(nextTimer(m.flow.Session().Timer)); err != nil {
		m.status = perrors.UserMessage(err)
	}
	return m
}

func (m *boothModel) clearResult() {
	m.result = nil
	m.shareURL = ""
	m.qr = ""
	m.shareFailed = false
	if m.link != nil {
		m.link.Reset()
	}
}

func (m boothModel) startRender() (tea.Model, tea.Cmd) {
	m.rendering = true
	m.status = "Developing your strip..."
	return m, m.render()
}

func (m boothModel) takePhoto() tea.Cmd {
	return func() tea.Msg {
		res, err := m.flow.TakePhoto(m.ctx)
		return captureMsg{res: res, err: err}
	}
}

func (m boothModel) retake() tea.Cmd {
	return func() tea.Msg {
		removed, err := m.flow.RetakePrevious(m.ctx)
		return retakeMsg{removed: removed, err: err}
	}
}

func (m boothModel) finish() tea.Cmd {
	return func() tea.Msg {
		return finishMsg{err: m.flow.Finish(m.ctx)}
	}
}

func (m boothModel) render() tea.Cmd {
	return func() tea.Msg {
		handoff, err := m.flow.Session().Handoff()
		if err != nil {
			return renderMsg{err: err}
		}
		res, err := m.runner.Execute(m.ctx, pipeline.Options{
			Handoff:  handoff,
			Template: m.template,
		})
		if err != nil {
			return renderMsg{err: err}
		}
		if err := writeStrip(m.output, res.PNG); err != nil {
			return renderMsg{err: err}
		}
		return renderMsg{res: res}
	}
}

func (m boothModel) share(retry bool) tea.Cmd {
	res := m.result
	return func() tea.Msg {
		get := m.link.Get
		if retry {
			get = m.link.Retry
		}
		url, err := get(m.ctx, res.Hash, res.PNG)
		if err != nil {
			return shareMsg{err: err}
		}
		qr, err := share.Terminal(url)
		if err != nil {
			return shareMsg{err: perrors.Wrap(perrors.ErrCodeUploadFailed, err, share.FailedMessage)}
		}
		return shareMsg{url: url, qr: qr}
	}
}

func writeStrip(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// nextTimer cycles through the supported countdowns.
func nextTimer(current int) int {
	i := slices.Index(perrors.Timers, current)
	return perrors.Timers[(i+1)%len(perrors.Timers)]
}

// =============================================================================
// View
// =============================================================================

var (
	boothFrameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan).
			Padding(1, 3)
	boothFlashStyle = boothFrameStyle.
			BorderForeground(colorWhite).
			Background(colorWhite).
			Foreground(lipgloss.Color("0"))
	boothCountStyle = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	slotFullStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	slotEmptyStyle  = lipgloss.NewStyle().Foreground(colorDim)
	focusedStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
)

func (m boothModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("PHOTOBOOTH"))
	b.WriteString("\n\n")

	sess := m.flow.Session()
	slots := make([]string, session.MaxPhotos)
	for i := range slots {
		if i < sess.Count() {
			slots[i] = slotFullStyle.Render("■")
		} else {
			slots[i] = slotEmptyStyle.Render("□")
		}
	}
	b.WriteString(strings.Join(slots, " "))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %d/%d  ", sess.Count(), session.MaxPhotos)))
	b.WriteString(m.controls(sess.Timer))
	b.WriteString("\n\n")

	switch {
	case m.countdown > 0:
		b.WriteString(boothCountStyle.Render(fmt.Sprintf("%d", m.countdown)))
	case m.busy:
		b.WriteString(StyleDim.Render("Smile!"))
	case !m.flow.CameraReady() && m.result == nil:
		b.WriteString(StyleWarning.Render("No camera"))
	case m.result != nil:
		b.WriteString(StyleSuccess.Render(iconSuccess + " Strip ready: " + m.output))
	case sess.State == session.StateComplete:
		b.WriteString(StyleDim.Render("All photos taken."))
	case m.focus == focusTimer:
		b.WriteString(StyleValue.Render("Press space to change the timer"))
	default:
		b.WriteString(StyleValue.Render("Press space to take a photo"))
	}
	b.WriteString("\n")

	if m.shareURL != "" {
		b.WriteString("\n")
		b.WriteString(m.qr)
		b.WriteString(StyleLink.Render(m.shareURL))
		b.WriteString("\n")
	} else if m.sharing {
		b.WriteString("\n" + StyleDim.Render("Preparing QR code..."))
	}

	if m.status != "" {
		b.WriteString("\n" + StyleWarning.Render(m.status) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(StyleDim.Render(m.help()))

	style := boothFrameStyle
	if m.flash {
		style = boothFlashStyle
	}
	return style.Render(b.String())
}

// controls renders the shutter and timer selector, marking the focused one.
func (m boothModel) controls(timer int) string {
	shutter := "[ shutter ]"
	selector := fmt.Sprintf("[ timer %ds ]", timer)
	if m.focus == focusTimer {
		return StyleDim.Render(shutter) + " " + focusedStyle.Render(selector)
	}
	return focusedStyle.Render(shutter) + " " + StyleDim.Render(selector)
}

func (m boothModel) help() string {
	action := "space photo"
	if m.focus == focusTimer {
		action = "space timer"
	}
	keys := []string{action, "⌫ retake", "tab focus", "f finish"}
	if m.result != nil && m.link != nil {
		if m.shareFailed {
			keys = append(keys, "r retry")
		} else {
			keys = append(keys, "s share")
		}
	}
	keys = append(keys, "q quit")
	return strings.Join(keys, "  ")
}
