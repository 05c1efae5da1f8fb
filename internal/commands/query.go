package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xiaobo-yang/pdf-chat/internal/dispatch"
	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/fsutil"
	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
	"github.com/xiaobo-yang/pdf-chat/internal/render"
	"github.com/xiaobo-yang/pdf-chat/internal/tui"
)

// Gradient colors for animation
var gradientColors = []lipgloss.Color{
	lipgloss.Color("#ff6b6b"), // Red
	lipgloss.Color("#feca57"), // Yellow
	lipgloss.Color("#48dbfb"), // Cyan
	lipgloss.Color("#ff9ff3"), // Pink
	lipgloss.Color("#54a0ff"), // Blue
	lipgloss.Color("#5f27cd"), // Purple
	lipgloss.Color("#00d2d3"), // Teal
	lipgloss.Color("#1dd1a1"), // Green
}

var (
	colorText     = lipgloss.Color("#c0caf5")
	colorTextDim  = lipgloss.Color("#565f89")
	colorTextMute = lipgloss.Color("#3b4261")
	colorSuccess  = lipgloss.Color("#9ece6a")
	colorWarning  = lipgloss.Color("#f7768e")
	colorPrimary  = lipgloss.Color("#7aa2f7")
)

// Styles matching the chat TUI
var (
	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	assistantBubbleStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Foreground(colorText).
				Padding(0, 1).
				MarginTop(1).
				MarginBottom(1)

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	dimStyle     = lipgloss.NewStyle().Foreground(colorTextDim)
)

// spinner handles the animated loading indicator
type spinner struct {
	message string
	out     io.Writer
	stop    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	frame   int
	stopped bool
}

// newSpinner creates a new animated spinner writing to stderr
func newSpinner(message string) *spinner {
	return &spinner{
		message: message,
		out:     os.Stderr,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// start begins the animation
func (s *spinner) start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		// Hide cursor
		fmt.Fprint(s.out, "\033[?25l")

		for {
			select {
			case <-s.stop:
				// Clear line and show cursor
				fmt.Fprint(s.out, "\r\033[K\033[?25h")
				return
			case <-ticker.C:
				s.mu.Lock()
				s.render()
				s.frame++
				s.mu.Unlock()
			}
		}
	}()
}

// render draws the current animation frame
func (s *spinner) render() {
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	barChars := []string{"█", "█", "█", "█", "█", "█", "▓", "▒", "░"}

	spinColor := gradientColors[s.frame%len(gradientColors)]
	spinnerChar := lipgloss.NewStyle().Foreground(spinColor).Bold(true).Render(chars[s.frame%len(chars)])

	barWidth := 16
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		colorIdx := (i + s.frame) % len(gradientColors)
		charIdx := (i + s.frame/2) % len(barChars)
		bar.WriteString(lipgloss.NewStyle().Foreground(gradientColors[colorIdx]).Render(barChars[charIdx]))
	}

	var dots strings.Builder
	numDots := (s.frame / 3) % 4
	for i := 0; i < 3; i++ {
		if i < numDots {
			dotColor := gradientColors[(s.frame+i)%len(gradientColors)]
			dots.WriteString(lipgloss.NewStyle().Foreground(dotColor).Render("●"))
		} else {
			dots.WriteString(lipgloss.NewStyle().Foreground(colorTextMute).Render("○"))
		}
	}

	msg := lipgloss.NewStyle().Foreground(colorText).Render(s.message)
	fmt.Fprintf(s.out, "\r\033[K%s %s %s %s", spinnerChar, bar.String(), msg, dots.String())
}

// stopOnce safely closes the stop channel only once
func (s *spinner) stopOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		close(s.stop)
		s.stopped = true
	}
}

// stopWithSuccess stops the spinner and shows success message
func (s *spinner) stopWithSuccess(message string) {
	s.stopOnce()
	<-s.done

	checkmark := lipgloss.NewStyle().Foreground(colorSuccess).Bold(true).Render("✓")
	fmt.Fprintf(s.out, "%s %s\n", checkmark, successStyle.Render(message))
}

// stopWithError stops the spinner
func (s *spinner) stopWithError() {
	s.stopOnce()
	<-s.done
}

// queryOptions are the flags shared by one-shot turn commands
type queryOptions struct {
	backend string
	session string
	mode    string
	file    string
	output  string
	stream  bool
	copy    bool
	raw     bool
}

func addQueryFlags(cmd *cobra.Command, opts *queryOptions) {
	cmd.Flags().StringVarP(&opts.backend, "backend", "b", "", "Backend to use: local or remote (default from config)")
	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Session id, @current, @last, @new or list index")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read text from file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Save response to file")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print the reply as it arrives")
	cmd.Flags().BoolVar(&opts.copy, "copy", false, "Copy the reply to the clipboard")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print only the reply text")
}

// newModeCmd creates a one-shot command for a fixed request kind
func newModeCmd(deps *Dependencies, kind models.RequestKind, short string) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   string(kind) + " [text]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, ok, err := readInput(cmd, args, opts.file)
			if err != nil {
				return err
			}
			if !ok {
				return apierrors.NewInputError("text", "cannot be empty")
			}
			return runQuery(cmd, deps, opts, kind, text)
		},
	}
	addQueryFlags(cmd, opts)
	return cmd
}

// resolveSession maps the --session flag to a session id. An empty flag
// continues the current session, "@new" starts one, and an unknown id names
// a session to be created.
func resolveSession(store *history.Store, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch strings.ToLower(ref) {
	case "":
		if id, ok := store.Current(); ok {
			return id, nil
		}
		return models.DefaultSessionID, nil
	case "@new":
		return history.NewSessionID(), nil
	}

	id, err := history.NewResolver(store).Resolve(ref)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, apierrors.ErrSessionNotFound) && !strings.HasPrefix(ref, "@") {
		return ref, nil
	}
	return "", err
}

// runQuery submits a single turn and prints the reply
func runQuery(cmd *cobra.Command, deps *Dependencies, opts *queryOptions, kind models.RequestKind, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apierrors.NewInputError("text", "cannot be empty")
	}

	app, err := deps.App()
	if err != nil {
		return err
	}

	backend := opts.backend
	if backend == "" {
		backend = app.Config.DefaultBackend
	}
	sessionID, err := resolveSession(app.Store, opts.session)
	if err != nil {
		return err
	}

	turn := dispatch.Turn{SessionID: sessionID, Text: text, Backend: backend, Kind: kind}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	decorated := !opts.raw && !opts.stream && isTerminal(os.Stderr)

	app.Logger.Debug("submitting turn", "session", sessionID, "backend", backend, "kind", kind)

	var spin *spinner
	if decorated {
		spin = newSpinner(fmt.Sprintf("Waiting for %s backend", backend))
		spin.start()
	}

	startTime := time.Now()
	var reply *dispatch.Reply
	if opts.stream {
		reply, err = app.Dispatcher.SubmitTurnStream(cmd.Context(), turn, func(chunk string) {
			fmt.Fprint(out, chunk)
		})
		if err == nil {
			fmt.Fprintln(out)
		}
	} else {
		reply, err = app.Dispatcher.SubmitTurn(cmd.Context(), turn)
	}
	if err != nil {
		if spin != nil {
			spin.stopWithError()
		}
		return err
	}
	if spin != nil {
		spin.stopWithSuccess("Done")
	}
	app.Logger.Debug("turn complete", "session", reply.SessionID, "took", time.Since(startTime).Round(time.Millisecond))

	if reply.SaveErr != nil {
		fmt.Fprintln(errOut, warningStyle.Render(fmt.Sprintf("⚠ Failed to save history: %v", reply.SaveErr)))
	}
	if !app.Config.AutoSave {
		if err := app.Save(); err != nil {
			fmt.Fprintln(errOut, warningStyle.Render(fmt.Sprintf("⚠ Failed to save history: %v", err)))
		}
	}

	if opts.copy || app.Config.CopyToClipboard {
		if err := deps.CopyToClipboard(reply.Text); err != nil {
			fmt.Fprintln(errOut, warningStyle.Render(fmt.Sprintf("⚠ Failed to copy to clipboard: %v", err)))
		} else if !opts.raw {
			fmt.Fprintln(errOut, successStyle.Render("✓ Copied to clipboard"))
		}
	}

	if opts.output != "" {
		if err := fsutil.WriteFile(opts.output, []byte(reply.Text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !opts.raw {
			fmt.Fprintln(errOut, successStyle.Render(fmt.Sprintf("✓ Response saved to %s", opts.output)))
		}
		return nil
	}

	if opts.stream {
		return nil
	}
	if opts.raw || !isTerminal(os.Stdout) {
		fmt.Fprint(out, reply.Text)
		if !strings.HasSuffix(reply.Text, "\n") {
			fmt.Fprintln(out)
		}
		return nil
	}

	printReply(out, app, reply)
	return nil
}

// printReply renders the reply as markdown inside an assistant bubble
func printReply(out io.Writer, app *App, reply *dispatch.Reply) {
	bubbleWidth := getTerminalWidth() - 4
	if bubbleWidth < 40 {
		bubbleWidth = 40
	}
	if bubbleWidth > 120 {
		bubbleWidth = 120
	}
	contentWidth := bubbleWidth - 4

	fmt.Fprintln(out, assistantLabelStyle.Render(fmt.Sprintf("✦ %s", reply.Backend))+
		dimStyle.Render(fmt.Sprintf("  session %s", reply.SessionID)))

	rendered := render.Reply(reply.Text, render.OptionsFromConfig(app.Config.Markdown, contentWidth))
	fmt.Fprintln(out, assistantBubbleStyle.Width(bubbleWidth).Render(rendered))
}

// getTerminalWidth returns the terminal width or a default value
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// formatErrorMessage formats an error with its kind for the terminal.
// Cancellation is reported plainly.
func formatErrorMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return dimStyle.Render("cancelled")
	}
	return tui.FormatError(err)
}

// truncate shortens s to max runes with an ellipsis
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
