package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xiaobo-yang/pdf-chat/internal/dispatch"
	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
	"github.com/xiaobo-yang/pdf-chat/internal/render"
)

// Animation tick message
type animationTickMsg time.Time

// Message types for the TUI
type (
	responseMsg struct {
		reply *dispatch.Reply
	}
	errMsg struct {
		err error
	}
)

// Submitter runs one turn. *dispatch.Dispatcher satisfies it.
type Submitter interface {
	SubmitTurn(ctx context.Context, turn dispatch.Turn) (*dispatch.Reply, error)
}

// Config holds the starting state of a chat
type Config struct {
	SessionID string
	Backend   models.Backend
	Kind      models.RequestKind
	// ModelName is shown in the header
	ModelName string
	// History is the existing transcript of SessionID
	History []models.Message
	Render  render.Options
}

// Model represents the TUI state
type Model struct {
	submitter Submitter

	sessionID string
	backend   models.Backend
	kind      models.RequestKind
	modelName string
	renderOpt render.Options

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// State
	messages       []models.Message
	pending        string
	cancel         context.CancelFunc
	loading        bool
	ready          bool
	err            error
	notice         string
	animationFrame int

	// Dimensions
	width  int
	height int
}

// NewChatModel creates a new chat TUI model
func NewChatModel(submitter Submitter, cfg Config) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message, or /help for commands..."
	ta.CharLimit = 8000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	if cfg.SessionID == "" {
		cfg.SessionID = history.NewSessionID()
	}
	if cfg.Backend == "" {
		cfg.Backend = models.BackendLocal
	}
	if cfg.Kind == "" {
		cfg.Kind = models.KindChat
	}
	if cfg.Render.Width == 0 {
		cfg.Render = render.DefaultOptions()
	}

	return Model{
		submitter: submitter,
		sessionID: cfg.SessionID,
		backend:   cfg.Backend,
		kind:      cfg.Kind,
		modelName: cfg.ModelName,
		renderOpt: cfg.Render,
		textarea:  ta,
		spinner:   s,
		messages:  models.CloneMessages(cfg.History),
	}
}

// SessionID returns the session the model is chatting in
func (m Model) SessionID() string {
	return m.sessionID
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
	)
}

// animationTick returns a command that sends animation tick messages
func animationTick() tea.Cmd {
	return tea.Tick(time.Millisecond*80, func(t time.Time) tea.Msg {
		return animationTickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		inputHeight := 6
		statusHeight := 1
		padding := 2

		vpHeight := m.height - headerHeight - inputHeight - statusHeight - padding
		if vpHeight < 5 {
			vpHeight = 5
		}

		contentWidth := m.width - 4

		if !m.ready {
			m.viewport = viewport.New(contentWidth, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(contentWidth - 4)
		m.updateViewport()
		m.viewport.GotoBottom()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case "esc":
			if m.loading {
				// the pending turn resolves to errMsg with context.Canceled
				if m.cancel != nil {
					m.cancel()
				}
				return m, nil
			}
			return m, tea.Quit

		case "enter":
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			if strings.HasPrefix(input, "/") || input == "exit" || input == "quit" {
				m.textarea.Reset()
				return m.runCommand(input)
			}

			m.pending = input
			m.loading = true
			m.err = nil
			m.notice = ""
			m.animationFrame = 0
			m.textarea.Reset()
			m.updateViewport()
			m.viewport.GotoBottom()

			ctx, cancel := context.WithCancel(context.Background())
			m.cancel = cancel

			return m, tea.Batch(
				m.sendTurn(ctx, input),
				m.spinner.Tick,
				animationTick(),
			)
		}

	case responseMsg:
		m.finishTurn()
		m.sessionID = msg.reply.SessionID
		m.messages = append(m.messages,
			models.UserMessage(msg.reply.Prompt),
			models.AssistantMessage(msg.reply.Text),
		)
		if msg.reply.SaveErr != nil {
			m.err = msg.reply.SaveErr
		}
		m.updateViewport()
		m.viewport.GotoBottom()

	case errMsg:
		// the session is unchanged on failure; give the input back for a retry
		m.textarea.SetValue(m.pending)
		m.finishTurn()
		if errors.Is(msg.err, context.Canceled) {
			m.notice = "request cancelled"
		} else {
			m.err = msg.err
		}
		m.updateViewport()

	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case animationTickMsg:
		if m.loading {
			m.animationFrame++
			cmds = append(cmds, animationTick())
		}
	}

	// Only pass KeyMsg to textarea to prevent escape sequence leaks
	if !m.loading {
		if _, ok := msg.(tea.KeyMsg); ok {
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) finishTurn() {
	m.loading = false
	m.pending = ""
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// runCommand handles slash commands
func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	m.err = nil
	m.notice = ""

	switch name {
	case "exit", "quit", "/exit", "/quit":
		return m, tea.Quit

	case "/backend":
		backend, err := models.ParseBackend(arg)
		if err != nil {
			m.err = err
			break
		}
		m.backend = backend
		m.notice = "backend set to " + string(backend)

	case "/mode":
		kind, err := models.ParseRequestKind(arg)
		if err != nil {
			m.err = err
			break
		}
		m.kind = kind
		m.notice = "mode set to " + string(kind)

	case "/new":
		m.sessionID = history.NewSessionID()
		m.messages = nil
		m.notice = "started session " + m.sessionID
		m.updateViewport()

	case "/help":
		m.notice = "/backend local|remote  /mode chat|translate|analyze  /new  /exit"

	default:
		m.err = fmt.Errorf("unknown command %s (try /help)", name)
	}
	return m, nil
}

// sendTurn creates a command that submits the turn to the dispatcher
func (m Model) sendTurn(ctx context.Context, text string) tea.Cmd {
	turn := dispatch.Turn{
		SessionID: m.sessionID,
		Text:      text,
		Backend:   string(m.backend),
		Kind:      m.kind,
	}
	submitter := m.submitter
	return func() tea.Msg {
		reply, err := submitter.SubmitTurn(ctx, turn)
		if err != nil {
			return errMsg{err: err}
		}
		return responseMsg{reply: reply}
	}
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	var sections []string
	contentWidth := m.width - 4

	sections = append(sections, m.renderHeader(contentWidth))

	var messagesContent string
	if len(m.messages) == 0 && m.pending == "" {
		messagesContent = m.renderWelcome()
	} else {
		messagesContent = m.viewport.View()
	}
	messagesPanel := messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messagesContent)
	sections = append(sections, messagesPanel)

	var inputContent string
	if m.loading {
		inputContent = m.renderLoadingAnimation()
	} else {
		inputContent = lipgloss.JoinVertical(
			lipgloss.Left,
			inputLabelStyle.Render("You"),
			m.textarea.View(),
		)
	}
	sections = append(sections, inputPanelStyle.Width(contentWidth).Render(inputContent))

	sections = append(sections, m.renderStatusBar(contentWidth))

	if m.notice != "" {
		sections = append(sections, noticeStyle.Render("  "+m.notice))
	}
	if m.err != nil {
		sections = append(sections, FormatError(m.err))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader(width int) string {
	sep := hintStyle.Render("  •  ")
	parts := []string{
		titleStyle.Render("✦ PDF Chat"),
		sep,
		subtitleStyle.Render(string(m.backend)),
	}
	if m.modelName != "" {
		parts = append(parts, sep, subtitleStyle.Render(m.modelName))
	}
	if m.kind != models.KindChat {
		parts = append(parts, sep, badgeStyle.Render(string(m.kind)))
	}
	parts = append(parts, sep, hintStyle.Render(shortID(m.sessionID)))

	content := lipgloss.JoinHorizontal(lipgloss.Center, parts...)
	return headerStyle.Width(width).Render(content)
}

func shortID(id string) string {
	if len(id) > 13 {
		return id[:13] + "…"
	}
	return id
}

// renderWelcome renders the welcome screen when no messages exist
func (m Model) renderWelcome() string {
	width := m.viewport.Width - 4
	height := m.viewport.Height

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		"",
		welcomeIconStyle.Width(width).Render("✦"),
		"",
		welcomeTitleStyle.Width(width).Render("Chat with your documents"),
		"",
		welcomeStyle.Width(width).Render("Type a message below, or /help for commands"),
		"",
	)

	topPadding := (height - lipgloss.Height(content)) / 2
	if topPadding < 0 {
		topPadding = 0
	}
	return strings.Repeat("\n", topPadding) + content
}

// renderLoadingAnimation renders a colorful animated loading indicator
func (m Model) renderLoadingAnimation() string {
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	barChars := []string{"█", "█", "█", "█", "█", "█", "█", "█", "▓", "▒", "░"}

	frame := m.animationFrame

	spinColor := gradientColors[frame%len(gradientColors)]
	spin := lipgloss.NewStyle().Foreground(spinColor).Bold(true).Render(chars[frame%len(chars)])

	barWidth := 20
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		colorIdx := (i + frame) % len(gradientColors)
		charIdx := (i + frame/2) % len(barChars)
		bar.WriteString(lipgloss.NewStyle().Foreground(gradientColors[colorIdx]).Render(barChars[charIdx]))
	}

	var dots strings.Builder
	numDots := (frame / 3) % 4
	for i := 0; i < numDots; i++ {
		dots.WriteString(lipgloss.NewStyle().Foreground(gradientColors[(frame+i)%len(gradientColors)]).Render("●"))
	}
	for i := numDots; i < 3; i++ {
		dots.WriteString(lipgloss.NewStyle().Foreground(colorTextMute).Render("○"))
	}

	text := lipgloss.NewStyle().Foreground(colorText).Render(fmt.Sprintf(" Waiting for %s backend ", m.backend))
	return fmt.Sprintf("%s %s %s %s", spin, bar.String(), text, dots.String())
}

// renderStatusBar renders the bottom status bar with shortcuts
func (m Model) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"Esc", "Cancel/Quit"},
		{"↑↓", "Scroll"},
		{"/help", "Commands"},
	}

	var items []string
	for _, s := range shortcuts {
		items = append(items, lipgloss.JoinHorizontal(
			lipgloss.Center,
			statusKeyStyle.Render(s.key),
			statusDescStyle.Render(" "+s.desc),
		))
	}

	bar := strings.Join(items, "  │  ")
	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(bar)
}

// updateViewport refreshes the viewport content with styled messages
func (m *Model) updateViewport() {
	var content strings.Builder
	bubbleWidth := m.viewport.Width - 6
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}

	write := func(msg models.Message) {
		switch msg.Role {
		case models.RoleUser:
			content.WriteString(userLabelStyle.Render("⬤ You") + "\n")
			content.WriteString(userBubbleStyle.Width(bubbleWidth).Render(msg.Content))
		case models.RoleAssistant:
			content.WriteString(assistantLabelStyle.Render("✦ Assistant") + "\n")
			rendered := render.Reply(msg.Content, m.renderOpt.WithWidth(bubbleWidth-4))
			content.WriteString(assistantBubbleStyle.Width(bubbleWidth).Render(rendered))
		default:
			content.WriteString(systemStyle.Width(bubbleWidth - 4).Render(msg.Content))
		}
		content.WriteString("\n\n")
	}

	for _, msg := range m.messages {
		write(msg)
	}
	if m.pending != "" {
		write(models.UserMessage(m.pending))
	}

	m.viewport.SetContent(content.String())
}

// RunChat starts the chat TUI and returns the id of the last session used
func RunChat(submitter Submitter, cfg Config) (string, error) {
	m := NewChatModel(submitter, cfg)

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
	)

	final, err := p.Run()
	if err != nil {
		return "", err
	}
	if fm, ok := final.(Model); ok {
		return fm.SessionID(), nil
	}
	return m.SessionID(), nil
}
