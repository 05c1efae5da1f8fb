package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

// SessionLister defines the store operations needed by the selector
type SessionLister interface {
	IDs() []string
	Messages(id string) ([]models.Message, error)
}

// sessionItem is one row of the selector
type sessionItem struct {
	id    string
	title string
	count int
}

// sessionsLoadedMsg is sent when sessions are loaded
type sessionsLoadedMsg struct {
	sessions []sessionItem
	err      error
}

// SessionSelectorModel lets the user pick a stored session or start a new one
type SessionSelectorModel struct {
	store   SessionLister
	backend models.Backend

	sessions []sessionItem
	cursor   int

	loading   bool
	err       error
	confirmed bool

	selectedID string
	isNew      bool

	width  int
	height int
	ready  bool
}

// NewSessionSelectorModel creates a new session selector model
func NewSessionSelectorModel(store SessionLister, backend models.Backend) SessionSelectorModel {
	return SessionSelectorModel{
		store:   store,
		backend: backend,
		loading: true,
	}
}

// Init starts loading sessions
func (m SessionSelectorModel) Init() tea.Cmd {
	return m.loadSessions()
}

func (m SessionSelectorModel) loadSessions() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		ids := store.IDs()
		items := make([]sessionItem, 0, len(ids))
		for _, id := range ids {
			msgs, err := store.Messages(id)
			if err != nil {
				return sessionsLoadedMsg{err: err}
			}
			items = append(items, sessionItem{id: id, title: history.Title(msgs), count: len(msgs)})
		}
		return sessionsLoadedMsg{sessions: items}
	}
}

// Update handles messages and updates the model
func (m SessionSelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case sessionsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.sessions = msg.sessions
		}

	case tea.KeyMsg:
		if m.loading {
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit

		case "up", "k":
			m.cursor--
			if m.cursor < 0 {
				// +1 for "New Session"
				m.cursor = len(m.sessions)
			}

		case "down", "j":
			m.cursor++
			if m.cursor > len(m.sessions) {
				m.cursor = 0
			}

		case "enter":
			m.confirmed = true
			if m.cursor == 0 {
				m.isNew = true
				m.selectedID = ""
			} else {
				m.isNew = false
				m.selectedID = m.sessions[m.cursor-1].id
			}
			return m, tea.Quit

		case "home", "g":
			m.cursor = 0

		case "end", "G":
			m.cursor = len(m.sessions)
		}
	}

	return m, nil
}

// View renders the selector
func (m SessionSelectorModel) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}
	if m.loading {
		return loadingStyle.Render("  Loading sessions...")
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("  Error: %v", m.err))
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(contentWidth),
		m.renderList(contentWidth),
		m.renderStatusBar(contentWidth),
	)
}

func (m SessionSelectorModel) renderHeader(width int) string {
	title := selectorTitleStyle.Render("Select Session")
	subtitle := hintStyle.Render(fmt.Sprintf("  Backend: %s", m.backend))
	return selectorHeaderStyle.Width(width).Render(lipgloss.JoinHorizontal(lipgloss.Center, title, subtitle))
}

func (m SessionSelectorModel) renderList(width int) string {
	title := selectorSectionStyle.Render("Sessions")

	items := []string{m.renderItem(0, "+ New Session", "")}

	if len(m.sessions) == 0 {
		items = append(items, hintStyle.Render("  No saved sessions"))
	} else {
		maxItems := max(5, (m.height-12)/2)

		scrollOffset := 0
		if m.cursor >= maxItems {
			scrollOffset = m.cursor - maxItems + 1
		}
		endIdx := min(scrollOffset+maxItems, len(m.sessions)+1)

		for i := max(scrollOffset, 1); i < endIdx; i++ {
			s := m.sessions[i-1]
			meta := fmt.Sprintf(" [%d msgs] %s", s.count, shortID(s.id))
			items = append(items, m.renderItem(i, s.title, meta))
		}

		if scrollOffset > 0 {
			items = append([]string{hintStyle.Render("  ...")}, items...)
		}
		if endIdx < len(m.sessions)+1 {
			items = append(items, hintStyle.Render("  ..."))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left, append([]string{title, ""}, items...)...)
	return selectorPanelStyle.Width(width).Render(content)
}

func (m SessionSelectorModel) renderItem(index int, title, meta string) string {
	cursor := "  "
	style := selectorItemStyle
	if index == m.cursor {
		cursor = selectorCursorStyle.Render("> ")
		style = selectorSelectedStyle
	}
	return cursor + style.Render(title) + selectorMetaStyle.Render(meta)
}

func (m SessionSelectorModel) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"↑↓", "Navigate"},
		{"Enter", "Select"},
		{"Esc", "Quit"},
	}

	var items []string
	for _, s := range shortcuts {
		items = append(items, statusKeyStyle.Render(s.key)+statusDescStyle.Render(" "+s.desc))
	}
	return selectorStatusBarStyle.Width(width).Render(strings.Join(items, "  |  "))
}

// SessionSelectorResult is the outcome of running the selector
type SessionSelectorResult struct {
	SessionID string // empty for a new session
	IsNew     bool
	Confirmed bool
}

// Result returns the selection
func (m SessionSelectorModel) Result() SessionSelectorResult {
	return SessionSelectorResult{SessionID: m.selectedID, IsNew: m.isNew, Confirmed: m.confirmed}
}

// RunSessionSelector starts the selector and returns the result
func RunSessionSelector(store SessionLister, backend models.Backend) (SessionSelectorResult, error) {
	p := tea.NewProgram(
		NewSessionSelectorModel(store, backend),
		tea.WithAltScreen(),
	)

	final, err := p.Run()
	if err != nil {
		return SessionSelectorResult{}, err
	}
	if sm, ok := final.(SessionSelectorModel); ok {
		return sm.Result(), nil
	}
	return SessionSelectorResult{}, nil
}
