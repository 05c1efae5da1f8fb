package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

// failingLister fails when reading messages
type failingLister struct{}

func (failingLister) IDs() []string { return []string{"broken"} }

func (failingLister) Messages(string) ([]models.Message, error) {
	return nil, errors.New("disk on fire")
}

func newSelectorStore(t *testing.T) *history.Store {
	t.Helper()
	store := history.NewStore()
	if err := store.Append("a-session", models.UserMessage("first question"), models.AssistantMessage("answer")); err != nil {
		t.Fatal(err)
	}
	if err := store.Append("b-session", models.UserMessage("second question")); err != nil {
		t.Fatal(err)
	}
	return store
}

func loadedSelector(t *testing.T, lister SessionLister) SessionSelectorModel {
	t.Helper()
	m := NewSessionSelectorModel(lister, models.BackendLocal)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = updated.(SessionSelectorModel)
	updated, _ = m.Update(m.Init()())
	return updated.(SessionSelectorModel)
}

func TestSessionSelector_Loads(t *testing.T) {
	m := loadedSelector(t, newSelectorStore(t))

	if m.loading {
		t.Fatal("should be loaded")
	}
	if len(m.sessions) != 2 {
		t.Fatalf("sessions = %+v", m.sessions)
	}
	if m.sessions[0].id != "a-session" || m.sessions[0].title != "first question" || m.sessions[0].count != 2 {
		t.Errorf("sessions[0] = %+v", m.sessions[0])
	}

	view := m.View()
	for _, want := range []string{"New Session", "first question", "second question", "2 msgs"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSessionSelector_LoadError(t *testing.T) {
	m := loadedSelector(t, failingLister{})
	if m.err == nil {
		t.Fatal("expected load error")
	}
	if !strings.Contains(m.View(), "disk on fire") {
		t.Error("view should show the error")
	}
}

func TestSessionSelector_Navigation(t *testing.T) {
	m := loadedSelector(t, newSelectorStore(t))

	keys := []struct {
		key  tea.KeyMsg
		want int
	}{
		{tea.KeyMsg{Type: tea.KeyDown}, 1},
		{tea.KeyMsg{Type: tea.KeyDown}, 2},
		{tea.KeyMsg{Type: tea.KeyDown}, 0},
		{tea.KeyMsg{Type: tea.KeyUp}, 2},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")}, 0},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")}, 2},
	}
	for i, k := range keys {
		updated, _ := m.Update(k.key)
		m = updated.(SessionSelectorModel)
		if m.cursor != k.want {
			t.Errorf("step %d: cursor = %d, want %d", i, m.cursor, k.want)
		}
	}
}

func TestSessionSelector_Select(t *testing.T) {
	tests := []struct {
		name    string
		downs   int
		wantID  string
		wantNew bool
	}{
		{"new session", 0, "", true},
		{"existing", 2, "b-session", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loadedSelector(t, newSelectorStore(t))
			for i := 0; i < tt.downs; i++ {
				updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
				m = updated.(SessionSelectorModel)
			}

			updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
			m = updated.(SessionSelectorModel)
			if cmd == nil {
				t.Fatal("enter should quit")
			}

			got := m.Result()
			if !got.Confirmed || got.IsNew != tt.wantNew || got.SessionID != tt.wantID {
				t.Errorf("Result = %+v", got)
			}
		})
	}
}

func TestSessionSelector_Quit(t *testing.T) {
	m := loadedSelector(t, newSelectorStore(t))
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc should quit")
	}
	if updated.(SessionSelectorModel).Result().Confirmed {
		t.Error("esc must not confirm")
	}
}
