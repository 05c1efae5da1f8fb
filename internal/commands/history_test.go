package commands

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

// seedSessions records one local turn in each of the given sessions
func seedSessions(t *testing.T, env *testEnv, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, _, err := env.run(t, "", "-s", id, "Hello "+id); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestHistoryCommand_List(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "", "history", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No sessions found.") {
		t.Errorf("empty list = %q", out)
	}

	seedSessions(t, env, "alpha", "beta")
	out, _, err = env.run(t, "", "history", "list")
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[2], "alpha") || !strings.Contains(lines[2], "Hello alpha") {
		t.Errorf("row 1 = %q", lines[2])
	}
	if !strings.Contains(lines[3], "beta") || !strings.HasSuffix(strings.TrimSpace(lines[3]), "*") {
		t.Errorf("row 2 should be marked current: %q", lines[3])
	}
}

func TestHistoryCommand_Show(t *testing.T) {
	env := newTestEnv(t)
	seedSessions(t, env, "alpha", "beta")

	tests := []struct {
		ref  string
		want string
	}{
		{"alpha", "ID: alpha"},
		{"1", "ID: alpha"},
		{"@current", "ID: beta"},
		{"@last", "ID: beta"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			out, _, err := env.run(t, "", "history", "show", tt.ref)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("out = %q, want %q", out, tt.want)
			}
			if !strings.Contains(out, "Messages: 2") || !strings.Contains(out, "Assistant:\n  local reply") {
				t.Errorf("transcript missing: %q", out)
			}
		})
	}

	_, _, err := env.run(t, "", "history", "show", "ghost")
	if !errors.Is(err, apierrors.ErrSessionNotFound) {
		t.Errorf("err = %v, want SessionNotFound", err)
	}
}

func TestHistoryCommand_ShowLastAfterDefault(t *testing.T) {
	env := newTestEnv(t)
	seedSessions(t, env, "default", "@new")

	snap, err := history.ReadSnapshot(env.historyPath())
	if err != nil {
		t.Fatal(err)
	}
	var generated string
	for id := range snap.Histories {
		if id != "default" {
			generated = id
		}
	}

	out, _, err := env.run(t, "", "history", "show", "@last")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ID: "+generated) {
		t.Errorf("@last should be the generated session %s, got %q", generated, out)
	}
}

func TestHistoryCommand_ShowTruncates(t *testing.T) {
	env := newTestEnv(t)
	long := strings.Repeat("x", 600)
	if _, _, err := env.run(t, "", "-s", "long", long); err != nil {
		t.Fatal(err)
	}

	out, _, _ := env.run(t, "", "history", "show", "long")
	if strings.Contains(out, long) || !strings.Contains(out, "...") {
		t.Error("show should truncate long messages")
	}

	out, _, _ = env.run(t, "", "history", "show", "long", "--full")
	if !strings.Contains(out, long) {
		t.Error("show --full should print the whole message")
	}
}

func TestHistoryCommand_Export(t *testing.T) {
	env := newTestEnv(t)
	seedSessions(t, env, "alpha")

	out, _, err := env.run(t, "", "history", "export", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "# Hello alpha") || !strings.Contains(out, "## Assistant\n\nlocal reply") {
		t.Errorf("markdown = %q", out)
	}

	out, _, err = env.run(t, "", "history", "export", "alpha", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var session history.Session
	if err := json.Unmarshal([]byte(out), &session); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if session.ID != "alpha" || len(session.Messages) != 2 || session.Messages[1].Role != models.RoleAssistant {
		t.Errorf("session = %+v", session)
	}

	path := filepath.Join(t.TempDir(), "alpha.yaml")
	if _, _, err := env.run(t, "", "history", "export", "alpha", "--format", "yaml", "-o", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	session = history.Session{}
	if err := yaml.Unmarshal(data, &session); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	if session.ID != "alpha" || session.Messages[0].Content != "Hello alpha" {
		t.Errorf("yaml session = %+v", session)
	}

	_, _, err = env.run(t, "", "history", "export", "alpha", "--format", "pdf")
	if !errors.Is(err, apierrors.ErrInvalidInput) {
		t.Errorf("err = %v, want InvalidInput", err)
	}
}

func TestHistoryCommand_Search(t *testing.T) {
	env := newTestEnv(t)
	seedSessions(t, env, "alpha", "beta")

	out, _, err := env.run(t, "", "history", "search", "beta")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "beta") || strings.Contains(out, "alpha") {
		t.Errorf("search out = %q", out)
	}

	out, _, _ = env.run(t, "", "history", "search", "nothing-like-this")
	if !strings.Contains(out, "No matches.") {
		t.Errorf("search out = %q", out)
	}
}

func TestHistoryCommand_DeleteAndClear(t *testing.T) {
	env := newTestEnv(t)
	seedSessions(t, env, "alpha", "beta")

	out, _, err := env.run(t, "", "history", "delete", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Deleted session: alpha") {
		t.Errorf("delete out = %q", out)
	}
	snap, _ := history.ReadSnapshot(env.historyPath())
	if _, ok := snap.Histories["alpha"]; ok {
		t.Error("deleted session still persisted")
	}
	if _, ok := snap.Histories["beta"]; !ok {
		t.Error("other session lost")
	}

	if _, _, err := env.run(t, "", "history", "clear"); err != nil {
		t.Fatal(err)
	}
	snap, _ = history.ReadSnapshot(env.historyPath())
	if len(snap.Histories) != 0 || snap.CurrentChatID != nil {
		t.Errorf("snapshot after clear = %+v", snap)
	}
}
