package history

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

func exportStore() *Store {
	store := NewStore()
	_ = store.Append("s1",
		models.UserMessage("What is attention?"),
		models.AssistantMessage("注意力机制是一种加权求和。"),
	)
	return store
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ExportFormat
		wantErr bool
	}{
		{"", ExportFormatMarkdown, false},
		{"md", ExportFormatMarkdown, false},
		{".json", ExportFormatJSON, false},
		{"YAML", ExportFormatYAML, false},
		{"yml", ExportFormatYAML, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExportFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExport_Markdown(t *testing.T) {
	out, err := exportStore().Export("s1", ExportFormatMarkdown)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	md := string(out)

	for _, want := range []string{
		"# What is attention?",
		"**Session:** s1",
		"**Messages:** 2",
		"## User\n\nWhat is attention?",
		"## Assistant\n\n注意力机制是一种加权求和。",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestExport_JSON(t *testing.T) {
	out, err := exportStore().Export("s1", ExportFormatJSON)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var session Session
	if err := json.Unmarshal(out, &session); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if session.ID != "s1" || len(session.Messages) != 2 {
		t.Errorf("session = %+v", session)
	}
	if !strings.Contains(string(out), "注意力") {
		t.Error("non-ASCII must not be escaped")
	}
}

func TestExport_YAML(t *testing.T) {
	out, err := exportStore().Export("s1", ExportFormatYAML)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var session Session
	if err := yaml.Unmarshal(out, &session); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if session.Messages[1].Role != models.RoleAssistant {
		t.Errorf("role = %s", session.Messages[1].Role)
	}
	if !strings.Contains(string(out), "role: user") {
		t.Errorf("unexpected YAML:\n%s", out)
	}
}

func TestExport_Errors(t *testing.T) {
	store := exportStore()

	if _, err := store.Export("ghost", ExportFormatJSON); !errors.Is(err, apierrors.ErrSessionNotFound) {
		t.Errorf("unknown session: err = %v", err)
	}
	if _, err := store.Export("s1", ExportFormat("docx")); !errors.Is(err, apierrors.ErrInvalidInput) {
		t.Errorf("unknown format: err = %v", err)
	}
}

func TestTitle(t *testing.T) {
	long := strings.Repeat("长", 60)

	tests := []struct {
		name string
		msgs []models.Message
		want string
	}{
		{"empty", nil, "(empty)"},
		{"assistant only", []models.Message{models.AssistantMessage("hi")}, "(empty)"},
		{"first user", []models.Message{models.SystemMessage("sys"), models.UserMessage("Hello\n  world")}, "Hello world"},
		{"truncated by rune", []models.Message{models.UserMessage(long)}, strings.Repeat("长", 50) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Title(tt.msgs); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	store := exportStore()
	_ = store.Append("s2", models.UserMessage("unrelated"), models.AssistantMessage("Attention again"))
	_ = store.Append("s3", models.UserMessage("nothing here"))

	results := store.Search("ATTENTION")
	if len(results) != 2 {
		t.Fatalf("results = %+v, want 2", results)
	}
	if results[0].SessionID != "s1" || results[0].MatchIndex != 0 {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].SessionID != "s2" || results[1].MatchIndex != 1 {
		t.Errorf("second result = %+v", results[1])
	}

	if got := store.Search("  "); got != nil {
		t.Errorf("blank query should match nothing, got %+v", got)
	}
}

func TestExtractSnippet(t *testing.T) {
	content := strings.Repeat("a", 100) + "needle" + strings.Repeat("b", 100)

	snippet := extractSnippet(content, "needle", 20)
	if !strings.Contains(snippet, "needle") {
		t.Errorf("snippet %q should contain the match", snippet)
	}
	if !strings.HasPrefix(snippet, "...") || !strings.HasSuffix(snippet, "...") {
		t.Errorf("snippet %q should be elided on both sides", snippet)
	}

	if got := extractSnippet("短文本", "文", 20); got != "短文本" {
		t.Errorf("short content = %q", got)
	}
}
