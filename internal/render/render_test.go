package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Width != 80 || opts.Style != "dark" {
		t.Errorf("defaults = %+v", opts)
	}
	if opts.EnableEmoji || !opts.PreserveNewLines || !opts.TableWrap || opts.InlineTableLinks {
		t.Errorf("flags = %+v", opts)
	}

	wide := opts.WithWidth(120)
	if wide.Width != 120 || opts.Width != 80 {
		t.Error("WithWidth must return a copy")
	}
}

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{"heading", "# Attention Is All You Need", []string{"Attention"}},
		{"analysis list", "1. 主要内容\n2. 关键概念\n3. 重要观点", []string{"主要内容", "关键概念", "重要观点"}},
		{"translation", "注意力就是你所需要的一切。", []string{"注意力"}},
		{"code", "```python\nsoftmax(QK^T)\n```", []string{"softmax"}},
		{"table", "| Model | BLEU |\n|---|---|\n| base | 27.3 |", []string{"Model", "27.3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Markdown(tt.input, DefaultOptions())
			if err != nil {
				t.Fatalf("Markdown: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestMarkdown_Styles(t *testing.T) {
	for _, style := range []string{"dark", "light", "notty", "ascii", "dracula", "tokyo-night"} {
		t.Run(style, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Style = style
			if _, err := Markdown("**bold**", opts); err != nil {
				t.Errorf("style %s: %v", style, err)
			}
		})
	}
}

func TestMarkdown_StyleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.json")
	if err := os.WriteFile(path, []byte(`{"document":{"margin":0}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.Style = path
	out, err := Markdown("plain words", opts)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(out, "plain words") {
		t.Errorf("out = %q", out)
	}
}

func TestMarkdown_MissingStyleFile(t *testing.T) {
	opts := DefaultOptions()
	opts.Style = filepath.Join(t.TempDir(), "missing.json")
	if _, err := Markdown("text", opts); err == nil {
		t.Error("expected error for a missing style file")
	}
}

func TestMarkdown_Emoji(t *testing.T) {
	opts := DefaultOptions()
	opts.EnableEmoji = true
	out, err := Markdown("done :tada:", opts)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, ":tada:") {
		t.Error("emoji code should be converted")
	}
}

func TestReply(t *testing.T) {
	out := Reply("## Summary\n\nThe paper proposes the Transformer.", DefaultOptions())
	if !strings.Contains(out, "Transformer") {
		t.Errorf("out = %q", out)
	}
	if strings.HasSuffix(out, "\n") {
		t.Error("trailing newlines should be trimmed")
	}

	opts := DefaultOptions()
	opts.Style = filepath.Join(t.TempDir(), "missing.json")
	if got := Reply("raw *text*\n", opts); got != "raw *text*" {
		t.Errorf("fallback = %q", got)
	}
}
