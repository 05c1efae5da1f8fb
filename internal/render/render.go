package render

import "strings"

// Markdown renders content with a pooled renderer for opts.
func Markdown(content string, opts Options) (string, error) {
	renderer, err := pool.get(opts)
	if err != nil {
		return "", err
	}
	defer pool.put(opts, renderer)

	return renderer.Render(content)
}

// Reply renders a model reply for display. Replies that fail to render are
// shown as plain text. Trailing newlines are trimmed so the result can be
// placed inside a bordered box.
func Reply(content string, opts Options) string {
	rendered, err := Markdown(content, opts)
	if err != nil {
		rendered = content
	}
	return strings.TrimRight(rendered, "\n")
}
