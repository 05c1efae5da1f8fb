package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

// ExportFormat represents the format for exporting sessions
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
	ExportFormatYAML     ExportFormat = "yaml"
)

// ParseExportFormat accepts a format name or a file extension
func ParseExportFormat(value string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")) {
	case "", "md", "markdown":
		return ExportFormatMarkdown, nil
	case "json":
		return ExportFormatJSON, nil
	case "yaml", "yml":
		return ExportFormatYAML, nil
	}
	return "", apierrors.NewInputError("format", fmt.Sprintf("unknown export format %q (use markdown, json or yaml)", value))
}

// maxTitleRunes bounds titles derived from the first user message
const maxTitleRunes = 50

// Title derives a display title from the first user message
func Title(msgs []models.Message) string {
	for _, msg := range msgs {
		if msg.Role != models.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(msg.Content), " ")
		runes := []rune(title)
		if len(runes) > maxTitleRunes {
			return string(runes[:maxTitleRunes]) + "..."
		}
		return title
	}
	return "(empty)"
}

// Export renders a session in the given format
func (s *Store) Export(id string, format ExportFormat) ([]byte, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatMarkdown:
		return []byte(exportMarkdown(session)), nil
	case ExportFormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(session); err != nil {
			return nil, fmt.Errorf("failed to encode session: %w", err)
		}
		return buf.Bytes(), nil
	case ExportFormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(session); err != nil {
			return nil, fmt.Errorf("failed to encode session: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode session: %w", err)
		}
		return buf.Bytes(), nil
	}

	return nil, apierrors.NewInputError("format", fmt.Sprintf("unknown export format %q", format))
}

func exportMarkdown(session *Session) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(Title(session.Messages))
	sb.WriteString("\n\n")
	sb.WriteString("**Session:** ")
	sb.WriteString(session.ID)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("**Messages:** %d", len(session.Messages)))
	sb.WriteString("\n\n---\n\n")

	for i, msg := range session.Messages {
		sb.WriteString("## ")
		switch msg.Role {
		case models.RoleAssistant:
			sb.WriteString("Assistant")
		case models.RoleSystem:
			sb.WriteString("System")
		default:
			sb.WriteString("User")
		}
		sb.WriteString("\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if i < len(session.Messages)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

// SearchResult is one session whose transcript contains the query
type SearchResult struct {
	SessionID    string
	MatchSnippet string
	MatchIndex   int
}

// Search finds the first message in each session containing query,
// case-insensitively. Results follow lexical session order.
func (s *Store) Search(query string) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	queryLower := strings.ToLower(query)

	var results []SearchResult
	for _, id := range s.IDs() {
		msgs, err := s.Messages(id)
		if err != nil {
			continue // deleted concurrently
		}
		for i, msg := range msgs {
			if strings.Contains(strings.ToLower(msg.Content), queryLower) {
				results = append(results, SearchResult{
					SessionID:    id,
					MatchSnippet: extractSnippet(msg.Content, query, 60),
					MatchIndex:   i,
				})
				break
			}
		}
	}
	return results
}

// extractSnippet returns up to maxLen runes of content around the first
// occurrence of query
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	lower := []rune(strings.ToLower(content))
	q := []rune(strings.ToLower(query))

	idx := indexRunes(lower, q)
	if idx == -1 || len(lower) != len(runes) {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	half := maxLen / 2
	start := idx - half
	end := idx + len(q) + half

	if start < 0 {
		start = 0
		end = maxLen
	}
	if end > len(runes) {
		end = len(runes)
		start = end - maxLen
		if start < 0 {
			start = 0
		}
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
