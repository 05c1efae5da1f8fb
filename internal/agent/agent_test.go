package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "qwen-max",
  "choices": [
    {"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "你好！"}}
  ]
}`

// fakeService records what the agent sends to an OpenAI-compatible server
type fakeService struct {
	mu          sync.Mutex
	completions []map[string]any
	uploads     []string
	status      int
	body        string
	delay       time.Duration
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		f.mu.Lock()
		f.completions = append(f.completions, payload)
		f.mu.Unlock()

		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			io.WriteString(w, f.body)
			return
		}
		io.WriteString(w, completionBody)
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("purpose"); got != "file-extract" {
			t.Errorf("purpose = %q, want file-extract", got)
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}

		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename)
		id := "file-" + strings.TrimSuffix(header.Filename, ".pdf")
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":         id,
			"object":     "file",
			"bytes":      4,
			"created_at": 1700000000,
			"filename":   header.Filename,
			"purpose":    "file-extract",
			"status":     "processed",
		})
	})
	return mux
}

func newTestAgent(t *testing.T, svc *fakeService) *Agent {
	t.Helper()
	server := httptest.NewServer(svc.handler(t))
	t.Cleanup(server.Close)

	return New(Config{
		APIKey:  "sk-test",
		BaseURL: server.URL,
		TopP:    0.8,
	}, WithHTTPClient(server.Client()))
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func TestNew_Defaults(t *testing.T) {
	a := New(Config{APIKey: "k"})
	if a.Model() != models.DefaultRemoteModel {
		t.Errorf("Model() = %s, want %s", a.Model(), models.DefaultRemoteModel)
	}
	if a.cfg.BaseURL != models.DefaultRemoteBaseURL {
		t.Errorf("BaseURL = %s", a.cfg.BaseURL)
	}
	if a.cfg.SystemPrompt != models.DefaultSystemPrompt {
		t.Error("system prompt should default")
	}
}

func TestAgent_Run(t *testing.T) {
	svc := &fakeService{}
	a := newTestAgent(t, svc)

	input := []models.Message{
		models.UserMessage("Hello"),
		models.AssistantMessage("Hi"),
		models.UserMessage("How are you?"),
	}

	out, err := a.Run(context.Background(), input, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	last := out[3]
	if last.Role != models.RoleAssistant || last.Content != "你好！" {
		t.Errorf("last message = %+v", last)
	}
	if len(input) != 3 {
		t.Error("input must not be modified")
	}

	if len(svc.completions) != 1 {
		t.Fatalf("requests = %d, want 1", len(svc.completions))
	}
	payload := svc.completions[0]
	if payload["model"] != "qwen-max" {
		t.Errorf("model = %v", payload["model"])
	}
	if payload["top_p"] != 0.8 {
		t.Errorf("top_p = %v", payload["top_p"])
	}

	sent := payload["messages"].([]any)
	if len(sent) != 4 {
		t.Fatalf("sent %d messages, want system + 3", len(sent))
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	for i, role := range wantRoles {
		msg := sent[i].(map[string]any)
		if msg["role"] != role {
			t.Errorf("message %d role = %v, want %s", i, msg["role"], role)
		}
	}
	if sent[0].(map[string]any)["content"] != models.DefaultSystemPrompt {
		t.Errorf("system content = %v", sent[0].(map[string]any)["content"])
	}
}

func TestAgent_RunWithFiles(t *testing.T) {
	svc := &fakeService{}
	a := newTestAgent(t, svc)
	dir := t.TempDir()
	paper := writePDF(t, dir, "paper.pdf")

	for i := 0; i < 2; i++ {
		if _, err := a.Run(context.Background(), []models.Message{models.UserMessage("summarize")}, []string{paper}); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
	}

	if len(svc.uploads) != 1 {
		t.Errorf("uploads = %v, want a single cached upload", svc.uploads)
	}

	sent := svc.completions[1]["messages"].([]any)
	fileMsg := sent[1].(map[string]any)
	if fileMsg["role"] != "system" || fileMsg["content"] != "fileid://file-paper" {
		t.Errorf("file context message = %v", fileMsg)
	}
}

func TestAgent_ReuploadsChangedFile(t *testing.T) {
	svc := &fakeService{}
	a := newTestAgent(t, svc)
	paper := writePDF(t, t.TempDir(), "paper.pdf")

	if _, err := a.upload(context.Background(), paper); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if err := os.WriteFile(paper, []byte("%PDF-1.4\nmore content\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.upload(context.Background(), paper); err != nil {
		t.Fatalf("second upload failed: %v", err)
	}

	if len(svc.uploads) != 2 {
		t.Errorf("uploads = %d, want 2 after the file changed", len(svc.uploads))
	}
}

func TestAgent_MissingFile(t *testing.T) {
	a := newTestAgent(t, &fakeService{})

	_, err := a.Run(context.Background(), []models.Message{models.UserMessage("x")},
		[]string{filepath.Join(t.TempDir(), "gone.pdf")})
	if !errors.Is(err, apierrors.ErrStorageFailure) {
		t.Errorf("err = %v, want StorageFailure", err)
	}
}

func TestAgent_Errors(t *testing.T) {
	tests := []struct {
		name     string
		svc      *fakeService
		apiKey   string
		msgs     []models.Message
		wantKind apierrors.Kind
	}{
		{
			name:     "missing api key",
			svc:      &fakeService{},
			msgs:     []models.Message{models.UserMessage("hi")},
			wantKind: apierrors.KindBackendUnavailable,
		},
		{
			name:     "no messages",
			svc:      &fakeService{},
			apiKey:   "k",
			wantKind: apierrors.KindInvalidInput,
		},
		{
			name: "unauthorized",
			svc: &fakeService{
				status: http.StatusUnauthorized,
				body:   `{"error":{"message":"Invalid API-key provided.","type":"invalid_request_error","code":"invalid_api_key"}}`,
			},
			apiKey:   "k",
			msgs:     []models.Message{models.UserMessage("hi")},
			wantKind: apierrors.KindBackendUnavailable,
		},
		{
			name:     "server error",
			svc:      &fakeService{status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`},
			apiKey:   "k",
			msgs:     []models.Message{models.UserMessage("hi")},
			wantKind: apierrors.KindBackendUnavailable,
		},
		{
			name:     "no choices",
			svc:      &fakeService{status: http.StatusOK, body: `{"id":"x","object":"chat.completion","choices":[]}`},
			apiKey:   "k",
			msgs:     []models.Message{models.UserMessage("hi")},
			wantKind: apierrors.KindBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.svc.handler(t))
			defer server.Close()

			a := New(Config{APIKey: tt.apiKey, BaseURL: server.URL}, WithHTTPClient(server.Client()))
			_, err := a.Run(context.Background(), tt.msgs, nil)
			if kind := apierrors.KindOf(err); kind != tt.wantKind {
				t.Errorf("KindOf = %s, want %s (err: %v)", kind, tt.wantKind, err)
			}
		})
	}
}

func TestAgent_StatusCodeKept(t *testing.T) {
	svc := &fakeService{status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`}
	a := newTestAgent(t, svc)

	_, err := a.Run(context.Background(), []models.Message{models.UserMessage("hi")}, nil)
	var be *apierrors.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %T: %v", err, err)
	}
	if be.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", be.StatusCode)
	}
	if len(svc.completions) != 1 {
		t.Errorf("requests = %d, want 1 (no retries)", len(svc.completions))
	}
}

func TestAgent_Timeout(t *testing.T) {
	svc := &fakeService{delay: 2 * time.Second}
	a := newTestAgent(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Run(ctx, []models.Message{models.UserMessage("hi")}, nil)
	if !errors.Is(err, apierrors.ErrTimeout) {
		t.Errorf("err = %v, want Timeout", err)
	}
}
