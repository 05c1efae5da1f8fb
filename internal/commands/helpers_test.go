package commands

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	http "github.com/bogdanfinn/fhttp"

	"github.com/xiaobo-yang/pdf-chat/internal/agent"
	"github.com/xiaobo-yang/pdf-chat/internal/config"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
	"github.com/xiaobo-yang/pdf-chat/internal/ollama"
	"github.com/xiaobo-yang/pdf-chat/internal/tui"
)

// fakeOllama is a Doer answering like a local model server
type fakeOllama struct {
	mu       sync.Mutex
	paths    []string
	payloads []map[string]any
	status   int
}

func (f *fakeOllama) Do(req *http.Request) (*http.Response, error) {
	var payload map[string]any
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(data, &payload)
	}

	f.mu.Lock()
	f.paths = append(f.paths, req.URL.Path)
	f.payloads = append(f.payloads, payload)
	status := f.status
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	body := f.body(req.URL.Path, payload)
	if status != http.StatusOK {
		body = `{"error":"model not found"}`
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func (f *fakeOllama) body(path string, payload map[string]any) string {
	stream, _ := payload["stream"].(bool)
	switch path {
	case "/api/version":
		return `{"version":"0.5.7"}`
	case "/api/generate":
		if stream {
			return `{"response":"gen ","done":false}` + "\n" + `{"response":"text","done":true,"done_reason":"stop"}` + "\n"
		}
		return `{"response":"gen text","done":true}`
	}
	if stream {
		return `{"message":{"role":"assistant","content":"local "},"done":false}` + "\n" +
			`{"message":{"role":"assistant","content":"reply"},"done":true,"done_reason":"stop"}` + "\n"
	}
	return `{"message":{"role":"assistant","content":"local reply"},"done":true}`
}

func (f *fakeOllama) lastPrompt(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		t.Fatal("no local requests")
	}
	p := f.payloads[len(f.payloads)-1]
	if prompt, ok := p["prompt"].(string); ok {
		return prompt
	}
	msgs, _ := p["messages"].([]any)
	if len(msgs) == 0 {
		return ""
	}
	msg, _ := msgs[0].(map[string]any)
	content, _ := msg["content"].(string)
	return content
}

// fakeRemote is an OpenAI-compatible server
type fakeRemote struct {
	mu          sync.Mutex
	completions []map[string]any
	uploads     []string
}

func (f *fakeRemote) handler() nethttp.Handler {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.completions = append(f.completions, payload)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"qwen-max",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"remote reply"}}]}`)
	})
	mux.HandleFunc("/files", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		_, header, err := r.FormFile("file")
		if err != nil {
			nethttp.Error(w, "missing file", nethttp.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "file-1", "object": "file", "bytes": 4, "created_at": 1700000000,
			"filename": header.Filename, "purpose": "file-extract", "status": "processed",
		})
	})
	return mux
}

// fakeTUI records how the chat was started
type fakeTUI struct {
	chatCfg   tui.Config
	chatCalls int
	selection tui.SessionSelectorResult
	submitter tui.Submitter
}

func (f *fakeTUI) RunChat(submitter tui.Submitter, cfg tui.Config) (string, error) {
	f.chatCalls++
	f.chatCfg = cfg
	f.submitter = submitter
	return cfg.SessionID, nil
}

func (f *fakeTUI) RunSessionSelector(store tui.SessionLister, backend models.Backend) (tui.SessionSelectorResult, error) {
	return f.selection, nil
}

// testEnv is a fully wired command environment rooted in a temp dir
type testEnv struct {
	dir     string
	cfg     config.Config
	local   *fakeOllama
	remote  *fakeRemote
	tui     *fakeTUI
	copied  []string
	logs    bytes.Buffer
	factory func() *Dependencies
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		dir:    t.TempDir(),
		local:  &fakeOllama{},
		remote: &fakeRemote{},
		tui:    &fakeTUI{},
	}
	t.Setenv(config.EnvHome, env.dir)
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvOllamaURL, "")

	server := httptest.NewServer(env.remote.handler())
	t.Cleanup(server.Close)

	env.cfg = config.DefaultConfig()
	env.cfg.DataDir = env.dir
	env.cfg.OllamaURL = "http://ollama.test:11434"
	env.cfg.LocalModel = "qwen2.5"
	env.cfg.RemoteBaseURL = server.URL
	env.cfg.RemoteAPIKey = "sk-test-key"

	env.factory = func() *Dependencies {
		return &Dependencies{
			LoadConfig: func() (config.Config, error) { return env.cfg, nil },
			TUI:        env.tui,
			CopyToClipboard: func(s string) error {
				env.copied = append(env.copied, s)
				return nil
			},
			LogOutput:     &env.logs,
			LocalOptions:  []ollama.ClientOption{ollama.WithHTTPClient(env.local)},
			RemoteOptions: []agent.Option{agent.WithHTTPClient(server.Client())},
		}
	}
	return env
}

// run executes args against a fresh command tree, as a new process would
func (env *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd(env.factory())
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (env *testEnv) historyPath() string {
	return filepath.Join(env.dir, "histories", "chat_histories.json")
}
