// Package agent implements the remote agent backend on top of an
// OpenAI-compatible chat completions service.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

const backendName = "remote"

const (
	endpointCompletions = "/chat/completions"
	endpointFiles       = "/files"
)

// filePurpose asks the service to extract document text for use as context
const filePurpose = "file-extract"

// Config holds the remote agent settings
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	TopP         float64
	SystemPrompt string
}

// Option configures an Agent
type Option func(*Agent)

// WithHTTPClient sets the HTTP client used by the SDK
func WithHTTPClient(client *http.Client) Option {
	return func(a *Agent) {
		a.httpClient = client
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

type uploadKey struct {
	size    int64
	modTime time.Time
}

type uploadEntry struct {
	key uploadKey
	id  string
}

// Agent sends whole conversations to the remote service, attaching
// reference documents as extracted-file context.
type Agent struct {
	cfg        Config
	client     openai.Client
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	uploads map[string]uploadEntry
}

// New creates an Agent. A missing API key is reported on the first Run,
// so a local-only setup never needs one.
func New(cfg Config, opts ...Option) *Agent {
	if cfg.BaseURL == "" {
		cfg.BaseURL = models.DefaultRemoteBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = models.DefaultRemoteModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = models.DefaultSystemPrompt
	}

	a := &Agent{
		cfg:     cfg,
		logger:  slog.Default(),
		uploads: make(map[string]uploadEntry),
	}
	for _, opt := range opts {
		opt(a)
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if a.httpClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(a.httpClient))
	}
	a.client = openai.NewClient(requestOpts...)

	return a
}

// Model returns the configured model name
func (a *Agent) Model() string {
	return a.cfg.Model
}

// Run sends the system prompt, one context message per reference file and
// msgs to the service. It returns msgs followed by the assistant reply.
// The input slice is never modified.
func (a *Agent) Run(ctx context.Context, msgs []models.Message, files []string) ([]models.Message, error) {
	if a.cfg.APIKey == "" {
		return nil, apierrors.NewBackendError(backendName, endpointCompletions, "API key not configured")
	}
	if len(msgs) == 0 {
		return nil, apierrors.NewInputError("messages", "cannot be empty")
	}

	params := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(a.cfg.SystemPrompt),
	}

	for _, path := range files {
		id, err := a.upload(ctx, path)
		if err != nil {
			return nil, err
		}
		params = append(params, openai.SystemMessage("fileid://"+id))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case models.RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}

	request := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.cfg.Model),
		Messages: params,
	}
	if a.cfg.TopP > 0 {
		request.TopP = openai.Float(a.cfg.TopP)
	}

	a.logger.DebugContext(ctx, "remote agent request",
		"model", a.cfg.Model, "messages", len(params), "files", len(files))

	completion, err := a.client.Chat.Completions.New(ctx, request)
	if err != nil {
		return nil, classify(endpointCompletions, err)
	}
	if len(completion.Choices) == 0 {
		return nil, apierrors.NewBackendError(backendName, endpointCompletions, "empty response")
	}

	out := models.CloneMessages(msgs)
	out = append(out, models.AssistantMessage(completion.Choices[0].Message.Content))
	return out, nil
}

// upload returns the service file id for path, uploading it when the local
// file is new or changed since the last upload.
func (a *Agent) upload(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", apierrors.NewStorageError("stat", path, err)
	}
	key := uploadKey{size: info.Size(), modTime: info.ModTime()}

	a.mu.Lock()
	entry, ok := a.uploads[path]
	a.mu.Unlock()
	if ok && entry.key == key {
		return entry.id, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", apierrors.NewStorageError("open", path, err)
	}
	defer f.Close()

	obj, err := a.client.Files.New(ctx, openai.FileNewParams{
		File:    f,
		Purpose: openai.FilePurpose(filePurpose),
	})
	if err != nil {
		return "", classify(endpointFiles, err)
	}

	a.logger.DebugContext(ctx, "reference file uploaded", "path", path, "file_id", obj.ID)

	a.mu.Lock()
	a.uploads[path] = uploadEntry{key: key, id: obj.ID}
	a.mu.Unlock()

	return obj.ID, nil
}

// classify maps SDK errors onto the error taxonomy
func classify(endpoint string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apierrors.NewBackendErrorWithStatus(backendName, endpoint, apiErr.StatusCode,
			fmt.Sprintf("service returned %d", apiErr.StatusCode)).WithBody(apiErr.Error())
	}
	return apierrors.FromTransport(backendName, endpoint, err)
}
