package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/tidwall/gjson"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

const backendName = "local"

// maxErrorBody limits how much of a failed response is kept for diagnostics
const maxErrorBody = 4096

// Doer is the subset of tls_client.HttpClient the client needs
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a local model server over its HTTP API
type Client struct {
	httpClient     Doer
	baseURL        string
	timeoutSeconds int
	logger         *slog.Logger
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient replaces the default TLS client
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// TransportTimeoutMargin is added to the request timeout so the context
// deadline always fires before the transport gives up.
const TransportTimeoutMargin = 30

// TransportTimeoutSeconds returns the transport timeout for a request
// timeout in seconds. Zero means no request timeout and no transport timeout.
func TransportTimeoutSeconds(requestTimeout int) int {
	if requestTimeout <= 0 {
		return 0
	}
	return requestTimeout + TransportTimeoutMargin
}

// WithTimeoutSeconds sets the transport-level timeout of the default client.
// Zero disables it. Per-request deadlines come from the context.
func WithTimeoutSeconds(seconds int) ClientOption {
	return func(c *Client) {
		c.timeoutSeconds = seconds
	}
}

// WithLogger sets the logger used for request diagnostics
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Reply is the result of Chat or Generate.
// Exactly one of Text (non-streaming) or Stream (streaming) is set.
type Reply struct {
	Text   string
	Stream *Stream
}

// NewClient creates a new Client for the server at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = models.DefaultOllamaURL
	}

	client := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeoutSeconds: 300,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		options := []tls_client.HttpClientOption{
			tls_client.WithTimeoutSeconds(client.timeoutSeconds),
			tls_client.WithClientProfile(profiles.Chrome_120),
			tls_client.WithNotFollowRedirects(),
		}

		httpClient, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		client.httpClient = httpClient
	}

	return client, nil
}

// BaseURL returns the server base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

type chatPayload struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

type generatePayload struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// Chat sends prompt as a single user message to the role-tagged chat endpoint
func (c *Client) Chat(ctx context.Context, model, prompt string, stream bool) (*Reply, error) {
	if prompt == "" {
		return nil, apierrors.NewInputError("prompt", "cannot be empty")
	}
	payload := chatPayload{
		Model:    c.modelOrDefault(model),
		Messages: []models.Message{models.UserMessage(prompt)},
		Stream:   stream,
	}
	return c.send(ctx, models.EndpointChat, payload, stream, PathChatContent)
}

// Generate sends prompt to the raw-completion endpoint
func (c *Client) Generate(ctx context.Context, model, prompt string, stream bool) (*Reply, error) {
	if prompt == "" {
		return nil, apierrors.NewInputError("prompt", "cannot be empty")
	}
	payload := generatePayload{
		Model:  c.modelOrDefault(model),
		Prompt: prompt,
		Stream: stream,
	}
	return c.send(ctx, models.EndpointGenerate, payload, stream, PathGenerateResponse)
}

// Version returns the server version, which doubles as a reachability check
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apierrors.FromTransport(backendName, "/api/version", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", apierrors.FromTransport(backendName, "/api/version", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apierrors.NewBackendErrorWithStatus(backendName, "/api/version", resp.StatusCode, "version check failed").
			WithBody(string(body))
	}

	return gjson.GetBytes(body, PathVersion).String(), nil
}

func (c *Client) modelOrDefault(model string) string {
	if model == "" {
		return models.DefaultLocalModel
	}
	return model
}

// send performs the request and either materializes the reply or hands the
// open body to a Stream
func (c *Client) send(ctx context.Context, endpoint string, payload any, stream bool, textPath string) (*Reply, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range models.DefaultHeaders() {
		req.Header.Set(key, value)
	}

	c.logger.DebugContext(ctx, "local backend request", "endpoint", endpoint, "stream", stream, "bytes", len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.FromTransport(backendName, endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := gjson.GetBytes(errorBody, PathError).String()
		if message == "" {
			message = "request failed"
		}
		return nil, apierrors.NewBackendErrorWithStatus(backendName, endpoint, resp.StatusCode, message).
			WithBody(string(errorBody))
	}

	if stream {
		return &Reply{Stream: newStream(resp.Body, endpoint, textPath)}, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.FromTransport(backendName, endpoint, err)
	}

	text, err := parseResponse(body, endpoint, textPath)
	if err != nil {
		return nil, err
	}
	return &Reply{Text: text}, nil
}

// parseResponse extracts the reply text from a non-streaming response body
func parseResponse(body []byte, endpoint, textPath string) (string, error) {
	body = bytes.TrimSpace(body)
	if !gjson.ValidBytes(body) {
		return "", apierrors.NewBackendErrorWithCause(backendName, endpoint, "malformed response",
			fmt.Errorf("invalid JSON: %.120s", body))
	}

	parsed := gjson.ParseBytes(body)
	if msg := parsed.Get(PathError); msg.Exists() {
		return "", apierrors.NewBackendError(backendName, endpoint, msg.String())
	}

	text := parsed.Get(textPath)
	if !text.Exists() {
		return "", apierrors.NewBackendErrorWithCause(backendName, endpoint, "malformed response",
			fmt.Errorf("missing %s", textPath))
	}

	return text.String(), nil
}
