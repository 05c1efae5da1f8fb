// Package config handles configuration and data directory layout for pdfchat.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

// Environment variables that override the config file
const (
	EnvHome      = "PDFCHAT_HOME"
	EnvOllamaURL = "OLLAMA_HOST"
	EnvAPIKey    = "DASHSCOPE_API_KEY"
)

const (
	configFileName  = "config.json"
	historyFileName = "chat_histories.json"
)

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	Style            string `json:"style"`              // "dark", "light", "notty" or path to JSON theme
	EnableEmoji      bool   `json:"enable_emoji"`       // Convert :emoji: to unicode
	PreserveNewLines bool   `json:"preserve_newlines"`  // Preserve original line breaks
	TableWrap        bool   `json:"table_wrap"`         // Enable word wrap in table cells
	InlineTableLinks bool   `json:"inline_table_links"` // Render links inline in tables
}

// Config represents the user configuration
type Config struct {
	// DefaultBackend is used when a command does not pass --backend.
	DefaultBackend string `json:"default_backend"`

	OllamaURL  string `json:"ollama_url"`
	LocalModel string `json:"local_model"`

	RemoteBaseURL string  `json:"remote_base_url"`
	RemoteModel   string  `json:"remote_model"`
	RemoteAPIKey  string  `json:"remote_api_key,omitempty"`
	SystemPrompt  string  `json:"system_prompt"`
	TopP          float64 `json:"top_p"`

	// RequestTimeout bounds each backend call, in seconds. Zero disables it.
	RequestTimeout int `json:"request_timeout"`
	// AutoSave writes the history snapshot after every successful turn.
	AutoSave bool `json:"auto_save"`
	// DataDir holds uploads and histories. Empty means the config directory.
	DataDir string `json:"data_dir,omitempty"`

	Verbose         bool           `json:"verbose"`
	CopyToClipboard bool           `json:"copy_to_clipboard"`
	Markdown        MarkdownConfig `json:"markdown,omitempty"`
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		Style:            "dark",
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
		InlineTableLinks: false,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		DefaultBackend: string(models.BackendLocal),
		OllamaURL:      models.DefaultOllamaURL,
		LocalModel:     models.DefaultLocalModel,
		RemoteBaseURL:  models.DefaultRemoteBaseURL,
		RemoteModel:    models.DefaultRemoteModel,
		SystemPrompt:   models.DefaultSystemPrompt,
		TopP:           models.DefaultRemoteTopP,
		RequestTimeout: 120,
		AutoSave:       true,
		Markdown:       DefaultMarkdownConfig(),
	}
}

// Timeout returns RequestTimeout as a duration
func (c Config) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// Validate checks the fields that the dispatcher depends on
func (c Config) Validate() error {
	if _, err := models.ParseBackend(c.DefaultBackend); err != nil {
		return fmt.Errorf("default_backend: %w", err)
	}
	if c.OllamaURL == "" {
		return fmt.Errorf("ollama_url cannot be empty")
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1, got %v", c.TopP)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	return nil
}

// ApplyEnv overrides config values from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvOllamaURL); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		c.OllamaURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.RemoteAPIKey = v
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".pdfchat"), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	// 0o700: the config may hold an API key
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFileName), nil
}

// GetDataDir returns the data directory for uploads and histories
func GetDataDir(cfg Config) (string, error) {
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return GetConfigDir()
}

// GetUploadDir returns the reference-file upload directory
func GetUploadDir(cfg Config) (string, error) {
	dir, err := GetDataDir(cfg)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "uploads"), nil
}

// GetHistoryPath returns the path of the persisted history snapshot
func GetHistoryPath(cfg Config) (string, error) {
	dir, err := GetDataDir(cfg)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "histories", historyFileName), nil
}

// LoadConfig loads the configuration from disk and applies env overrides
func LoadConfig() (Config, error) {
	cfg, err := LoadConfigFile()
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadConfigFile loads the configuration from disk without env overrides.
// `config set` uses it so environment secrets are never written back.
func LoadConfigFile() (Config, error) {
	cfg := DefaultConfig()

	configPath, err := GetConfigPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to disk
func SaveConfig(cfg Config) error {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(configDir, configFileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setters maps user-facing keys to field assignments for `config set`
var setters = map[string]func(*Config, string) error{
	"default_backend": func(c *Config, v string) error {
		b, err := models.ParseBackend(v)
		if err != nil {
			return err
		}
		c.DefaultBackend = string(b)
		return nil
	},
	"ollama_url":      func(c *Config, v string) error { c.OllamaURL = v; return nil },
	"local_model":     func(c *Config, v string) error { c.LocalModel = v; return nil },
	"remote_base_url": func(c *Config, v string) error { c.RemoteBaseURL = v; return nil },
	"remote_model":    func(c *Config, v string) error { c.RemoteModel = v; return nil },
	"remote_api_key":  func(c *Config, v string) error { c.RemoteAPIKey = v; return nil },
	"system_prompt":   func(c *Config, v string) error { c.SystemPrompt = v; return nil },
	"data_dir":        func(c *Config, v string) error { c.DataDir = v; return nil },
	"markdown.style":  func(c *Config, v string) error { c.Markdown.Style = v; return nil },
	"top_p": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("top_p: %w", err)
		}
		c.TopP = f
		return nil
	},
	"request_timeout": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		c.RequestTimeout = n
		return nil
	},
	"auto_save":         boolSetter(func(c *Config, b bool) { c.AutoSave = b }),
	"verbose":           boolSetter(func(c *Config, b bool) { c.Verbose = b }),
	"copy_to_clipboard": boolSetter(func(c *Config, b bool) { c.CopyToClipboard = b }),
}

func boolSetter(assign func(*Config, bool)) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", v)
		}
		assign(c, b)
		return nil
	}
}

// Set assigns a single key from its string form
func (c *Config) Set(key, value string) error {
	setter, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	return setter(c, value)
}

// Keys returns the settable config keys in sorted order
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
