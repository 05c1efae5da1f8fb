// Package models contains data types and constants shared by the pdfchat backends.
package models

// Local model server endpoints (paths relative to the server base URL)
const (
	DefaultOllamaURL = "http://localhost:11434"
	EndpointChat     = "/api/chat"
	EndpointGenerate = "/api/generate"
)

// Remote agent service defaults (OpenAI-compatible DashScope mode)
const (
	DefaultRemoteBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultRemoteModel   = "qwen-max"
	DefaultRemoteTopP    = 0.8
)

// DefaultLocalModel is the model requested from the local server
const DefaultLocalModel = "llama3.2"

// DefaultSystemPrompt is sent as the first message to the remote agent
const DefaultSystemPrompt = "你是一个有帮助的助手，可以帮助用户进行翻译、解析和对话。请直接回答用户的问题，无需解释你的角色。"

// DefaultSessionID is used when a caller does not name a session
const DefaultSessionID = "default"

// AllowedExtensions lists the upload extensions accepted as reference files
func AllowedExtensions() []string {
	return []string{".pdf"}
}

// DefaultHeaders returns the headers sent with every local backend request
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/x-ndjson, application/json",
		"User-Agent":   "pdfchat/0.1",
	}
}
