// Package ollama provides the client for the locally hosted model server.
package ollama

// GJSON paths for extracting values from model server responses.
const (
	// PathChatContent is the reply text of an /api/chat object
	PathChatContent = "message.content"
	// PathGenerateResponse is the reply text of an /api/generate object
	PathGenerateResponse = "response"
	// PathDone marks the final object of a stream
	PathDone = "done"
	// PathDoneReason explains why generation stopped (final object only)
	PathDoneReason = "done_reason"
	// PathError carries a server-side failure message
	PathError = "error"
	// PathVersion is the field returned by /api/version
	PathVersion = "version"
)
