package models

import (
	"strings"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
)

// Backend selects which text-generation service handles a turn
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Backends returns every recognized backend
func Backends() []Backend {
	return []Backend{BackendLocal, BackendRemote}
}

func backendNames() []string {
	names := make([]string, 0, 2)
	for _, b := range Backends() {
		names = append(names, string(b))
	}
	return names
}

// ParseBackend converts a discriminator into a Backend.
// Matching is case-insensitive; anything else is an InvalidBackendError.
func ParseBackend(value string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(value))) {
	case BackendLocal:
		return BackendLocal, nil
	case BackendRemote:
		return BackendRemote, nil
	}
	return "", apierrors.NewInvalidBackendError(value, backendNames())
}

// RequestKind selects how the outgoing prompt is built
type RequestKind string

const (
	KindChat      RequestKind = "chat"
	KindTranslate RequestKind = "translate"
	KindAnalyze   RequestKind = "analyze"
)

// RequestKinds returns every recognized request kind
func RequestKinds() []RequestKind {
	return []RequestKind{KindChat, KindTranslate, KindAnalyze}
}

// ParseRequestKind converts a mode name into a RequestKind.
// An empty value means chat.
func ParseRequestKind(value string) (RequestKind, error) {
	switch RequestKind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindChat:
		return KindChat, nil
	case KindTranslate:
		return KindTranslate, nil
	case KindAnalyze:
		return KindAnalyze, nil
	}
	return "", apierrors.NewInputError("mode", "must be one of chat, translate, analyze")
}
