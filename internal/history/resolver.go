package history

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
)

// Resolver resolves user-friendly references to session IDs
type Resolver struct {
	store *Store
}

// NewResolver creates a new reference resolver
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve converts a user-friendly reference to a session ID
//
// Supported references:
//   - "@current" - the current session
//   - "@last" - the newest generated (uuid v7) session, else the lexically last id
//   - "1", "2", "3" - by index (1-based, lexical order)
//   - anything else - exact session id
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", apierrors.NewInputError("session", "empty reference")
	}

	switch strings.ToLower(ref) {
	case "@current":
		id, ok := r.store.Current()
		if !ok {
			return "", apierrors.NewSessionNotFoundError(ref)
		}
		return id, nil
	case "@last":
		id, ok := r.newest()
		if !ok {
			return "", apierrors.NewSessionNotFoundError(ref)
		}
		return id, nil
	}

	if r.store.Exists(ref) {
		return ref, nil
	}

	if index, err := strconv.Atoi(ref); err == nil {
		ids := r.store.IDs()
		if index < 1 || index > len(ids) {
			return "", apierrors.NewInputError("session",
				fmt.Sprintf("index %d out of range (1-%d)", index, len(ids)))
		}
		return ids[index-1], nil
	}

	return "", apierrors.NewSessionNotFoundError(ref)
}

// newest returns the session with the latest uuid v7 id. User-named
// sessions carry no creation time, so they are only considered when no
// generated id exists.
func (r *Resolver) newest() (string, bool) {
	ids := r.store.IDs()
	if len(ids) == 0 {
		return "", false
	}

	var (
		best   uuid.UUID
		bestID string
	)
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil || u.Version() != 7 {
			continue
		}
		// the leading 48 bits are a millisecond timestamp
		if bestID == "" || bytes.Compare(u[:], best[:]) > 0 {
			best, bestID = u, id
		}
	}
	if bestID != "" {
		return bestID, true
	}
	return ids[len(ids)-1], true
}

// ListAliases returns information about supported references
func ListAliases() string {
	return `Supported references:
  @current       The current session
  @last          The newest generated session (the lexically last id if
                 all sessions are user-named)
  1, 2, 3        By index (1-based, as shown by 'history list')
  <id>           Exact session id`
}
