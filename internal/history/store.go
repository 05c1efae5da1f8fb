// Package history provides in-memory chat sessions with snapshot persistence.
package history

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

// Session is a copy of one conversation's state
type Session struct {
	ID       string           `json:"id" yaml:"id"`
	Messages []models.Message `json:"messages" yaml:"messages"`
}

// Option configures a Store
type Option func(*Store)

// WithImplicitCreate controls whether unknown ids create a session on first
// reference. It is enabled by default.
func WithImplicitCreate(enabled bool) Option {
	return func(s *Store) {
		s.implicitCreate = enabled
	}
}

// Store holds every session of the process. Sessions never expire.
type Store struct {
	mu             sync.RWMutex
	sessions       map[string][]models.Message
	current        string
	implicitCreate bool

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:       make(map[string][]models.Message),
		locks:          make(map[string]*sync.Mutex),
		implicitCreate: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSessionID returns a fresh, time-ordered session id
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apierrors.NewInputError("session_id", "cannot be empty")
	}
	return nil
}

// GetOrCreate returns the session for id, creating it when implicit creation
// is enabled. Concurrent callers for the same id observe a single insertion.
func (s *Store) GetOrCreate(id string) (*Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.sessions[id]
	if !ok {
		if !s.implicitCreate {
			return nil, apierrors.NewSessionNotFoundError(id)
		}
		msgs = []models.Message{}
		s.sessions[id] = msgs
	}

	return &Session{ID: id, Messages: models.CloneMessages(msgs)}, nil
}

// Create adds an empty session. Creating an existing id is a no-op.
func (s *Store) Create(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = []models.Message{}
	}
	return nil
}

// Get returns the session for id without creating it
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.sessions[id]
	if !ok {
		return nil, apierrors.NewSessionNotFoundError(id)
	}
	return &Session{ID: id, Messages: models.CloneMessages(msgs)}, nil
}

// Exists reports whether a session with id is known
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Append adds msgs to the end of the session in order. Either every message
// is appended or, on error, none is.
func (s *Store) Append(id string, msgs ...models.Message) error {
	if err := validateID(id); err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return apierrors.NewInputError("message", err.Error())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[id]
	if !ok && !s.implicitCreate {
		return apierrors.NewSessionNotFoundError(id)
	}

	next := make([]models.Message, 0, len(existing)+len(msgs))
	next = append(next, existing...)
	next = append(next, msgs...)
	s.sessions[id] = next
	return nil
}

// Messages returns a copy of the session transcript
func (s *Store) Messages(id string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.sessions[id]
	if !ok {
		return nil, apierrors.NewSessionNotFoundError(id)
	}
	return models.CloneMessages(msgs), nil
}

// Lock acquires the per-session turn lock and returns its release func.
// Turns on the same id run one at a time; distinct ids never contend.
func (s *Store) Lock(id string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// IDs returns every session id in lexical order
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Delete removes a session. Deleting the current session clears the pointer.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return apierrors.NewSessionNotFoundError(id)
	}
	delete(s.sessions, id)
	if s.current == id {
		s.current = ""
	}
	return nil
}

// Clear removes every session and the current pointer
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string][]models.Message)
	s.current = ""
}

// Current returns the id of the session the user last worked in
func (s *Store) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != ""
}

// SetCurrent points the current-session marker at id. An empty id clears it.
func (s *Store) SetCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.sessions[id]; !ok {
			return apierrors.NewSessionNotFoundError(id)
		}
	}
	s.current = id
	return nil
}
