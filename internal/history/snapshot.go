package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/fsutil"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

// Snapshot is the persisted form of a Store
type Snapshot struct {
	Histories     map[string][]models.Message `json:"histories"`
	CurrentChatID *string                     `json:"currentChatId"`
}

// EmptySnapshot returns the snapshot used when nothing was saved yet
func EmptySnapshot() *Snapshot {
	return &Snapshot{Histories: map[string][]models.Message{}}
}

// Snapshot captures every session and the current pointer
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := EmptySnapshot()
	for id, msgs := range s.sessions {
		snap.Histories[id] = models.CloneMessages(msgs)
	}
	if s.current != "" {
		current := s.current
		snap.CurrentChatID = &current
	}
	return snap
}

// Restore replaces the store contents with snap. Restoring a Snapshot of a
// store reproduces that store exactly. An invalid snapshot leaves the store
// unchanged.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		snap = EmptySnapshot()
	}

	sessions := make(map[string][]models.Message, len(snap.Histories))
	for id, msgs := range snap.Histories {
		if err := validateID(id); err != nil {
			return err
		}
		for i, msg := range msgs {
			if err := msg.Validate(); err != nil {
				return apierrors.NewInputError("histories",
					fmt.Sprintf("session %s message %d: %v", id, i, err))
			}
		}
		sessions[id] = models.CloneMessages(msgs)
	}

	current := ""
	if snap.CurrentChatID != nil {
		current = *snap.CurrentChatID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = sessions
	s.current = current
	return nil
}

// Encode renders the snapshot as indented UTF-8 JSON with non-ASCII text
// kept as is.
func (snap *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot parses a persisted snapshot
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	snap := EmptySnapshot()
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	if snap.Histories == nil {
		snap.Histories = map[string][]models.Message{}
	}
	return snap, nil
}

// ReadSnapshot loads the snapshot at path. A missing file yields an empty
// snapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return EmptySnapshot(), nil
		}
		return nil, apierrors.NewStorageError("read", path, err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, apierrors.NewStorageError("parse", path, err)
	}
	return snap, nil
}

// WriteSnapshot writes snap to path atomically. A failed write leaves the
// previous file intact.
func WriteSnapshot(path string, snap *Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return apierrors.NewStorageError("encode", path, err)
	}
	if err := fsutil.WriteFile(path, data, 0o644); err != nil {
		return apierrors.NewStorageError("write", path, err)
	}
	return nil
}

// SaveFile persists the whole store to path
func (s *Store) SaveFile(path string) error {
	return WriteSnapshot(path, s.Snapshot())
}

// LoadFile replaces the store contents with the snapshot at path
func (s *Store) LoadFile(path string) error {
	snap, err := ReadSnapshot(path)
	if err != nil {
		return err
	}
	if err := s.Restore(snap); err != nil {
		return apierrors.NewStorageError("restore", path, fmt.Errorf("invalid snapshot: %s", err))
	}
	return nil
}

// FileSaver persists a Store to a fixed path after each turn
type FileSaver struct {
	Store *Store
	Path  string
}

// Save writes the store snapshot
func (f FileSaver) Save() error {
	return f.Store.SaveFile(f.Path)
}
