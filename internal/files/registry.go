// Package files manages uploaded reference documents and the set of them
// that is active as backend context.
package files

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/fsutil"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

const (
	// MaxFileSize is the largest accepted upload
	MaxFileSize = 50 * 1024 * 1024 // 50MB

	stateFile = "active.json"
)

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}._\- ]+`)

// ReferenceFile describes one uploaded document
type ReferenceFile struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Active bool   `json:"active"`
}

// DeleteResult reports what Delete did. Removed is false when the file was
// already gone, which is not an error.
type DeleteResult struct {
	Path    string
	Removed bool
}

// Note returns a human-readable summary of the delete
func (r DeleteResult) Note() string {
	if r.Removed {
		return "file deleted"
	}
	return "file already absent"
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry tracks uploaded files and which of them are active. The active
// set is persisted next to the uploads so separate processes share it.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewRegistry opens the registry rooted at dir, creating it if needed
func NewRegistry(dir string, opts ...Option) (*Registry, error) {
	if dir == "" {
		return nil, apierrors.NewInputError("upload_dir", "cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierrors.NewStorageError("mkdir", dir, err)
	}

	r := &Registry{
		dir:    dir,
		logger: slog.Default(),
		active: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.loadState(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the upload directory
func (r *Registry) Dir() string {
	return r.dir
}

// SanitizeName reduces an uploaded filename to a safe base name
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ". ")
	return name
}

func checkExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range models.AllowedExtensions() {
		if ext == allowed {
			return nil
		}
	}
	return apierrors.NewFileTypeError(name, ext, models.AllowedExtensions())
}

// resolve maps a path, file name or URL-like reference to its location in
// the upload directory
func (r *Registry) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", apierrors.NewInputError("path", "cannot be empty")
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	name := SanitizeName(ref)
	if name == "" || name == "." || name == "/" {
		return "", apierrors.NewInputError("path", fmt.Sprintf("invalid file reference %q", ref))
	}
	return filepath.Join(r.dir, name), nil
}

// Upload stores the document read from src under a sanitised name. Only
// allow-listed extensions are accepted. The new file is not activated.
func (r *Registry) Upload(name string, src io.Reader) (*ReferenceFile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apierrors.NewInputError("filename", "cannot be empty")
	}
	clean := SanitizeName(name)
	if err := checkExtension(clean); err != nil {
		return nil, err
	}

	path := filepath.Join(r.dir, clean)
	limited := io.LimitReader(src, MaxFileSize+1)

	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := fsutil.WriteFrom(path+".partial", limited, 0o644)
	if err != nil {
		return nil, apierrors.NewStorageError("write", path, err)
	}
	if n > MaxFileSize {
		os.Remove(path + ".partial")
		return nil, apierrors.NewInputError("file", fmt.Sprintf("size exceeds maximum %d bytes", MaxFileSize))
	}
	if err := os.Rename(path+".partial", path); err != nil {
		os.Remove(path + ".partial")
		return nil, apierrors.NewStorageError("rename", path, err)
	}

	_, active := r.active[clean]
	r.logger.Info("reference file uploaded", "name", clean, "bytes", n)

	return &ReferenceFile{Name: clean, Path: path, Size: n, Active: active}, nil
}

// Activate adds the file to the active set. Activating an active file is a
// no-op.
func (r *Registry) Activate(ref string) (string, error) {
	path, err := r.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := checkExtension(path); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", apierrors.NewInputError("path", fmt.Sprintf("file %s has not been uploaded", filepath.Base(path)))
		}
		return "", apierrors.NewStorageError("stat", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := filepath.Base(path)
	if _, ok := r.active[name]; ok {
		return path, nil
	}
	r.active[name] = struct{}{}
	if err := r.saveState(); err != nil {
		delete(r.active, name)
		return "", err
	}
	r.logger.Debug("reference file activated", "path", path)
	return path, nil
}

// Deactivate removes the file from the active set. It is a no-op for
// inactive or unknown files.
func (r *Registry) Deactivate(ref string) (string, error) {
	path, err := r.resolve(ref)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.deactivateLocked(filepath.Base(path)); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Registry) deactivateLocked(name string) error {
	if _, ok := r.active[name]; !ok {
		return nil
	}
	delete(r.active, name)
	if err := r.saveState(); err != nil {
		r.active[name] = struct{}{}
		return err
	}
	r.logger.Debug("reference file deactivated", "name", name)
	return nil
}

// Delete deactivates the file and removes it from disk. A file that no
// longer exists is reported with Removed false rather than an error.
func (r *Registry) Delete(ref string) (DeleteResult, error) {
	path, err := r.resolve(ref)
	if err != nil {
		return DeleteResult{}, err
	}
	result := DeleteResult{Path: path}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.deactivateLocked(filepath.Base(path)); err != nil {
		return result, err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			r.logger.Info("reference file already absent", "path", path)
			return result, nil
		}
		return result, apierrors.NewStorageError("remove", path, err)
	}

	result.Removed = true
	r.logger.Info("reference file deleted", "path", path)
	return result, nil
}

// IsActive reports whether the file is in the active set
func (r *Registry) IsActive(ref string) bool {
	path, err := r.resolve(ref)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneMissingLocked()
	_, ok := r.active[filepath.Base(path)]
	return ok
}

// ListActive returns the paths of active files in sorted order. Files removed
// from disk behind the registry's back are dropped from the active set.
func (r *Registry) ListActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneMissingLocked()
	paths := make([]string, 0, len(r.active))
	for name := range r.active {
		paths = append(paths, filepath.Join(r.dir, name))
	}
	sort.Strings(paths)
	return paths
}

// List returns every uploaded document sorted by name
func (r *Registry) List() ([]ReferenceFile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, apierrors.NewStorageError("list", r.dir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ReferenceFile
	for _, entry := range entries {
		if entry.IsDir() || checkExtension(entry.Name()) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed while listing
		}
		_, active := r.active[entry.Name()]
		out = append(out, ReferenceFile{
			Name:   entry.Name(),
			Path:   filepath.Join(r.dir, entry.Name()),
			Size:   info.Size(),
			Active: active,
		})
	}
	return out, nil
}

// Internal methods

func (r *Registry) statePath() string {
	return filepath.Join(r.dir, stateFile)
}

func (r *Registry) loadState() error {
	data, err := os.ReadFile(r.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apierrors.NewStorageError("read", r.statePath(), err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return apierrors.NewStorageError("parse", r.statePath(), err)
	}
	for _, name := range names {
		r.active[name] = struct{}{}
	}
	r.pruneMissingLocked()
	return nil
}

// pruneMissingLocked drops active entries whose file no longer exists and
// persists the result. A failed save is logged; the in-memory set stays pruned.
func (r *Registry) pruneMissingLocked() {
	var pruned []string
	for name := range r.active {
		if _, err := os.Stat(filepath.Join(r.dir, name)); os.IsNotExist(err) {
			delete(r.active, name)
			pruned = append(pruned, name)
		}
	}
	if len(pruned) == 0 {
		return
	}

	sort.Strings(pruned)
	r.logger.Warn("active reference files missing from disk", "names", pruned)
	if err := r.saveState(); err != nil {
		r.logger.Warn("failed to persist active set", "error", err)
	}
}

func (r *Registry) saveState() error {
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)

	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return apierrors.NewStorageError("encode", r.statePath(), err)
	}
	if err := fsutil.WriteFile(r.statePath(), data, 0o644); err != nil {
		return apierrors.NewStorageError("write", r.statePath(), err)
	}
	return nil
}
