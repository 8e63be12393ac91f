package staging

import (
	"fmt"
	"sync"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/google/uuid"
)

// StagedFile is a payload held in the staging directory.
type StagedFile struct {
	ID   uuid.UUID
	Path string
}

// Registry maps identifiers to staged files. It is safe for concurrent use;
// entries are never mutated in place. Paths still being written are held
// separately until they are registered or released.
type Registry struct {
	mu      sync.RWMutex
	files   map[uuid.UUID]StagedFile
	paths   map[string]uuid.UUID
	writing map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		files:   make(map[uuid.UUID]StagedFile),
		paths:   make(map[string]uuid.UUID),
		writing: make(map[string]struct{}),
	}
}

// Hold marks path as being written.
func (r *Registry) Hold(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writing[path] = struct{}{}
}

// Release drops a hold taken with Hold.
func (r *Registry) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.writing, path)
}

// Claimed reports whether path is registered or held by a write in progress.
func (r *Registry) Claimed(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.writing[path]; ok {
		return true
	}
	_, ok := r.paths[path]
	return ok
}

// Register adds f. Reusing an identifier or a path that is already live is
// rejected with ErrAlreadyExists.
func (r *Registry) Register(f StagedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[f.ID]; ok {
		return fmt.Errorf("id %s: %w", f.ID, common.ErrAlreadyExists)
	}
	if _, ok := r.paths[f.Path]; ok {
		return fmt.Errorf("path %s: %w", f.Path, common.ErrAlreadyExists)
	}
	r.files[f.ID] = f
	r.paths[f.Path] = f.ID
	delete(r.writing, f.Path)
	return nil
}

func (r *Registry) Lookup(id uuid.UUID) (StagedFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[id]
	return f, ok
}

// Remove deletes the entry for id and returns it. Only one of several
// concurrent callers observes ok == true.
func (r *Registry) Remove(id uuid.UUID) (StagedFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return StagedFile{}, false
	}
	delete(r.files, id)
	delete(r.paths, f.Path)
	return f, true
}

// Snapshot returns a copy of the current entries in no particular order.
func (r *Registry) Snapshot() []StagedFile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StagedFile, 0, len(r.files))
	for _, f := range r.files {
		out = append(out, f)
	}
	return out
}

// ForEach calls fn for every entry of a snapshot taken on entry; fn may
// modify the registry. Iteration stops when fn returns false.
func (r *Registry) ForEach(fn func(StagedFile) bool) {
	for _, f := range r.Snapshot() {
		if !fn(f) {
			return
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}
