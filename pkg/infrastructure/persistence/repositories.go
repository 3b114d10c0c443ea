// Package persistence provides the storage adapters for parent aggregates:
// a JSON-file store for single-node setups and a SQL document store for
// SQLite and Postgres.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/resource"
)

// ---------------------------------------------------------------------------
// Generic JSON file store: reusable building block
// ---------------------------------------------------------------------------

// JSONStore keeps one JSON file per item under baseDir. The in-memory cache
// holds encoded bytes, so every Get hands out an independent copy.
type JSONStore[T any] struct {
	baseDir string
	items   map[domain.EntityID][]byte
	mu      sync.RWMutex
}

// NewJSONStore creates baseDir if needed.
func NewJSONStore[T any](baseDir string) (*JSONStore[T], error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", baseDir, err)
	}
	return &JSONStore[T]{
		baseDir: baseDir,
		items:   make(map[domain.EntityID][]byte),
	}, nil
}

// Load reads all JSON files from the base directory into memory. Files that
// fail to decode are skipped.
func (s *JSONStore[T]) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}

		id := domain.EntityID(strings.TrimSuffix(entry.Name(), ".json"))
		s.items[id] = data
	}

	return nil
}

// Get decodes a fresh copy of the item stored under id.
func (s *JSONStore[T]) Get(id domain.EntityID) (*T, bool, error) {
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", id, err)
	}
	return &item, true, nil
}

// Put writes item to disk (temp file + rename) and then to memory.
func (s *JSONStore[T]) Put(id domain.EntityID, item *T) error {
	if err := validFileID(id); err != nil {
		return err
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, string(id)+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	s.items[id] = data
	return nil
}

// Remove deletes an item from memory and disk.
func (s *JSONStore[T]) Remove(id domain.EntityID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	if err := os.Remove(filepath.Join(s.baseDir, string(id)+".json")); err != nil && !os.IsNotExist(err) {
		return true, fmt.Errorf("remove %s: %w", id, err)
	}
	delete(s.items, id)
	return true, nil
}

// All decodes every item, ordered by id.
func (s *JSONStore[T]) All() ([]*T, error) {
	s.mu.RLock()
	ids := make([]domain.EntityID, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]*T, 0, len(ids))
	for _, id := range ids {
		item, ok, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, item)
		}
	}
	return result, nil
}

func (s *JSONStore[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Sweep removes temp files left behind by interrupted writes and returns how
// many were removed.
func (s *JSONStore[T]) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.baseDir, "*.json.tmp"))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return len(matches), nil
}

func validFileID(id domain.EntityID) error {
	s := string(id)
	if id.IsZero() || strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
		return domain.BadRequestf("invalid id %q", s)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resource repository: file backed
// ---------------------------------------------------------------------------

// FileResourceRepository is the filesystem-backed resource.Repository.
type FileResourceRepository struct {
	store *JSONStore[resource.Resource]
}

// NewFileResourceRepository opens (or creates) baseDir/resources.
func NewFileResourceRepository(baseDir string) (*FileResourceRepository, error) {
	store, err := NewJSONStore[resource.Resource](filepath.Join(baseDir, "resources"))
	if err != nil {
		return nil, err
	}
	if err := store.Load(); err != nil {
		return nil, err
	}
	return &FileResourceRepository{store: store}, nil
}

func (r *FileResourceRepository) FindByID(ctx context.Context, id domain.EntityID) (*resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, ok, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.DomainNotFoundError{ID: id}
	}
	return res, nil
}

func (r *FileResourceRepository) FindAll(ctx context.Context) ([]*resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.All()
}

func (r *FileResourceRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.store.Count(), nil
}

func (r *FileResourceRepository) Save(ctx context.Context, res *resource.Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.store.Put(res.ID(), res)
}

func (r *FileResourceRepository) Delete(ctx context.Context, id domain.EntityID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := r.store.Remove(id)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.DomainNotFoundError{ID: id}
	}
	return nil
}

// Optimize sweeps temp files; the file store has nothing else to compact.
func (r *FileResourceRepository) Optimize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.store.Sweep()
	return err
}

func (r *FileResourceRepository) Close() error { return nil }

var _ Store = (*FileResourceRepository)(nil)
