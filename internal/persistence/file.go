package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileStore is the default file-backed Store realization. Each
// (namespace, entityId) maps to one file under root/namespace/entityId.
type FileStore struct {
	root string
	log  zerolog.Logger
	mu   sync.Mutex // serializes writes within this process; cross-process safety relies on rename atomicity
}

// NewFileStore builds a FileStore rooted at root (default ./logs/data
// per spec.md §6).
func NewFileStore(root string, log zerolog.Logger) *FileStore {
	return &FileStore{root: root, log: log}
}

func (s *FileStore) path(namespace, entityID string) string {
	return filepath.Join(s.root, namespace, entityID)
}

// Read returns the bytes stored at (namespace, entityID), or ErrNotFound.
func (s *FileStore) Read(_ context.Context, namespace, entityID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(namespace, entityID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persistence: read %s/%s: %w", namespace, entityID, err)
	}
	return data, nil
}

// Write atomically replaces the value at (namespace, entityID).
//
// POSIX: write to a uniquely-named temp file in the same directory,
// fsync it, then rename over the target — rename is atomic on the same
// filesystem, so a concurrent reader never observes a partial write.
// Non-POSIX (detected via runtime.GOOS): write the target file directly,
// fsync, close — a weaker guarantee, acknowledged by spec.md §4.4.
func (s *FileStore) Write(_ context.Context, namespace, entityID string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: mkdir %s: %w", dir, err)
	}
	target := filepath.Join(dir, entityID)

	if runtime.GOOS == "windows" {
		return s.writeDirect(target, value)
	}
	return s.writeAtomic(dir, target, value)
}

func (s *FileStore) writeAtomic(dir, target string, value []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-"+strconv.FormatInt(time.Now().UnixNano(), 36)+"-*")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persistence: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("persistence: rename into place: %w", err)
	}
	return nil
}

func (s *FileStore) writeDirect(target string, value []byte) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("persistence: open %s: %w", target, err)
	}
	if _, err := f.Write(value); err != nil {
		f.Close()
		return fmt.Errorf("persistence: write %s: %w", target, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("persistence: fsync %s: %w", target, err)
	}
	return f.Close()
}

// Remove deletes the entry at (namespace, entityID). Missing entries are
// not an error.
func (s *FileStore) Remove(_ context.Context, namespace, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(namespace, entityID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("persistence: remove %s/%s: %w", namespace, entityID, err)
	}
	return nil
}

// List returns every entityId under namespace.
func (s *FileStore) List(_ context.Context, namespace string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: list %s: %w", namespace, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// Init walks every namespace directory under root and repairs entries
// that fail to deserialize: logged, then removed. Live mode continues
// (spec.md §4.4/§7: PersistenceCorruption is never fatal).
func (s *FileStore) Init(ctx context.Context, verify func(namespace, entityID string, value []byte) error) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.MkdirAll(s.root, 0o755)
	}

	var namespaces []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			rel, relErr := filepath.Rel(s.root, path)
			if relErr == nil && rel != "." {
				// Leaf directories (namespaces) are those that directly
				// contain at least one non-directory entry; intermediate
				// path segments are walked but not treated as namespaces.
				entries, _ := os.ReadDir(path)
				for _, e := range entries {
					if !e.IsDir() {
						namespaces = append(namespaces, rel)
						break
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persistence: scan root: %w", err)
	}

	for _, ns := range namespaces {
		ids, err := s.List(ctx, ns)
		if err != nil {
			s.log.Warn().Err(err).Str("namespace", ns).Msg("failed to list namespace during recovery scan")
			continue
		}
		for _, id := range ids {
			data, err := s.Read(ctx, ns, id)
			if err != nil {
				continue
			}
			if verify == nil {
				continue
			}
			if verifyErr := verify(ns, id, data); verifyErr != nil {
				s.log.Warn().Err(verifyErr).Str("namespace", ns).Str("entityId", id).
					Msg("corrupt persisted entry removed during recovery scan")
				if rmErr := s.Remove(ctx, ns, id); rmErr != nil {
					s.log.Error().Err(rmErr).Str("namespace", ns).Str("entityId", id).
						Msg("failed to remove corrupt entry")
				}
			}
		}
	}
	return nil
}
