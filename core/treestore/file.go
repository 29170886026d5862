package treestore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"store-migrator/core/errs"
)

// FileStore serves a JSON export of the tree from disk. The file is read
// once, on first access.
type FileStore struct {
	path string

	once sync.Once
	root any
	err  error
}

// NewFileStore builds a store over the JSON file at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errs.FatalConfigf("treestore", "%w: source.path", errs.ErrMissingConfig)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errs.FatalConfig("treestore", err)
	}
	return &FileStore{path: path}, nil
}

// ReadSubtree walks path from the root of the export.
func (s *FileStore) ReadSubtree(ctx context.Context, path []string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.once.Do(func() {
		f, err := os.Open(s.path)
		if err != nil {
			s.err = err
			return
		}
		defer f.Close()
		s.root, s.err = decodeTree(f)
	})
	if s.err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.path, s.err)
	}

	return lookup(s.root, path), nil
}

func lookup(value any, path []string) any {
	current := value
	for _, seg := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[seg]
	}
	return current
}

// Open builds the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverRTDB:
		return NewRTDBStore(ctx, cfg)
	case DriverFile:
		return NewFileStore(cfg.Path)
	default:
		return nil, errs.FatalConfigf("treestore", "unsupported driver %q", cfg.Driver)
	}
}
