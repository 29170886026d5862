package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"store-migrator/core/storage"
)

// MemoryBucket is an in-memory storage.Bucket.
type MemoryBucket struct {
	name string

	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]storage.Metadata
	writes   map[string]int

	// WriteHook runs before an upload. A non-nil error fails it.
	WriteHook func(name string) error
	// ExistsHook runs before an existence check. A non-nil error fails it.
	ExistsHook func(name string) error
}

// NewMemoryBucket returns an empty bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:     name,
		objects:  map[string][]byte{},
		metadata: map[string]storage.Metadata{},
		writes:   map[string]int{},
	}
}

// Put stores an object directly.
func (b *MemoryBucket) Put(name, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = []byte(content)
}

// Content returns an object's bytes and whether it exists.
func (b *MemoryBucket) Content(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	return string(data), ok
}

// Metadata returns the metadata an object was uploaded with.
func (b *MemoryBucket) Metadata(name string) storage.Metadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metadata[name]
}

// Writes returns how many times an object was uploaded.
func (b *MemoryBucket) Writes(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[name]
}

// Names returns every object name, sorted.
func (b *MemoryBucket) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.objects))
	for name := range b.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *MemoryBucket) Name() string { return b.name }

func (b *MemoryBucket) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []storage.ObjectInfo
	for name, data := range b.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, storage.ObjectInfo{Bucket: b.name, Name: name, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *MemoryBucket) Exists(_ context.Context, name string) (bool, error) {
	if b.ExistsHook != nil {
		if err := b.ExistsHook(name); err != nil {
			return false, err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[name]
	return ok, nil
}

func (b *MemoryBucket) Read(_ context.Context, name string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %s not found", name)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

func (b *MemoryBucket) Write(_ context.Context, name string, r io.Reader, _ int64, meta storage.Metadata) error {
	if b.WriteHook != nil {
		if err := b.WriteHook(name); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = data
	b.metadata[name] = meta
	b.writes[name]++
	return nil
}

func (b *MemoryBucket) Remove(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
	return nil
}
