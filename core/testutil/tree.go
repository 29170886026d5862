package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"store-migrator/core/utils"
)

// MemoryTree is an in-memory treestore.Store built from a JSON literal.
type MemoryTree struct {
	root any
}

// NewMemoryTree parses raw as the whole tree.
func NewMemoryTree(t *testing.T, raw string) *MemoryTree {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		t.Fatalf("Failed to parse tree: %v", err)
	}
	return &MemoryTree{root: utils.NormalizeJSON(root)}
}

func (m *MemoryTree) ReadSubtree(_ context.Context, path []string) (any, error) {
	current := m.root
	for _, seg := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, nil
		}
		current = node[seg]
	}
	return current, nil
}
