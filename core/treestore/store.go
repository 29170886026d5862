package treestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"store-migrator/core/utils"
)

// Store is a read-only hierarchical JSON tree.
type Store interface {
	// ReadSubtree returns the value at path, or nil when nothing is stored
	// there. Numbers are int64 or float64.
	ReadSubtree(ctx context.Context, path []string) (any, error)
}

// Node is a value read from the tree together with its key path.
type Node struct {
	Path  []string
	Value any
}

// Key returns the last path segment, or "" for the root.
func (n Node) Key() string {
	if len(n.Path) == 0 {
		return ""
	}
	return n.Path[len(n.Path)-1]
}

// Read loads the node at path.
func Read(ctx context.Context, s Store, path ...string) (Node, error) {
	value, err := s.ReadSubtree(ctx, path)
	if err != nil {
		return Node{}, err
	}
	return Node{Path: path, Value: value}, nil
}

// ChildCount returns the number of non-null immediate children of a node.
func ChildCount(n Node) int {
	switch v := n.Value.(type) {
	case map[string]any:
		count := 0
		for _, child := range v {
			if child != nil {
				count++
			}
		}
		return count
	case []any:
		count := 0
		for _, child := range v {
			if child != nil {
				count++
			}
		}
		return count
	default:
		return 0
	}
}

func decodeTree(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	return utils.NormalizeJSON(value), nil
}
