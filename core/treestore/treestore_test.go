package treestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"store-migrator/core/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRTDB(t *testing.T, handler http.HandlerFunc, retries int) *RTDBStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewRTDBStore(context.Background(), Config{URL: srv.URL, MaxRetries: retries}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return s
}

func TestRTDBStore_ReadSubtree(t *testing.T) {
	var gotPath string
	s := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"u1":{"name":"Ann","age":31,"score":1.5},"u2":null}`))
	}, 0)

	value, err := s.ReadSubtree(context.Background(), []string{"users"})
	require.NoError(t, err)
	assert.Equal(t, "/users.json", gotPath)
	assert.Equal(t, map[string]any{
		"u1": map[string]any{"name": "Ann", "age": int64(31), "score": 1.5},
		"u2": nil,
	}, value)
}

func TestRTDBStore_NullIsAbsent(t *testing.T) {
	s := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}, 0)

	node, err := Read(context.Background(), s, "missing")
	require.NoError(t, err)
	assert.Nil(t, node.Value)
	assert.Equal(t, "missing", node.Key())
}

func TestRTDBStore_RetriesTransient(t *testing.T) {
	var calls int32
	s := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"a":1}`))
	}, 3)

	value, err := s.ReadSubtree(context.Background(), []string{"posts"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRTDBStore_Unauthorized(t *testing.T) {
	var calls int32
	s := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}, 3)

	_, err := s.ReadSubtree(context.Background(), []string{"users"})
	assert.True(t, errs.IsFatalConfig(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "permanent errors are not retried")
}

func TestNewRTDBStore_Config(t *testing.T) {
	_, err := NewRTDBStore(context.Background(), Config{})
	assert.True(t, errs.IsFatalConfig(err))

	_, err = NewRTDBStore(context.Background(), Config{URL: "::not a url"})
	assert.True(t, errs.IsFatalConfig(err))
}

func TestRTDBStore_Endpoint(t *testing.T) {
	s := &RTDBStore{baseURL: "https://x.firebaseio.com"}
	assert.Equal(t, "https://x.firebaseio.com/chats/a%20b/messages.json", s.endpoint([]string{"chats", "a b", "messages"}))
	assert.Equal(t, "https://x.firebaseio.com/.json", s.endpoint(nil))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users":{"u1":{"name":"Ann"}},"usernames":{"ann":"u1"}}`), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	node, err := Read(context.Background(), s, "users")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"u1": map[string]any{"name": "Ann"}}, node.Value)
	assert.Equal(t, 1, ChildCount(node))

	value, err := s.ReadSubtree(context.Background(), []string{"users", "u1", "name"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", value)

	value, err = s.ReadSubtree(context.Background(), []string{"users", "u1", "name", "deeper"})
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestFileStore_Missing(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, errs.IsFatalConfig(err))
}

func TestOpen(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "ftp"})
	assert.True(t, errs.IsFatalConfig(err))
}

func TestChildCount(t *testing.T) {
	assert.Equal(t, 2, ChildCount(Node{Value: []any{"a", nil, "b"}}))
	assert.Equal(t, 0, ChildCount(Node{Value: "scalar"}))
}
