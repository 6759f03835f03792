package product

import (
	"context"
	"testing"

	"github.com/kailas-cloud/prodmatch/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	data      map[string]string
	jsonGetFn func(ctx context.Context, key string, paths ...string) ([]byte, error)
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return []byte("[" + v + "]"), nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "prodmatch:"), ms
}
