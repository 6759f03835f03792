package embcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/domain"
)

type mockEmbedder struct {
	mu      sync.Mutex
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	calls   map[string]int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[text]++
	m.mu.Unlock()

	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: vectorFor(text)}, nil
}

func (m *mockEmbedder) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// vectorFor derives a deterministic 3-dim vector from text.
func vectorFor(text string) []float32 {
	return []float32{float32(len(text)), 0.5, -1}
}

// mockShared is an in-memory sharedcache.Cache.
type mockShared struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	down bool
	gets int
}

func newMockShared() *mockShared {
	return &mockShared{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockShared) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.down {
		return nil, false
	}
	v, ok := m.data[key]
	return v, ok
}

func (m *mockShared) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return
	}
	m.data[key] = value
	m.ttls[key] = ttl
}

func newTestCache(t *testing.T, emb *mockEmbedder, shared *mockShared, opts Options) *Cache {
	t.Helper()
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "test:emb:"
	}
	c, err := New(emb, shared, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}
