package matchcache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/db"
	"github.com/kailas-cloud/lensmatch/internal/domain"
)

type mockSearcher struct {
	matches []domain.VisualMatch
	err     error
	calls   int
}

func (m *mockSearcher) Search(_ context.Context, _ domain.SearchQuery) ([]domain.VisualMatch, error) {
	m.calls++
	return m.matches, m.err
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	data   map[string][]byte
	getErr error
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func newTestCachedSearcher(inner *mockSearcher) (*CachedSearcher, *mockKVStore) {
	ms := &mockKVStore{data: map[string][]byte{}}
	return New(inner, ms, time.Hour, nil, zap.NewNop()), ms
}
