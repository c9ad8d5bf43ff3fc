package session

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redcentre/carbonsvc/internal/store"
)

// spyStore counts durable reads and writes.
type spyStore struct {
	store.StateStore
	reads  atomic.Int32
	writes atomic.Int32
}

func (s *spyStore) Read(ctx context.Context, id string) ([][]byte, error) {
	s.reads.Add(1)
	return s.StateStore.Read(ctx, id)
}

func (s *spyStore) Write(ctx context.Context, id string, index int, data []byte) error {
	s.writes.Add(1)
	return s.StateStore.Write(ctx, id, index, data)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestCache(t *testing.T, sliding time.Duration) (*Cache, *spyStore, *store.SQLiteStore) {
	t.Helper()
	db := newTestSQLite(t)
	spy := &spyStore{StateStore: db}
	return NewCache(spy, sliding, testLogger()), spy, db
}
