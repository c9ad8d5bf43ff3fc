package store

import (
	"context"
	"errors"

	"github.com/redcentre/carbonsvc/internal/model"
)

// ErrNotFound is returned when a session record is not found.
var ErrNotFound = errors.New("not found")

// StateStore is the durable per-session blob store behind the session state
// cache. Blobs are addressed by session id and a zero-based index.
type StateStore interface {
	// Write stores one blob, replacing any previous blob at that index.
	Write(ctx context.Context, sessionID string, index int, data []byte) error

	// Read returns all blobs of a session in index order. Missing indexes and
	// empty blobs come back as nil. A session with no blobs yields an empty slice.
	Read(ctx context.Context, sessionID string) ([][]byte, error)

	// Truncate removes the blobs at index n and above, so that a shorter save
	// replaces a longer one.
	Truncate(ctx context.Context, sessionID string, n int) error

	// Delete removes every blob of a session and returns the number of bytes
	// freed. Deleting an unknown session returns 0.
	Delete(ctx context.Context, sessionID string) (int64, error)

	// Exists reports whether any blob is stored for the session.
	Exists(ctx context.Context, sessionID string) (bool, error)

	Close() error
}

// SessionStore persists the live session records so they survive restarts.
type SessionStore interface {
	SaveSession(ctx context.Context, rec *model.SessionRecord) error
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]*model.SessionRecord, error)
	Close() error
}
