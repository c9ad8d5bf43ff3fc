package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redcentre/carbonsvc/internal/model"
	"github.com/redcentre/carbonsvc/internal/store"
)

// AnonymousSessionID is the pseudo-session that collects activity recorded
// against an empty or unknown session id.
const AnonymousSessionID = "(anonymous)"

// ErrNotFound is returned when a session id is not live.
var ErrNotFound = errors.New("session not found")

// StartRequest carries the identity copied into a new session record.
type StartRequest struct {
	// SessionID reuses an id; a new one is generated when empty.
	SessionID string
	UserID    string
	UserName  string
	Roles     []string
	Customers []model.CustomerKey
}

// CleanupResult summarizes a Cleanup pass.
type CleanupResult struct {
	Expired    []string `json:"expired"`
	Orphans    []string `json:"orphans"`
	BytesFreed int64    `json:"bytes_freed"`
}

// Manager owns the live session records. Records are persisted on every
// change and reloaded by NewManager.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*model.SessionRecord

	store  store.SessionStore
	cache  *Cache
	now    func() time.Time
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager loads the persisted records from st.
func NewManager(ctx context.Context, st store.SessionStore, cache *Cache, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		sessions: make(map[string]*model.SessionRecord),
		store:    st,
		cache:    cache,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}

	recs, err := st.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, rec := range recs {
		m.sessions[rec.SessionID] = rec
	}
	activeSessions.Set(float64(len(m.sessions)))
	logger.Info("sessions loaded", "count", len(recs))
	return m, nil
}

// Start adds a session record, or replaces the record with the same id.
// replaced reports which happened.
func (m *Manager) Start(ctx context.Context, req StartRequest) (rec *model.SessionRecord, replaced bool, err error) {
	id := req.SessionID
	if id == "" {
		id = model.NewSessionID()
	}
	rec = &model.SessionRecord{
		SessionID:           id,
		UserID:              req.UserID,
		UserName:            req.UserName,
		Roles:               append([]string{}, req.Roles...),
		CustomerStorageKeys: append([]model.CustomerKey(nil), req.Customers...),
		CreatedAt:           m.now(),
	}

	m.mu.Lock()
	_, replaced = m.sessions[id]
	m.sessions[id] = rec
	activeSessions.Set(float64(len(m.sessions)))
	snapshot := rec.Clone()
	m.mu.Unlock()

	if replaced {
		if _, err := m.cache.Delete(ctx, id); err != nil {
			return nil, false, fmt.Errorf("clear state of replaced session %s: %w", id, err)
		}
	}
	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return nil, false, err
	}
	m.logger.Info("session started", "session_id", id, "user_id", req.UserID, "replaced", replaced)
	return snapshot, replaced, nil
}

// End removes the session record and deletes its state. The state is deleted
// even when no record exists, in which case ErrNotFound is returned alongside
// the bytes freed.
func (m *Manager) End(ctx context.Context, sessionID string) (int64, error) {
	freed, err := m.cache.Delete(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	activeSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if !ok {
		return freed, ErrNotFound
	}
	if err := m.store.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return freed, err
	}
	m.logger.Info("session ended", "session_id", sessionID, "bytes_freed", freed)
	return freed, nil
}

// SetCustomerJob records the customer, job and vartree the session has open.
func (m *Manager) SetCustomerJob(ctx context.Context, sessionID, customer, job, vartree string) error {
	return m.update(ctx, sessionID, func(rec *model.SessionRecord) {
		rec.OpenCustomerName = customer
		rec.OpenJobName = job
		rec.OpenVartreeName = vartree
		rec.LastActivity = fmt.Sprintf("Open %s:%s", orNull(customer), orNull(job))
	})
}

// SetReportName records the report the session has loaded.
func (m *Manager) SetReportName(ctx context.Context, sessionID, name string) error {
	return m.update(ctx, sessionID, func(rec *model.SessionRecord) {
		rec.OpenReportName = name
		rec.LastActivity = "Load " + orNull(name)
	})
}

// UpdateActivity records an activity against the session, or against the
// anonymous pseudo-session when the id is empty or unknown.
func (m *Manager) UpdateActivity(ctx context.Context, sessionID, description string) error {
	m.mu.Lock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		rec, ok = m.sessions[AnonymousSessionID]
		if !ok {
			rec = &model.SessionRecord{SessionID: AnonymousSessionID, Roles: []string{}, CreatedAt: m.now()}
			m.sessions[AnonymousSessionID] = rec
			activeSessions.Set(float64(len(m.sessions)))
		}
	}
	m.touch(rec, description)
	snapshot := rec.Clone()
	m.mu.Unlock()

	return m.store.SaveSession(ctx, snapshot)
}

// update applies fn to a live record, counts the activity and persists it.
func (m *Manager) update(ctx context.Context, sessionID string, fn func(*model.SessionRecord)) error {
	m.mu.Lock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	fn(rec)
	m.touch(rec, rec.LastActivity)
	snapshot := rec.Clone()
	m.mu.Unlock()

	return m.store.SaveSession(ctx, snapshot)
}

// touch must be called with m.mu held.
func (m *Manager) touch(rec *model.SessionRecord, description string) {
	now := m.now()
	rec.ActivityCount++
	rec.LastActivity = description
	rec.LastActivityAt = &now
}

// Find returns a copy of the live record.
func (m *Manager) Find(sessionID string) (*model.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// FindForUser returns copies of the records belonging to a user id.
func (m *Manager) FindForUser(userID string) []*model.SessionRecord {
	return m.filter(func(rec *model.SessionRecord) bool { return rec.UserID == userID })
}

// FindForUserName returns copies of the records whose user name matches,
// ignoring case.
func (m *Manager) FindForUserName(userName string) []*model.SessionRecord {
	return m.filter(func(rec *model.SessionRecord) bool { return strings.EqualFold(rec.UserName, userName) })
}

// List returns copies of all live records ordered by creation time.
func (m *Manager) List() []*model.SessionRecord {
	return m.filter(func(*model.SessionRecord) bool { return true })
}

// Len returns the number of live records.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) filter(keep func(*model.SessionRecord) bool) []*model.SessionRecord {
	m.mu.Lock()
	out := make([]*model.SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Cleanup ends sessions idle for at least olderThan, then drops records that
// have no durable state left. Records with no activity yet are never expired
// by age. The anonymous pseudo-session is kept.
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupResult, error) {
	res := CleanupResult{Expired: []string{}, Orphans: []string{}}
	now := m.now()

	for _, rec := range m.List() {
		if rec.SessionID == AnonymousSessionID || rec.LastActivityAt == nil {
			continue
		}
		if now.Sub(*rec.LastActivityAt) < olderThan {
			continue
		}
		freed, err := m.End(ctx, rec.SessionID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return res, fmt.Errorf("expire session %s: %w", rec.SessionID, err)
		}
		res.Expired = append(res.Expired, rec.SessionID)
		res.BytesFreed += freed
	}

	for _, rec := range m.List() {
		if rec.SessionID == AnonymousSessionID {
			continue
		}
		ok, err := m.cache.Exists(ctx, rec.SessionID)
		if err != nil {
			return res, fmt.Errorf("check session %s: %w", rec.SessionID, err)
		}
		if ok {
			continue
		}
		m.mu.Lock()
		delete(m.sessions, rec.SessionID)
		activeSessions.Set(float64(len(m.sessions)))
		m.mu.Unlock()
		if err := m.store.DeleteSession(ctx, rec.SessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return res, fmt.Errorf("remove orphan %s: %w", rec.SessionID, err)
		}
		res.Orphans = append(res.Orphans, rec.SessionID)
	}

	if len(res.Expired) > 0 || len(res.Orphans) > 0 {
		m.logger.Info("sessions cleaned", "expired", len(res.Expired), "orphans", len(res.Orphans), "bytes_freed", res.BytesFreed)
	}
	return res, nil
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
