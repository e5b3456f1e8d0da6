package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrSessionNotFound = errors.New("session not found")

// SnapshotStore persists the last known snapshot of each session. Load
// returns ErrSessionNotFound for unknown ids.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	Delete(ctx context.Context, id string) error
}

const storeTimeout = 3 * time.Second

// Manager owns the live sessions of the process.
type Manager struct {
	deps  Deps
	store SnapshotStore
	log   logrus.FieldLogger

	mu       sync.RWMutex
	sessions map[string]*Session

	obsMu     sync.RWMutex
	observers []func(Snapshot)
}

// NewManager creates a manager. A nil store keeps sessions in memory only.
func NewManager(deps Deps, store SnapshotStore) *Manager {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Manager{
		deps:     deps,
		store:    store,
		log:      deps.Log.WithField("component", "wizard"),
		sessions: make(map[string]*Session),
	}
}

// Subscribe registers fn to receive every published snapshot.
func (m *Manager) Subscribe(fn func(Snapshot)) {
	m.obsMu.Lock()
	m.observers = append(m.observers, fn)
	m.obsMu.Unlock()
}

func (m *Manager) publish(snap Snapshot) {
	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := m.store.Save(ctx, snap); err != nil {
			m.log.WithError(err).WithField("session", snap.ID).Warn("failed to store snapshot")
		}
		cancel()
	}

	m.obsMu.RLock()
	observers := m.observers
	m.obsMu.RUnlock()
	for _, fn := range observers {
		fn(snap)
	}
}

// Create starts a new session at the intake step.
func (m *Manager) Create() *Session {
	s := newSession(uuid.New().String(), m.deps, m.publish)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.log.WithField("session", s.id).Info("session created")
	s.publish()
	return s
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Lookup returns the snapshot of a live session, or the stored snapshot of a
// session this process no longer holds.
func (m *Manager) Lookup(ctx context.Context, id string) (*Snapshot, error) {
	if s, err := m.Get(id); err == nil {
		snap := s.Snapshot()
		return &snap, nil
	}
	if m.store == nil {
		return nil, ErrSessionNotFound
	}
	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	snap.Restored = true
	snap.Busy = false
	snap.Watching = false
	return snap, nil
}

// Dispose stops the session's poll loop and forgets it.
func (m *Manager) Dispose(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.close()
	}
	if m.store != nil {
		err := m.store.Delete(ctx, id)
		switch {
		case err == nil:
			ok = true
		case !errors.Is(err, ErrSessionNotFound):
			return err
		}
	}
	if !ok {
		return ErrSessionNotFound
	}
	m.log.WithField("session", id).Info("session disposed")
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops every session. Stored snapshots are kept.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
