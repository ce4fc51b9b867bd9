package session

import (
	"log/slog"
	"sync"

	"github.com/openrealms/presenced/internal/model"
	"github.com/openrealms/presenced/internal/services/proximity"
)

// Store is the process-wide registry of active sessions, keyed by realm id.
//
// A session is created lazily on the first join to a realm and reaped when
// its last player leaves, so memory stays bounded by the number of occupied
// realms.
type Store struct {
	grouping proximity.Strategy
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[model.RealmID]*Session
}

// NewStore creates an empty session store
func NewStore(grouping proximity.Strategy, logger *slog.Logger) *Store {
	return &Store{
		grouping: grouping,
		logger:   logger,
		sessions: make(map[model.RealmID]*Session),
	}
}

// Get returns the active session for a realm, if any
func (st *Store) Get(realmID model.RealmID) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	session, ok := st.sessions[realmID]
	return session, ok
}

// GetOrCreate returns the realm's session, creating an empty one seeded with
// the given map data when none exists. The check-then-create is atomic: two
// concurrent joiners always observe the same session.
func (st *Store) GetOrCreate(realmID model.RealmID, mapData model.MapData) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if session, ok := st.sessions[realmID]; ok {
		return session
	}

	session := New(realmID, mapData, st.grouping)
	st.sessions[realmID] = session
	st.logger.Info("session created", slog.String("realm_id", string(realmID)))
	return session
}

// PlayerSession resolves which session currently hosts the subject, across
// all realms. Callers use it to enforce single cross-realm presence and to
// route events without knowing the realm id.
func (st *Store) PlayerSession(subjectID model.SubjectID) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, session := range st.sessions {
		if session.HasPlayer(subjectID) {
			return session, true
		}
	}
	return nil, false
}

// RemoveBySocket removes the player bound to the given connection from
// whichever session owns it, reaping the session if it becomes empty.
// It reports whether a removal occurred.
func (st *Store) RemoveBySocket(connID model.ConnectionID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	for realmID, session := range st.sessions {
		if !session.ownsConnection(connID) {
			continue
		}
		removed := session.LogOutBySocket(connID)
		if removed && session.Len() == 0 {
			delete(st.sessions, realmID)
			st.logger.Info("session reaped", slog.String("realm_id", string(realmID)))
		}
		return removed
	}
	return false
}

// Len returns the number of active sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
