package wizard

import (
	"maps"
	"sync"
	"time"
)

// Kind distinguishes the two collection flows a session can run.
type Kind string

const (
	KindOrder    Kind = "order"
	KindSettings Kind = "settings"
)

// Stage identifies the step a session is waiting on.
type Stage string

const (
	StageOrder1    Stage = "order/1"
	StageOrder2    Stage = "order/2"
	StageOrder3    Stage = "order/3"
	StageSettings1 Stage = "settings/1"
	StageSettings2 Stage = "settings/2"
)

// Session is the in-flight state of one user's collection run. A user
// has at most one session at a time; starting a new run replaces it.
type Session struct {
	UserID    string
	Kind      Kind
	Template  string
	Stage     Stage
	Fields    map[string]string
	CreatedAt time.Time
}

// SessionStore holds in-flight sessions keyed by user. Get must never
// alias state another caller can mutate. Remove pops the session
// atomically so concurrent submits cannot both complete a run.
type SessionStore interface {
	Get(userID string) (*Session, bool)
	Put(sess *Session)
	Remove(userID string) (*Session, bool)
}

// MemorySessionStore is a mutex-guarded map. Sessions do not survive a
// restart, matching the resumable-within-process contract. Get and Put
// copy the session, so concurrent submits for the same user never write
// a shared Fields map; the last Put wins.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func cloneSession(sess *Session) *Session {
	c := *sess
	c.Fields = maps.Clone(sess.Fields)
	return &c
}

func (m *MemorySessionStore) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return cloneSession(sess), true
}

func (m *MemorySessionStore) Put(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.UserID] = cloneSession(sess)
}

func (m *MemorySessionStore) Remove(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	return sess, ok
}

// Len reports the number of in-flight sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
