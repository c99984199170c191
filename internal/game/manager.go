package game

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager is the registry of live sessions. Creating and removing sessions
// are its only writes; it never locks a session.
type Manager struct {
	rules    Rules
	onCommit CommitHandler
	logger   *zap.Logger
	opts     []SessionOption

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty registry. Every session it creates uses rules
// and reports commits to onCommit.
func NewManager(rules Rules, onCommit CommitHandler, logger *zap.Logger, opts ...SessionOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		rules:    rules,
		onCommit: onCommit,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// CreateSession registers a new waiting session with host as its first
// player.
func (m *Manager) CreateSession(name string, host Identity) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = host.Username + "'s game"
	}

	opts := append([]SessionOption{WithCommitHandler(m.onCommit)}, m.opts...)
	sess := NewSession(uuid.NewString(), name, host, m.rules, opts...)
	if err := sess.Join(host); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("name", sess.Name),
		zap.String("host", host.Username),
		zap.Int("active_sessions", count),
	)
	return sess, nil
}

// GetSession returns the session with the given id.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// RemoveSession drops a session from the registry.
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.logger.Info("session removed", zap.String("session_id", id))
	}
	return ok
}

// ListSessions returns summaries of every session, oldest first.
func (m *Manager) ListSessions() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	summaries := make([]Summary, len(sessions))
	for i, sess := range sessions {
		summaries[i] = sess.Summary()
	}
	return summaries
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
