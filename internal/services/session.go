package services

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// SessionStore is the in-memory table of active conversations, keyed by
// (tenant, customer address). It hands out copies, so a caller's session is
// never mutated behind its back.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[models.SessionKey]*models.Session
	now      func() time.Time
	logger   zerolog.Logger
}

// NewSessionStore creates an empty store.
func NewSessionStore(logger zerolog.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[models.SessionKey]*models.Session),
		now:      time.Now,
		logger:   logger,
	}
}

// GetOrCreate returns the key's session, creating one in the start state if
// none exists, and bumps its last activity time.
func (s *SessionStore) GetOrCreate(key models.SessionKey) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if session, exists := s.sessions[key]; exists {
		session.LastActivityAt = now
		return session.Clone()
	}

	session := &models.Session{
		Key:            key,
		State:          models.StateStart,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[key] = session
	s.logger.Debug().Str("session", key.String()).Msg("session created")

	return session.Clone()
}

// Get returns a copy of the key's session.
func (s *SessionStore) Get(key models.SessionKey) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[key]
	if !exists {
		return nil, false
	}
	return session.Clone(), true
}

// Save upserts a session under its own key.
func (s *SessionStore) Save(session *models.Session) {
	stored := session.Clone()
	stored.LastActivityAt = s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.LastActivityAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[stored.Key] = stored
}

// Remove deletes the key's session. It reports whether one existed.
func (s *SessionStore) Remove(key models.SessionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[key]; !exists {
		return false
	}
	delete(s.sessions, key)
	return true
}

// SweepExpired removes every session idle for longer than idle and returns
// the removed keys.
func (s *SessionStore) SweepExpired(idle time.Duration) []models.SessionKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []models.SessionKey
	for key, session := range s.sessions {
		if now.Sub(session.LastActivityAt) > idle {
			expired = append(expired, key)
			delete(s.sessions, key)
		}
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].String() < expired[j].String() })
	return expired
}

// Len returns the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SessionStats provides session statistics
type SessionStats struct {
	ActiveSessions   int                  `json:"active_sessions"`
	SessionsByTenant map[string]int       `json:"sessions_by_tenant"`
	SessionsByState  map[models.State]int `json:"sessions_by_state"`
	AverageDuration  float64              `json:"average_duration_minutes"`
}

// Stats returns current session statistics
func (s *SessionStore) Stats() *SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &SessionStats{
		ActiveSessions:   len(s.sessions),
		SessionsByTenant: make(map[string]int),
		SessionsByState:  make(map[models.State]int),
	}

	now := s.now()
	totalDuration := 0.0
	for key, session := range s.sessions {
		stats.SessionsByTenant[key.TenantID]++
		stats.SessionsByState[session.State]++
		totalDuration += now.Sub(session.CreatedAt).Minutes()
	}

	if len(s.sessions) > 0 {
		stats.AverageDuration = totalDuration / float64(len(s.sessions))
	}
	return stats
}
