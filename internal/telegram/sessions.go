package telegram

import (
	"sync"
	"time"
)

// Session holds per-user chat state.
type Session struct {
	mu           sync.Mutex
	UserID       int64
	DefaultCoin  string
	lastActivity time.Time
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) SetDefaultCoin(coin string) {
	s.mu.Lock()
	s.DefaultCoin = coin
	s.mu.Unlock()
}

func (s *Session) Coin(fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DefaultCoin != "" {
		return s.DefaultCoin
	}
	return fallback
}

// Registry maps Telegram users to sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

func (r *Registry) GetOrCreate(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s
	}
	s := &Session{UserID: userID, lastActivity: time.Now()}
	r.sessions[userID] = s
	return s
}

func (r *Registry) Get(userID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Prune drops sessions idle longer than maxIdle and returns the count.
func (r *Registry) Prune(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	pruned := 0
	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			pruned++
		}
	}
	return pruned
}
