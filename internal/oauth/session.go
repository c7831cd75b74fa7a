package oauth

import (
	"sync"
	"time"
)

// sessionTTL is how long a pending login may sit between opening the
// browser and the callback arriving.
const sessionTTL = 10 * time.Minute

type session struct {
	verifier string
	created  time.Time
}

// Sessions is the pending-login map keyed by state. Stale entries are
// dropped lazily on any access.
type Sessions struct {
	mu sync.Mutex
	m  map[string]session
}

// NewSessions builds an empty session map.
func NewSessions() *Sessions {
	return &Sessions{m: map[string]session{}}
}

// Put records the verifier under state.
func (s *Sessions) Put(state, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gc()
	s.m[state] = session{verifier: verifier, created: time.Now()}
}

// Take removes and returns the verifier for state.
func (s *Sessions) Take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gc()
	sess, ok := s.m[state]
	if !ok {
		return "", false
	}
	delete(s.m, state)
	return sess.verifier, true
}

func (s *Sessions) gc() {
	cutoff := time.Now().Add(-sessionTTL)
	for k, sess := range s.m {
		if sess.created.Before(cutoff) {
			delete(s.m, k)
		}
	}
}
