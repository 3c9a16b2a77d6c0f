package scenario

import (
	"sync"
	"time"
)

// sessionTTL is how long an idle session survives before it is pruned.
const sessionTTL = 30 * time.Minute

// maxClarifications caps how many times a session is asked for a zone
// before the orchestrator proceeds without one.
const maxClarifications = 3

type session struct {
	CityID         string
	ZoneID         string
	Clarifications int
	LastActive     time.Time
}

// sessionStore is the short-lived in-memory session map. Expired entries
// are pruned lazily on access.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// get returns a copy of the session state for an id, creating the session
// if missing or expired. Callers never see the live entry, so reads cannot
// race with concurrent turns.
func (ss *sessionStore) get(id, cityID string) session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := ss.now()
	ss.pruneLocked(now)

	sess, ok := ss.sessions[id]
	if !ok {
		sess = &session{CityID: cityID}
		ss.sessions[id] = sess
	}
	if cityID != "" {
		sess.CityID = cityID
	}
	sess.LastActive = now
	return *sess
}

// clarify is the atomic check-and-increment for zone questions: it reports
// whether the session may ask another one, counting the question when it
// does. Concurrent turns cannot both claim the same remaining slot.
func (ss *sessionStore) clarify(id string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sess, ok := ss.sessions[id]
	if !ok || sess.Clarifications >= maxClarifications {
		return false
	}
	sess.Clarifications++
	sess.LastActive = ss.now()
	return true
}

// update mutates a session under the lock.
func (ss *sessionStore) update(id string, fn func(*session)) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if sess, ok := ss.sessions[id]; ok {
		fn(sess)
		sess.LastActive = ss.now()
	}
}

func (ss *sessionStore) pruneLocked(now time.Time) {
	for id, sess := range ss.sessions {
		if now.Sub(sess.LastActive) > sessionTTL {
			delete(ss.sessions, id)
		}
	}
}
