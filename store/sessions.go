// Package store holds the volatile shared state of the bot: survey sessions,
// pending reviewer replies and the access policy.
package store

import (
	"SurveyBot/model"
	"sync"
)

type sessionSlot struct {
	mu      sync.Mutex
	session *model.Session
}

// SessionTable maps user ids to their survey session. Operations on one user
// are serialized by a per-user lock; different users never block each other
// beyond the map lookup.
type SessionTable struct {
	mu    sync.Mutex
	slots map[int64]*sessionSlot
}

func NewSessionTable() *SessionTable {
	return &SessionTable{slots: make(map[int64]*sessionSlot)}
}

func (t *SessionTable) slot(userID int64) *sessionSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[userID]
}

// Put creates or overwrites the session of s.UserID.
func (t *SessionTable) Put(s *model.Session) {
	fresh := &sessionSlot{session: s}
	t.mu.Lock()
	old := t.slots[s.UserID]
	t.slots[s.UserID] = fresh
	t.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.session = nil
		old.mu.Unlock()
	}
}

// With runs fn on the user's session while holding its lock. It returns
// model.ErrNoSession when the user has none.
func (t *SessionTable) With(userID int64, fn func(*model.Session) error) error {
	slot := t.slot(userID)
	if slot == nil {
		return model.ErrNoSession
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.session == nil {
		return model.ErrNoSession
	}
	return fn(slot.session)
}

// Remove deletes and returns the user's session.
func (t *SessionTable) Remove(userID int64) (*model.Session, bool) {
	t.mu.Lock()
	slot := t.slots[userID]
	delete(t.slots, userID)
	t.mu.Unlock()
	if slot == nil {
		return nil, false
	}

	slot.mu.Lock()
	s := slot.session
	slot.session = nil
	slot.mu.Unlock()
	return s, s != nil
}

// Get returns a copy of the user's session.
func (t *SessionTable) Get(userID int64) (model.SessionView, bool) {
	var view model.SessionView
	err := t.With(userID, func(s *model.Session) error {
		view = s.View()
		return nil
	})
	return view, err == nil
}

func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
