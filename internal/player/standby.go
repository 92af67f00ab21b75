package player

import (
	"strings"
	"sync"
)

// Standby is the manual standby marker set by the user. While active the
// dismissed app is deprioritized and, when it is still the chosen session,
// nothing is displayed.
type Standby struct {
	mu     sync.RWMutex
	active bool
	appID  string
}

// Dismiss enters manual standby for appID. An empty appID suppresses
// whatever session is chosen.
func (s *Standby) Dismiss(appID string) {
	s.mu.Lock()
	s.active = true
	s.appID = appID
	s.mu.Unlock()
}

func (s *Standby) Clear() {
	s.mu.Lock()
	s.active = false
	s.appID = ""
	s.mu.Unlock()
}

func (s *Standby) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Dismissed returns the app id to pass to Select, or "" when standby is off.
func (s *Standby) Dismissed() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.active {
		return ""
	}
	return s.appID
}

// Suppresses reports whether session must not be displayed.
func (s *Standby) Suppresses(session Session, ok bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.active {
		return false
	}
	if !ok || s.appID == "" {
		return true
	}
	return strings.EqualFold(session.AppID, s.appID)
}
