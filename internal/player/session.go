// Package player reads media sessions published by desktop players and picks
// the one to mirror.
package player

import (
	"context"
	"strings"
	"time"
)

type Status int

const (
	StatusOther Status = iota
	StatusStopped
	StatusPaused
	StatusPlaying
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	case StatusStopped:
		return "Stopped"
	default:
		return "Other"
	}
}

// ParseStatus maps MPRIS/playerctl status strings, case-insensitively.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playing":
		return StatusPlaying
	case "paused":
		return StatusPaused
	case "stopped":
		return StatusStopped
	default:
		return StatusOther
	}
}

// Session is a snapshot of one player taken during a tick.
type Session struct {
	AppID    string
	Status   Status
	Title    string
	Artist   string
	Subtitle string
	Position time.Duration
	End      time.Duration
}

// Provider enumerates the host's media sessions.
type Provider interface {
	Name() string
	Sessions(ctx context.Context) ([]Session, error)
	// Watch calls onChange whenever the session for appID reports a
	// property change or seek. stop releases the subscription.
	Watch(appID string, onChange func()) (stop func(), err error)
}
