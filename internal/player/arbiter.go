package player

// Select picks the session to mirror. The first Playing session wins,
// then the first Paused, then the first Stopped, then the first session of
// any status. Sessions whose app id equals dismissed are skipped unless
// nothing else is available. An empty dismissed id excludes nothing.
func Select(sessions []Session, dismissed string) (Session, bool) {
	var paused, stopped, first, dismissedCandidate *Session

	for i := range sessions {
		s := &sessions[i]
		if dismissed != "" && s.AppID == dismissed {
			if dismissedCandidate == nil {
				dismissedCandidate = s
			}
			continue
		}

		if first == nil {
			first = s
		}
		switch s.Status {
		case StatusPlaying:
			return *s, true
		case StatusPaused:
			if paused == nil {
				paused = s
			}
		case StatusStopped:
			if stopped == nil {
				stopped = s
			}
		}
	}

	for _, c := range []*Session{paused, stopped, first, dismissedCandidate} {
		if c != nil {
			return *c, true
		}
	}
	return Session{}, false
}
