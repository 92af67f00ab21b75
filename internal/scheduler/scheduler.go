// Package scheduler drives the engine: each tick it picks a media session,
// keeps lyric resolution for the current track going in the background and
// shows the line for the current playback position.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/internal/config"
	"lyricsync/internal/display"
	"lyricsync/internal/lyrics"
	"lyricsync/internal/player"
)

type Resolver interface {
	Resolve(ctx context.Context, q lyrics.Query) lyrics.Result
}

// Suppressor reports that another overlay (a notification, say) owns the
// display; ticks do nothing while it is busy.
type Suppressor interface {
	Busy() bool
}

// State is the lyric resolution state for the tracked session. Generation
// changes whenever the track does; results carrying an older generation are
// dropped.
type State struct {
	AppID      string
	Title      string
	Artist     string
	TrackID    string
	Lines      []lyrics.Line
	Source     lyrics.Source
	LastPoll   time.Time
	Generation uint64
	// Attempted is set once a resolution for this generation has finished
	// with a definitive answer.
	Attempted bool
}

type Scheduler struct {
	provider   player.Provider
	resolver   Resolver
	sink       display.Sink
	standby    *player.Standby
	suppressor Suppressor
	now        func() time.Time
	logger     zerolog.Logger

	mu          sync.Mutex
	state       State
	cancelFetch context.CancelFunc
	stopWatch   func()
	watchedApp  string
	last        display.Frame
	hasLast     bool

	inFlight atomic.Bool
	force    atomic.Bool
	wake     chan struct{}
	wg       sync.WaitGroup
}

type Option func(*Scheduler)

func WithSuppressor(s Suppressor) Option {
	return func(sc *Scheduler) { sc.suppressor = s }
}

func WithClock(now func() time.Time) Option {
	return func(sc *Scheduler) { sc.now = now }
}

func New(provider player.Provider, resolver Resolver, sink display.Sink, standby *player.Standby, opts ...Option) *Scheduler {
	if standby == nil {
		standby = &player.Standby{}
	}
	s := &Scheduler{
		provider: provider,
		resolver: resolver,
		sink:     sink,
		standby:  standby,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		logger:   log.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the resolution state.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Lines = append([]lyrics.Line(nil), s.state.Lines...)
	return st
}

// Notify makes the next tick come early and skip the poll throttle. It is
// the callback handed to the provider's Watch.
func (s *Scheduler) Notify() {
	s.force.Store(true)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run ticks every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, settings func() config.Settings) {
	if interval <= 0 {
		interval = config.DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.shutdown()

	s.logger.Info().Dur("interval", interval).Str("provider", s.provider.Name()).Msg("Scheduler started")
	for {
		s.Tick(ctx, settings())
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.unwatch()
	s.wg.Wait()
}

// Wait blocks until background resolutions have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) Tick(ctx context.Context, settings config.Settings) {
	now := s.now()

	if !settings.ShowMediaPlayer {
		s.emit(display.Standby(now))
		return
	}
	if s.suppressor != nil && s.suppressor.Busy() {
		return
	}

	sessions, err := s.provider.Sessions(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to enumerate sessions")
		sessions = nil
	}

	session, ok := player.Select(sessions, s.standby.Dismissed())
	if !ok {
		s.mu.Lock()
		if s.state.AppID != "" {
			s.logger.Info().Str("app", s.state.AppID).Msg("No media session")
		}
		s.resetLocked()
		s.state = State{Generation: s.state.Generation}
		s.mu.Unlock()
		s.unwatch()
		s.emit(display.Standby(now))
		return
	}
	if s.standby.Suppresses(session, ok) {
		s.emit(display.Standby(now))
		return
	}

	s.mu.Lock()
	rebind := false
	if session.AppID != s.state.AppID {
		s.logger.Info().Str("app", session.AppID).Msg("Media session changed")
		s.resetLocked()
		s.state.AppID = session.AppID
		s.state.Title, s.state.Artist = session.Title, session.Artist
		rebind = true
	}
	if session.Title != s.state.Title || session.Artist != s.state.Artist {
		s.logger.Info().Str("title", session.Title).Str("artist", session.Artist).Msg("Track changed")
		s.resetLocked()
		s.state.Title, s.state.Artist = session.Title, session.Artist
	}

	var (
		start bool
		gen   uint64
		fetch context.Context
		done  context.CancelFunc
	)
	if session.Title != "" {
		start = s.shouldStartLocked(now, settings)
	}
	if start {
		s.state.LastPoll = now
		gen = s.state.Generation
		fetch, done = context.WithCancel(ctx)
		s.cancelFetch = done
	}
	lines := s.state.Lines
	s.mu.Unlock()

	if rebind {
		s.rewatch(session.AppID)
	}
	if start {
		q := lyrics.Query{Title: session.Title, Artist: session.Artist, Duration: session.End}
		s.wg.Add(1)
		go s.resolve(fetch, done, gen, q)
	}

	s.emit(Compose(session, lines, settings.TimelineOffset, now))
}

// resetLocked starts a new generation and drops the current lyrics.
func (s *Scheduler) resetLocked() {
	s.state.Generation++
	s.state.TrackID = ""
	s.state.Lines = nil
	s.state.Source = ""
	s.state.Attempted = false
	s.state.LastPoll = time.Time{}
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
}

func (s *Scheduler) shouldStartLocked(now time.Time, settings config.Settings) bool {
	if len(s.state.Lines) > 0 {
		return false
	}
	forced := s.force.Swap(false)
	since := now.Sub(s.state.LastPoll)
	if !forced && since < settings.PollInterval {
		return false
	}
	// an unknown track waits for the retry interval even when forced
	if s.state.Attempted && since < settings.RetryInterval {
		return false
	}
	return s.inFlight.CompareAndSwap(false, true)
}

func (s *Scheduler) resolve(ctx context.Context, cancel context.CancelFunc, gen uint64, q lyrics.Query) {
	defer s.wg.Done()
	defer s.inFlight.Store(false)
	defer cancel()

	logger := s.logger.With().
		Str("attempt", uuid.NewString()).
		Uint64("generation", gen).
		Str("title", q.Title).
		Logger()

	started := s.now()
	res := s.resolver.Resolve(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.state.Generation {
		logger.Debug().Msg("Discarding stale resolution")
		return
	}

	s.state.TrackID = res.TrackID
	s.state.Lines = res.Lines
	s.state.Source = res.Source
	// a failed lookup retries on the next poll; only a confirmed miss waits
	// for the retry interval
	s.state.Attempted = !res.Transient
	s.state.LastPoll = s.now()
	s.cancelFetch = nil

	logger.Info().
		Str("track_id", res.TrackID).
		Str("source", string(res.Source)).
		Int("lines", len(res.Lines)).
		Bool("transient", res.Transient).
		Dur("took", s.now().Sub(started)).
		Msg("Lyrics resolved")
}

// Compose builds the frame for session at its current position. Without a
// current line the subtitle, then the title, is shown instead.
func Compose(session player.Session, lines []lyrics.Line, offset time.Duration, at time.Time) display.Frame {
	f := display.Frame{
		Mode:   display.ModeActive,
		Title:  session.Title,
		Artist: session.Artist,
		AppID:  session.AppID,
		At:     at,
	}
	if text := lyrics.LineAt(session.Position, lines, offset); text != "" {
		f.Text = text
		f.HasLyric = true
		return f
	}
	f.Text = session.Subtitle
	if f.Text == "" {
		f.Text = session.Title
	}
	return f
}

func (s *Scheduler) emit(f display.Frame) {
	s.mu.Lock()
	if s.hasLast && s.last.Equal(f) {
		s.mu.Unlock()
		return
	}
	s.last, s.hasLast = f, true
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Show(f)
	}
}

func (s *Scheduler) rewatch(appID string) {
	s.unwatch()

	stop, err := s.provider.Watch(appID, s.Notify)
	if err != nil {
		s.logger.Debug().Err(err).Str("app", appID).Msg("Change notifications unavailable")
		return
	}
	s.mu.Lock()
	s.stopWatch, s.watchedApp = stop, appID
	s.mu.Unlock()
}

func (s *Scheduler) unwatch() {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch, s.watchedApp = nil, ""
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}
