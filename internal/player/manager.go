package player

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"playsync/internal/platform/metrics"
)

var (
	// ErrUnknownSession is returned when no session exists for an episode.
	ErrUnknownSession = errors.New("no session for episode")

	// ErrStaleToken is returned when a request carries the token of a session
	// that has since been replaced. Late callbacks from a torn-down episode
	// must not reach the new engine.
	ErrStaleToken = errors.New("stale session token")

	// ErrInvalidDuration is returned when a session spec has a non-positive
	// duration.
	ErrInvalidDuration = errors.New("episode duration must be positive")
)

// SessionSpec is the input for creating an episode session. This also matches
// the JSON payload of the create-session endpoint.
type SessionSpec struct {
	Duration      float64            `json:"duration"`
	InitialOffset float64            `json:"initial_offset,omitempty"`
	Streams       []StreamDescriptor `json:"streams"`
}

// Session pairs an engine with the token that fences its HTTP callbacks.
type Session struct {
	Episode   EpisodeID
	Token     string
	Engine    *Engine
	CreatedAt time.Time
}

// SessionManager owns at most one live engine per episode. Creating a session
// for an episode that already has one tears the old engine down completely
// before the new one sees its first stream; the fresh token makes any
// in-flight callbacks against the old session detectable.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[EpisodeID]*Session

	defaults EngineConfig
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewSessionManager returns a manager whose engines inherit the given default
// thresholds. Metrics may be nil.
func NewSessionManager(defaults EngineConfig, log *slog.Logger, m *metrics.Metrics) *SessionManager {
	return &SessionManager{
		sessions: make(map[EpisodeID]*Session),
		defaults: defaults,
		log:      log,
		metrics:  m,
	}
}

// CreateSession builds a fresh engine for the episode, replacing and closing
// any existing one, and registers the spec's streams in order. Zero streams is
// a valid no-sync session. A duplicate stream id in the spec fails the whole
// creation.
func (sm *SessionManager) CreateSession(episode EpisodeID, spec SessionSpec) (*Session, error) {
	if spec.Duration <= 0 {
		return nil, ErrInvalidDuration
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if old, exists := sm.sessions[episode]; exists {
		old.Engine.Close()
		delete(sm.sessions, episode)
		sm.log.Info("session replaced", slog.String("episode", string(episode)))
		if sm.metrics != nil {
			sm.metrics.IncSessionsEnded()
		}
	}

	cfg := sm.defaults
	cfg.Duration = spec.Duration
	cfg.InitialOffset = spec.InitialOffset

	eng := NewEngine(episode, cfg, sm.log, sm.metrics)
	for _, desc := range spec.Streams {
		if err := eng.RegisterStream(desc, nil); err != nil {
			eng.Close()
			return nil, err
		}
	}

	s := &Session{
		Episode:   episode,
		Token:     uuid.NewString(),
		Engine:    eng,
		CreatedAt: time.Now().UTC(),
	}
	sm.sessions[episode] = s

	sm.log.Info("session created",
		slog.String("episode", string(episode)),
		slog.Int("streams", len(spec.Streams)),
		slog.Float64("duration", spec.Duration))
	if sm.metrics != nil {
		sm.metrics.IncSessionsCreated()
	}
	return s, nil
}

// Get returns the live session for the episode.
func (sm *SessionManager) Get(episode EpisodeID) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[episode]
	return s, ok
}

// Authorize returns the session only if token matches its current token.
func (sm *SessionManager) Authorize(episode EpisodeID, token string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[episode]
	if !ok {
		return nil, ErrUnknownSession
	}
	if token != s.Token {
		return nil, ErrStaleToken
	}
	return s, nil
}

// EndSession closes and removes the episode's session. Ending a non-existent
// session is a no-op for idempotency.
func (sm *SessionManager) EndSession(episode EpisodeID) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[episode]
	if !ok {
		return
	}
	s.Engine.Close()
	delete(sm.sessions, episode)
	sm.log.Info("session ended", slog.String("episode", string(episode)))
	if sm.metrics != nil {
		sm.metrics.IncSessionsEnded()
	}
}

// ActiveSessionCount returns the number of live sessions. Used for metrics.
func (sm *SessionManager) ActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Shutdown closes every live session.
func (sm *SessionManager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for episode, s := range sm.sessions {
		s.Engine.Close()
		delete(sm.sessions, episode)
	}
	sm.log.Info("session manager stopped")
}
