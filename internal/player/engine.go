package player

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"playsync/internal/platform/metrics"
)

// ErrSessionClosed is returned by every engine operation after Close.
var ErrSessionClosed = errors.New("engine closed")

// DefaultReadinessFallback bounds how long the barrier waits for slow streams
// once at least one stream is ready.
const DefaultReadinessFallback = 5 * time.Second

// EngineConfig configures one episode's engine.
type EngineConfig struct {
	// Duration is the episode timeline length in seconds.
	Duration float64
	// InitialOffset, if positive, is applied to the clock when the readiness
	// barrier fires (e.g. from a URL time parameter). Clamped to the duration.
	InitialOffset float64
	// ReadinessFallback bounds the wait for slow streams. Zero means
	// DefaultReadinessFallback.
	ReadinessFallback time.Duration
	// Reconciler holds the sync protocol tuning. Zero values mean defaults.
	Reconciler ReconcilerConfig
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.ReadinessFallback <= 0 {
		c.ReadinessFallback = DefaultReadinessFallback
	}
	d := DefaultReconcilerConfig()
	if c.Reconciler.LeaderDeadband <= 0 {
		c.Reconciler.LeaderDeadband = d.LeaderDeadband
	}
	if c.Reconciler.FollowerDeadband <= 0 {
		c.Reconciler.FollowerDeadband = d.FollowerDeadband
	}
	if c.Reconciler.JumpThreshold <= 0 {
		c.Reconciler.JumpThreshold = d.JumpThreshold
	}
	if c.Reconciler.FeedbackInterval <= 0 {
		c.Reconciler.FeedbackInterval = d.FeedbackInterval
	}
	return c
}

// Engine ties the clock, registry, barrier, and reconciler together for one
// episode. Every externally delivered event — a control call, a stream report,
// the fallback timer — is one tick, serialized by the engine mutex; within a
// tick at most one propagation direction runs. The engine is the only
// concurrency boundary in the package: the components beneath it are plain
// single-threaded state.
//
// An engine belongs to exactly one episode. Changing episodes means Close on
// the old engine and a fresh engine for the new one; no state carries over.
type Engine struct {
	mu sync.Mutex

	episode    EpisodeID
	cfg        EngineConfig
	clock      *PlaybackClock
	registry   *StreamRegistry
	barrier    *ReadinessBarrier
	reconciler *SyncReconciler
	log        *slog.Logger
	metrics    *metrics.Metrics

	onReady []func()
	closed  bool
}

// NewEngine builds an engine for the episode and arms the readiness fallback
// timer immediately: the bounded-startup clock starts when the session is
// created, not when the first stream loads. Metrics may be nil.
func NewEngine(episode EpisodeID, cfg EngineConfig, log *slog.Logger, m *metrics.Metrics) *Engine {
	cfg = cfg.withDefaults()

	e := &Engine{
		episode:  episode,
		cfg:      cfg,
		clock:    NewPlaybackClock(cfg.Duration),
		registry: NewStreamRegistry(),
		log:      log.With(slog.String("episode", string(episode))),
		metrics:  m,
	}
	e.barrier = NewReadinessBarrier(e.registry)
	e.reconciler = NewSyncReconciler(cfg.Reconciler, e.clock, e.registry, e.barrier.Fired, e.log, m)

	e.barrier.Arm(cfg.ReadinessFallback, e.onFallbackTimeout)
	return e
}

// OnReady registers fn to run exactly once when the readiness barrier fires.
// If the barrier already fired, fn runs immediately. Callbacks run outside the
// engine lock, so they may call back in.
func (e *Engine) OnReady(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.barrier.Fired() {
		e.mu.Unlock()
		fn()
		return
	}
	e.onReady = append(e.onReady, fn)
	e.mu.Unlock()
}

// RegisterStream adds a stream. A nil port means the stream's player is remote
// and commands are exposed through the snapshot.
func (e *Engine) RegisterStream(desc StreamDescriptor, port MediaPort) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	e.reconciler.RetryPending()
	if err := e.registry.Register(desc, port); err != nil {
		return err
	}
	e.log.Debug("stream registered",
		slog.String("stream", string(desc.ID)),
		slog.Bool("visible", desc.Visible),
		slog.Bool("segmented", desc.Segment != nil))
	return nil
}

// UnregisterStream removes a stream and re-evaluates readiness: dropping the
// last loading stream can satisfy the barrier.
func (e *Engine) UnregisterStream(id StreamID) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrSessionClosed
	}
	e.reconciler.RetryPending()
	if err := e.registry.Unregister(id); err != nil {
		e.mu.Unlock()
		return err
	}
	cbs := e.maybeFireLocked()
	e.mu.Unlock()
	runAll(cbs)
	return nil
}

// SetVisible shows or hides a stream. Hiding can hand leadership to the next
// visible stream and can satisfy the barrier; showing after playback started
// aligns the stream to the clock right away.
func (e *Engine) SetVisible(id StreamID, visible bool) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrSessionClosed
	}
	e.reconciler.RetryPending()
	if err := e.registry.SetVisible(id, visible); err != nil {
		e.mu.Unlock()
		return err
	}
	if visible && e.barrier.Fired() {
		e.reconciler.AlignStream(e.registry.get(id))
	}
	cbs := e.maybeFireLocked()
	e.mu.Unlock()
	runAll(cbs)
	return nil
}

// StreamReady records that a stream has buffered enough to play through.
// Idempotent; a report arriving after the barrier fired changes nothing and in
// particular does not re-seek the stream.
func (e *Engine) StreamReady(id StreamID) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrSessionClosed
	}
	e.reconciler.RetryPending()
	if err := e.registry.SetReady(id); err != nil {
		e.mu.Unlock()
		return err
	}
	cbs := e.maybeFireLocked()
	e.mu.Unlock()
	runAll(cbs)
	return nil
}

// StreamTime delivers a stream's native time update (local media time).
func (e *Engine) StreamTime(id StreamID, localTime float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	e.reconciler.RetryPending()
	st := e.registry.get(id)
	if st == nil {
		return ErrUnknownStream
	}
	e.reconciler.StreamReport(st, localTime)
	return nil
}

// SetTime seeks the episode timeline. The value is clamped to [0, duration].
func (e *Engine) SetTime(t float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	e.reconciler.RetryPending()
	e.clock.SetTime(clamp(t, e.cfg.Duration))
	return nil
}

// SetPlaying sets the play/pause state. Pause always takes effect; resume is
// ignored until the readiness barrier has fired, which starts playback itself.
func (e *Engine) SetPlaying(playing bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	e.reconciler.RetryPending()
	if playing && !e.barrier.Fired() {
		e.log.Debug("resume ignored, streams still loading")
		return nil
	}
	e.clock.SetPlaying(playing)
	return nil
}

// Snapshot returns the full observable state of the engine.
func (e *Engine) Snapshot() EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	leader := e.registry.Leader()
	snap := EngineSnapshot{
		Episode: e.episode,
		Clock:   e.clock.Snapshot(),
		Started: e.barrier.Fired(),
	}
	for _, st := range e.registry.all() {
		snap.Streams = append(snap.Streams, StreamSnapshot{
			ID:            st.desc.ID,
			SourceURL:     st.desc.SourceURL,
			Segment:       st.desc.Segment,
			Visible:       st.desc.Visible,
			Ready:         st.ready(),
			Leader:        st == leader,
			LocalTime:     st.localTime,
			TargetTime:    st.targetTime,
			TargetPlaying: st.targetPlaying,
		})
	}
	return snap
}

// Close tears the engine down: the fallback timer is released and every
// subsequent operation fails with ErrSessionClosed. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.barrier.Cancel()
	e.onReady = nil
	e.log.Info("engine closed", slog.Int("streams", e.registry.Len()))
}

// onFallbackTimeout runs on the timer goroutine when the readiness bound
// elapses. With at least one stream ready it forces the transition; with none
// ready nothing useful can be shown yet, so the barrier fires on the first
// readiness report instead.
func (e *Engine) onFallbackTimeout() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	var cbs []func()
	if e.barrier.DeadlineElapsed() {
		e.log.Info("readiness fallback elapsed, starting with ready subset",
			slog.Int("ready", e.registry.ReadyVisibleCount()))
		cbs = e.fireBarrierLocked()
	}
	e.mu.Unlock()
	runAll(cbs)
}

// maybeFireLocked fires the barrier if this tick made it eligible and returns
// the ready callbacks to invoke once the lock is released.
func (e *Engine) maybeFireLocked() []func() {
	if !e.barrier.ShouldFire() {
		return nil
	}
	return e.fireBarrierLocked()
}

// fireBarrierLocked performs the one-shot loading-to-playing transition: apply
// the initial offset, seat segmented streams at their mapped position, then
// start the clock. The clock mutations propagate to every visible stream
// through the reconciler in the usual way.
func (e *Engine) fireBarrierLocked() []func() {
	e.barrier.MarkFired()

	if e.cfg.InitialOffset > 0 {
		e.clock.SetTime(clamp(e.cfg.InitialOffset, e.cfg.Duration))
	}

	clockTime := e.clock.Snapshot().CurrentTime
	for _, st := range e.registry.all() {
		// Streams still loading at a fallback fire are left alone; they join
		// sync on their own readiness report.
		if st.desc.Visible && st.ready() && st.desc.Segment != nil {
			e.reconciler.issueSeek(st, ToLocalTime(clockTime, st.desc.Segment))
		}
	}

	e.clock.SetPlaying(true)

	if e.metrics != nil {
		e.metrics.IncBarriersFired()
	}
	e.log.Info("readiness barrier fired",
		slog.Int("ready", e.registry.ReadyVisibleCount()),
		slog.Float64("start_time", clockTime))

	cbs := e.onReady
	e.onReady = nil
	return cbs
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
