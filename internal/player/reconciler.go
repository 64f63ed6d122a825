package player

import (
	"log/slog"
	"math"
	"time"

	"playsync/internal/platform/metrics"
)

// reconcilerState marks which propagation direction, if any, is active within
// the current tick. At most one direction runs at a time; this mutual
// exclusion is the feedback-loop guard.
type reconcilerState int

const (
	stateIdle reconcilerState = iota
	statePropagatingFromClock
	statePropagatingFromLeader
)

// ReconcilerConfig holds the tuning knobs of the synchronization protocol.
type ReconcilerConfig struct {
	// LeaderDeadband is how far the leader's local time may drift from the
	// mapped clock time before a corrective seek is issued. Wider than the
	// follower deadband so the leader is not perpetually re-seeked by its own
	// feedback.
	LeaderDeadband float64
	// FollowerDeadband is the drift tolerance for non-leader streams.
	FollowerDeadband float64
	// JumpThreshold is the clock delta that counts as an external jump (e.g. a
	// reset to zero) and forces the leader to reconcile inside its deadband.
	JumpThreshold float64
	// FeedbackInterval rate-limits leader-to-clock updates.
	FeedbackInterval time.Duration
}

// DefaultReconcilerConfig returns the standard tuning.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		LeaderDeadband:   1.0,
		FollowerDeadband: 0.5,
		JumpThreshold:    1.0,
		FeedbackInterval: 100 * time.Millisecond,
	}
}

// SyncReconciler implements the bidirectional synchronization protocol between
// the shared clock and the registered streams: clock changes push target times
// out to every visible stream, and the leader's observed time is the only path
// back into the clock. All methods run under the owning Engine's lock; the
// clock's synchronous notification re-enters ClockChanged within the same tick,
// which the state field disambiguates.
type SyncReconciler struct {
	cfg      ReconcilerConfig
	clock    *PlaybackClock
	registry *StreamRegistry
	log      *slog.Logger

	// started reports whether the readiness barrier has fired; resume commands
	// are withheld until then, pause is always propagated.
	started func() bool
	now     func() time.Time

	state            reconcilerState
	suppressFeedback bool
	lastFeedback     time.Time

	metrics *metrics.Metrics
}

// NewSyncReconciler wires a reconciler to the clock and registry. It subscribes
// to the clock, so construct it before any clock mutation it should see.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewSyncReconciler(cfg ReconcilerConfig, clock *PlaybackClock, registry *StreamRegistry, started func() bool, log *slog.Logger, m *metrics.Metrics) *SyncReconciler {
	r := &SyncReconciler{
		cfg:      cfg,
		clock:    clock,
		registry: registry,
		log:      log,
		started:  started,
		now:      time.Now,
		metrics:  m,
	}
	clock.Subscribe(r.ClockChanged)
	return r
}

// ClockChanged is the clock-to-streams direction. It runs synchronously inside
// every clock mutation. When the mutation came from the leader feedback path
// (state is PropagatingFromLeader) the leader itself is skipped — it is the
// source of the value — and no echo suppression is armed, since no seek was
// pushed at the leader. For external writers the full protocol runs: deadband
// checks, external-jump override, play/pause propagation. Play state is
// re-sent only when it diverges from the stream's last commanded state, so
// leader feedback does not hammer followers with redundant play calls and a
// stream that turned ready after the group started picks up playback on the
// next clock change.
func (r *SyncReconciler) ClockChanged(prev, cur ClockSnapshot) {
	if r.state == statePropagatingFromClock {
		// Re-entrant notification from a write we are already propagating.
		return
	}

	fromLeader := r.state == statePropagatingFromLeader
	if !fromLeader {
		r.state = statePropagatingFromClock
		defer func() { r.state = stateIdle }()
	}

	timeChanged := cur.CurrentTime != prev.CurrentTime
	externalJump := !fromLeader && math.Abs(cur.CurrentTime-prev.CurrentTime) > r.cfg.JumpThreshold

	leader := r.registry.Leader()
	for _, st := range r.registry.all() {
		if !st.desc.Visible {
			continue
		}
		isLeader := st == leader
		if fromLeader && isLeader {
			continue
		}

		// Loading streams are excluded from time sync until they report
		// ready; pause still reaches them below.
		if timeChanged && st.ready() {
			target := ToLocalTime(cur.CurrentTime, st.desc.Segment)
			deadband := r.cfg.FollowerDeadband
			if isLeader {
				deadband = r.cfg.LeaderDeadband
			}
			if math.Abs(st.localTime-target) > deadband || (isLeader && externalJump) {
				r.issueSeek(st, target)
			}
		}

		if cur.IsPlaying != prev.IsPlaying || st.targetPlaying != cur.IsPlaying {
			r.propagatePlayState(st, cur.IsPlaying)
		}
	}

	if !fromLeader && timeChanged {
		// The next leader report would re-echo this push as a user change.
		r.suppressFeedback = true
	}
}

// StreamReport is the inbound direction: a stream's native time update. The
// stream's observed local time is recorded, wraparound is handled locally, and
// only the leader's report may continue into the clock, subject to the echo
// guard and the rate limiter.
func (r *SyncReconciler) StreamReport(st *streamState, localTime float64) {
	st.localTime = localTime

	// Hidden streams are outside sync entirely; only the observation sticks.
	if !st.desc.Visible {
		return
	}

	clock := r.clock.Snapshot()
	isLeader := st == r.registry.Leader()

	target, wrapped, ended := WrapIfNeeded(localTime, st.desc.Segment, clock.Duration)
	if wrapped {
		r.issueSeek(st, target)
		if isLeader {
			r.resetClock()
		}
		return
	}
	if ended {
		if isLeader {
			r.resetClock()
		}
		return
	}

	if !isLeader {
		r.dropFeedback("not_leader")
		return
	}
	if r.suppressFeedback {
		r.suppressFeedback = false
		r.dropFeedback("suppressed")
		return
	}
	now := r.now()
	if now.Sub(r.lastFeedback) < r.cfg.FeedbackInterval {
		r.dropFeedback("rate_limited")
		return
	}

	r.state = statePropagatingFromLeader
	r.clock.SetTime(clamp(ToGlobalTime(localTime, st.desc.Segment), clock.Duration))
	r.state = stateIdle
	r.lastFeedback = now
	if r.metrics != nil {
		r.metrics.IncFeedbackApplied()
	}
}

// AlignStream brings one stream up to date with the clock outside a clock
// change, used when a stream becomes visible after playback has begun.
func (r *SyncReconciler) AlignStream(st *streamState) {
	cur := r.clock.Snapshot()
	if st.ready() {
		target := ToLocalTime(cur.CurrentTime, st.desc.Segment)
		if math.Abs(st.localTime-target) > r.cfg.FollowerDeadband {
			r.issueSeek(st, target)
		}
	}
	r.propagatePlayState(st, cur.IsPlaying)
}

// RetryPending re-issues seeks that a port rejected earlier. Called at the
// start of every engine tick.
func (r *SyncReconciler) RetryPending() {
	for _, st := range r.registry.all() {
		if st.pendingSeek == nil || !st.desc.Visible {
			continue
		}
		r.issueSeek(st, *st.pendingSeek)
	}
}

// resetClock returns episode time to zero when the leader runs off the end of
// its playable range. The write goes through the leader-feedback state so the
// synchronous propagation realigns followers without re-seeking the leader,
// and it bypasses the rate limiter: losing a wrap reset would strand the
// timeline past the end.
func (r *SyncReconciler) resetClock() {
	r.state = statePropagatingFromLeader
	r.clock.SetTime(0)
	r.state = stateIdle
	r.lastFeedback = r.now()
	if r.metrics != nil {
		r.metrics.IncFeedbackApplied()
	}
}

func (r *SyncReconciler) dropFeedback(reason string) {
	if r.metrics != nil {
		r.metrics.IncFeedbackDropped(reason)
	}
}

func (r *SyncReconciler) issueSeek(st *streamState, target float64) {
	t := target
	st.targetTime = &t
	if err := st.port.Seek(target); err != nil {
		// Transient rejection (e.g. in-flight abort): retry next tick.
		st.pendingSeek = &t
		r.log.Debug("seek rejected, will retry",
			slog.String("stream", string(st.desc.ID)),
			slog.Float64("target", target),
			slog.String("error", err.Error()))
		return
	}
	st.pendingSeek = nil
	st.localTime = target
	if r.metrics != nil {
		r.metrics.IncSeeksIssued()
	}
}

// propagatePlayState pushes play/pause to one stream. Pause always goes out;
// play is withheld until the barrier has fired and the stream itself is Ready,
// so a straggler that missed the barrier stays paused instead of stalling.
func (r *SyncReconciler) propagatePlayState(st *streamState, playing bool) {
	var err error
	if playing {
		if !r.started() || !st.ready() {
			return
		}
		err = st.port.Play()
		st.targetPlaying = true
	} else {
		err = st.port.Pause()
		st.targetPlaying = false
	}
	if err != nil {
		r.log.Debug("play state rejected",
			slog.String("stream", string(st.desc.ID)),
			slog.Bool("playing", playing),
			slog.String("error", err.Error()))
	}
}
