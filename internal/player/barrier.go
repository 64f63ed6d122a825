package player

import "time"

// ReadinessBarrier gates the one-shot transition from loading to playing. It
// fires once per episode, either when every visible stream is Ready or when the
// bounded fallback elapses with at least one stream Ready. If the fallback
// elapses with nothing ready there is nothing worth showing, so the barrier
// waits and fires the moment the first stream reports Ready.
//
// The barrier holds the fallback timer; Cancel releases it on episode teardown.
// All other methods are called under the owning Engine's lock.
type ReadinessBarrier struct {
	registry *StreamRegistry

	fired          bool
	deadlinePassed bool
	timer          *time.Timer
}

// NewReadinessBarrier returns an unarmed barrier over the given registry.
func NewReadinessBarrier(registry *StreamRegistry) *ReadinessBarrier {
	return &ReadinessBarrier{registry: registry}
}

// Arm starts the fallback timer. onTimeout runs on the timer's goroutine after
// the bound elapses; callers route it back through their own locking before
// touching the barrier.
func (b *ReadinessBarrier) Arm(fallback time.Duration, onTimeout func()) {
	b.timer = time.AfterFunc(fallback, onTimeout)
}

// Cancel stops the fallback timer. Safe to call repeatedly and after firing.
func (b *ReadinessBarrier) Cancel() {
	if b.timer != nil {
		b.timer.Stop()
	}
}

// DeadlineElapsed records that the fallback bound has passed. It returns true
// if that makes the barrier eligible to fire now.
func (b *ReadinessBarrier) DeadlineElapsed() bool {
	b.deadlinePassed = true
	return b.ShouldFire()
}

// ShouldFire reports whether the barrier is eligible to fire on this tick.
func (b *ReadinessBarrier) ShouldFire() bool {
	if b.fired {
		return false
	}
	if b.registry.AllReady() {
		return true
	}
	return b.deadlinePassed && b.registry.ReadyVisibleCount() > 0
}

// MarkFired records the terminal transition. The barrier never re-arms; a
// stream that reports Ready afterwards joins sync without any further
// transition (and in particular without a destructive re-seek).
func (b *ReadinessBarrier) MarkFired() {
	b.fired = true
	b.Cancel()
}

// Fired reports whether the transition has already happened.
func (b *ReadinessBarrier) Fired() bool {
	return b.fired
}
