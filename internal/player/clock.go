package player

// PlaybackClock is the single source of truth for logical time, play/pause state,
// and total duration of one episode. It is a pure state holder: it performs no
// scheduling and no clamping; writers are responsible for keeping time within
// [0, Duration]. Every mutation notifies subscribers synchronously, so reactions
// happen within the same tick as the write.
//
// The clock is not safe for concurrent use on its own; the owning Engine
// serializes all access.
type PlaybackClock struct {
	currentTime float64
	isPlaying   bool
	duration    float64

	subscribers []func(prev, cur ClockSnapshot)
}

// NewPlaybackClock returns a paused clock at time zero with the given duration.
func NewPlaybackClock(duration float64) *PlaybackClock {
	return &PlaybackClock{duration: duration}
}

// Subscribe registers fn to be called synchronously after every mutation, with
// the snapshots before and after the change. Subscriptions last for the life of
// the clock; teardown of the episode discards the whole clock.
func (c *PlaybackClock) Subscribe(fn func(prev, cur ClockSnapshot)) {
	c.subscribers = append(c.subscribers, fn)
}

// SetTime sets the logical time and notifies subscribers. Callers clamp t.
func (c *PlaybackClock) SetTime(t float64) {
	prev := c.Snapshot()
	c.currentTime = t
	c.notify(prev)
}

// SetPlaying sets the play/pause state and notifies subscribers.
func (c *PlaybackClock) SetPlaying(playing bool) {
	prev := c.Snapshot()
	c.isPlaying = playing
	c.notify(prev)
}

// Snapshot returns a copy of the clock's current state.
func (c *PlaybackClock) Snapshot() ClockSnapshot {
	return ClockSnapshot{
		CurrentTime: c.currentTime,
		IsPlaying:   c.isPlaying,
		Duration:    c.duration,
	}
}

func (c *PlaybackClock) notify(prev ClockSnapshot) {
	cur := c.Snapshot()
	for _, fn := range c.subscribers {
		fn(prev, cur)
	}
}
