package player

import "errors"

var (
	// ErrDuplicateStream is returned when registering a stream id that already
	// exists in the registry. Duplicate registration is a contract violation by
	// the caller, not a runtime fault.
	ErrDuplicateStream = errors.New("stream id already registered")

	// ErrUnknownStream is returned when an operation names a stream id that is
	// not in the registry.
	ErrUnknownStream = errors.New("stream id not registered")
)

// streamState is the registry's mutable record for one stream. The reconciler
// keeps its per-stream working state (last observed local time, unacknowledged
// seek target) here as well, so that teardown of the registry discards
// everything belonging to the episode at once.
type streamState struct {
	desc      StreamDescriptor
	port      MediaPort
	readiness Readiness

	localTime     float64  // last local time reported by the media element
	pendingSeek   *float64 // seek issued but rejected; retried next tick
	targetTime    *float64 // last seek target issued, for snapshots
	targetPlaying bool     // last play/pause command issued
}

func (s *streamState) ready() bool { return s.readiness == Ready }

// StreamRegistry owns the ordered set of streams for one episode. Registration
// order is preserved and defines leader priority: the leader is the first
// visible stream. The registry is not safe for concurrent use on its own; the
// owning Engine serializes all access.
type StreamRegistry struct {
	streams []*streamState
	byID    map[StreamID]*streamState
}

// NewStreamRegistry returns an empty registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{byID: make(map[StreamID]*streamState)}
}

// Register adds a stream with its media port. The id must be unique. A nil
// port gets a relayPort, for streams whose player lives on the remote side.
func (r *StreamRegistry) Register(desc StreamDescriptor, port MediaPort) error {
	if _, exists := r.byID[desc.ID]; exists {
		return ErrDuplicateStream
	}
	st := &streamState{desc: desc, port: port}
	if port == nil {
		st.port = relayPort{}
	}
	r.streams = append(r.streams, st)
	r.byID[desc.ID] = st
	return nil
}

// Unregister removes a stream. Removing an unknown id is an error; callers that
// want idempotent removal check ErrUnknownStream.
func (r *StreamRegistry) Unregister(id StreamID) error {
	st, exists := r.byID[id]
	if !exists {
		return ErrUnknownStream
	}
	delete(r.byID, id)
	for i, s := range r.streams {
		if s == st {
			r.streams = append(r.streams[:i], r.streams[i+1:]...)
			break
		}
	}
	return nil
}

// SetVisible shows or hides a stream. Hidden streams are excluded from sync,
// readiness aggregation, and leader election.
func (r *StreamRegistry) SetVisible(id StreamID, visible bool) error {
	st, exists := r.byID[id]
	if !exists {
		return ErrUnknownStream
	}
	st.desc.Visible = visible
	return nil
}

// SetReady marks a stream Ready. Readiness is monotonic and SetReady is
// idempotent: marking an already-ready stream has no further effect.
func (r *StreamRegistry) SetReady(id StreamID) error {
	st, exists := r.byID[id]
	if !exists {
		return ErrUnknownStream
	}
	st.readiness = Ready
	return nil
}

// Leader returns the first visible stream, or nil if no stream is visible.
// Leadership is recomputed on every call rather than cached, so visibility
// changes take effect immediately.
func (r *StreamRegistry) Leader() *streamState {
	for _, st := range r.streams {
		if st.desc.Visible {
			return st
		}
	}
	return nil
}

// AllReady reports whether every currently-visible stream has reached Ready.
// With zero visible streams it reports false: a vacuously satisfied barrier
// must not start playback of nothing.
func (r *StreamRegistry) AllReady() bool {
	visible := 0
	for _, st := range r.streams {
		if !st.desc.Visible {
			continue
		}
		visible++
		if !st.ready() {
			return false
		}
	}
	return visible > 0
}

// ReadyVisibleCount returns how many visible streams are Ready.
func (r *StreamRegistry) ReadyVisibleCount() int {
	n := 0
	for _, st := range r.streams {
		if st.desc.Visible && st.ready() {
			n++
		}
	}
	return n
}

// get returns the state for id, or nil.
func (r *StreamRegistry) get(id StreamID) *streamState {
	return r.byID[id]
}

// all returns the streams in registration order. The slice is the registry's
// own; callers must not mutate it.
func (r *StreamRegistry) all() []*streamState {
	return r.streams
}

// Len returns the number of registered streams, visible or not.
func (r *StreamRegistry) Len() int {
	return len(r.streams)
}
