package player

// EpisodeID identifies one episode's worth of synchronized playback.
type EpisodeID string

// StreamID identifies a media stream within an episode (e.g. a camera filename).
type StreamID string

// Readiness is a stream's buffering state. It only moves forward: once a stream
// has reported Ready it never regresses to Loading.
type Readiness int

const (
	Loading Readiness = iota
	Ready
)

// Segment marks the sub-range [Start, End) of a stream's underlying media file
// that corresponds to the episode timeline. A stream without a segment plays its
// whole file, with local time equal to episode time.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the episode-timeline length covered by the segment.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// StreamDescriptor describes one media stream to register with an engine.
// This also matches the input JSON payload for creating an episode session.
type StreamDescriptor struct {
	ID        StreamID `json:"id"`
	SourceURL string   `json:"source_url"`
	Segment   *Segment `json:"segment,omitempty"`
	Visible   bool     `json:"visible"`
}

// ClockSnapshot is a point-in-time copy of the shared playback clock.
type ClockSnapshot struct {
	CurrentTime float64 `json:"current_time"`
	IsPlaying   bool    `json:"is_playing"`
	Duration    float64 `json:"duration"`
}

// StreamSnapshot is a point-in-time copy of one stream's synchronization state.
// Target fields carry the most recent command the reconciler issued, for remote
// players that poll rather than hold a live MediaPort.
type StreamSnapshot struct {
	ID            StreamID `json:"id"`
	SourceURL     string   `json:"source_url"`
	Segment       *Segment `json:"segment,omitempty"`
	Visible       bool     `json:"visible"`
	Ready         bool     `json:"ready"`
	Leader        bool     `json:"leader"`
	LocalTime     float64  `json:"local_time"`
	TargetTime    *float64 `json:"target_time,omitempty"`
	TargetPlaying bool     `json:"target_playing"`
}

// EngineSnapshot is the full observable state of one episode's engine.
type EngineSnapshot struct {
	Episode EpisodeID        `json:"episode"`
	Clock   ClockSnapshot    `json:"clock"`
	Started bool             `json:"started"`
	Streams []StreamSnapshot `json:"streams"`
}
