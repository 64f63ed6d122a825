package player

// MediaPort is the engine's outbound interface to one media element. For an
// in-process player this drives the element directly; streams registered
// without a port get a relayPort instead.
//
// Any method may fail transiently (e.g. a seek arriving while the element is
// mid-abort). The engine swallows such errors and retries on the next
// reconciliation tick; they are never surfaced to users.
type MediaPort interface {
	// Seek moves the element to the given local media time.
	Seek(localTime float64) error
	// Play starts playback.
	Play() error
	// Pause halts playback.
	Pause() error
}

// relayPort is the MediaPort for streams driven by a remote player over HTTP.
// There is no in-process element to command: the reconciler records each
// command on the stream state, the snapshot exposes it as target_time and
// target_playing, and the remote player applies it. A relay never rejects.
type relayPort struct{}

func (relayPort) Seek(float64) error { return nil }
func (relayPort) Play() error        { return nil }
func (relayPort) Pause() error       { return nil }
