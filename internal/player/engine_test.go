package player

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// fakePort is an in-test media element: seeks move it, play state sticks,
// and a configurable number of upcoming seeks can be rejected.
type fakePort struct {
	position    float64
	playing     bool
	seeks       []float64
	plays       int
	pauses      int
	rejectSeeks int
}

func (p *fakePort) Seek(localTime float64) error {
	if p.rejectSeeks > 0 {
		p.rejectSeeks--
		return errors.New("seek aborted")
	}
	p.position = localTime
	p.seeks = append(p.seeks, localTime)
	return nil
}

func (p *fakePort) Play() error {
	p.playing = true
	p.plays++
	return nil
}

func (p *fakePort) Pause() error {
	p.playing = false
	p.pauses++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, duration float64, fallback time.Duration) *Engine {
	t.Helper()
	e := NewEngine("ep1", EngineConfig{Duration: duration, ReadinessFallback: fallback}, testLogger(), nil)
	t.Cleanup(e.Close)
	return e
}

// addStream registers a visible, unsegmented stream backed by a fakePort.
func addStream(t *testing.T, e *Engine, id StreamID) *fakePort {
	t.Helper()
	return addSegmentedStream(t, e, id, nil)
}

func addSegmentedStream(t *testing.T, e *Engine, id StreamID, seg *Segment) *fakePort {
	t.Helper()
	port := &fakePort{}
	desc := StreamDescriptor{ID: id, SourceURL: "http://media/" + string(id) + ".mp4", Segment: seg, Visible: true}
	if err := e.RegisterStream(desc, port); err != nil {
		t.Fatalf("RegisterStream(%s): %v", id, err)
	}
	return port
}

func TestEngine_all_ready_starts_playback_once(t *testing.T) {
	e := newTestEngine(t, 20, time.Minute)
	ports := []*fakePort{addStream(t, e, "cam0"), addStream(t, e, "cam1"), addStream(t, e, "cam2")}

	readyCalls := 0
	e.OnReady(func() { readyCalls++ })

	for _, id := range []StreamID{"cam0", "cam1", "cam2"} {
		if err := e.StreamReady(id); err != nil {
			t.Fatalf("StreamReady(%s): %v", id, err)
		}
	}

	if readyCalls != 1 {
		t.Fatalf("onReady called %d times, want exactly 1", readyCalls)
	}
	snap := e.Snapshot()
	if !snap.Started || !snap.Clock.IsPlaying {
		t.Fatalf("expected started playing engine, got started=%v playing=%v", snap.Started, snap.Clock.IsPlaying)
	}
	for i, p := range ports {
		if p.plays != 1 || !p.playing {
			t.Errorf("stream %d: plays=%d playing=%v, want started exactly once", i, p.plays, p.playing)
		}
	}
	for _, s := range snap.Streams {
		if s.LocalTime != 0 {
			t.Errorf("stream %s local time = %v, want 0 at start", s.ID, s.LocalTime)
		}
	}

	// A duplicate readiness report after the transition changes nothing.
	if err := e.StreamReady("cam0"); err != nil {
		t.Fatalf("repeated StreamReady: %v", err)
	}
	if readyCalls != 1 {
		t.Errorf("onReady re-fired on duplicate readiness")
	}
}

func TestEngine_fallback_starts_ready_subset(t *testing.T) {
	e := newTestEngine(t, 20, 30*time.Millisecond)
	fast0 := addStream(t, e, "cam0")
	fast1 := addStream(t, e, "cam1")
	slow := addStream(t, e, "cam2")

	_ = e.StreamReady("cam0")
	_ = e.StreamReady("cam1")

	time.Sleep(120 * time.Millisecond)

	snap := e.Snapshot()
	if !snap.Started || !snap.Clock.IsPlaying {
		t.Fatalf("fallback should have started playback, got started=%v", snap.Started)
	}
	if fast0.plays != 1 || fast1.plays != 1 {
		t.Errorf("ready streams should play: plays=%d,%d", fast0.plays, fast1.plays)
	}
	if slow.plays != 0 {
		t.Errorf("loading stream must remain paused, plays=%d", slow.plays)
	}

	// The straggler reporting ready later is left alone: no seek, no restart.
	if err := e.StreamReady("cam2"); err != nil {
		t.Fatalf("late StreamReady: %v", err)
	}
	if len(slow.seeks) != 0 || slow.plays != 0 {
		t.Errorf("late-ready stream was disturbed: seeks=%v plays=%d", slow.seeks, slow.plays)
	}
}

func TestEngine_fallback_with_nothing_ready_waits(t *testing.T) {
	e := newTestEngine(t, 20, 20*time.Millisecond)
	port := addStream(t, e, "cam0")

	time.Sleep(80 * time.Millisecond)
	if e.Snapshot().Started {
		t.Fatal("barrier fired with zero ready streams")
	}

	// First readiness after the elapsed deadline starts playback immediately.
	_ = e.StreamReady("cam0")
	if !e.Snapshot().Started {
		t.Fatal("expected start on first readiness after deadline")
	}
	if port.plays != 1 {
		t.Errorf("plays=%d, want 1", port.plays)
	}
}

func TestEngine_segmented_streams_seek_to_segment_start(t *testing.T) {
	e := newTestEngine(t, 5, time.Minute)
	segPort := addSegmentedStream(t, e, "cam0", &Segment{Start: 10, End: 15})
	plainPort := addStream(t, e, "cam1")

	_ = e.StreamReady("cam0")
	_ = e.StreamReady("cam1")

	if len(segPort.seeks) != 1 || segPort.seeks[0] != 10 {
		t.Errorf("segmented stream seeks = %v, want [10] before playback", segPort.seeks)
	}
	if len(plainPort.seeks) != 0 {
		t.Errorf("unsegmented stream should start from 0 without a seek, got %v", plainPort.seeks)
	}
}

func TestEngine_initial_offset_applied_on_start(t *testing.T) {
	e := NewEngine("ep1", EngineConfig{Duration: 20, InitialOffset: 3, ReadinessFallback: time.Minute}, testLogger(), nil)
	defer e.Close()
	segPort := addSegmentedStream(t, e, "cam0", &Segment{Start: 10, End: 30})
	plainPort := addStream(t, e, "cam1")

	_ = e.StreamReady("cam0")
	_ = e.StreamReady("cam1")

	snap := e.Snapshot()
	if snap.Clock.CurrentTime != 3 {
		t.Fatalf("clock = %v, want initial offset 3", snap.Clock.CurrentTime)
	}
	if segPort.position != 13 {
		t.Errorf("segmented stream position = %v, want 13 (segment start + offset)", segPort.position)
	}
	if plainPort.position != 3 {
		t.Errorf("unsegmented stream position = %v, want 3", plainPort.position)
	}
}

func TestEngine_resume_gated_until_started(t *testing.T) {
	e := newTestEngine(t, 20, time.Minute)
	port := addStream(t, e, "cam0")

	if err := e.SetPlaying(true); err != nil {
		t.Fatalf("SetPlaying: %v", err)
	}
	if e.Snapshot().Clock.IsPlaying || port.plays != 0 {
		t.Fatal("resume must not take effect before the readiness barrier fires")
	}

	_ = e.StreamReady("cam0")
	if !e.Snapshot().Clock.IsPlaying {
		t.Fatal("barrier fire should start playback")
	}

	// Pause then resume after start works normally.
	_ = e.SetPlaying(false)
	if port.pauses != 1 || e.Snapshot().Clock.IsPlaying {
		t.Fatalf("pause not propagated: pauses=%d", port.pauses)
	}
	_ = e.SetPlaying(true)
	if port.plays != 2 {
		t.Errorf("resume after start not propagated: plays=%d", port.plays)
	}
}

func TestEngine_set_time_clamped_to_duration(t *testing.T) {
	e := newTestEngine(t, 20, time.Minute)
	if err := e.SetTime(999); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	if got := e.Snapshot().Clock.CurrentTime; got != 20 {
		t.Errorf("clock = %v, want clamp to duration 20", got)
	}
	_ = e.SetTime(-3)
	if got := e.Snapshot().Clock.CurrentTime; got != 0 {
		t.Errorf("clock = %v, want clamp to 0", got)
	}
}

func TestEngine_rejected_seek_retried_next_tick(t *testing.T) {
	e := newTestEngine(t, 20, time.Minute)
	leader := addStream(t, e, "cam0")
	follower := addStream(t, e, "cam1")
	follower.rejectSeeks = 1
	_ = e.StreamReady("cam0")
	_ = e.StreamReady("cam1")

	_ = e.SetTime(10)
	if leader.position != 10 {
		t.Fatalf("leader position = %v, want 10", leader.position)
	}
	if follower.position != 0 {
		t.Fatalf("rejected seek should leave follower in place, got %v", follower.position)
	}

	// Any subsequent event is a tick; the pending seek goes out first.
	_ = e.StreamTime("cam0", 10.01)
	if follower.position != 10 {
		t.Errorf("follower position = %v, want retried seek to 10", follower.position)
	}
}

func TestEngine_unregister_last_loading_stream_fires_barrier(t *testing.T) {
	e := newTestEngine(t, 20, time.Minute)
	_ = addStream(t, e, "cam0")
	_ = addStream(t, e, "cam1")
	_ = e.StreamReady("cam0")

	if e.Snapshot().Started {
		t.Fatal("barrier fired early")
	}
	if err := e.UnregisterStream("cam1"); err != nil {
		t.Fatalf("UnregisterStream: %v", err)
	}
	if !e.Snapshot().Started {
		t.Error("removing the only loading stream should satisfy the barrier")
	}
}

func TestEngine_show_after_start_aligns_stream(t *testing.T) {
	e := newTestEngine(t, 20, time.Minute)
	_ = addStream(t, e, "cam0")
	late := addStream(t, e, "cam1")
	_ = e.SetVisible("cam1", false)
	_ = e.StreamReady("cam0")
	_ = e.StreamReady("cam1")

	_ = e.SetTime(8)
	if len(late.seeks) != 0 {
		t.Fatalf("hidden stream received sync traffic: %v", late.seeks)
	}

	_ = e.SetVisible("cam1", true)
	if late.position != 8 {
		t.Errorf("re-shown stream position = %v, want aligned to 8", late.position)
	}
	if late.plays != 1 {
		t.Errorf("re-shown stream should pick up the play state, plays=%d", late.plays)
	}
}

func TestEngine_closed_rejects_operations(t *testing.T) {
	e := newTestEngine(t, 20, time.Minute)
	_ = addStream(t, e, "cam0")
	e.Close()

	if err := e.SetTime(1); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SetTime after Close: %v, want ErrSessionClosed", err)
	}
	if err := e.StreamReady("cam0"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("StreamReady after Close: %v, want ErrSessionClosed", err)
	}
	e.Close() // idempotent
}

func TestEngine_fallback_timer_silent_after_close(t *testing.T) {
	e := NewEngine("ep1", EngineConfig{Duration: 20, ReadinessFallback: 20 * time.Millisecond}, testLogger(), nil)
	_ = e.RegisterStream(visibleStream("cam0"), &fakePort{})
	_ = e.StreamReady("cam0")
	// Ready immediately, so the barrier fired; closing then letting the timer
	// lapse must not panic or resurrect anything.
	e.Close()
	time.Sleep(60 * time.Millisecond)
}
