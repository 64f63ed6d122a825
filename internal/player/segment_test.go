package player

import "testing"

func TestToLocalTime_segmented(t *testing.T) {
	seg := &Segment{Start: 10, End: 15}
	if got := ToLocalTime(2.5, seg); got != 12.5 {
		t.Errorf("ToLocalTime(2.5, [10,15)) = %v, want 12.5", got)
	}
	if got := ToLocalTime(2.5, nil); got != 2.5 {
		t.Errorf("ToLocalTime(2.5, nil) = %v, want 2.5", got)
	}
}

func TestToGlobalTime_segmented(t *testing.T) {
	seg := &Segment{Start: 10, End: 15}
	if got := ToGlobalTime(12.5, seg); got != 2.5 {
		t.Errorf("ToGlobalTime(12.5, [10,15)) = %v, want 2.5", got)
	}
	if got := ToGlobalTime(12.5, nil); got != 12.5 {
		t.Errorf("ToGlobalTime(12.5, nil) = %v, want 12.5", got)
	}
}

func TestWrapIfNeeded_segmented_wraps_to_start(t *testing.T) {
	seg := &Segment{Start: 10, End: 15}

	target, wrapped, ended := WrapIfNeeded(15.02, seg, 5)
	if !wrapped || ended {
		t.Fatalf("expected wrapped at 15.02, got wrapped=%v ended=%v", wrapped, ended)
	}
	if target != 10 {
		t.Errorf("wrap target = %v, want segment start 10 (not 15.02)", target)
	}

	// Within epsilon of the boundary counts as reaching it.
	if _, wrapped, _ := WrapIfNeeded(14.96, seg, 5); !wrapped {
		t.Error("expected wrap within epsilon of segment end")
	}
	if _, wrapped, _ := WrapIfNeeded(14.0, seg, 5); wrapped {
		t.Error("mid-segment local time should not wrap")
	}
}

func TestWrapIfNeeded_unsegmented_signals_ended(t *testing.T) {
	if _, wrapped, ended := WrapIfNeeded(19.99, nil, 20); wrapped || !ended {
		t.Errorf("expected ended at duration, got wrapped=%v ended=%v", wrapped, ended)
	}
	if _, _, ended := WrapIfNeeded(12, nil, 20); ended {
		t.Error("mid-timeline local time should not signal ended")
	}
}

func TestSegment_Duration(t *testing.T) {
	if got := (Segment{Start: 10, End: 15}).Duration(); got != 5 {
		t.Errorf("Duration() = %v, want 5", got)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(-1, 20); got != 0 {
		t.Errorf("clamp(-1, 20) = %v, want 0", got)
	}
	if got := clamp(25, 20); got != 20 {
		t.Errorf("clamp(25, 20) = %v, want 20", got)
	}
	if got := clamp(7, 20); got != 7 {
		t.Errorf("clamp(7, 20) = %v, want 7", got)
	}
}
