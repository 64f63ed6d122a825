package player

// WrapEpsilon is how close to a boundary a local time must get before it counts
// as having reached the end, absorbing the jitter of native time updates.
const WrapEpsilon = 0.05

// ToLocalTime maps episode time to a stream's local media time. For a segmented
// stream, episode time zero corresponds to the segment start.
func ToLocalTime(clockTime float64, seg *Segment) float64 {
	if seg != nil {
		return seg.Start + clockTime
	}
	return clockTime
}

// ToGlobalTime maps a stream's local media time back to episode time.
func ToGlobalTime(localTime float64, seg *Segment) float64 {
	if seg != nil {
		return localTime - seg.Start
	}
	return localTime
}

// WrapIfNeeded reports what a stream should do when its local time reaches the
// end of its playable range. For a segmented stream whose local time is within
// WrapEpsilon of (or past) the segment end, it returns the segment start and
// wrapped=true: the stream loops back without involving the clock. A
// non-segmented stream never wraps locally; instead ended=true signals that the
// stream ran off the end of the episode, which the caller acts on only when the
// stream is the leader (by resetting episode time to zero).
func WrapIfNeeded(localTime float64, seg *Segment, duration float64) (target float64, wrapped, ended bool) {
	if seg != nil {
		if localTime >= seg.End-WrapEpsilon {
			return seg.Start, true, false
		}
		return localTime, false, false
	}
	if duration > 0 && localTime >= duration-WrapEpsilon {
		return localTime, false, true
	}
	return localTime, false, false
}

// clamp bounds t to [0, max].
func clamp(t, max float64) float64 {
	if t < 0 {
		return 0
	}
	if t > max {
		return max
	}
	return t
}
