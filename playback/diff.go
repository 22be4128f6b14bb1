package playback

import "time"

// DefaultSeekThreshold is the position discrepancy above which a tick counts as a seek
const DefaultSeekThreshold = 2 * time.Second

// TrackChangedBetween reports whether the track identity differs, including nil <-> non-nil
func TrackChangedBetween(prev, next Snapshot) bool {
	return !SameTrack(prev.Track, next.Track)
}

// ExpectedPosition is where prev should be at the time next was observed.
// It only advances while prev was playing.
func ExpectedPosition(prev, next Snapshot) time.Duration {
	if next.ObservedAt.IsZero() {
		return prev.Position
	}
	return prev.InterpolatedPosition(next.ObservedAt)
}

// SeekBetween reports whether next's position departs from the extrapolated position of prev
// by more than threshold. A track change is never a seek.
func SeekBetween(prev, next Snapshot, threshold time.Duration) bool {
	if TrackChangedBetween(prev, next) {
		return false
	}

	delta := next.Position - ExpectedPosition(prev, next)
	if delta < 0 {
		delta = -delta
	}
	return delta > threshold
}

// Diff classifies the transition from prev to next into events.
//
// Priority is track > play state > seek > position. A track change also emits a
// Started/Resumed/Paused event so the play state is never ambiguous afterwards, or Stopped
// when the new snapshot has no track. Started is used when the previous snapshot had no track.
func Diff(prev, next Snapshot, seekThreshold time.Duration) []Event {
	if seekThreshold <= 0 {
		seekThreshold = DefaultSeekThreshold
	}

	switch {
	case TrackChangedBetween(prev, next):
		if next.Track == nil {
			return []Event{PlaybackStopped()}
		}
		events := []Event{TrackChanged(next.Track, next.Position)}
		switch {
		case !next.IsPlaying:
			return append(events, PlaybackPaused(next.Position))
		case prev.Track == nil:
			// first track since startup or a stop
			return append(events, PlaybackStarted(next.Track, next.Position))
		default:
			return append(events, PlaybackResumed(next.Position))
		}

	case prev.IsPlaying != next.IsPlaying:
		// the track is unchanged here, so with no track there is nothing to report
		if next.Track == nil {
			return nil
		}
		if !next.IsPlaying {
			return []Event{PlaybackPaused(next.Position)}
		}
		return []Event{PlaybackResumed(next.Position)}

	case SeekBetween(prev, next, seekThreshold):
		return []Event{SeekOccurred(next.Position)}

	default:
		return []Event{PositionSync(next.Position)}
	}
}
