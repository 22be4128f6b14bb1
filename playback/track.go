// Package playback models player snapshots and classifies the change between two of them.
package playback

import (
	"time"
)

// TrackInfo describes the track a snapshot refers to.
// Identity for change detection is (Source, SourceTrackID).
type TrackInfo struct {
	Source        MusicSource
	SourceTrackID string
	// ProviderIDs maps a lyrics provider name to that provider's id for this track
	ProviderIDs map[string]string
	Name        string
	Artist      string
	Album       string
	Duration    time.Duration
}

// NewTrackInfo creates a TrackInfo with an empty provider id map
func NewTrackInfo(source MusicSource, id, name, artist, album string, duration time.Duration) *TrackInfo {
	return &TrackInfo{
		Source:        source,
		SourceTrackID: id,
		ProviderIDs:   make(map[string]string),
		Name:          name,
		Artist:        artist,
		Album:         album,
		Duration:      duration,
	}
}

// WithProviderID records the id a lyrics provider uses for this track (chainable)
func (t *TrackInfo) WithProviderID(provider, id string) *TrackInfo {
	if t.ProviderIDs == nil {
		t.ProviderIDs = make(map[string]string)
	}
	t.ProviderIDs[provider] = id
	return t
}

// DurationSecs returns the duration in whole seconds
func (t *TrackInfo) DurationSecs() int {
	return int(t.Duration / time.Second)
}

// SameTrack reports whether a and b refer to the same track. Two nil tracks are the same.
func SameTrack(a, b *TrackInfo) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Source == b.Source && a.SourceTrackID == b.SourceTrackID
}

// Clone returns a deep copy of the track
func (t *TrackInfo) Clone() *TrackInfo {
	if t == nil {
		return nil
	}
	c := *t
	c.ProviderIDs = make(map[string]string, len(t.ProviderIDs))
	for k, v := range t.ProviderIDs {
		c.ProviderIDs[k] = v
	}
	return &c
}

// Snapshot is one poll result. It is never mutated, only superseded.
type Snapshot struct {
	IsPlaying  bool
	Track      *TrackInfo
	Position   time.Duration
	Duration   time.Duration
	ObservedAt time.Time
}

// NewSnapshot creates a snapshot observed now
func NewSnapshot(playing bool, track *TrackInfo, position, duration time.Duration) Snapshot {
	return Snapshot{
		IsPlaying:  playing,
		Track:      track,
		Position:   position,
		Duration:   duration,
		ObservedAt: time.Now(),
	}
}

// InterpolatedPosition extrapolates the position to now. A paused snapshot never advances.
// The result is clamped to the track duration when the duration is known.
func (s Snapshot) InterpolatedPosition(now time.Time) time.Duration {
	if !s.IsPlaying || s.ObservedAt.IsZero() {
		return s.Position
	}

	elapsed := now.Sub(s.ObservedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	position := s.Position + elapsed

	if s.Duration > 0 && position > s.Duration {
		return s.Duration
	}
	return position
}
