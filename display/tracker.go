// Package display keeps a local playback clock in step with the sync engine and derives
// the active lyrics line from it.
package display

import (
	"sync"
	"time"

	"lyrics-sync-go/engine"
	"lyrics-sync-go/lrc"
	"lyrics-sync-go/playback"
)

// DefaultDriftThreshold is the local/authoritative discrepancy tolerated on position syncs
const DefaultDriftThreshold = 200 * time.Millisecond

// Tracker is a drift-corrected local clock.
//
// Between events the position advances with the wall clock. Periodic PositionSync events
// only move the clock when it is off by more than the drift threshold; seeks, track changes
// and play state changes always move it.
type Tracker struct {
	mu             sync.Mutex
	lyrics         *lrc.Lyrics
	track          *playback.TrackInfo
	refPosition    time.Duration
	refAt          time.Time
	playing        bool
	driftThreshold time.Duration
	corrections    int64
	now            func() time.Time
}

// NewTracker creates a stopped tracker. A non-positive threshold uses DefaultDriftThreshold.
func NewTracker(driftThreshold time.Duration) *Tracker {
	if driftThreshold <= 0 {
		driftThreshold = DefaultDriftThreshold
	}
	return &Tracker{driftThreshold: driftThreshold, now: time.Now}
}

// Apply updates the tracker from a sync engine event
func (t *Tracker) Apply(event playback.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Type {
	case playback.EventLyricsLoaded:
		t.lyrics = event.Lyrics
	case playback.EventLyricsNotFound:
		t.lyrics = nil
	case playback.EventPositionSync:
		t.correctLocked(event.Position)
	case playback.EventSeekOccurred:
		t.syncLocked(event.Position)
	case playback.EventPlaybackStarted:
		t.track = event.Track
		t.syncLocked(event.Position)
		t.playing = true
	case playback.EventPlaybackResumed:
		t.syncLocked(event.Position)
		t.playing = true
	case playback.EventPlaybackPaused:
		t.syncLocked(event.Position)
		t.playing = false
	case playback.EventTrackChanged:
		// Diff follows a track change with a resume or pause that sets the play state
		t.track = event.Track
		t.lyrics = nil
		t.playing = false
		t.syncLocked(event.Position)
	case playback.EventPlaybackStopped:
		t.track = nil
		t.lyrics = nil
		t.playing = false
		t.syncLocked(0)
	}
}

// Resync replaces everything with the engine's current state, used after missing events
func (t *Tracker) Resync(state engine.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.track = state.Snapshot.Track
	t.lyrics = state.Lyrics
	t.playing = state.Snapshot.IsPlaying
	t.refPosition = state.Snapshot.InterpolatedPosition(now)
	t.refAt = now
}

// correctLocked moves the clock only when it drifted past the threshold
func (t *Tracker) correctLocked(authoritative time.Duration) {
	drift := t.positionLocked() - authoritative
	if drift < 0 {
		drift = -drift
	}
	if drift > t.driftThreshold {
		t.corrections++
		t.syncLocked(authoritative)
	}
}

func (t *Tracker) syncLocked(position time.Duration) {
	t.refPosition = position
	t.refAt = t.now()
}

func (t *Tracker) positionLocked() time.Duration {
	if !t.playing || t.refAt.IsZero() {
		return t.refPosition
	}
	elapsed := t.now().Sub(t.refAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return t.refPosition + elapsed
}

// Position returns the local clock's position
func (t *Tracker) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked()
}

// Corrections returns how many position syncs moved the clock
func (t *Tracker) Corrections() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.corrections
}

// View is what a display shows at one instant
type View struct {
	Track     *playback.TrackInfo
	Playing   bool
	Position  time.Duration
	HasLyrics bool
	// Index is -1 before the first line or without lyrics
	Index    int
	Line     string
	Progress float64
	Visible  []lrc.Line
}

// View returns the active line and its progress at the current local position, with
// before/after lines of context
func (t *Tracker) View(before, after int) View {
	t.mu.Lock()
	defer t.mu.Unlock()

	position := t.positionLocked()
	view := View{
		Track:     t.track,
		Playing:   t.playing,
		Position:  position,
		HasLyrics: !t.lyrics.IsEmpty(),
		Index:     -1,
	}
	if t.lyrics.IsEmpty() {
		return view
	}

	view.Visible = t.lyrics.VisibleLines(position, before, after)
	i, ok := t.lyrics.LineIndexAt(position)
	if !ok {
		return view
	}

	line := t.lyrics.Lines[i]
	view.Index = i
	view.Line = line.Text
	view.Progress = line.Progress(position, t.lyrics.NextStart(i))
	return view
}
