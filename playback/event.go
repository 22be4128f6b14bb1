package playback

import (
	"time"

	"lyrics-sync-go/lrc"
)

// EventType represents the type of a sync event
type EventType string

const (
	EventPlaybackStarted EventType = "playback_started"
	EventPlaybackPaused  EventType = "playback_paused"
	EventPlaybackResumed EventType = "playback_resumed"
	EventPlaybackStopped EventType = "playback_stopped"
	EventTrackChanged    EventType = "track_changed"
	EventPositionSync    EventType = "position_sync"
	EventSeekOccurred    EventType = "seek_occurred"
	EventLyricsLoaded    EventType = "lyrics_loaded"
	EventLyricsNotFound  EventType = "lyrics_not_found"
	EventError           EventType = "error"
)

// Event is a classified change published on the sync engine's bus.
// Only the fields relevant to Type are set.
type Event struct {
	Type     EventType
	Track    *TrackInfo
	Position time.Duration
	Lyrics   *lrc.Lyrics
	Message  string
}

func PlaybackStarted(track *TrackInfo, position time.Duration) Event {
	return Event{Type: EventPlaybackStarted, Track: track, Position: position}
}

func PlaybackPaused(position time.Duration) Event {
	return Event{Type: EventPlaybackPaused, Position: position}
}

func PlaybackResumed(position time.Duration) Event {
	return Event{Type: EventPlaybackResumed, Position: position}
}

func PlaybackStopped() Event {
	return Event{Type: EventPlaybackStopped}
}

func TrackChanged(track *TrackInfo, position time.Duration) Event {
	return Event{Type: EventTrackChanged, Track: track, Position: position}
}

func PositionSync(position time.Duration) Event {
	return Event{Type: EventPositionSync, Position: position}
}

func SeekOccurred(position time.Duration) Event {
	return Event{Type: EventSeekOccurred, Position: position}
}

func LyricsLoaded(lyrics *lrc.Lyrics) Event {
	return Event{Type: EventLyricsLoaded, Lyrics: lyrics}
}

func LyricsNotFound() Event {
	return Event{Type: EventLyricsNotFound}
}

func Error(message string) Event {
	return Event{Type: EventError, Message: message}
}

// HasPosition reports whether the event carries an authoritative playback position
func (e Event) HasPosition() bool {
	switch e.Type {
	case EventPlaybackStarted, EventPlaybackPaused, EventPlaybackResumed,
		EventTrackChanged, EventPositionSync, EventSeekOccurred:
		return true
	default:
		return false
	}
}
