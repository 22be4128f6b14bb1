// Package engine owns the process-wide playback and lyrics state and broadcasts
// classified events to any number of subscribers.
package engine

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lrc"
	"lyrics-sync-go/playback"
)

// State is a copy of the engine state at one instant
type State struct {
	Snapshot playback.Snapshot
	Lyrics   *lrc.Lyrics
}

// Options configures an Engine
type Options struct {
	// SeekThreshold defaults to playback.DefaultSeekThreshold
	SeekThreshold time.Duration
	// BusCapacity defaults to DefaultCapacity
	BusCapacity int
}

// Engine is the single owner of the sync state.
//
// Writes hold the lock only for the state swap and the (non-blocking) publish, so no
// network or cache work ever happens under it.
type Engine struct {
	mu            sync.RWMutex
	snapshot      playback.Snapshot
	lyrics        *lrc.Lyrics
	bus           *Bus
	seekThreshold time.Duration
	now           func() time.Time
}

// New creates an engine with an empty snapshot and no lyrics
func New(opts Options) *Engine {
	if opts.SeekThreshold <= 0 {
		opts.SeekThreshold = playback.DefaultSeekThreshold
	}
	return &Engine{
		bus:           NewBus(opts.BusCapacity),
		seekThreshold: opts.SeekThreshold,
		now:           time.Now,
	}
}

// UpdateState classifies snapshot against the current one, records it and publishes the
// resulting events. Events are published while the write lock is held so that a subscriber
// reading state after receiving an event never sees the previous snapshot.
func (e *Engine) UpdateState(snapshot playback.Snapshot) []playback.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := playback.Diff(e.snapshot, snapshot, e.seekThreshold)

	if playback.TrackChangedBetween(e.snapshot, snapshot) {
		e.lyrics = nil
		if snapshot.Track != nil {
			log.Infof("%s Track changed: %s - %s", logcolors.LogEngine, snapshot.Track.Artist, snapshot.Track.Name)
		}
	}

	e.snapshot = snapshot

	for _, event := range events {
		e.bus.Publish(event)
	}

	return events
}

// SetLyrics stores lyrics for the current track and publishes LyricsLoaded
func (e *Engine) SetLyrics(lyrics *lrc.Lyrics) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lyrics = lyrics
	e.bus.Publish(playback.LyricsLoaded(lyrics))
}

// SetLyricsForTrack is SetLyrics guarded by the track identity: it does nothing and returns
// false when track is no longer the current track.
func (e *Engine) SetLyricsForTrack(track *playback.TrackInfo, lyrics *lrc.Lyrics) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !playback.SameTrack(e.snapshot.Track, track) {
		return false
	}
	e.lyrics = lyrics
	e.bus.Publish(playback.LyricsLoaded(lyrics))
	return true
}

// SetNoLyrics clears lyrics and publishes LyricsNotFound
func (e *Engine) SetNoLyrics() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lyrics = nil
	e.bus.Publish(playback.LyricsNotFound())
}

// SetNoLyricsForTrack is SetNoLyrics guarded by the track identity
func (e *Engine) SetNoLyricsForTrack(track *playback.TrackInfo) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !playback.SameTrack(e.snapshot.Track, track) {
		return false
	}
	e.lyrics = nil
	e.bus.Publish(playback.LyricsNotFound())
	return true
}

// EmitError publishes an Error event without touching state
func (e *Engine) EmitError(message string) {
	e.bus.Publish(playback.Error(message))
}

// Subscribe returns a new event subscription
func (e *Engine) Subscribe() *Subscription {
	return e.bus.Subscribe()
}

// RecentEvents returns the events still retained by the bus
func (e *Engine) RecentEvents() []playback.Event {
	return e.bus.Recent()
}

// SubscriberCount returns the number of live subscriptions
func (e *Engine) SubscriberCount() int {
	return e.bus.SubscriberCount()
}

// State returns a copy of the current state
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return State{Snapshot: e.snapshot, Lyrics: e.lyrics}
}

// Lyrics returns the lyrics of the current track, or nil
func (e *Engine) Lyrics() *lrc.Lyrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lyrics
}

// CurrentPosition returns the interpolated playback position
func (e *Engine) CurrentPosition() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.InterpolatedPosition(e.now())
}

// IsPlaying reports the play state of the latest snapshot
func (e *Engine) IsPlaying() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.IsPlaying
}

// CurrentTrack returns the current track, or nil
func (e *Engine) CurrentTrack() *playback.TrackInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.Track
}

// Close closes the event bus, ending every subscription
func (e *Engine) Close() {
	e.bus.Close()
}
