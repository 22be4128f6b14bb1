package engine

import (
	"testing"
	"time"

	"lyrics-sync-go/lrc"
	"lyrics-sync-go/playback"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func track(id string) *playback.TrackInfo {
	return playback.NewTrackInfo(playback.SourceSpotify, id, "Song "+id, "Artist", "Album", 3*time.Minute)
}

func playing(tr *playback.TrackInfo, position time.Duration, at time.Time) playback.Snapshot {
	return playback.Snapshot{IsPlaying: true, Track: tr, Position: position, Duration: 3 * time.Minute, ObservedAt: at}
}

func drain(t *testing.T, sub *Subscription) []playback.EventType {
	t.Helper()
	var types []playback.EventType
	for {
		event, ok, err := sub.TryRecv()
		if err != nil {
			t.Fatalf("Unexpected error draining subscription: %v", err)
		}
		if !ok {
			return types
		}
		types = append(types, event.Type)
	}
}

func equalTypes(a, b []playback.EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngine_UpdateStatePublishesDiff(t *testing.T) {
	e := New(Options{})
	defer e.Close()
	sub := e.Subscribe()

	returned := e.UpdateState(playing(track("a"), 0, t0))

	got := drain(t, sub)
	want := []playback.EventType{playback.EventTrackChanged, playback.EventPlaybackStarted}
	if !equalTypes(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if len(returned) != len(want) {
		t.Errorf("Expected UpdateState to return the published events, got %d", len(returned))
	}
	if tr := e.CurrentTrack(); tr == nil || tr.SourceTrackID != "a" {
		t.Errorf("Expected current track a, got %+v", tr)
	}
	if !e.IsPlaying() {
		t.Error("Expected engine to report playing")
	}
}

func TestEngine_TrackChangeClearsLyrics(t *testing.T) {
	e := New(Options{})
	defer e.Close()

	e.UpdateState(playing(track("a"), 0, t0))
	e.SetLyrics(lrc.Parse("[00:01.00]hello"))
	if e.Lyrics() == nil {
		t.Fatal("Expected lyrics to be set")
	}

	// same track: lyrics survive
	e.UpdateState(playing(track("a"), time.Second, t0.Add(time.Second)))
	if e.Lyrics() == nil {
		t.Error("Expected lyrics to survive a position sync")
	}

	e.UpdateState(playing(track("b"), 0, t0.Add(2*time.Second)))
	if e.Lyrics() != nil {
		t.Error("Expected lyrics cleared on track change")
	}
}

func TestEngine_SetLyricsAndNoLyrics(t *testing.T) {
	e := New(Options{})
	defer e.Close()
	sub := e.Subscribe()

	lyrics := lrc.Parse("[00:01.00]line")
	e.SetLyrics(lyrics)
	e.SetNoLyrics()
	e.EmitError("provider down")

	got := drain(t, sub)
	want := []playback.EventType{playback.EventLyricsLoaded, playback.EventLyricsNotFound, playback.EventError}
	if !equalTypes(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if e.Lyrics() != nil {
		t.Error("Expected SetNoLyrics to clear lyrics")
	}
}

func TestEngine_SetLyricsForTrackDropsStaleResults(t *testing.T) {
	e := New(Options{})
	defer e.Close()

	a := track("a")
	e.UpdateState(playing(a, 0, t0))
	e.UpdateState(playing(track("b"), 0, t0.Add(time.Second)))

	sub := e.Subscribe()
	if e.SetLyricsForTrack(a, lrc.Parse("[00:01.00]stale")) {
		t.Error("Expected lyrics for a previous track to be rejected")
	}
	if e.SetNoLyricsForTrack(a) {
		t.Error("Expected not-found for a previous track to be rejected")
	}
	if got := drain(t, sub); len(got) != 0 {
		t.Errorf("Expected no events for stale results, got %v", got)
	}

	if !e.SetLyricsForTrack(track("b"), lrc.Parse("[00:01.00]fresh")) {
		t.Error("Expected lyrics for the current track to be accepted")
	}
	if e.Lyrics() == nil || e.Lyrics().Lines[0].Text != "fresh" {
		t.Errorf("Unexpected lyrics %+v", e.Lyrics())
	}
}

func TestEngine_CurrentPositionInterpolates(t *testing.T) {
	e := New(Options{})
	defer e.Close()

	now := t0.Add(3 * time.Second)
	e.now = func() time.Time { return now }

	e.UpdateState(playing(track("a"), 10*time.Second, t0))
	if got := e.CurrentPosition(); got != 13*time.Second {
		t.Errorf("Expected 13s, got %v", got)
	}

	paused := playing(track("a"), 10*time.Second, t0)
	paused.IsPlaying = false
	e.UpdateState(paused)
	if got := e.CurrentPosition(); got != 10*time.Second {
		t.Errorf("Expected paused position 10s, got %v", got)
	}
}

func TestEngine_SeekThresholdOption(t *testing.T) {
	e := New(Options{SeekThreshold: 500 * time.Millisecond})
	defer e.Close()

	e.UpdateState(playing(track("a"), 10*time.Second, t0))
	events := e.UpdateState(playing(track("a"), 11*time.Second, t0.Add(100*time.Millisecond)))

	if len(events) != 1 || events[0].Type != playback.EventSeekOccurred {
		t.Errorf("Expected a seek with 500ms threshold, got %v", events)
	}
}

func TestEngine_StateIsConsistentWhenEventArrives(t *testing.T) {
	e := New(Options{})
	defer e.Close()
	sub := e.Subscribe()

	e.UpdateState(playing(track("a"), 0, t0))

	event, ok, err := sub.TryRecv()
	if err != nil || !ok || event.Type != playback.EventTrackChanged {
		t.Fatalf("Expected TrackChanged, got %+v ok=%v err=%v", event, ok, err)
	}
	if state := e.State(); state.Snapshot.Track == nil || state.Snapshot.Track.SourceTrackID != "a" {
		t.Errorf("Expected state to already hold the new track, got %+v", state.Snapshot.Track)
	}
}

func TestEngine_RecentEventsAndSubscribers(t *testing.T) {
	e := New(Options{BusCapacity: 2})
	sub := e.Subscribe()

	e.UpdateState(playing(track("a"), 0, t0))
	e.SetNoLyrics()

	recent := e.RecentEvents()
	if len(recent) != 2 || recent[1].Type != playback.EventLyricsNotFound {
		t.Errorf("Unexpected recent events %v", recent)
	}
	if e.SubscriberCount() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", e.SubscriberCount())
	}

	e.Close()
	sub.Close()
	if e.SubscriberCount() != 0 {
		t.Errorf("Expected no subscribers after close, got %d", e.SubscriberCount())
	}
}
