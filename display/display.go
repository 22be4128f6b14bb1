package display

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/engine"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/playback"
)

// DefaultRefreshInterval is how often the console display drains events and re-renders
const DefaultRefreshInterval = 100 * time.Millisecond

// Options configures a Display
type Options struct {
	DriftThreshold  time.Duration
	RefreshInterval time.Duration
	// LogEvents also logs every received event, not only line changes
	LogEvents bool
}

// Display is a console subscriber: it follows the engine through a drift-corrected Tracker
// and logs the active lyrics line whenever it changes.
type Display struct {
	engine   *engine.Engine
	tracker  *Tracker
	interval time.Duration
	logEvent bool

	// only touched by the Run goroutine
	lastTrack *playback.TrackInfo
	lastIndex int
}

// New creates a display for e
func New(e *engine.Engine, opts Options) *Display {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	return &Display{
		engine:    e,
		tracker:   NewTracker(opts.DriftThreshold),
		interval:  opts.RefreshInterval,
		logEvent:  opts.LogEvents,
		lastIndex: -1,
	}
}

// Tracker exposes the display's local clock
func (d *Display) Tracker() *Tracker {
	return d.tracker
}

// Run follows the engine until ctx is done or the engine closes
func (d *Display) Run(ctx context.Context) error {
	sub := d.engine.Subscribe()
	defer sub.Close()

	d.tracker.Resync(d.engine.State())
	log.Infof("%s Subscribed as %s", logcolors.LogDisplay, sub.ID())

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if closed := d.drain(sub); closed {
			log.Infof("%s Event bus closed, stopping", logcolors.LogDisplay)
			return nil
		}
		d.render()
	}
}

// drain applies every pending event and reports whether the bus closed
func (d *Display) drain(sub *engine.Subscription) bool {
	for {
		event, ok, err := sub.TryRecv()
		var lagged *engine.LaggedError
		switch {
		case errors.As(err, &lagged):
			log.Warnf("%s Missed %d events, resyncing from engine state", logcolors.LogDisplay, lagged.Skipped)
			d.tracker.Resync(d.engine.State())
			continue
		case errors.Is(err, engine.ErrClosed):
			return true
		case !ok:
			return false
		}

		if d.logEvent {
			d.logEventReceived(event)
		}
		d.tracker.Apply(event)
	}
}

func (d *Display) logEventReceived(event playback.Event) {
	switch event.Type {
	case playback.EventTrackChanged, playback.EventPlaybackStarted:
		if event.Track != nil {
			log.Infof("%s %s: %s - %s", logcolors.LogDisplay, event.Type, event.Track.Artist, event.Track.Name)
			return
		}
	case playback.EventLyricsLoaded:
		if event.Lyrics != nil {
			log.Infof("%s %s (%d lines)", logcolors.LogDisplay, event.Type, len(event.Lyrics.Lines))
			return
		}
	case playback.EventError:
		log.Warnf("%s %s", logcolors.LogDisplay, event.Message)
		return
	case playback.EventPositionSync:
		log.Debugf("%s %s at %v", logcolors.LogDisplay, event.Type, event.Position)
		return
	}
	if event.HasPosition() {
		log.Infof("%s %s at %v", logcolors.LogDisplay, event.Type, event.Position.Truncate(time.Millisecond))
		return
	}
	log.Infof("%s %s", logcolors.LogDisplay, event.Type)
}

// render logs the active line when it differs from the last one logged
func (d *Display) render() {
	view := d.tracker.View(0, 0)

	if !playback.SameTrack(view.Track, d.lastTrack) {
		d.lastTrack = view.Track
		d.lastIndex = -1
	}
	if view.Index == d.lastIndex {
		return
	}
	d.lastIndex = view.Index
	if view.Index < 0 || view.Line == "" {
		return
	}

	log.Infof("%s [%s] %s", logcolors.LogDisplay, formatPosition(view.Position), view.Line)
}

func formatPosition(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d/time.Minute), int((d%time.Minute)/time.Second))
}
