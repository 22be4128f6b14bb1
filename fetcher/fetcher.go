// Package fetcher resolves lyrics for the current track: cache first, then the ordered
// provider chain, storing the first synced result.
package fetcher

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/engine"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lrc"
	"lyrics-sync-go/playback"
	"lyrics-sync-go/providers"
	"lyrics-sync-go/stats"
)

// errorEscalation is the number of consecutive provider errors after which they are
// logged at error level
const errorEscalation = 5

// LyricsCache is the part of cache.LyricsCache the fetcher uses
type LyricsCache interface {
	GetByProviderID(ctx context.Context, provider, providerTrackID string) (*cache.Entry, error)
	GetByMetadata(ctx context.Context, artist, track, album string) (*cache.Entry, error)
	Store(ctx context.Context, provider, providerTrackID string, result providers.Result,
		meta cache.TrackMetadata, lyricsProvider, lyricsProviderID string) (int64, error)
}

// Fetcher reacts to track changes on the engine's bus.
// It is driven by a single goroutine; FetchForTrack must not be called concurrently with Run.
type Fetcher struct {
	engine *engine.Engine
	cache  LyricsCache
	chain  []providers.Provider

	consecutiveErrors int
	lastTrack         *playback.TrackInfo // last track a fetch was started for
}

// New creates a fetcher. cache may be nil, in which case every fetch goes to the providers.
func New(e *engine.Engine, c LyricsCache, chain []providers.Provider) *Fetcher {
	return &Fetcher{engine: e, cache: c, chain: chain}
}

// Run fetches for the current track if it has no lyrics yet, then fetches on every
// TrackChanged and PlaybackStarted event until ctx is done or the bus closes.
// Fetches run one at a time in event order.
func (f *Fetcher) Run(ctx context.Context) error {
	sub := f.engine.Subscribe()
	defer sub.Close()

	if track := f.engine.CurrentTrack(); track != nil && f.engine.Lyrics() == nil {
		f.FetchForTrack(ctx, track)
	}

	log.Infof("%s Listening for track changes (%d providers)", logcolors.LogFetcher, len(f.chain))

	for {
		event, err := sub.Recv(ctx)
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrLagged):
			log.Warnf("%s %v, resyncing from engine state", logcolors.LogFetcher, err)
			f.resync(ctx)
			continue
		case errors.Is(err, engine.ErrClosed):
			log.Infof("%s Event bus closed, stopping", logcolors.LogFetcher)
			return nil
		default:
			return err
		}

		switch event.Type {
		case playback.EventTrackChanged:
			if event.Track != nil {
				f.FetchForTrack(ctx, event.Track)
			}
		case playback.EventPlaybackStarted:
			// follows the TrackChanged for the same track
			if event.Track != nil && !playback.SameTrack(event.Track, f.lastTrack) {
				f.FetchForTrack(ctx, event.Track)
			}
		}
	}
}

// resync fetches for the current track when a track change may have been among the
// skipped events: the track has no lyrics and no fetch was started for it.
func (f *Fetcher) resync(ctx context.Context) {
	track := f.engine.CurrentTrack()
	if track == nil || f.engine.Lyrics() != nil || playback.SameTrack(track, f.lastTrack) {
		return
	}
	f.FetchForTrack(ctx, track)
}

// FetchForTrack resolves lyrics for track and applies them to the engine unless the track
// changed in the meantime. It returns the lyrics found, or nil.
func (f *Fetcher) FetchForTrack(ctx context.Context, track *playback.TrackInfo) *lrc.Lyrics {
	start := time.Now()
	source := track.Source.String()
	f.lastTrack = track

	if lyrics := f.fromCache(ctx, track); lyrics != nil {
		applied := f.engine.SetLyricsForTrack(track, lyrics)
		stats.Get().RecordFetchOutcome(true, applied)
		log.Infof("%s Cached lyrics for %s - %s (%d lines)", logcolors.LogFetcher, track.Artist, track.Name, len(lyrics.Lines))
		return lyrics
	}

	query := providers.QueryFromTrack(track)
	log.Infof("%s Fetching lyrics for %s", logcolors.LogFetcher, query)

	for _, p := range f.chain {
		if ctx.Err() != nil {
			return nil
		}

		fetched, err := p.Fetch(ctx, query)
		if err != nil {
			f.recordError(p.Name(), err)
			continue
		}
		f.consecutiveErrors = 0
		stats.Get().RecordProviderResult(p.Name(), fetched.Result.Kind.String())

		switch fetched.Result.Kind {
		case providers.KindSynced:
			if !fetched.Result.IsSynced() {
				continue
			}
			lyrics := fetched.Result.Lyrics
			f.store(ctx, track, source, fetched, p.Name())

			applied := f.engine.SetLyricsForTrack(track, lyrics)
			stats.Get().RecordFetchOutcome(true, applied)
			switch {
			case !applied && f.cache != nil:
				log.Infof("%s Track changed while fetching %s, result kept in cache only", logcolors.LogFetcher, query)
			case !applied:
				log.Infof("%s Track changed while fetching %s, result dropped", logcolors.LogFetcher, query)
			default:
				log.Infof("%s Synced lyrics from %s for %s in %v", logcolors.LogFetcher,
					logcolors.Provider(p.Name()), query, time.Since(start).Round(time.Millisecond))
			}
			return lyrics

		case providers.KindUnsynced:
			log.Infof("%s %s only has unsynced lyrics for %s, trying next provider",
				logcolors.LogFetcher, logcolors.Provider(p.Name()), query)

		default:
			log.Infof("%s %s has no lyrics for %s", logcolors.LogFetcher, logcolors.Provider(p.Name()), query)
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	applied := f.engine.SetNoLyricsForTrack(track)
	stats.Get().RecordFetchOutcome(false, applied)
	log.Infof("%s No synced lyrics found for %s", logcolors.LogFetcher, query)
	return nil
}

// fromCache returns cached synced lyrics for the track, or nil. The source track id is
// tried first, then (artist, track, album); a metadata hit is linked to the source id so
// the next lookup hits directly. Cached unsynced lyrics do not count as a hit.
func (f *Fetcher) fromCache(ctx context.Context, track *playback.TrackInfo) *lrc.Lyrics {
	if f.cache == nil {
		return nil
	}
	source := track.Source.String()

	entry, err := f.cache.GetByProviderID(ctx, source, track.SourceTrackID)
	if err != nil {
		log.Warnf("%s Cache lookup failed for %s:%s: %v", logcolors.LogFetcher, source, track.SourceTrackID, err)
	}
	if lyrics := syncedFrom(entry); lyrics != nil {
		stats.Get().RecordCacheHit()
		return lyrics
	}

	if track.Artist != "" && track.Name != "" {
		entry, err = f.cache.GetByMetadata(ctx, track.Artist, track.Name, track.Album)
		if err != nil {
			log.Warnf("%s Metadata lookup failed for %s - %s: %v", logcolors.LogFetcher, track.Artist, track.Name, err)
		}
		if lyrics := syncedFrom(entry); lyrics != nil {
			stats.Get().RecordCacheHit()
			f.link(ctx, track, entry)
			return lyrics
		}
	}

	stats.Get().RecordCacheMiss()
	return nil
}

func syncedFrom(entry *cache.Entry) *lrc.Lyrics {
	if entry == nil {
		return nil
	}
	result := entry.Result()
	if !result.IsSynced() {
		return nil
	}
	return result.Lyrics
}

// link maps the source track id onto an entry found by metadata
func (f *Fetcher) link(ctx context.Context, track *playback.TrackInfo, entry *cache.Entry) {
	meta := cache.TrackMetadata{Artist: entry.Artist, Track: entry.Track, Album: entry.Album}
	if entry.DurationMs != nil {
		meta.DurationMs = *entry.DurationMs
	}
	_, err := f.cache.Store(ctx, track.Source.String(), track.SourceTrackID, entry.Result(), meta, entry.Provider, entry.ProviderID)
	if err != nil {
		log.Warnf("%s Failed to link %s:%s to cached lyrics: %v", logcolors.LogFetcher, track.Source, track.SourceTrackID, err)
	}
}

// store writes a synced result keyed by the source track id. Failures are logged only.
func (f *Fetcher) store(ctx context.Context, track *playback.TrackInfo, source string, fetched *providers.Fetched, providerName string) {
	if f.cache == nil {
		return
	}

	meta := cache.TrackMetadata{
		Artist:     track.Artist,
		Track:      track.Name,
		Album:      track.Album,
		DurationMs: track.Duration.Milliseconds(),
	}
	if _, err := f.cache.Store(ctx, source, track.SourceTrackID, fetched.Result, meta, providerName, fetched.ProviderID); err != nil {
		log.Warnf("%s Failed to cache lyrics for %s - %s: %v", logcolors.LogFetcher, track.Artist, track.Name, err)
		return
	}
	stats.Get().RecordCacheStore()
}

func (f *Fetcher) recordError(providerName string, err error) {
	f.consecutiveErrors++
	stats.Get().RecordProviderResult(providerName, "error")

	if f.consecutiveErrors >= errorEscalation {
		log.Errorf("%s %s failed (%d consecutive provider errors): %v",
			logcolors.LogFetcher, logcolors.Provider(providerName), f.consecutiveErrors, err)
		return
	}
	log.Warnf("%s %s failed: %v", logcolors.LogFetcher, logcolors.Provider(providerName), err)
}
