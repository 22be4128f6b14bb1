// Package lrclib implements the LRCLIB lyrics provider.
//
// Lookups degrade through three tiers: an exact match on artist, track, album and duration;
// a search by track name filtered to candidates within the duration tolerance; and a free
// text search on "artist track". Candidates are ranked synced first, then by duration delta.
package lrclib

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lrc"
	"lyrics-sync-go/providers"
	"lyrics-sync-go/transport"
)

const (
	ProviderName   = "lrclib"
	DefaultBaseURL = "https://lrclib.net/api"

	// DurationToleranceSecs bounds candidates in the track-name tier
	DurationToleranceSecs = 2.0

	// Score weights. Lower scores win.
	unsyncedPenalty      = 100
	unknownDurationScore = 50
	trackSearchScale     = 10.0
	freeTextSearchScale  = 1.0
)

// Provider queries the LRCLIB API
type Provider struct {
	client  *transport.Client
	baseURL string
}

// New creates an LRCLIB provider. An empty baseURL uses DefaultBaseURL.
func New(client *transport.Client, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

// Fetch runs the three lookup tiers in order
func (p *Provider) Fetch(ctx context.Context, query providers.Query) (*providers.Fetched, error) {
	log.Infof("%s Fetching %s (duration: %ds)", logcolors.LogRequest, query, query.DurationSecs)

	params := url.Values{}
	params.Set("artist_name", query.Artist)
	params.Set("track_name", query.Track)
	if query.Album != "" {
		params.Set("album_name", query.Album)
	}
	if query.DurationSecs > 0 {
		params.Set("duration", strconv.Itoa(query.DurationSecs))
	}

	resp, err := p.client.Get(ctx, p.baseURL+"/get?"+params.Encode(), nil)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "exact lookup failed", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		log.Infof("%s No exact match, searching by track name", logcolors.LogFallback)
		return p.searchByTrackName(ctx, query)
	}
	if !resp.OK() {
		return nil, providers.NewProviderError(ProviderName, fmt.Sprintf("exact lookup returned status %d", resp.StatusCode), nil)
	}

	var record Record
	if err := resp.DecodeJSON(&record); err != nil {
		return nil, providers.NewProviderError(ProviderName, "exact lookup", err)
	}

	log.Infof("%s Exact match with id %d", logcolors.LogMatch, record.ID)
	return record.toFetched(), nil
}

func (p *Provider) searchByTrackName(ctx context.Context, query providers.Query) (*providers.Fetched, error) {
	params := url.Values{}
	params.Set("track_name", query.Track)

	resp, err := p.client.Get(ctx, p.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "track search failed", err)
	}
	if !resp.OK() {
		log.Warnf("%s Track search returned status %d", logcolors.LogWarning, resp.StatusCode)
		return p.searchFreeText(ctx, query)
	}

	var records []Record
	if err := resp.DecodeJSON(&records); err != nil {
		return nil, providers.NewProviderError(ProviderName, "track search", err)
	}
	if len(records) == 0 {
		log.Infof("%s Track search returned nothing, trying free text search", logcolors.LogFallback)
		return p.searchFreeText(ctx, query)
	}

	candidates := withinTolerance(records, query.DurationSecs)
	if len(candidates) == 0 {
		log.Infof("%s No track search result within %.0fs, trying free text search", logcolors.LogFallback, DurationToleranceSecs)
		return p.searchFreeText(ctx, query)
	}

	best := bestMatch(candidates, query, trackSearchScale)
	if best == nil {
		log.Infof("%s Track search results carry no lyrics, trying free text search", logcolors.LogFallback)
		return p.searchFreeText(ctx, query)
	}

	log.Infof("%s Track name match id %d by %s (duration %.1fs)", logcolors.LogBestMatch, best.ID, best.ArtistName, best.durationOrZero())
	return best.toFetched(), nil
}

func (p *Provider) searchFreeText(ctx context.Context, query providers.Query) (*providers.Fetched, error) {
	params := url.Values{}
	params.Set("q", strings.TrimSpace(query.Artist+" "+query.Track))

	resp, err := p.client.Get(ctx, p.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "search failed", err)
	}
	if !resp.OK() {
		return nil, providers.NewProviderError(ProviderName, fmt.Sprintf("search returned status %d", resp.StatusCode), nil)
	}

	var records []Record
	if err := resp.DecodeJSON(&records); err != nil {
		return nil, providers.NewProviderError(ProviderName, "search", err)
	}

	best := bestMatch(records, query, freeTextSearchScale)
	if best == nil {
		log.Infof("%s Nothing found for %s", logcolors.LogSearch, query)
		return &providers.Fetched{Result: providers.NotFound()}, nil
	}

	log.Infof("%s Free text match id %d by %s", logcolors.LogBestMatch, best.ID, best.ArtistName)
	return best.toFetched(), nil
}

// withinTolerance keeps the records whose duration is within DurationToleranceSecs of
// durationSecs. Everything is kept when the query duration is unknown.
func withinTolerance(records []Record, durationSecs int) []Record {
	if durationSecs <= 0 {
		return records
	}

	var kept []Record
	for _, r := range records {
		if r.Duration == nil {
			continue
		}
		if math.Abs(*r.Duration-float64(durationSecs)) <= DurationToleranceSecs {
			kept = append(kept, r)
		}
	}
	return kept
}

// score ranks r for query, lower is better
func score(r *Record, durationSecs int, scale float64) int {
	s := 0
	if !r.hasSynced() {
		s += unsyncedPenalty
	}
	if r.Duration != nil && durationSecs > 0 {
		s += int(math.Abs(*r.Duration-float64(durationSecs)) * scale)
	} else {
		s += unknownDurationScore
	}
	return s
}

// bestMatch returns the lowest scoring record with any lyrics. Equal scores are broken by
// the edit distance between the query and the record's artist and track names, then by
// response order.
func bestMatch(records []Record, query providers.Query, scale float64) *Record {
	var best *Record
	bestScore, bestDistance := 0, 0

	for i := range records {
		r := &records[i]
		if !r.hasSynced() && !r.hasPlain() {
			continue
		}

		s := score(r, query.DurationSecs, scale)
		d := nameDistance(r, query)
		if best == nil || s < bestScore || (s == bestScore && d < bestDistance) {
			best, bestScore, bestDistance = r, s, d
		}
	}
	return best
}

func nameDistance(r *Record, query providers.Query) int {
	return fuzzy.LevenshteinDistance(strings.ToLower(query.Track), strings.ToLower(r.TrackName)) +
		fuzzy.LevenshteinDistance(strings.ToLower(query.Artist), strings.ToLower(r.ArtistName))
}

// toFetched converts a record, preferring synced lyrics. Instrumental tracks are NotFound.
func (r *Record) toFetched() *providers.Fetched {
	fetched := &providers.Fetched{
		Result:     providers.NotFound(),
		ProviderID: strconv.FormatInt(r.ID, 10),
	}

	if r.Instrumental {
		log.Debugf("%s Track is instrumental (id %d)", logcolors.LogLyrics, r.ID)
		return fetched
	}

	if r.hasSynced() {
		lyrics := lrc.Parse(*r.SyncedLyrics)
		if !lyrics.IsEmpty() {
			log.Debugf("%s Synced lyrics with %d lines (id %d)", logcolors.LogLyrics, len(lyrics.Lines), r.ID)
			fetched.Result = providers.Synced(lyrics)
			return fetched
		}
		log.Warnf("%s Synced lyrics for id %d had no timed lines", logcolors.LogWarning, r.ID)
	}

	if r.hasPlain() {
		fetched.Result = providers.Unsynced(*r.PlainLyrics)
	}
	return fetched
}
