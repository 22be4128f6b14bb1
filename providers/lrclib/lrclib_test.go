package lrclib

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lyrics-sync-go/providers"
	"lyrics-sync-go/transport"
)

const syncedLRC = "[00:01.00]first line\n[00:04.00]second line"

func strPtr(s string) *string    { return &s }
func f64Ptr(f float64) *float64 { return &f }

// fakeLrclib serves canned answers per endpoint and records which tiers were hit
type fakeLrclib struct {
	mu       sync.Mutex
	get      *Record
	getCode  int
	byTrack  []Record
	freeText []Record
	hits     []string
	lastGet  map[string]string
}

func (f *fakeLrclib) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		q := r.URL.Query()
		switch {
		case r.URL.Path == "/get":
			f.hits = append(f.hits, "get")
			f.lastGet = map[string]string{
				"artist_name": q.Get("artist_name"),
				"track_name":  q.Get("track_name"),
				"album_name":  q.Get("album_name"),
				"duration":    q.Get("duration"),
			}
			if f.getCode != 0 {
				w.WriteHeader(f.getCode)
				return
			}
			if f.get == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(f.get)
		case r.URL.Path == "/search" && q.Get("track_name") != "":
			f.hits = append(f.hits, "track")
			json.NewEncoder(w).Encode(nonNil(f.byTrack))
		case r.URL.Path == "/search" && q.Get("q") != "":
			f.hits = append(f.hits, "q="+q.Get("q"))
			json.NewEncoder(w).Encode(nonNil(f.freeText))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
}

func (f *fakeLrclib) tiers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

func (f *fakeLrclib) getParams() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastGet
}

func nonNil(r []Record) []Record {
	if r == nil {
		return []Record{}
	}
	return r
}

func newTestProvider(t *testing.T, fake *fakeLrclib) *Provider {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	client := transport.NewClient(transport.Options{
		Timeout:      2 * time.Second,
		RetryMax:     0,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
	})
	return New(client, server.URL)
}

func query(durationSecs int) providers.Query {
	return providers.Query{Track: "Song", Artist: "Artist", Album: "Album", DurationSecs: durationSecs}
}

func TestFetch_ExactMatch(t *testing.T) {
	fake := &fakeLrclib{get: &Record{ID: 7, TrackName: "Song", ArtistName: "Artist", Duration: f64Ptr(200), SyncedLyrics: strPtr(syncedLRC)}}
	p := newTestProvider(t, fake)

	fetched, err := p.Fetch(context.Background(), query(200))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !fetched.Result.IsSynced() || len(fetched.Result.Lyrics.Lines) != 2 {
		t.Fatalf("Expected synced lyrics, got %+v", fetched.Result)
	}
	if fetched.ProviderID != "7" {
		t.Errorf("Expected provider id 7, got %q", fetched.ProviderID)
	}
	if hits := fake.tiers(); len(hits) != 1 {
		t.Errorf("Expected only the exact lookup, got %v", hits)
	}

	expected := map[string]string{"artist_name": "Artist", "track_name": "Song", "album_name": "Album", "duration": "200"}
	params := fake.getParams()
	for k, v := range expected {
		if params[k] != v {
			t.Errorf("Expected %s=%q, got %q", k, v, params[k])
		}
	}
}

func TestFetch_ExactLookupOmitsUnknownFields(t *testing.T) {
	fake := &fakeLrclib{get: &Record{ID: 1, PlainLyrics: strPtr("text")}}
	p := newTestProvider(t, fake)

	if _, err := p.Fetch(context.Background(), providers.Query{Track: "Song", Artist: "Artist"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if params := fake.getParams(); params["album_name"] != "" || params["duration"] != "" {
		t.Errorf("Expected no album or duration parameters, got %v", params)
	}
}

func TestFetch_TrackNameTierWithinTolerance(t *testing.T) {
	fake := &fakeLrclib{byTrack: []Record{
		{ID: 1, TrackName: "Song", ArtistName: "Other", Duration: f64Ptr(230), SyncedLyrics: strPtr(syncedLRC)},
		{ID: 2, TrackName: "Song", ArtistName: "Artist", Duration: f64Ptr(201.5), SyncedLyrics: strPtr(syncedLRC)},
	}}
	p := newTestProvider(t, fake)

	fetched, err := p.Fetch(context.Background(), query(200))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.ProviderID != "2" {
		t.Errorf("Expected candidate within tolerance, got id %q", fetched.ProviderID)
	}
	if hits := fake.tiers(); len(hits) != 2 || hits[1] != "track" {
		t.Errorf("Expected exact then track tier, got %v", hits)
	}
}

func TestFetch_PrefersSyncedThenCloserDuration(t *testing.T) {
	fake := &fakeLrclib{byTrack: []Record{
		{ID: 1, TrackName: "Song", ArtistName: "Artist", Duration: f64Ptr(200), PlainLyrics: strPtr("plain")},
		{ID: 2, TrackName: "Song", ArtistName: "Artist", Duration: f64Ptr(201.8), SyncedLyrics: strPtr(syncedLRC)},
		{ID: 3, TrackName: "Song", ArtistName: "Artist", Duration: f64Ptr(200.5), SyncedLyrics: strPtr(syncedLRC)},
	}}
	p := newTestProvider(t, fake)

	fetched, err := p.Fetch(context.Background(), query(200))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.ProviderID != "3" {
		t.Errorf("Expected synced candidate with smallest delta, got id %q", fetched.ProviderID)
	}
}

func TestFetch_FallsThroughWhenCandidatesLackLyrics(t *testing.T) {
	fake := &fakeLrclib{
		byTrack: []Record{
			{ID: 1, TrackName: "Song", ArtistName: "Artist", Duration: f64Ptr(200)},
		},
		freeText: []Record{
			{ID: 9, TrackName: "Song", ArtistName: "Artist", Duration: f64Ptr(260), SyncedLyrics: strPtr(syncedLRC)},
		},
	}
	p := newTestProvider(t, fake)

	fetched, err := p.Fetch(context.Background(), query(200))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.ProviderID != "9" {
		t.Errorf("Expected free text result, got id %q", fetched.ProviderID)
	}
	if hits := fake.tiers(); len(hits) != 3 || hits[2] != "q=Artist Song" {
		t.Errorf("Expected all three tiers in order, got %v", hits)
	}
}

func TestFetch_FallsThroughWhenNothingWithinTolerance(t *testing.T) {
	fake := &fakeLrclib{
		byTrack:  []Record{{ID: 1, Duration: f64Ptr(250), SyncedLyrics: strPtr(syncedLRC)}},
		freeText: []Record{{ID: 2, Duration: f64Ptr(250), PlainLyrics: strPtr("plain")}},
	}
	p := newTestProvider(t, fake)

	fetched, err := p.Fetch(context.Background(), query(200))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.Result.Kind != providers.KindUnsynced || fetched.ProviderID != "2" {
		t.Errorf("Expected unsynced free text result, got %+v", fetched)
	}
}

func TestFetch_NotFoundAfterAllTiers(t *testing.T) {
	fake := &fakeLrclib{}
	p := newTestProvider(t, fake)

	fetched, err := p.Fetch(context.Background(), query(200))
	if err != nil {
		t.Fatalf("Expected NotFound result, got error %v", err)
	}
	if fetched.Result.Kind != providers.KindNotFound {
		t.Errorf("Expected NotFound, got %v", fetched.Result.Kind)
	}
}

func TestFetch_ExactLookupServerError(t *testing.T) {
	fake := &fakeLrclib{getCode: http.StatusBadRequest}
	p := newTestProvider(t, fake)

	_, err := p.Fetch(context.Background(), query(200))
	var perr *providers.ProviderError
	if !errors.As(err, &perr) || perr.Provider != ProviderName {
		t.Errorf("Expected ProviderError from lrclib, got %v", err)
	}
}

func TestFetch_InstrumentalIsNotFound(t *testing.T) {
	fake := &fakeLrclib{get: &Record{ID: 5, Instrumental: true, SyncedLyrics: strPtr(syncedLRC)}}
	p := newTestProvider(t, fake)

	fetched, err := p.Fetch(context.Background(), query(200))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.Result.Kind != providers.KindNotFound || fetched.ProviderID != "5" {
		t.Errorf("Expected NotFound with provider id, got %+v", fetched)
	}
}

func TestToFetched_UnparseableSyncedFallsBackToPlain(t *testing.T) {
	r := &Record{ID: 3, SyncedLyrics: strPtr("no timestamps here"), PlainLyrics: strPtr("plain text")}

	fetched := r.toFetched()
	if fetched.Result.Kind != providers.KindUnsynced || fetched.Result.Text != "plain text" {
		t.Errorf("Expected plain fallback, got %+v", fetched.Result)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		duration int
		scale    float64
		expected int
	}{
		{"Synced exact", Record{Duration: f64Ptr(200), SyncedLyrics: strPtr(syncedLRC)}, 200, trackSearchScale, 0},
		{"Synced 1.5s off, tier two", Record{Duration: f64Ptr(201.5), SyncedLyrics: strPtr(syncedLRC)}, 200, trackSearchScale, 15},
		{"Synced 1.5s off, tier three", Record{Duration: f64Ptr(201.5), SyncedLyrics: strPtr(syncedLRC)}, 200, freeTextSearchScale, 1},
		{"Plain exact", Record{Duration: f64Ptr(200), PlainLyrics: strPtr("x")}, 200, trackSearchScale, 100},
		{"Unknown query duration", Record{Duration: f64Ptr(200), SyncedLyrics: strPtr(syncedLRC)}, 0, trackSearchScale, 50},
		{"Unknown record duration", Record{PlainLyrics: strPtr("x")}, 200, freeTextSearchScale, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := score(&tt.record, tt.duration, tt.scale); got != tt.expected {
				t.Errorf("Expected score %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestBestMatch_TieBreaksOnNames(t *testing.T) {
	records := []Record{
		{ID: 1, TrackName: "Song (Live)", ArtistName: "Cover Band", Duration: f64Ptr(200), SyncedLyrics: strPtr(syncedLRC)},
		{ID: 2, TrackName: "Song", ArtistName: "Artist", Duration: f64Ptr(200), SyncedLyrics: strPtr(syncedLRC)},
	}

	best := bestMatch(records, query(200), trackSearchScale)
	if best == nil || best.ID != 2 {
		t.Errorf("Expected closest name to win the tie, got %+v", best)
	}
}

func TestWithinTolerance_UnknownDurationKeepsAll(t *testing.T) {
	records := []Record{{ID: 1}, {ID: 2, Duration: f64Ptr(999)}}
	if got := withinTolerance(records, 0); len(got) != 2 {
		t.Errorf("Expected all records kept, got %d", len(got))
	}
	if got := withinTolerance(records, 200); len(got) != 0 {
		t.Errorf("Expected no records within tolerance, got %d", len(got))
	}
}
