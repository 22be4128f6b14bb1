package main

import (
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/lrc"
	"lyrics-sync-go/playback"
)

// TrackResponse is the JSON form of a playback.TrackInfo
type TrackResponse struct {
	Source      string            `json:"source"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Artist      string            `json:"artist"`
	Album       string            `json:"album,omitempty"`
	DurationMs  int64             `json:"duration_ms"`
	ProviderIDs map[string]string `json:"provider_ids,omitempty"`
}

// StateResponse is returned by /state
type StateResponse struct {
	Playing     bool           `json:"playing"`
	PositionMs  int64          `json:"position_ms"`
	DurationMs  int64          `json:"duration_ms"`
	ObservedAt  *time.Time     `json:"observed_at,omitempty"`
	Track       *TrackResponse `json:"track"`
	HasLyrics   bool           `json:"has_lyrics"`
	Subscribers int            `json:"subscribers"`
}

// LineResponse is one timed line
type LineResponse struct {
	StartMs int64  `json:"start_ms"`
	Text    string `json:"text"`
}

// LyricsResponse is returned by /lyrics
type LyricsResponse struct {
	Track       *TrackResponse `json:"track"`
	PositionMs  int64          `json:"position_ms"`
	ActiveIndex int            `json:"active_index"`
	ActiveLine  string         `json:"active_line,omitempty"`
	Progress    float64        `json:"progress"`
	Lines       []LineResponse `json:"lines"`
}

// EventResponse is the JSON form of a bus event
type EventResponse struct {
	Type       string         `json:"type"`
	PositionMs *int64         `json:"position_ms,omitempty"`
	Track      *TrackResponse `json:"track,omitempty"`
	Lines      int            `json:"lines,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// CacheEntryResponse is returned by /cache/lookup
type CacheEntryResponse struct {
	ID         int64     `json:"id"`
	Artist     string    `json:"artist"`
	Track      string    `json:"track"`
	Album      string    `json:"album"`
	DurationMs *int64    `json:"duration_ms"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"provider_id"`
	LyricsType string    `json:"lyrics_type"`
	Content    string    `json:"content"`
	FetchedAt  time.Time `json:"fetched_at"`
}

func newTrackResponse(t *playback.TrackInfo) *TrackResponse {
	if t == nil {
		return nil
	}
	return &TrackResponse{
		Source:      string(t.Source),
		ID:          t.SourceTrackID,
		Name:        t.Name,
		Artist:      t.Artist,
		Album:       t.Album,
		DurationMs:  t.Duration.Milliseconds(),
		ProviderIDs: t.ProviderIDs,
	}
}

func newLineResponses(lines []lrc.Line) []LineResponse {
	out := make([]LineResponse, len(lines))
	for i, l := range lines {
		out[i] = LineResponse{StartMs: l.Start.Milliseconds(), Text: l.Text}
	}
	return out
}

func newEventResponse(e playback.Event) EventResponse {
	resp := EventResponse{
		Type:    string(e.Type),
		Track:   newTrackResponse(e.Track),
		Message: e.Message,
	}
	if e.HasPosition() {
		ms := e.Position.Milliseconds()
		resp.PositionMs = &ms
	}
	if e.Lyrics != nil {
		resp.Lines = len(e.Lyrics.Lines)
	}
	return resp
}

func newCacheEntryResponse(e *cache.Entry) CacheEntryResponse {
	return CacheEntryResponse{
		ID:         e.ID,
		Artist:     e.Artist,
		Track:      e.Track,
		Album:      e.Album,
		DurationMs: e.DurationMs,
		Provider:   e.Provider,
		ProviderID: e.ProviderID,
		LyricsType: string(e.LyricsType),
		Content:    e.Content,
		FetchedAt:  e.FetchedAt,
	}
}
