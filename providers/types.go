package providers

import (
	"errors"
	"strings"

	"lyrics-sync-go/lrc"
	"lyrics-sync-go/playback"
)

var ErrNotFound = errors.New("lyrics not found")

// ResultKind discriminates what a provider returned
type ResultKind int

const (
	KindNotFound ResultKind = iota
	KindSynced
	KindUnsynced
)

func (k ResultKind) String() string {
	switch k {
	case KindSynced:
		return "synced"
	case KindUnsynced:
		return "unsynced"
	default:
		return "not_found"
	}
}

// Result is Synced (Lyrics set), Unsynced (Text set) or NotFound
type Result struct {
	Kind   ResultKind
	Lyrics *lrc.Lyrics
	Text   string
}

func Synced(lyrics *lrc.Lyrics) Result {
	return Result{Kind: KindSynced, Lyrics: lyrics}
}

func Unsynced(text string) Result {
	return Result{Kind: KindUnsynced, Text: text}
}

func NotFound() Result {
	return Result{Kind: KindNotFound}
}

func (r Result) IsSynced() bool {
	return r.Kind == KindSynced && r.Lyrics != nil
}

// Fetched is a provider answer. ProviderID is set even for NotFound and Unsynced results.
type Fetched struct {
	Result     Result
	ProviderID string
}

// Query carries everything any provider might need to answer.
// DurationSecs is 0 when the duration is unknown.
type Query struct {
	Track        string
	Artist       string
	Album        string
	DurationSecs int
	ProviderIDs  map[string]string
}

// QueryFromTrack builds a query for track. The source track id is exposed under the
// source's name so a provider for that service can use it directly.
func QueryFromTrack(track *playback.TrackInfo) Query {
	ids := make(map[string]string, len(track.ProviderIDs)+1)
	ids[track.Source.String()] = track.SourceTrackID
	for name, id := range track.ProviderIDs {
		ids[name] = id
	}

	return Query{
		Track:        track.Name,
		Artist:       track.Artist,
		Album:        track.Album,
		DurationSecs: track.DurationSecs(),
		ProviderIDs:  ids,
	}
}

// ProviderID returns the track id known for provider, or ""
func (q Query) ProviderID(provider string) string {
	return q.ProviderIDs[provider]
}

// SpotifyTrackID returns the Spotify track id, if any
func (q Query) SpotifyTrackID() string {
	return q.ProviderID(string(playback.SourceSpotify))
}

// String is used in log lines
func (q Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.Artist)
	sb.WriteString(" - ")
	sb.WriteString(q.Track)
	if q.Album != "" {
		sb.WriteString(" [")
		sb.WriteString(q.Album)
		sb.WriteString("]")
	}
	return sb.String()
}

// ProviderError represents an error from a provider with additional context
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError
func NewProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}
