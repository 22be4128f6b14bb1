// Package spotify implements the lyrics provider backed by the web player's color-lyrics API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/auth"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lrc"
	"lyrics-sync-go/providers"
	"lyrics-sync-go/transport"
)

const (
	ProviderName     = "spotify_lyrics"
	DefaultLyricsURL = "https://spclient.wg.spotify.com/color-lyrics/v2/track"

	syncLine     = "LINE_SYNCED"
	syncSyllable = "SYLLABLE_SYNCED"
	syncNone     = "UNSYNCED"
)

// TokenSource hands out bearer tokens and drops them when the API rejects them
type TokenSource interface {
	Configured() bool
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

// Provider fetches lyrics by Spotify track id
type Provider struct {
	client    *transport.Client
	tokens    TokenSource
	lyricsURL string
}

// New creates the provider. An empty lyricsURL uses DefaultLyricsURL.
func New(client *transport.Client, tokens TokenSource, lyricsURL string) *Provider {
	if lyricsURL == "" {
		lyricsURL = DefaultLyricsURL
	}
	return &Provider{
		client:    client,
		tokens:    tokens,
		lyricsURL: strings.TrimRight(lyricsURL, "/"),
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

// Fetch looks up the lyrics for the query's Spotify track id
func (p *Provider) Fetch(ctx context.Context, query providers.Query) (*providers.Fetched, error) {
	if !p.tokens.Configured() {
		return nil, providers.NewProviderError(ProviderName, "not configured", auth.ErrMissingCookie)
	}

	rawID := query.SpotifyTrackID()
	if rawID == "" {
		return nil, providers.NewProviderError(ProviderName, "Spotify track ID required", nil)
	}
	trackID, ok := ExtractTrackID(rawID)
	if !ok {
		return nil, providers.NewProviderError(ProviderName, fmt.Sprintf("invalid Spotify track ID: %s", rawID), nil)
	}

	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "no access token", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("App-Platform", "WebPlayer")
	header.Set("User-Agent", auth.BrowserUserAgent)

	requestURL := p.lyricsURL + "/" + url.PathEscape(trackID) + "?format=json&market=from_token"
	log.Debugf("%s GET lyrics for track %s", logcolors.LogRequest, trackID)

	resp, err := p.client.Get(ctx, requestURL, header)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "request failed", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		log.Infof("%s No lyrics for track %s", logcolors.LogLyrics, trackID)
		return &providers.Fetched{Result: providers.NotFound(), ProviderID: trackID}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		log.Warnf("%s Received 401, invalidating cached token", logcolors.LogAuthError)
		p.tokens.Invalidate()
		return nil, providers.NewProviderError(ProviderName, "authentication failed", auth.ErrUnauthorized)
	case !resp.OK():
		return nil, providers.NewProviderError(ProviderName, fmt.Sprintf("lyrics API returned status %d", resp.StatusCode), nil)
	}

	var body lyricsResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, providers.NewProviderError(ProviderName, "decode", err)
	}

	return &providers.Fetched{Result: body.Lyrics.result(query), ProviderID: trackID}, nil
}

// ExtractTrackID accepts a spotify:track: URI, an open.spotify.com track URL or a bare
// 22 character base62 id
func ExtractTrackID(id string) (string, bool) {
	if rest, ok := strings.CutPrefix(id, "spotify:track:"); ok {
		return rest, rest != ""
	}

	if _, rest, ok := strings.Cut(id, "open.spotify.com/track/"); ok {
		rest, _, _ = strings.Cut(rest, "?")
		rest, _, _ = strings.Cut(rest, "/")
		return rest, rest != ""
	}

	if len(id) == 22 && isAlphanumeric(id) {
		return id, true
	}
	return "", false
}

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

type lyricsResponse struct {
	Lyrics lyricsBody `json:"lyrics"`
}

type lyricsBody struct {
	SyncType string       `json:"syncType"`
	Lines    []lyricsLine `json:"lines"`
}

type lyricsLine struct {
	StartTimeMs string `json:"startTimeMs"`
	Words       string `json:"words"`
}

// usable drops empty and instrumental placeholder lines
func (l lyricsLine) usable() bool {
	return l.Words != "" && l.Words != "♪"
}

func (b lyricsBody) result(query providers.Query) providers.Result {
	switch b.SyncType {
	case syncLine, syncSyllable:
		lines := make([]lrc.Line, 0, len(b.Lines))
		for _, l := range b.Lines {
			if !l.usable() {
				continue
			}
			ms, err := strconv.ParseInt(l.StartTimeMs, 10, 64)
			if err != nil || ms < 0 {
				ms = 0
			}
			lines = append(lines, lrc.Line{Start: time.Duration(ms) * time.Millisecond, Text: l.Words})
		}
		if len(lines) == 0 {
			return providers.NotFound()
		}
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].Start < lines[j].Start })

		log.Infof("%s Synced lyrics with %d lines", logcolors.LogLyrics, len(lines))
		return providers.Synced(&lrc.Lyrics{
			Metadata: lrc.Metadata{Title: query.Track, Artist: query.Artist, Album: query.Album},
			Lines:    lines,
		})

	case syncNone:
		var texts []string
		for _, l := range b.Lines {
			if l.usable() {
				texts = append(texts, l.Words)
			}
		}
		if len(texts) == 0 {
			return providers.NotFound()
		}
		return providers.Unsynced(strings.Join(texts, "\n"))

	default:
		log.Warnf("%s Unknown sync type %q", logcolors.LogWarning, b.SyncType)
		return providers.NotFound()
	}
}
