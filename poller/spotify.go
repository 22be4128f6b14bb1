package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/playback"
)

const (
	// TokenKey is the token store key of the Web API token
	TokenKey = "spotify_web_api"

	DefaultTokenURL   = "https://accounts.spotify.com/api/token"
	DefaultAuthURL    = "https://accounts.spotify.com/authorize"
	DefaultAPIBaseURL = "https://api.spotify.com/v1/"

	// tokenRefreshBuffer is how long before expiry the token is refreshed proactively
	tokenRefreshBuffer = 60 * time.Second
)

// Scopes are the Web API scopes the poller needs
var Scopes = []string{"user-read-currently-playing", "user-read-playback-state"}

var ErrNoCredentials = errors.New("no Spotify Web API token stored and SPOTIFY_REFRESH_TOKEN not set")

// SpotifyOptions configures a SpotifySource
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	// RefreshToken seeds the token store when it holds no token yet
	RefreshToken string
	TokenURL     string
	APIBaseURL   string
	// HTTPClient carries both token refreshes and API calls
	HTTPClient *http.Client
}

// SpotifySource polls the Web API currently-playing endpoint. Its OAuth token lives in
// the token store and is written back after every refresh.
type SpotifySource struct {
	store *cache.TokenStore
	oauth *oauth2.Config
	opts  SpotifyOptions
	now   func() time.Time

	mu     sync.Mutex
	token  *cache.PersistedToken
	client *spotify.Client
}

// NewSpotifySource loads the stored token, seeding it from opts.RefreshToken if needed
func NewSpotifySource(store *cache.TokenStore, opts SpotifyOptions) (*SpotifySource, error) {
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = DefaultAPIBaseURL
	}
	if !strings.HasSuffix(opts.APIBaseURL, "/") {
		opts.APIBaseURL += "/"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	token, ok := store.Get(TokenKey)
	switch {
	case ok:
		log.Infof("%s Loaded stored Web API token (expires %s)", logcolors.LogPoller,
			time.Unix(token.ExpiresAt, 0).Format(time.RFC3339))
	case opts.RefreshToken != "":
		// No access token yet: ExpiresAt 0 forces a refresh on the first poll
		token = &cache.PersistedToken{RefreshToken: opts.RefreshToken, Scopes: Scopes}
		log.Infof("%s Seeding Web API token from SPOTIFY_REFRESH_TOKEN", logcolors.LogPoller)
	default:
		return nil, ErrNoCredentials
	}

	return &SpotifySource{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  DefaultAuthURL,
				TokenURL: opts.TokenURL,
			},
			Scopes: Scopes,
		},
		opts:  opts,
		now:   time.Now,
		token: token,
	}, nil
}

func (s *SpotifySource) Name() string {
	return "spotify"
}

// RefreshAuth runs the refresh-token grant and persists the new token
func (s *SpotifySource) RefreshAuth(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *SpotifySource) refreshLocked(ctx context.Context) error {
	if s.token.RefreshToken == "" {
		return fmt.Errorf("refresh Web API token: %w", ErrNoCredentials)
	}
	log.Infof("%s Refreshing Web API token", logcolors.LogPoller)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.opts.HTTPClient)
	// An empty access token is never valid, so the token source always refreshes
	fresh, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: s.token.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("refresh Web API token: %w", err)
	}

	persisted := cache.FromOAuth2(fresh, s.token.Scopes, s.token)
	if err := s.store.Put(TokenKey, persisted); err != nil {
		log.Warnf("%s Failed to persist refreshed token: %v", logcolors.LogPoller, err)
	}

	s.token = persisted
	s.client = nil
	return nil
}

// apiClient returns a Web API client for a token that is valid for at least the refresh buffer
func (s *SpotifySource) apiClient(ctx context.Context) (*spotify.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.AccessToken == "" || s.token.Expired(s.now(), tokenRefreshBuffer) {
		if err := s.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	if s.client == nil {
		httpClient := &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(s.token.OAuth2()),
				Base:   s.opts.HTTPClient.Transport,
			},
			Timeout: s.opts.HTTPClient.Timeout,
		}
		s.client = spotify.New(httpClient, spotify.WithBaseURL(s.opts.APIBaseURL))
	}
	return s.client, nil
}

// Poll asks the Web API what is playing. Nothing playing (HTTP 204) yields a stopped snapshot.
func (s *SpotifySource) Poll(ctx context.Context) (playback.Snapshot, error) {
	client, err := s.apiClient(ctx)
	if err != nil {
		return playback.Snapshot{}, err
	}

	current, err := client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		var apiErr spotify.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return playback.Snapshot{}, fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		}
		return playback.Snapshot{}, fmt.Errorf("currently playing: %w", err)
	}

	return snapshotFromCurrentlyPlaying(current), nil
}

// snapshotFromCurrentlyPlaying converts a Web API response. Items that are not tracks
// (episodes, ads) come back without a track and are reported as no track.
func snapshotFromCurrentlyPlaying(current *spotify.CurrentlyPlaying) playback.Snapshot {
	if current == nil || current.Item == nil {
		return playback.Snapshot{}
	}

	item := current.Item
	artists := make([]string, 0, len(item.Artists))
	for _, a := range item.Artists {
		artists = append(artists, a.Name)
	}

	id := string(item.ID)
	duration := time.Duration(item.Duration) * time.Millisecond
	track := playback.NewTrackInfo(playback.SourceSpotify, id, item.Name,
		strings.Join(artists, ", "), item.Album.Name, duration).
		WithProviderID(string(playback.SourceSpotify), id)

	return playback.Snapshot{
		IsPlaying: current.Playing,
		Track:     track,
		Position:  time.Duration(current.Progress) * time.Millisecond,
		Duration:  duration,
	}
}
