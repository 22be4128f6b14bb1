package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/playback"
)

const currentlyPlaying = `{
	"timestamp": 1700000000000,
	"progress_ms": 42000,
	"is_playing": true,
	"item": {
		"id": "4iV5W9uYEdYUVa79Axb7Rh",
		"name": "Song",
		"duration_ms": 210000,
		"artists": [{"name": "First"}, {"name": "Second"}],
		"album": {"name": "Album"}
	}
}`

type fakeWebAPI struct {
	mu            sync.Mutex
	tokenRequests int
	refreshTokens []string
	authHeaders   []string
	status        int
	body          string
}

func (f *fakeWebAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		f.tokenRequests++
		f.refreshTokens = append(f.refreshTokens, r.Form.Get("refresh_token"))
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		status, body := f.status, f.body
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	return mux
}

func (f *fakeWebAPI) tokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenRequests
}

func (f *fakeWebAPI) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.authHeaders) == 0 {
		return ""
	}
	return f.authHeaders[len(f.authHeaders)-1]
}

func newTokenStore(t *testing.T) *cache.TokenStore {
	t.Helper()
	store, err := cache.OpenTokenStore(filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatalf("Failed to open token store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSource(t *testing.T, api *fakeWebAPI, store *cache.TokenStore, refreshToken string) *SpotifySource {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	source, err := NewSpotifySource(store, SpotifyOptions{
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: refreshToken,
		TokenURL:     server.URL + "/api/token",
		APIBaseURL:   server.URL + "/v1",
		HTTPClient:   server.Client(),
	})
	if err != nil {
		t.Fatalf("NewSpotifySource failed: %v", err)
	}
	return source
}

func TestSpotifySource_SeedsAndPersistsToken(t *testing.T) {
	api := &fakeWebAPI{body: currentlyPlaying}
	store := newTokenStore(t)
	source := newTestSource(t, api, store, "seed-refresh")

	snapshot, err := source.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	if api.tokenCalls() != 1 || api.refreshTokens[0] != "seed-refresh" {
		t.Errorf("Expected one refresh with the seed token, got %d %v", api.tokenCalls(), api.refreshTokens)
	}
	if api.lastAuth() != "Bearer fresh-access" {
		t.Errorf("Expected the refreshed token on the API call, got %q", api.lastAuth())
	}

	stored, ok := store.Get(TokenKey)
	if !ok {
		t.Fatal("Expected the refreshed token to be persisted")
	}
	if stored.AccessToken != "fresh-access" || stored.RefreshToken != "seed-refresh" {
		t.Errorf("Unexpected persisted token %+v", stored)
	}
	if remaining := time.Until(time.Unix(stored.ExpiresAt, 0)); remaining < 50*time.Minute || remaining > 61*time.Minute {
		t.Errorf("Expected expiry about an hour out, got %v", remaining)
	}

	if !snapshot.IsPlaying || snapshot.Position != 42*time.Second || snapshot.Duration != 210*time.Second {
		t.Errorf("Unexpected snapshot %+v", snapshot)
	}
	track := snapshot.Track
	if track == nil {
		t.Fatal("Expected a track")
	}
	if track.Source != playback.SourceSpotify || track.SourceTrackID != "4iV5W9uYEdYUVa79Axb7Rh" {
		t.Errorf("Unexpected identity %s:%s", track.Source, track.SourceTrackID)
	}
	if track.Artist != "First, Second" || track.Album != "Album" || track.Name != "Song" {
		t.Errorf("Unexpected metadata %+v", track)
	}
	if track.ProviderIDs["spotify"] != "4iV5W9uYEdYUVa79Axb7Rh" {
		t.Errorf("Expected the track id under the spotify provider id, got %v", track.ProviderIDs)
	}
}

func TestSpotifySource_UsesStoredToken(t *testing.T) {
	api := &fakeWebAPI{body: currentlyPlaying}
	store := newTokenStore(t)
	store.Put(TokenKey, &cache.PersistedToken{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		Scopes:       Scopes,
	})
	source := newTestSource(t, api, store, "")

	if _, err := source.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if api.tokenCalls() != 0 {
		t.Errorf("Expected no refresh for a valid token, got %d", api.tokenCalls())
	}
	if api.lastAuth() != "Bearer stored-access" {
		t.Errorf("Expected the stored token, got %q", api.lastAuth())
	}
}

func TestSpotifySource_RefreshesWithinBuffer(t *testing.T) {
	api := &fakeWebAPI{body: currentlyPlaying}
	store := newTokenStore(t)
	store.Put(TokenKey, &cache.PersistedToken{
		AccessToken:  "old-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(30 * time.Second).Unix(),
	})
	source := newTestSource(t, api, store, "")

	if _, err := source.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if api.tokenCalls() != 1 || api.refreshTokens[0] != "stored-refresh" {
		t.Errorf("Expected a refresh with the stored refresh token, got %v", api.refreshTokens)
	}
	if api.lastAuth() != "Bearer fresh-access" {
		t.Errorf("Expected the refreshed token, got %q", api.lastAuth())
	}
}

func TestSpotifySource_NothingPlaying(t *testing.T) {
	api := &fakeWebAPI{status: http.StatusNoContent}
	source := newTestSource(t, api, newTokenStore(t), "seed")

	snapshot, err := source.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if snapshot.Track != nil || snapshot.IsPlaying {
		t.Errorf("Expected an empty snapshot, got %+v", snapshot)
	}
}

func TestSpotifySource_UnauthorizedIsTyped(t *testing.T) {
	api := &fakeWebAPI{status: http.StatusUnauthorized, body: `{"error":{"status":401,"message":"The access token expired"}}`}
	source := newTestSource(t, api, newTokenStore(t), "seed")

	_, err := source.Poll(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestSpotifySource_ServerErrorIsNotUnauthorized(t *testing.T) {
	api := &fakeWebAPI{status: http.StatusBadRequest, body: `{"error":{"status":400,"message":"bad"}}`}
	source := newTestSource(t, api, newTokenStore(t), "seed")

	_, err := source.Poll(context.Background())
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected a plain error, got %v", err)
	}
}

func TestSpotifySource_RefreshAuthForcesRefresh(t *testing.T) {
	api := &fakeWebAPI{body: currentlyPlaying}
	store := newTokenStore(t)
	store.Put(TokenKey, &cache.PersistedToken{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	})
	source := newTestSource(t, api, store, "")

	if err := source.RefreshAuth(context.Background()); err != nil {
		t.Fatalf("RefreshAuth failed: %v", err)
	}
	if _, err := source.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if api.lastAuth() != "Bearer fresh-access" {
		t.Errorf("Expected the new token after RefreshAuth, got %q", api.lastAuth())
	}
}

func TestNewSpotifySource_NoCredentials(t *testing.T) {
	_, err := NewSpotifySource(newTokenStore(t), SpotifyOptions{})
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Expected ErrNoCredentials, got %v", err)
	}
}

func TestSnapshotFromCurrentlyPlaying_Nil(t *testing.T) {
	if snapshot := snapshotFromCurrentlyPlaying(nil); snapshot.Track != nil {
		t.Errorf("Expected no track, got %+v", snapshot)
	}
}
