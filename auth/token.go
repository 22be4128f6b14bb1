// Package auth keeps a bearer token for the web player lyrics API.
//
// Tokens are exchanged for a TOTP code derived from a published shared secret and the
// upstream server time, authorized by the long-lived sp_dc session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/transport"
)

const (
	// DefaultRefreshBuffer is how long before expiry a token is treated as expired
	DefaultRefreshBuffer = 60 * time.Second
	DefaultSecretMaxAge  = 24 * time.Hour

	// BrowserUserAgent is sent to the web player endpoints
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	monitorInterval = time.Minute
)

var (
	ErrMissingCookie   = errors.New("sp_dc cookie not configured")
	ErrAnonymousToken  = errors.New("sp_dc cookie is invalid or expired")
	ErrUnauthorized    = errors.New("authentication failed, cached token invalidated")
	ErrNoSecretVersion = errors.New("failed to decode secret key: no valid versions found")
	ErrSecretFetch     = errors.New("failed to fetch secret key")
	ErrServerTime      = errors.New("failed to fetch server time")
	ErrTokenFetch      = errors.New("failed to get access token")
)

// State is the lifecycle state of the cached token
type State string

const (
	StateNoToken      State = "no_token"
	StateRefreshing   State = "refreshing"
	StateValid        State = "valid"
	StateExpiringSoon State = "expiring_soon"
	StateInvalidated  State = "invalidated"
)

// Options configures a TokenManager
type Options struct {
	SpDc          string
	SecretURL     string
	ServerTimeURL string
	TokenURL      string
	SecretMaxAge  time.Duration
	RefreshBuffer time.Duration
	UserAgent     string
}

// OptionsFromConfig reads the token settings from cfg
func OptionsFromConfig(cfg config.Config) Options {
	c := cfg.Configuration
	return Options{
		SpDc:          c.SpotifySpDc,
		SecretURL:     c.SpotifySecretURL,
		ServerTimeURL: c.SpotifyServerTimeURL,
		TokenURL:      c.SpotifyTokenURL,
		SecretMaxAge:  cfg.SecretMaxAge(),
		RefreshBuffer: DefaultRefreshBuffer,
		UserAgent:     BrowserUserAgent,
	}
}

// cachedToken is replaced wholesale on refresh, never mutated
type cachedToken struct {
	accessToken string
	expiresAtMs int64
	// fetchedAt carries a monotonic reading; fetchedAtSystemMs is the wall clock at that instant
	fetchedAt         time.Time
	fetchedAtSystemMs int64
}

// expired compares against the wall clock at fetch time advanced by the monotonic elapsed
// time, so wall clock jumps between checks do not matter
func (t *cachedToken) expired(now time.Time, buffer time.Duration) bool {
	elapsed := now.Sub(t.fetchedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	current := t.fetchedAtSystemMs + elapsed.Milliseconds()
	return current+buffer.Milliseconds() >= t.expiresAtMs
}

func (t *cachedToken) remaining(now time.Time) time.Duration {
	elapsed := now.Sub(t.fetchedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return time.Duration(t.expiresAtMs-t.fetchedAtSystemMs)*time.Millisecond - elapsed
}

type tokenResponse struct {
	AccessToken                      string `json:"accessToken"`
	AccessTokenExpirationTimestampMs int64  `json:"accessTokenExpirationTimestampMs"`
	IsAnonymous                      bool   `json:"isAnonymous"`
}

// Status is a snapshot of the token manager for monitoring
type Status struct {
	State         State         `json:"state"`
	Configured    bool          `json:"configured"`
	ExpiresAt     time.Time     `json:"expires_at,omitempty"`
	Remaining     time.Duration `json:"remaining"`
	SecretVersion string        `json:"secret_version,omitempty"`
	Refreshes     int64         `json:"refreshes"`
	LastError     string        `json:"last_error,omitempty"`
}

// TokenManager owns the cached bearer token and the cached secret
type TokenManager struct {
	client *transport.Client
	opts   Options

	mu          sync.RWMutex
	token       *cachedToken
	invalidated bool
	lastErr     error

	secretMu sync.RWMutex
	secret   *Secret

	refreshing atomic.Bool
	refreshes  atomic.Int64

	now func() time.Time
}

// NewTokenManager creates a token manager. Nothing is fetched until the first AccessToken call.
func NewTokenManager(client *transport.Client, opts Options) *TokenManager {
	if opts.RefreshBuffer <= 0 {
		opts.RefreshBuffer = DefaultRefreshBuffer
	}
	if opts.SecretMaxAge <= 0 {
		opts.SecretMaxAge = DefaultSecretMaxAge
	}
	if opts.UserAgent == "" {
		opts.UserAgent = BrowserUserAgent
	}
	return &TokenManager{
		client: client,
		opts:   opts,
		now:    time.Now,
	}
}

// Configured reports whether a session cookie is available
func (m *TokenManager) Configured() bool {
	return m.opts.SpDc != ""
}

// AccessToken returns the cached token, refreshing it when it is missing or within the
// refresh buffer of expiry
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	if !m.Configured() {
		return "", ErrMissingCookie
	}

	m.mu.RLock()
	if m.token != nil && !m.token.expired(m.now(), m.opts.RefreshBuffer) {
		defer m.mu.RUnlock()
		return m.token.accessToken, nil
	}
	m.mu.RUnlock()

	return m.refresh(ctx)
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if m.token != nil && !m.token.expired(m.now(), m.opts.RefreshBuffer) {
		return m.token.accessToken, nil
	}

	m.refreshing.Store(true)
	defer m.refreshing.Store(false)

	log.Infof("%s Refreshing access token via TOTP", logcolors.LogAccessToken)

	token, err := m.exchange(ctx)
	if err != nil {
		m.lastErr = err
		return "", err
	}

	m.token = token
	m.invalidated = false
	m.lastErr = nil
	m.refreshes.Add(1)

	log.Infof("%s Access token refreshed, expires in %v",
		logcolors.LogAccessToken, token.remaining(m.now()).Round(time.Second))
	return token.accessToken, nil
}

// exchange runs the full secret -> server time -> TOTP -> token sequence
func (m *TokenManager) exchange(ctx context.Context) (*cachedToken, error) {
	secret, err := m.ensureSecret(ctx)
	if err != nil {
		return nil, err
	}

	serverTime, err := m.ServerTime(ctx)
	if err != nil {
		return nil, err
	}
	code := GenerateTOTP(secret.Bytes, serverTime)
	log.Debugf("%s Generated code for version %s at server time %d", logcolors.LogAccessToken, secret.Version, serverTime)

	params := url.Values{}
	params.Set("reason", "init")
	params.Set("productType", "web-player")
	params.Set("totp", code)
	params.Set("totpVer", secret.Version)
	params.Set("ts", strconv.FormatInt(serverTime*1000, 10))

	header := http.Header{}
	header.Set("Cookie", "sp_dc="+m.opts.SpDc)
	header.Set("User-Agent", m.opts.UserAgent)

	resp, err := m.client.Get(ctx, m.opts.TokenURL+"?"+params.Encode(), header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}
	if !resp.OK() {
		log.Warnf("%s Token request failed with status %d", logcolors.LogAuthError, resp.StatusCode)
		return nil, fmt.Errorf("%w: HTTP %d", ErrTokenFetch, resp.StatusCode)
	}

	var body tokenResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}
	if body.IsAnonymous {
		log.Warnf("%s Received anonymous token, sp_dc cookie is invalid or expired", logcolors.LogAuthError)
		return nil, ErrAnonymousToken
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrTokenFetch)
	}

	now := m.now()
	return &cachedToken{
		accessToken:       body.AccessToken,
		expiresAtMs:       body.AccessTokenExpirationTimestampMs,
		fetchedAt:         now,
		fetchedAtSystemMs: now.UnixMilli(),
	}, nil
}

// Invalidate drops the cached token so the next AccessToken call runs a full refresh
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil {
		log.Infof("%s Cached access token invalidated", logcolors.LogAccessToken)
	}
	m.token = nil
	m.invalidated = true
}

// Status returns the current token state. It does not wait for a refresh in progress.
func (m *TokenManager) Status() Status {
	status := Status{
		State:      StateRefreshing,
		Configured: m.Configured(),
		Refreshes:  m.refreshes.Load(),
	}

	m.secretMu.RLock()
	if m.secret != nil {
		status.SecretVersion = m.secret.Version
	}
	m.secretMu.RUnlock()

	if m.refreshing.Load() {
		return status
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}

	now := m.now()
	switch {
	case m.token != nil:
		status.ExpiresAt = time.UnixMilli(m.token.expiresAtMs)
		status.Remaining = m.token.remaining(now)
		if m.token.expired(now, m.opts.RefreshBuffer) {
			status.State = StateExpiringSoon
		} else {
			status.State = StateValid
		}
	case m.invalidated:
		status.State = StateInvalidated
	default:
		status.State = StateNoToken
	}
	return status
}

// needsRefresh reports whether the token is missing or inside the refresh buffer
func (m *TokenManager) needsRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token == nil || m.token.expired(m.now(), m.opts.RefreshBuffer)
}

// StartMonitor proactively refreshes the token before it expires until ctx is done.
// An invalid session cookie stops the monitor since retrying cannot fix it.
func (m *TokenManager) StartMonitor(ctx context.Context) {
	if !m.Configured() {
		log.Warnf("%s SPOTIFY_SP_DC not set, token monitor disabled", logcolors.LogAccessToken)
		return
	}

	go func() {
		if _, err := m.AccessToken(ctx); err != nil {
			log.Errorf("%s Initial token fetch failed: %v", logcolors.LogAccessToken, err)
			if errors.Is(err, ErrAnonymousToken) {
				return
			}
		}

		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !m.needsRefresh() {
					continue
				}
				if _, err := m.AccessToken(ctx); err != nil {
					log.Errorf("%s Proactive token refresh failed: %v", logcolors.LogAccessToken, err)
					if errors.Is(err, ErrAnonymousToken) {
						return
					}
				}
			}
		}
	}()
}
