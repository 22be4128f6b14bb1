package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

// KnownProviders lists the provider names LYRICS_PROVIDERS may contain
var KnownProviders = []string{"lrclib", "spotify_lyrics"}

type Config struct {
	Configuration struct {
		LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
		LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

		// Ordered provider chain, e.g. "lrclib,spotify_lyrics"
		LyricsProviders  string `envconfig:"LYRICS_PROVIDERS" default:"lrclib,spotify_lyrics"`
		PollIntervalMs   int    `envconfig:"POLL_INTERVAL_MS" default:"1000"`
		SeekThresholdMs  int    `envconfig:"SEEK_THRESHOLD_MS" default:"2000"`
		DriftThresholdMs int    `envconfig:"DRIFT_THRESHOLD_MS" default:"200"`
		EventBusCapacity int    `envconfig:"EVENT_BUS_CAPACITY" default:"64"`

		CacheDBPath                   string `envconfig:"CACHE_DB_PATH" default:"./data/lyrics.db"`
		CacheTTLInDays                int    `envconfig:"CACHE_TTL_DAYS" default:"30"`
		CacheCleanupIntervalInSeconds int    `envconfig:"CACHE_CLEANUP_INTERVAL_IN_SECONDS" default:"86400"`
		TokenDBPath                   string `envconfig:"TOKEN_DB_PATH" default:"./data/tokens.db"`
		StatsDBPath                   string `envconfig:"STATS_DB_PATH"`
		StatsSaveIntervalInSeconds    int    `envconfig:"STATS_SAVE_INTERVAL_IN_SECONDS" default:"300"`

		HTTPTimeoutSecs            int    `envconfig:"HTTP_TIMEOUT_SECS" default:"10"`
		HTTPRetryMax               int    `envconfig:"HTTP_RETRY_MAX" default:"3"`
		ProviderRateLimitPerSecond int    `envconfig:"PROVIDER_RATE_LIMIT_PER_SECOND" default:"5"`
		ProviderRateLimitBurst     int    `envconfig:"PROVIDER_RATE_LIMIT_BURST" default:"5"`
		UserAgent                  string `envconfig:"USER_AGENT" default:"lyrics-sync-go/1.0"`

		LrclibBaseURL string `envconfig:"LRCLIB_BASE_URL" default:"https://lrclib.net/api"`

		// Unofficial Spotify lyrics API (sp_dc cookie + TOTP)
		SpotifySpDc          string `envconfig:"SPOTIFY_SP_DC" default:""`
		SpotifySecretURL     string `envconfig:"SPOTIFY_SECRET_URL" default:"https://raw.githubusercontent.com/xyloflake/spot-secrets-go/refs/heads/main/secrets/secretDict.json"`
		SpotifyServerTimeURL string `envconfig:"SPOTIFY_SERVER_TIME_URL" default:"https://open.spotify.com/api/server-time"`
		SpotifyTokenURL      string `envconfig:"SPOTIFY_TOKEN_URL" default:"https://open.spotify.com/api/token"`
		SpotifyLyricsURL     string `envconfig:"SPOTIFY_LYRICS_URL" default:"https://spclient.wg.spotify.com/color-lyrics/v2/track"`
		SecretMaxAgeHours    int    `envconfig:"SECRET_MAX_AGE_HOURS" default:"24"`

		// Official Web API credentials for the playback poller
		SpotifyClientID     string `envconfig:"SPOTIFY_CLIENT_ID" default:""`
		SpotifyClientSecret string `envconfig:"SPOTIFY_CLIENT_SECRET" default:""`
		SpotifyRefreshToken string `envconfig:"SPOTIFY_REFRESH_TOKEN" default:""`
		SpotifyTokenFile    string `envconfig:"SPOTIFY_TOKEN_FILE" default:""`

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`       // Consecutive failures before circuit opens
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"` // Seconds to wait before retrying

		Port                string `envconfig:"PORT" default:"8080"`
		APIKey              string `envconfig:"API_KEY" default:""`
		APIKeyRequired      bool   `envconfig:"API_KEY_REQUIRED" default:"false"`
		RateLimitPerSecond  int    `envconfig:"RATE_LIMIT_PER_SECOND" default:"5"`
		RateLimitBurstLimit int    `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"10"`
	}

	FeatureFlags struct {
		StatusServer   bool `envconfig:"FF_STATUS_SERVER" default:"true"`
		ConsoleEvents  bool `envconfig:"FF_CONSOLE_EVENTS" default:"true"`
		PlaybackPoller bool `envconfig:"FF_PLAYBACK_POLLER" default:"true"`
	}
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}

// ProviderNames returns the configured provider chain, trimmed and lowercased
func (c Config) ProviderNames() []string {
	var names []string
	for _, name := range strings.Split(c.Configuration.LyricsProviders, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Validate reports the first configuration error found
func (c Config) Validate() error {
	cfg := c.Configuration

	names := c.ProviderNames()
	if len(names) == 0 {
		return fmt.Errorf("LYRICS_PROVIDERS must name at least one provider")
	}
	for _, name := range names {
		if !isKnownProvider(name) {
			return fmt.Errorf("unknown lyrics provider %q (known: %s)", name, strings.Join(KnownProviders, ", "))
		}
	}

	positive := []struct {
		key   string
		value int
	}{
		{"POLL_INTERVAL_MS", cfg.PollIntervalMs},
		{"SEEK_THRESHOLD_MS", cfg.SeekThresholdMs},
		{"DRIFT_THRESHOLD_MS", cfg.DriftThresholdMs},
		{"EVENT_BUS_CAPACITY", cfg.EventBusCapacity},
		{"CACHE_TTL_DAYS", cfg.CacheTTLInDays},
		{"CACHE_CLEANUP_INTERVAL_IN_SECONDS", cfg.CacheCleanupIntervalInSeconds},
		{"STATS_SAVE_INTERVAL_IN_SECONDS", cfg.StatsSaveIntervalInSeconds},
		{"HTTP_TIMEOUT_SECS", cfg.HTTPTimeoutSecs},
		{"PROVIDER_RATE_LIMIT_PER_SECOND", cfg.ProviderRateLimitPerSecond},
		{"PROVIDER_RATE_LIMIT_BURST", cfg.ProviderRateLimitBurst},
		{"SECRET_MAX_AGE_HOURS", cfg.SecretMaxAgeHours},
		{"CIRCUIT_BREAKER_THRESHOLD", cfg.CircuitBreakerThreshold},
		{"CIRCUIT_BREAKER_COOLDOWN_SECS", cfg.CircuitBreakerCooldownSecs},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.key, p.value)
		}
	}
	if cfg.HTTPRetryMax < 0 {
		return fmt.Errorf("HTTP_RETRY_MAX must not be negative, got %d", cfg.HTTPRetryMax)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if cfg.APIKeyRequired && cfg.APIKey == "" {
		return fmt.Errorf("API_KEY_REQUIRED is set but API_KEY is empty")
	}
	return nil
}

func isKnownProvider(name string) bool {
	for _, known := range KnownProviders {
		if known == name {
			return true
		}
	}
	return false
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Configuration.PollIntervalMs) * time.Millisecond
}

func (c Config) SeekThreshold() time.Duration {
	return time.Duration(c.Configuration.SeekThresholdMs) * time.Millisecond
}

func (c Config) DriftThreshold() time.Duration {
	return time.Duration(c.Configuration.DriftThresholdMs) * time.Millisecond
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Configuration.HTTPTimeoutSecs) * time.Second
}

func (c Config) SecretMaxAge() time.Duration {
	return time.Duration(c.Configuration.SecretMaxAgeHours) * time.Hour
}

func (c Config) CacheCleanupInterval() time.Duration {
	return time.Duration(c.Configuration.CacheCleanupIntervalInSeconds) * time.Second
}

func (c Config) CircuitBreakerCooldown() time.Duration {
	return time.Duration(c.Configuration.CircuitBreakerCooldownSecs) * time.Second
}

func (c Config) StatsSaveInterval() time.Duration {
	return time.Duration(c.Configuration.StatsSaveIntervalInSeconds) * time.Second
}
