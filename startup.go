package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"lyrics-sync-go/auth"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/middleware"
	"lyrics-sync-go/providers"
	"lyrics-sync-go/providers/lrclib"
	spotifylyrics "lyrics-sync-go/providers/spotify"
	"lyrics-sync-go/transport"
)

// setupLogging applies LOG_FORMAT and LOG_LEVEL
func setupLogging(cfg config.Config) {
	log.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Configuration.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.Configuration.LogLevel)
	if err != nil {
		log.Warnf("%s Unknown LOG_LEVEL %q, using info", logcolors.LogConfig, cfg.Configuration.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// buildProviders registers every known provider behind its own circuit breaker and returns
// the configured chain in LYRICS_PROVIDERS order
func buildProviders(cfg config.Config, client *transport.Client, tokens *auth.TokenManager) ([]providers.Provider, map[string]*circuitbreaker.CircuitBreaker, error) {
	registry := providers.NewRegistry()
	breakers := make(map[string]*circuitbreaker.CircuitBreaker)

	register := func(p providers.Provider) {
		cb := circuitbreaker.New(circuitbreaker.Config{
			Name:      p.Name(),
			Threshold: cfg.Configuration.CircuitBreakerThreshold,
			Cooldown:  cfg.CircuitBreakerCooldown(),
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				log.Infof("%s %s -> %s", logcolors.CircuitBreakerPrefix(name), from, to)
			},
		})
		breakers[p.Name()] = cb
		registry.Register(providers.WithBreaker(p, cb))
	}

	register(lrclib.New(client, cfg.Configuration.LrclibBaseURL))
	register(spotifylyrics.New(client, tokens, cfg.Configuration.SpotifyLyricsURL))

	names := cfg.ProviderNames()
	chain, err := registry.Chain(names)
	if err != nil {
		return nil, nil, err
	}

	// only breakers of providers in the chain are reported
	active := make(map[string]*circuitbreaker.CircuitBreaker, len(names))
	for _, name := range names {
		active[name] = breakers[name]
	}

	log.Infof("%s Provider chain: %s (registered: %s)", logcolors.LogConfig,
		strings.Join(names, " -> "), strings.Join(registry.List(), ", "))
	return chain, active, nil
}

// newHTTPHandler builds the status server handler: rate limiting, then CORS, then request
// logging around the router
func newHTTPHandler(s *server, cfg config.Config, limiter *middleware.IPRateLimiter) http.Handler {
	guard := middleware.RequireAPIKey(cfg.Configuration.APIKey, cfg.Configuration.APIKeyRequired, nil)

	router := mux.NewRouter()
	setupRoutes(router, s, guard)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	})

	handler := middleware.LoggingMiddleware(router)
	handler = c.Handler(handler)
	return limiter.Middleware(cfg.Configuration.APIKey)(handler)
}

func newRateLimiter(cfg config.Config) *middleware.IPRateLimiter {
	return middleware.NewIPRateLimiter(rate.Limit(cfg.Configuration.RateLimitPerSecond), cfg.Configuration.RateLimitBurstLimit)
}
