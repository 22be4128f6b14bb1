package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/auth"
	"lyrics-sync-go/cache"
	"lyrics-sync-go/config"
	"lyrics-sync-go/display"
	"lyrics-sync-go/engine"
	"lyrics-sync-go/fetcher"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/poller"
	"lyrics-sync-go/stats"
	"lyrics-sync-go/transport"
)

var conf = config.Get()

const (
	shutdownTimeout    = 10 * time.Second
	limiterEvictEvery  = 5 * time.Minute
	limiterMaxIdleTime = 30 * time.Minute
)

func main() {
	setupLogging(conf)
	if err := conf.Validate(); err != nil {
		log.Fatalf("%s Invalid configuration: %v", logcolors.LogConfig, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := transport.NewFromConfig(conf)
	tokens := auth.NewTokenManager(client, auth.OptionsFromConfig(conf))

	chain, breakers, err := buildProviders(conf, client, tokens)
	if err != nil {
		log.Fatalf("%s Failed to build provider chain: %v", logcolors.LogConfig, err)
	}

	// The cache is optional: without it every track goes to the providers
	var lyricsCache fetcher.LyricsCache
	store, err := cache.Open(conf.Configuration.CacheDBPath)
	if err != nil {
		log.Errorf("%s Failed to open lyrics cache, continuing without it: %v", logcolors.LogCacheInit, err)
		store = nil
	} else {
		lyricsCache = store
		defer store.Close()
	}

	// counters persist across restarts only when STATS_DB_PATH is set
	var statsStore *stats.Store
	if path := conf.Configuration.StatsDBPath; path != "" {
		statsStore, err = stats.NewStore(path, stats.Get())
		if err != nil {
			log.Warnf("%s Stats will not persist: %v", logcolors.LogStats, err)
		} else if err := statsStore.Load(); err != nil {
			log.Warnf("%s Failed to load persisted stats: %v", logcolors.LogStats, err)
		}
	}

	e := engine.New(engine.Options{
		SeekThreshold: conf.SeekThreshold(),
		BusCapacity:   conf.Configuration.EventBusCapacity,
	})

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("%s %s stopped: %v", logcolors.LogEngine, name, err)
			}
		}()
	}

	tokens.StartMonitor(ctx)
	if store != nil {
		go store.StartCleanup(ctx, conf.CacheCleanupInterval(), conf.Configuration.CacheTTLInDays)
	}
	if statsStore != nil {
		statsStore.StartAutoSave(ctx, conf.StatsSaveInterval())
	}

	run("fetcher", fetcher.New(e, lyricsCache, chain).Run)

	if conf.FeatureFlags.ConsoleEvents {
		d := display.New(e, display.Options{
			DriftThreshold: conf.DriftThreshold(),
			LogEvents:      true,
		})
		run("display", d.Run)
	}

	var tokenStore *cache.TokenStore
	if conf.FeatureFlags.PlaybackPoller {
		tokenStore, err = cache.OpenTokenStore(conf.Configuration.TokenDBPath)
		if err != nil {
			log.Errorf("%s Failed to open token store, playback polling disabled: %v", logcolors.LogTokenStore, err)
		} else if source, err := newSpotifySource(tokenStore, client); err != nil {
			log.Errorf("%s Playback polling disabled: %v", logcolors.LogPoller, err)
		} else {
			run("poller", poller.New(source, e, conf.PollInterval()).Run)
		}
	}

	var srv *http.Server
	if conf.FeatureFlags.StatusServer {
		limiter := newRateLimiter(conf)
		go limiter.StartEviction(ctx, limiterEvictEvery, limiterMaxIdleTime)

		s := &server{
			engine:    e,
			cache:     store,
			tokens:    tokens,
			breakers:  breakers,
			providers: conf.ProviderNames(),
			ttlDays:   conf.Configuration.CacheTTLInDays,
		}
		srv = &http.Server{
			Addr:              ":" + conf.Configuration.Port,
			Handler:           newHTTPHandler(s, conf, limiter),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Infof("%s Status server listening on port %s", logcolors.LogServer, conf.Configuration.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("%s Status server failed: %v", logcolors.LogServer, err)
			}
		}()
	}

	<-ctx.Done()
	log.Infof("%s Shutting down", logcolors.LogServer)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("%s Status server shutdown: %v", logcolors.LogServer, err)
		}
		cancel()
	}

	e.Close()
	wg.Wait()

	if statsStore != nil {
		statsStore.Close()
	}
	if tokenStore != nil {
		tokenStore.Close()
	}
}

// newSpotifySource builds the Web API playback source over the shared transport, first
// importing SPOTIFY_TOKEN_FILE into the store when it has no token yet
func newSpotifySource(store *cache.TokenStore, client *transport.Client) (*poller.SpotifySource, error) {
	if path := conf.Configuration.SpotifyTokenFile; path != "" {
		if _, err := store.ImportFile(poller.TokenKey, path); err != nil {
			log.Warnf("%s %v", logcolors.LogTokenStore, err)
		}
	}
	return poller.NewSpotifySource(store, poller.SpotifyOptions{
		ClientID:     conf.Configuration.SpotifyClientID,
		ClientSecret: conf.Configuration.SpotifyClientSecret,
		RefreshToken: conf.Configuration.SpotifyRefreshToken,
		HTTPClient:   client.StandardClient(),
	})
}
