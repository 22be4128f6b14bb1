package main

import (
	"net/http"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/auth"
	"lyrics-sync-go/cache"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/engine"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/stats"
)

// server holds what the status handlers read from. cache and tokens may be nil.
type server struct {
	engine    *engine.Engine
	cache     *cache.LyricsCache
	tokens    *auth.TokenManager
	breakers  map[string]*circuitbreaker.CircuitBreaker
	providers []string
	ttlDays   int
}

func (s *server) getState(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	snapshot := state.Snapshot

	resp := StateResponse{
		Playing:     snapshot.IsPlaying,
		PositionMs:  s.engine.CurrentPosition().Milliseconds(),
		DurationMs:  snapshot.Duration.Milliseconds(),
		Track:       newTrackResponse(snapshot.Track),
		HasLyrics:   !state.Lyrics.IsEmpty(),
		Subscribers: s.engine.SubscriberCount(),
	}
	if !snapshot.ObservedAt.IsZero() {
		observed := snapshot.ObservedAt
		resp.ObservedAt = &observed
	}
	Respond(w).JSON(resp)
}

// getLyrics returns the current lyrics with the active line. ?format=lrc returns LRC text.
func (s *server) getLyrics(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	lyrics := state.Lyrics
	if lyrics.IsEmpty() {
		Respond(w).Error(http.StatusNotFound, errorBody("no lyrics loaded for the current track"))
		return
	}

	if r.URL.Query().Get("format") == "lrc" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(lyrics.String()))
		return
	}

	position := s.engine.CurrentPosition()
	resp := LyricsResponse{
		Track:       newTrackResponse(state.Snapshot.Track),
		PositionMs:  position.Milliseconds(),
		ActiveIndex: -1,
		Lines:       newLineResponses(lyrics.Lines),
	}
	if i, ok := lyrics.LineIndexAt(position); ok {
		line := lyrics.Lines[i]
		resp.ActiveIndex = i
		resp.ActiveLine = line.Text
		resp.Progress = line.Progress(position, lyrics.NextStart(i))
	}
	Respond(w).JSON(resp)
}

func (s *server) getRecentEvents(w http.ResponseWriter, r *http.Request) {
	events := s.engine.RecentEvents()
	resp := make([]EventResponse, len(events))
	for i, e := range events {
		resp[i] = newEventResponse(e)
	}
	Respond(w).JSON(map[string]interface{}{
		"count":  len(resp),
		"events": resp,
	})
}

func (s *server) cacheLookup(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		Respond(w).Error(http.StatusServiceUnavailable, errorBody("lyrics cache is disabled"))
		return
	}

	provider := r.URL.Query().Get("provider")
	id := r.URL.Query().Get("id")
	if provider == "" || id == "" {
		Respond(w).Error(http.StatusBadRequest, errorBody("provider and id query parameters are required"))
		return
	}

	entry, err := s.cache.GetByProviderID(r.Context(), provider, id)
	if err != nil {
		log.Errorf("%s Lookup %s:%s failed: %v", logcolors.LogCache, provider, id, err)
		Respond(w).Error(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	if entry == nil {
		Respond(w).SetCacheStatus("MISS").Error(http.StatusNotFound, errorBody("not cached"))
		return
	}
	Respond(w).SetCacheStatus("HIT").SetProvider(entry.Provider).JSON(newCacheEntryResponse(entry))
}

func (s *server) cacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		Respond(w).Error(http.StatusServiceUnavailable, errorBody("lyrics cache is disabled"))
		return
	}

	cs, err := s.cache.Stats(r.Context())
	if err != nil {
		Respond(w).Error(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	Respond(w).JSON(map[string]interface{}{
		"path":     s.cache.Path(),
		"storage":  cs,
		"hits":     stats.Get().CacheHits.Load(),
		"misses":   stats.Get().CacheMisses.Load(),
		"hit_rate": stats.Get().CacheHitRate(),
	})
}

// cacheCleanup removes entries older than ?ttl_days (default CACHE_TTL_DAYS)
func (s *server) cacheCleanup(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		Respond(w).Error(http.StatusServiceUnavailable, errorBody("lyrics cache is disabled"))
		return
	}

	ttlDays := s.ttlDays
	if raw := r.URL.Query().Get("ttl_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Respond(w).Error(http.StatusBadRequest, errorBody("ttl_days must be a positive integer"))
			return
		}
		ttlDays = n
	}

	removed, err := s.cache.Cleanup(r.Context(), ttlDays)
	if err != nil {
		Respond(w).Error(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	log.Infof("%s Manual cleanup removed %d entries older than %d days", logcolors.LogCacheCleanup, removed, ttlDays)
	Respond(w).JSON(map[string]interface{}{
		"removed":  removed,
		"ttl_days": ttlDays,
	})
}

func (s *server) cacheCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		Respond(w).Error(http.StatusServiceUnavailable, errorBody("lyrics cache is disabled"))
		return
	}
	if err := s.cache.Checkpoint(r.Context()); err != nil {
		Respond(w).Error(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	Respond(w).JSON(map[string]string{"message": "WAL checkpoint complete"})
}

func (s *server) getTokenStatus(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		Respond(w).Error(http.StatusServiceUnavailable, errorBody("token manager is disabled"))
		return
	}
	status := s.tokens.Status()
	Respond(w).JSON(map[string]interface{}{
		"state":          status.State,
		"configured":     status.Configured,
		"expires_at":     status.ExpiresAt,
		"remaining":      status.Remaining.String(),
		"secret_version": status.SecretVersion,
		"refreshes":      status.Refreshes,
		"last_error":     status.LastError,
	})
}

func (s *server) invalidateToken(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		Respond(w).Error(http.StatusServiceUnavailable, errorBody("token manager is disabled"))
		return
	}
	s.tokens.Invalidate()
	Respond(w).JSON(map[string]string{"message": "Access token invalidated, next request refreshes it"})
}

func (s *server) breakerNames() []string {
	names := make([]string, 0, len(s.breakers))
	for name := range s.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *server) getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make([]circuitbreaker.Status, 0, len(s.breakers))
	for _, name := range s.breakerNames() {
		statuses = append(statuses, s.breakers[name].Status())
	}
	Respond(w).JSON(map[string]interface{}{
		"breakers": statuses,
	})
}

// resetCircuitBreaker resets ?provider, or every breaker when it is omitted
func (s *server) resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("provider")
	if name != "" {
		cb, ok := s.breakers[name]
		if !ok {
			Respond(w).Error(http.StatusNotFound, errorBody("unknown provider "+name))
			return
		}
		cb.Reset()
		Respond(w).JSON(map[string]string{"message": "Circuit breaker for " + name + " reset to CLOSED state"})
		return
	}

	for _, cb := range s.breakers {
		cb.Reset()
	}
	Respond(w).JSON(map[string]string{"message": "All circuit breakers reset to CLOSED state"})
}

func (s *server) getStats(w http.ResponseWriter, r *http.Request) {
	snapshot := stats.Get().Snapshot()
	snapshot["engine"] = map[string]interface{}{
		"subscribers":   s.engine.SubscriberCount(),
		"recent_events": len(s.engine.RecentEvents()),
	}
	Respond(w).JSON(snapshot)
}

// getHealthStatus is "ok", "degraded" when a provider circuit is open or the token is
// unusable, and "unhealthy" when the cache cannot be read
func (s *server) getHealthStatus(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"providers": s.providers,
	}

	var open []string
	for _, name := range s.breakerNames() {
		if s.breakers[name].IsOpen() {
			open = append(open, name)
		}
	}
	if len(open) > 0 {
		health["status"] = "degraded"
		health["open_circuits"] = open
	}

	if s.tokens != nil && s.tokens.Configured() {
		status := s.tokens.Status()
		health["token"] = status.State
		if status.State == auth.StateInvalidated || (status.State == auth.StateNoToken && status.LastError != "") {
			health["status"] = "degraded"
		}
	}

	if s.cache != nil {
		if _, err := s.cache.Stats(r.Context()); err != nil {
			health["status"] = "unhealthy"
			health["error"] = err.Error()
			Respond(w).Error(http.StatusServiceUnavailable, health)
			return
		}
	}

	Respond(w).JSON(health)
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		Respond(w).Error(http.StatusNotFound, errorBody("not found"))
		return
	}
	Respond(w).JSON(map[string]interface{}{
		"endpoints": map[string]string{
			"GET /state":                  "Current playback snapshot",
			"GET /lyrics":                 "Lyrics for the current track with the active line (?format=lrc for LRC text)",
			"GET /events/recent":          "Events still retained by the event bus",
			"GET /cache/lookup":           "Cached lyrics by ?provider=&id=",
			"GET /cache/stats":            "Lyrics cache statistics",
			"POST /cache/cleanup":         "Remove entries older than ?ttl_days (API key)",
			"POST /cache/checkpoint":      "Checkpoint the cache WAL (API key)",
			"GET /token":                  "Lyrics API access token status",
			"POST /token/invalidate":      "Drop the cached access token (API key)",
			"GET /circuit-breaker":        "Provider circuit breaker states",
			"POST /circuit-breaker/reset": "Reset ?provider or all breakers (API key)",
			"GET /stats":                  "Process statistics",
			"GET /health":                 "Health check",
		},
	})
}
