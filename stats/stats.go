package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds process statistics with atomic counters
type Stats struct {
	// Server info
	StartTime time.Time

	// Status server request counters
	TotalRequests  atomic.Int64
	StateRequests  atomic.Int64
	LyricsRequests atomic.Int64
	CacheRequests  atomic.Int64
	TokenRequests  atomic.Int64
	StatsRequests  atomic.Int64
	HealthRequests atomic.Int64
	OtherRequests  atomic.Int64

	// Cache performance
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64
	CacheStores atomic.Int64

	// Fetch outcomes
	LyricsLoaded   atomic.Int64
	LyricsNotFound atomic.Int64
	StaleFetches   atomic.Int64 // results dropped because the track changed mid-fetch

	// Poller
	Polls      atomic.Int64
	PollErrors atomic.Int64

	// Rate limiting
	RateLimitNormal   atomic.Int64
	RateLimitExceeded atomic.Int64

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response time tracking (in microseconds for precision)
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64

	// Provider outcomes keyed by provider name then outcome
	providerMu sync.Mutex
	providers  map[string]map[string]int64
}

// Global stats instance
var global = newStats()

func newStats() *Stats {
	s := &Stats{
		StartTime: time.Now(),
		providers: make(map[string]map[string]int64),
	}
	s.minResponseTime.Store(int64(^uint64(0) >> 1)) // Max int64
	return s
}

// Get returns the global stats instance
func Get() *Stats {
	return global
}

// RecordRequest records a request to a status server endpoint
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch endpoint {
	case "/state":
		s.StateRequests.Add(1)
	case "/lyrics":
		s.LyricsRequests.Add(1)
	case "/cache/lookup", "/cache/stats", "/cache/cleanup", "/cache/checkpoint":
		s.CacheRequests.Add(1)
	case "/token", "/token/invalidate":
		s.TokenRequests.Add(1)
	case "/stats":
		s.StatsRequests.Add(1)
	case "/health":
		s.HealthRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordCacheHit records a lyrics cache hit
func (s *Stats) RecordCacheHit() {
	s.CacheHits.Add(1)
}

// RecordCacheMiss records a lyrics cache miss
func (s *Stats) RecordCacheMiss() {
	s.CacheMisses.Add(1)
}

// RecordCacheStore records lyrics written to the cache
func (s *Stats) RecordCacheStore() {
	s.CacheStores.Add(1)
}

// RecordProviderResult records one provider answer. outcome is a result kind or "error".
func (s *Stats) RecordProviderResult(provider, outcome string) {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()

	counts, ok := s.providers[provider]
	if !ok {
		counts = make(map[string]int64)
		s.providers[provider] = counts
	}
	counts[outcome]++
}

// RecordFetchOutcome records how a fetch for a track ended
func (s *Stats) RecordFetchOutcome(found, applied bool) {
	switch {
	case !applied:
		s.StaleFetches.Add(1)
	case found:
		s.LyricsLoaded.Add(1)
	default:
		s.LyricsNotFound.Add(1)
	}
}

// RecordPoll records one poll of the playback source
func (s *Stats) RecordPoll(err error) {
	s.Polls.Add(1)
	if err != nil {
		s.PollErrors.Add(1)
	}
}

// RecordRateLimit records rate limit tier usage
func (s *Stats) RecordRateLimit(tier string) {
	switch tier {
	case "normal":
		s.RateLimitNormal.Add(1)
	case "exceeded":
		s.RateLimitExceeded.Add(1)
	}
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	// Update min/max atomically
	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
}

// Uptime returns the process uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns the cache hit rate as a percentage
func (s *Stats) CacheHitRate() float64 {
	hits := s.CacheHits.Load()
	misses := s.CacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == int64(^uint64(0)>>1) {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// ProviderSnapshot returns a copy of the per-provider outcome counts
func (s *Stats) ProviderSnapshot() map[string]map[string]int64 {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()

	out := make(map[string]map[string]int64, len(s.providers))
	for name, counts := range s.providers {
		c := make(map[string]int64, len(counts))
		for outcome, n := range counts {
			c[outcome] = n
		}
		out[name] = c
	}
	return out
}

// ProviderNames returns the providers with recorded outcomes, sorted
func (s *Stats) ProviderNames() []string {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()

	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":  s.TotalRequests.Load(),
			"state":  s.StateRequests.Load(),
			"lyrics": s.LyricsRequests.Load(),
			"cache":  s.CacheRequests.Load(),
			"token":  s.TokenRequests.Load(),
			"stats":  s.StatsRequests.Load(),
			"health": s.HealthRequests.Load(),
			"other":  s.OtherRequests.Load(),
		},
		"cache": map[string]interface{}{
			"hits":     s.CacheHits.Load(),
			"misses":   s.CacheMisses.Load(),
			"stores":   s.CacheStores.Load(),
			"hit_rate": s.CacheHitRate(),
		},
		"fetches": map[string]interface{}{
			"lyrics_loaded":    s.LyricsLoaded.Load(),
			"lyrics_not_found": s.LyricsNotFound.Load(),
			"stale":            s.StaleFetches.Load(),
			"providers":        s.ProviderSnapshot(),
		},
		"poller": map[string]interface{}{
			"polls":  s.Polls.Load(),
			"errors": s.PollErrors.Load(),
		},
		"rate_limiting": map[string]interface{}{
			"normal":   s.RateLimitNormal.Load(),
			"exceeded": s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg": s.AvgResponseTime().String(),
			"min": s.MinResponseTime().String(),
			"max": s.MaxResponseTime().String(),
		},
	}
}
