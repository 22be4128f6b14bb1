package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"lyrics-sync-go/logcolors"
)

const (
	statsBucketName = "stats"
	statsKey        = "sync_stats"
)

// Store persists the cumulative counters so they survive restarts
type Store struct {
	db     *bolt.DB
	dbPath string
	stats  *Stats
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// PersistedStats is the on-disk form of the cumulative counters.
// Request and response time counters are per-process and are not persisted.
type PersistedStats struct {
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	CacheStores    int64 `json:"cache_stores"`
	LyricsLoaded   int64 `json:"lyrics_loaded"`
	LyricsNotFound int64 `json:"lyrics_not_found"`
	StaleFetches   int64 `json:"stale_fetches"`
	Polls          int64 `json:"polls"`
	PollErrors     int64 `json:"poll_errors"`

	Providers map[string]map[string]int64 `json:"providers"`

	LastSaved    time.Time `json:"last_saved"`
	FirstStarted time.Time `json:"first_started"`
}

// NewStore opens (creating if needed) a dedicated BoltDB file for s
func NewStore(dbPath string, s *Stats) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(statsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats bucket: %w", err)
	}

	log.Infof("%s Stats store initialized at %s", logcolors.LogStats, dbPath)
	return &Store{db: db, dbPath: dbPath, stats: s}, nil
}

// Load applies the persisted counters to the store's stats
func (st *Store) Load() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	var persisted PersistedStats
	found := false
	err := st.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(statsBucketName))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(statsKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &persisted)
	})
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if !found {
		return nil
	}

	s := st.stats
	s.CacheHits.Store(persisted.CacheHits)
	s.CacheMisses.Store(persisted.CacheMisses)
	s.CacheStores.Store(persisted.CacheStores)
	s.LyricsLoaded.Store(persisted.LyricsLoaded)
	s.LyricsNotFound.Store(persisted.LyricsNotFound)
	s.StaleFetches.Store(persisted.StaleFetches)
	s.Polls.Store(persisted.Polls)
	s.PollErrors.Store(persisted.PollErrors)

	s.providerMu.Lock()
	for name, counts := range persisted.Providers {
		c := make(map[string]int64, len(counts))
		for outcome, n := range counts {
			c[outcome] = n
		}
		s.providers[name] = c
	}
	s.providerMu.Unlock()

	if !persisted.FirstStarted.IsZero() {
		s.StartTime = persisted.FirstStarted
	}

	log.Infof("%s Loaded persisted stats (lyrics loaded: %d, first started: %s)",
		logcolors.LogStats, persisted.LyricsLoaded, persisted.FirstStarted.Format(time.RFC3339))
	return nil
}

// Save writes the current counters to disk
func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.stats
	persisted := PersistedStats{
		CacheHits:      s.CacheHits.Load(),
		CacheMisses:    s.CacheMisses.Load(),
		CacheStores:    s.CacheStores.Load(),
		LyricsLoaded:   s.LyricsLoaded.Load(),
		LyricsNotFound: s.LyricsNotFound.Load(),
		StaleFetches:   s.StaleFetches.Load(),
		Polls:          s.Polls.Load(),
		PollErrors:     s.PollErrors.Load(),
		Providers:      s.ProviderSnapshot(),
		LastSaved:      time.Now(),
		FirstStarted:   s.StartTime,
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	err = st.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(statsBucketName))
		if b == nil {
			return fmt.Errorf("stats bucket not found")
		}
		return b.Put([]byte(statsKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// StartAutoSave saves every interval until ctx is done
func (st *Store) StartAutoSave(ctx context.Context, interval time.Duration) {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := st.Save(); err != nil {
					log.Warnf("%s Failed to auto-save stats: %v", logcolors.LogStats, err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Infof("%s Started auto-save with interval %v", logcolors.LogStats, interval)
}

// Close waits for the auto-save loop (its context must already be done), saves once more
// and closes the database
func (st *Store) Close() error {
	st.wg.Wait()

	if err := st.Save(); err != nil {
		log.Warnf("%s Failed to save stats on close: %v", logcolors.LogStats, err)
	} else {
		log.Infof("%s Stats saved on shutdown", logcolors.LogStats)
	}
	return st.db.Close()
}
