// Package cache persists resolved lyrics in SQLite and access tokens in bbolt.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lrc"
	"lyrics-sync-go/providers"
)

var (
	ErrNotFoundResult = errors.New("refusing to cache a not-found result")
	ErrClosed         = errors.New("lyrics cache is closed")
)

// LyricsType discriminates how Entry.Content is serialized
type LyricsType string

const (
	TypeSynced   LyricsType = "synced"
	TypeUnsynced LyricsType = "unsynced"
)

// Entry is one row of the lyrics table
type Entry struct {
	ID         int64
	Artist     string
	Track      string
	Album      string
	DurationMs *int64
	Provider   string
	ProviderID string
	LyricsType LyricsType
	Content    string
	FetchedAt  time.Time
}

// Result converts the stored content back into a provider result.
// Synced content that no longer parses degrades to Unsynced.
func (e *Entry) Result() providers.Result {
	if e.LyricsType == TypeSynced {
		lyrics := lrc.Parse(e.Content)
		if !lyrics.IsEmpty() {
			return providers.Synced(lyrics)
		}
	}
	return providers.Unsynced(e.Content)
}

// TrackMetadata is the (artist, track, album) key plus duration
type TrackMetadata struct {
	Artist     string
	Track      string
	Album      string
	DurationMs int64 // 0 when unknown
}

// Stats summarises the cache contents
type Stats struct {
	Entries       int64     `json:"entries"`
	SyncedEntries int64     `json:"synced_entries"`
	Mappings      int64     `json:"mappings"`
	OldestEntry   time.Time `json:"oldest_entry,omitempty"`
	NewestEntry   time.Time `json:"newest_entry,omitempty"`
}

// LyricsCache is the SQLite-backed lyrics store.
// A single connection serializes writers; lookups for different tracks never wait on network work.
type LyricsCache struct {
	db     *sql.DB
	path   string
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// Open opens (creating if needed) the cache database at path
func Open(path string) (*LyricsCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		log.Infof("%s Found existing lyrics database at %s (size: %d bytes)", logcolors.LogCacheInit, path, info.Size())
	} else {
		log.Infof("%s Creating new lyrics database at %s", logcolors.LogCacheInit, path)
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}

	c := &LyricsCache{db: db, path: path, now: time.Now}
	if err := c.runMigrations(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warnf("%s Failed to close database after migration error: %v", logcolors.LogCacheInit, closeErr)
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Infof("%s Lyrics cache initialized at %s", logcolors.LogCacheInit, path)
	return c, nil
}

func openDatabase(path string) (*sql.DB, error) {
	// foreign_keys is per connection, so it also goes in the DSN for any reconnect
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA temp_store=memory",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				log.Warnf("%s Failed to close database after pragma error: %v", logcolors.LogCacheInit, closeErr)
			}
			return nil, fmt.Errorf("execute pragma %s: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warnf("%s Failed to close database after ping error: %v", logcolors.LogCacheInit, closeErr)
		}
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func (c *LyricsCache) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}
	return nil
}

const selectEntry = `
SELECT l.id, l.artist, l.track, l.album, l.duration_ms,
       l.provider, l.provider_id, l.lyrics_type, l.content, l.fetched_at
FROM lyrics l`

func scanEntry(row *sql.Row) (*Entry, error) {
	var (
		e          Entry
		durationMs sql.NullInt64
		lyricsType string
		fetchedAt  int64
	)

	err := row.Scan(&e.ID, &e.Artist, &e.Track, &e.Album, &durationMs,
		&e.Provider, &e.ProviderID, &lyricsType, &e.Content, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if durationMs.Valid {
		e.DurationMs = &durationMs.Int64
	}
	e.LyricsType = LyricsType(lyricsType)
	if e.LyricsType != TypeSynced {
		e.LyricsType = TypeUnsynced
	}
	e.FetchedAt = time.Unix(fetchedAt, 0)
	return &e, nil
}

// GetByProviderID looks lyrics up by a music source's track id (e.g. a Spotify track id).
// It returns nil, nil on a miss.
func (c *LyricsCache) GetByProviderID(ctx context.Context, provider, providerTrackID string) (*Entry, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	row := c.db.QueryRowContext(ctx, selectEntry+`
		INNER JOIN track_id_mapping m ON l.id = m.lyrics_id
		WHERE m.provider = ? AND m.provider_track_id = ?`,
		provider, providerTrackID)

	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("lookup %s:%s: %w", provider, providerTrackID, err)
	}
	return entry, nil
}

// GetByMetadata is the case-insensitive fallback lookup. With an empty album the most recently
// fetched entry for (artist, track) wins.
func (c *LyricsCache) GetByMetadata(ctx context.Context, artist, track, album string) (*Entry, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	var row *sql.Row
	if album != "" {
		row = c.db.QueryRowContext(ctx, selectEntry+`
			WHERE LOWER(l.artist) = ? AND LOWER(l.track) = ? AND LOWER(l.album) = ?
			ORDER BY l.fetched_at DESC, l.id DESC
			LIMIT 1`,
			strings.ToLower(artist), strings.ToLower(track), strings.ToLower(album))
	} else {
		row = c.db.QueryRowContext(ctx, selectEntry+`
			WHERE LOWER(l.artist) = ? AND LOWER(l.track) = ?
			ORDER BY l.fetched_at DESC, l.id DESC
			LIMIT 1`,
			strings.ToLower(artist), strings.ToLower(track))
	}

	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("lookup %s - %s: %w", artist, track, err)
	}
	return entry, nil
}

// Store upserts lyrics on (artist, track, album) and maps (provider, providerTrackID) to the row.
// Both writes share one transaction. NotFound results are rejected with ErrNotFoundResult.
func (c *LyricsCache) Store(ctx context.Context, provider, providerTrackID string, result providers.Result,
	meta TrackMetadata, lyricsProvider, lyricsProviderID string) (int64, error) {

	if err := c.checkClosed(); err != nil {
		return 0, err
	}

	var (
		lyricsType LyricsType
		content    string
	)
	switch result.Kind {
	case providers.KindSynced:
		if result.Lyrics == nil {
			return 0, ErrNotFoundResult
		}
		lyricsType, content = TypeSynced, result.Lyrics.String()
	case providers.KindUnsynced:
		lyricsType, content = TypeUnsynced, result.Text
	default:
		return 0, fmt.Errorf("%w: %s - %s", ErrNotFoundResult, meta.Artist, meta.Track)
	}

	var durationMs sql.NullInt64
	if meta.DurationMs > 0 {
		durationMs = sql.NullInt64{Int64: meta.DurationMs, Valid: true}
	}
	now := c.now().Unix()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO lyrics (artist, track, album, duration_ms, provider, provider_id, lyrics_type, content, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(artist, track, album) DO UPDATE SET
			duration_ms = excluded.duration_ms,
			provider = excluded.provider,
			provider_id = excluded.provider_id,
			lyrics_type = excluded.lyrics_type,
			content = excluded.content,
			fetched_at = excluded.fetched_at
		RETURNING id`,
		meta.Artist, meta.Track, meta.Album, durationMs, lyricsProvider, lyricsProviderID,
		string(lyricsType), content, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert lyrics: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO track_id_mapping (provider, provider_track_id, lyrics_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, provider_track_id) DO UPDATE SET
			lyrics_id = excluded.lyrics_id,
			created_at = excluded.created_at`,
		provider, providerTrackID, id, now)
	if err != nil {
		return 0, fmt.Errorf("upsert track id mapping: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	log.Infof("%s Stored %s lyrics for %s - %s (id %d, lyrics from %s:%s, key %s:%s)",
		logcolors.LogCacheLyrics, lyricsType, meta.Artist, meta.Track, id,
		lyricsProvider, lyricsProviderID, provider, providerTrackID)
	return id, nil
}

// Cleanup deletes entries fetched more than ttlDays ago; their mappings cascade
func (c *LyricsCache) Cleanup(ctx context.Context, ttlDays int) (int64, error) {
	if err := c.checkClosed(); err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-time.Duration(ttlDays) * 24 * time.Hour).Unix()
	res, err := c.db.ExecContext(ctx, "DELETE FROM lyrics WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	if deleted > 0 {
		log.Infof("%s Deleted %d entries older than %d days", logcolors.LogCacheCleanup, deleted, ttlDays)
	}
	return deleted, nil
}

// Checkpoint truncates the WAL, used on clean shutdown
func (c *LyricsCache) Checkpoint(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	if _, err := c.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	log.Debugf("%s WAL checkpoint complete", logcolors.LogCacheCheckpoint)
	return nil
}

// Stats returns row counts and the fetch time range
func (c *LyricsCache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := c.checkClosed(); err != nil {
		return s, err
	}

	var oldest, newest sql.NullInt64
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN lyrics_type = 'synced' THEN 1 ELSE 0 END), 0),
		       MIN(fetched_at), MAX(fetched_at)
		FROM lyrics`).Scan(&s.Entries, &s.SyncedEntries, &oldest, &newest)
	if err != nil {
		return s, fmt.Errorf("count lyrics: %w", err)
	}
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM track_id_mapping").Scan(&s.Mappings); err != nil {
		return s, fmt.Errorf("count mappings: %w", err)
	}

	if oldest.Valid {
		s.OldestEntry = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		s.NewestEntry = time.Unix(newest.Int64, 0)
	}
	return s, nil
}

// StartCleanup runs Cleanup every interval until ctx is done
func (c *LyricsCache) StartCleanup(ctx context.Context, interval time.Duration, ttlDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Cleanup(ctx, ttlDays); err != nil && !errors.Is(err, ErrClosed) {
				log.Warnf("%s Periodic cleanup failed: %v", logcolors.LogCacheCleanup, err)
			}
		}
	}
}

// Path returns the database file path
func (c *LyricsCache) Path() string {
	return c.path
}

// Close checkpoints and closes the database
func (c *LyricsCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if _, err := c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Warnf("%s Checkpoint on close failed: %v", logcolors.LogCacheCheckpoint, err)
	}
	return c.db.Close()
}
