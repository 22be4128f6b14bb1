package cache

import "fmt"

const createLyricsTable = `
CREATE TABLE IF NOT EXISTS lyrics (
    id INTEGER PRIMARY KEY,
    artist TEXT NOT NULL,
    track TEXT NOT NULL,
    album TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER,
    provider TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    lyrics_type TEXT NOT NULL,
    content TEXT NOT NULL,
    fetched_at INTEGER NOT NULL,
    UNIQUE(artist, track, album)
)`

const createMappingTable = `
CREATE TABLE IF NOT EXISTS track_id_mapping (
    id INTEGER PRIMARY KEY,
    provider TEXT NOT NULL,
    provider_track_id TEXT NOT NULL,
    lyrics_id INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (lyrics_id) REFERENCES lyrics(id) ON DELETE CASCADE,
    UNIQUE(provider, provider_track_id)
)`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_lyrics_artist_track ON lyrics(artist, track);
CREATE INDEX IF NOT EXISTS idx_lyrics_fetched_at ON lyrics(fetched_at);
CREATE INDEX IF NOT EXISTS idx_lyrics_provider_id ON lyrics(provider, provider_id);
CREATE INDEX IF NOT EXISTS idx_mapping_lyrics_id ON track_id_mapping(lyrics_id);
`

func (c *LyricsCache) runMigrations() error {
	migrations := []string{
		createLyricsTable,
		createMappingTable,
		createIndexes,
	}

	for i, migration := range migrations {
		if _, err := c.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
