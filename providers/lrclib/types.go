package lrclib

import "strings"

// Record is one LRCLIB track as returned by /get and /search
type Record struct {
	ID           int64    `json:"id"`
	TrackName    string   `json:"trackName"`
	ArtistName   string   `json:"artistName"`
	AlbumName    *string  `json:"albumName"`
	Duration     *float64 `json:"duration"`
	Instrumental bool     `json:"instrumental"`
	PlainLyrics  *string  `json:"plainLyrics"`
	SyncedLyrics *string  `json:"syncedLyrics"`
}

func (r *Record) hasSynced() bool {
	return r.SyncedLyrics != nil && strings.TrimSpace(*r.SyncedLyrics) != ""
}

func (r *Record) hasPlain() bool {
	return r.PlainLyrics != nil && strings.TrimSpace(*r.PlainLyrics) != ""
}

func (r *Record) durationOrZero() float64 {
	if r.Duration == nil {
		return 0
	}
	return *r.Duration
}
