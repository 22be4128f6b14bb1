// Package lrc parses and models LRC-style timed lyrics.
package lrc

import "time"

// DefaultLineDuration is used as the end of a line when nothing else bounds it
const DefaultLineDuration = 5 * time.Second

// Metadata holds the ID tags of an LRC file
type Metadata struct {
	Title  string
	Artist string
	Album  string
	Author string
	// Length is zero when the file has no [length:] tag
	Length time.Duration
	// Offset in milliseconds as declared by the [offset:] tag, already applied to every line
	Offset int64
}

// Word is a single syllable-timed token of an enhanced LRC line
type Word struct {
	Start time.Duration
	// End is nil for the last word of a line
	End  *time.Duration
	Text string
}

// Line is a single timed lyrics line
type Line struct {
	Start time.Duration
	Text  string
	// Words is nil unless the source line carried <mm:ss.xx> word timing
	Words []Word
}

// Lyrics is a parsed LRC file with lines sorted by start time
type Lyrics struct {
	Metadata Metadata
	Lines    []Line
}

// HasWords reports whether the line carries word-level timing
func (l Line) HasWords() bool {
	return len(l.Words) > 0
}

// IsEmpty reports whether no timed lines were parsed
func (ly *Lyrics) IsEmpty() bool {
	return ly == nil || len(ly.Lines) == 0
}
