package lrc

import (
	"sort"
	"time"
	"unicode/utf8"
)

// LineIndexAt returns the index of the last line whose start time is <= position
func (ly *Lyrics) LineIndexAt(position time.Duration) (int, bool) {
	if ly == nil {
		return 0, false
	}
	i := sort.Search(len(ly.Lines), func(i int) bool {
		return ly.Lines[i].Start > position
	})
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// CurrentLine returns the active line at position, or nil before the first line
func (ly *Lyrics) CurrentLine(position time.Duration) *Line {
	i, ok := ly.LineIndexAt(position)
	if !ok {
		return nil
	}
	return &ly.Lines[i]
}

// NextStart returns the start time of the line after index i, if any
func (ly *Lyrics) NextStart(i int) *time.Duration {
	if ly == nil || i+1 >= len(ly.Lines) || i < 0 {
		return nil
	}
	start := ly.Lines[i+1].Start
	return &start
}

// VisibleLines returns the window of lines around the active line at position.
// Before the first line the window is anchored at index 0.
func (ly *Lyrics) VisibleLines(position time.Duration, before, after int) []Line {
	if ly.IsEmpty() {
		return nil
	}

	current, _ := ly.LineIndexAt(position)

	start := current - before
	if start < 0 {
		start = 0
	}
	end := current + after + 1
	if end > len(ly.Lines) {
		end = len(ly.Lines)
	}

	return ly.Lines[start:end]
}

// Progress returns the 0.0-1.0 fill ratio of the line at position.
//
// The line ends at the last word's end time when word timing is present, otherwise at
// nextStart, otherwise DefaultLineDuration after the line start.
func (l Line) Progress(position time.Duration, nextStart *time.Duration) float64 {
	if position < l.Start {
		return 0
	}

	end := l.Start + DefaultLineDuration
	if nextStart != nil {
		end = *nextStart
	}
	if n := len(l.Words); n > 0 && l.Words[n-1].End != nil {
		end = *l.Words[n-1].End
	}

	if position >= end {
		return 1
	}

	total := end - l.Start
	if total <= 0 {
		return 1
	}

	return clamp01(float64(position-l.Start) / float64(total))
}

// Duration returns how long the line stays active given the next line's start
func (l Line) Duration(nextStart *time.Duration) time.Duration {
	end := l.Start + DefaultLineDuration
	if nextStart != nil {
		end = *nextStart
	}
	if end < l.Start {
		return 0
	}
	return end - l.Start
}

// WordProgress reports whether the character at charIndex is filled (1) or not (0).
// Characters inside a timed word fill proportionally to the word's elapsed time; other
// characters follow the line progress.
func (l Line) WordProgress(position time.Duration, charIndex int) float64 {
	totalChars := utf8.RuneCountInString(l.Text)
	if totalChars == 0 {
		return 1
	}

	current := 0
	for _, w := range l.Words {
		wordLen := utf8.RuneCountInString(w.Text)
		wordEnd := current + wordLen

		if charIndex < wordEnd {
			if position < w.Start {
				return 0
			}
			if w.End == nil {
				return 1
			}
			if position >= *w.End {
				return 1
			}
			span := *w.End - w.Start
			if span <= 0 {
				return 1
			}
			charProgress := float64(charIndex-current) / float64(wordLen)
			timeProgress := float64(position-w.Start) / float64(span)
			if timeProgress >= charProgress {
				return 1
			}
			return 0
		}

		current = wordEnd
		// space between words
		if current < totalChars {
			current++
		}
	}

	threshold := float64(charIndex) / float64(totalChars)
	if l.Progress(position, nil) >= threshold {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
