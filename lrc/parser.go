package lrc

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// seconds part of a timestamp: ss or ss.fff
	secondsRegex = regexp.MustCompile(`^(\d+)(?:\.(\d+))?$`)

	digitsRegex = regexp.MustCompile(`^\d*$`)
)

// Parse parses LRC text. It never fails: malformed lines and tags are skipped.
//
// Supported shapes:
//
//	[ti:Title]                         ID tags (ti, ar, al, au, length, offset)
//	[mm:ss.xx]text                     plain timed line
//	[mm:ss.xx][mm:ss.xx]text           repeated line, one Line per timestamp
//	[mm:ss.xx]<mm:ss.xx>word <..>word  enhanced line with word timing
//
// The [offset:N] tag is applied once, after all lines are collected.
func Parse(input string) *Lyrics {
	lyrics := &Lyrics{}

	for _, raw := range strings.Split(input, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if tag, value, ok := parseIDTag(line); ok {
			applyTag(&lyrics.Metadata, tag, value)
			continue
		}

		lyrics.Lines = append(lyrics.Lines, parseLyricLine(line)...)
	}

	if offset := lyrics.Metadata.Offset; offset != 0 {
		for i := range lyrics.Lines {
			line := &lyrics.Lines[i]
			line.Start = applyOffset(line.Start, offset)
			for j := range line.Words {
				word := &line.Words[j]
				word.Start = applyOffset(word.Start, offset)
				if word.End != nil {
					end := applyOffset(*word.End, offset)
					word.End = &end
				}
			}
		}
	}

	sort.SliceStable(lyrics.Lines, func(i, j int) bool {
		return lyrics.Lines[i].Start < lyrics.Lines[j].Start
	})

	return lyrics
}

func applyTag(meta *Metadata, tag, value string) {
	switch strings.ToLower(tag) {
	case "ti":
		meta.Title = value
	case "ar":
		meta.Artist = value
	case "al":
		meta.Album = value
	case "au":
		meta.Author = value
	case "length":
		if d, ok := parseLengthTag(value); ok {
			meta.Length = d
		}
	case "offset":
		if offset, err := strconv.ParseInt(value, 10, 64); err == nil {
			meta.Offset = offset
		}
	}
}

// parseIDTag detects [tag:value] lines. A purely numeric tag is a timestamp, not an ID tag.
func parseIDTag(line string) (string, string, bool) {
	if !strings.HasPrefix(line, "[") || !strings.Contains(line, ":") {
		return "", "", false
	}

	end := strings.Index(line, "]")
	if end < 0 {
		return "", "", false
	}
	content := line[1:end]

	colon := strings.Index(content, ":")
	if colon < 0 {
		return "", "", false
	}

	tag := content[:colon]
	if digitsRegex.MatchString(tag) {
		return "", "", false
	}

	return tag, strings.TrimSpace(content[colon+1:]), true
}

func parseLengthTag(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}

	minutes, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	seconds, ok := parseSeconds(parts[1])
	if !ok {
		return 0, false
	}

	return time.Duration(minutes)*time.Minute + seconds, true
}

func parseLyricLine(line string) []Line {
	var timestamps []time.Duration
	remaining := line

	for strings.HasPrefix(remaining, "[") {
		end := strings.Index(remaining, "]")
		if end < 0 {
			break
		}
		ts, ok := parseTimestamp(remaining[1:end])
		if !ok {
			break
		}
		timestamps = append(timestamps, ts)
		remaining = remaining[end+1:]
	}

	if len(timestamps) == 0 {
		return nil
	}

	text := strings.TrimSpace(remaining)
	words := parseEnhancedWords(text)
	if words != nil {
		texts := make([]string, len(words))
		for i, w := range words {
			texts[i] = w.Text
		}
		text = strings.Join(texts, " ")
	}

	lines := make([]Line, 0, len(timestamps))
	for _, ts := range timestamps {
		lines = append(lines, Line{
			Start: ts,
			Text:  text,
			Words: copyWords(words),
		})
	}

	return lines
}

// parseTimestamp accepts mm:ss, mm:ss.xx and mm:ss:xx (hundredths after the second colon)
func parseTimestamp(s string) (time.Duration, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")

	switch len(parts) {
	case 2:
		minutes, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, false
		}
		seconds, ok := parseSeconds(parts[1])
		if !ok {
			return 0, false
		}
		return time.Duration(minutes)*time.Minute + seconds, true

	case 3:
		minutes, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, false
		}
		seconds, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return 0, false
		}
		hundredths, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(minutes)*time.Minute +
			time.Duration(seconds)*time.Second +
			time.Duration(hundredths)*10*time.Millisecond, true
	}

	return 0, false
}

// parseSeconds parses "ss" or "ss.fff" as a decimal number of seconds with millisecond precision
func parseSeconds(s string) (time.Duration, bool) {
	m := secondsRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	whole, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	d := time.Duration(whole) * time.Second

	if frac := m[2]; frac != "" {
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		ms, err := strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, false
		}
		d += time.Duration(ms) * time.Millisecond
	}

	return d, true
}

// parseEnhancedWords extracts <mm:ss.xx>word tokens. Each word ends where the next begins.
func parseEnhancedWords(text string) []Word {
	if !strings.Contains(text, "<") {
		return nil
	}

	var words []Word
	remaining := strings.TrimSpace(text)

	for remaining != "" {
		if !strings.HasPrefix(remaining, "<") {
			next := strings.Index(remaining, "<")
			if next < 0 {
				break
			}
			remaining = remaining[next:]
			continue
		}

		end := strings.Index(remaining, ">")
		if end < 0 {
			break
		}

		start, ok := parseTimestamp(remaining[1:end])
		remaining = remaining[end+1:]
		if !ok {
			continue
		}

		wordEnd := strings.Index(remaining, "<")
		if wordEnd < 0 {
			wordEnd = len(remaining)
		}
		if wordText := strings.TrimSpace(remaining[:wordEnd]); wordText != "" {
			words = append(words, Word{Start: start, Text: wordText})
		}
		remaining = remaining[wordEnd:]
	}

	for i := 0; i+1 < len(words); i++ {
		end := words[i+1].Start
		words[i].End = &end
	}

	return words
}

func copyWords(words []Word) []Word {
	if words == nil {
		return nil
	}
	out := make([]Word, len(words))
	for i, w := range words {
		out[i] = w
		if w.End != nil {
			end := *w.End
			out[i].End = &end
		}
	}
	return out
}

// applyOffset shifts d by offsetMs, saturating at zero
func applyOffset(d time.Duration, offsetMs int64) time.Duration {
	shifted := d + time.Duration(offsetMs)*time.Millisecond
	if shifted < 0 {
		return 0
	}
	return shifted
}
