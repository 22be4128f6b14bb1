package lrc

import (
	"testing"
	"time"
)

func ms(n int64) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func TestParse_BasicFormat(t *testing.T) {
	tests := []struct {
		name          string
		lrc           string
		expectedCount int
		firstText     string
		firstStart    time.Duration
	}{
		{
			name:          "Two-digit fraction",
			lrc:           "[00:12.34]Hello world",
			expectedCount: 1,
			firstText:     "Hello world",
			firstStart:    ms(12340),
		},
		{
			name:          "Three-digit fraction",
			lrc:           "[00:01.500]Hello world\n[00:03.000]Second line",
			expectedCount: 2,
			firstText:     "Hello world",
			firstStart:    ms(1500),
		},
		{
			name:          "One-digit fraction",
			lrc:           "[00:01.5]Half",
			expectedCount: 1,
			firstText:     "Half",
			firstStart:    ms(1500),
		},
		{
			name:          "No fraction",
			lrc:           "[01:05]Whole seconds",
			expectedCount: 1,
			firstText:     "Whole seconds",
			firstStart:    ms(65000),
		},
		{
			name:          "Colon hundredths",
			lrc:           "[00:05:50]Quirky",
			expectedCount: 1,
			firstText:     "Quirky",
			firstStart:    ms(5500),
		},
		{
			name:          "Minutes above 99",
			lrc:           "[120:00.00]Long mix",
			expectedCount: 1,
			firstText:     "Long mix",
			firstStart:    120 * time.Minute,
		},
		{
			name:          "Empty text line",
			lrc:           "[00:05.00]",
			expectedCount: 1,
			firstText:     "",
			firstStart:    ms(5000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lyrics := Parse(tt.lrc)

			if len(lyrics.Lines) != tt.expectedCount {
				t.Fatalf("Expected %d lines, got %d", tt.expectedCount, len(lyrics.Lines))
			}
			if lyrics.Lines[0].Text != tt.firstText {
				t.Errorf("Expected first line %q, got %q", tt.firstText, lyrics.Lines[0].Text)
			}
			if lyrics.Lines[0].Start != tt.firstStart {
				t.Errorf("Expected start %v, got %v", tt.firstStart, lyrics.Lines[0].Start)
			}
		})
	}
}

func TestParse_StartTimeFormula(t *testing.T) {
	for mm := int64(0); mm < 3; mm++ {
		for ss := int64(0); ss < 60; ss += 7 {
			for xx := int64(0); xx < 100; xx += 13 {
				input := "[" + FormatTimestamp(ms(mm*60000+ss*1000+xx*10)) + "]line"
				lyrics := Parse(input)
				if len(lyrics.Lines) != 1 {
					t.Fatalf("%s: expected 1 line, got %d", input, len(lyrics.Lines))
				}
				want := ms(mm*60000 + ss*1000 + xx*10)
				if lyrics.Lines[0].Start != want {
					t.Errorf("%s: expected %v, got %v", input, want, lyrics.Lines[0].Start)
				}
			}
		}
	}
}

func TestParse_Metadata(t *testing.T) {
	input := `
[ti:Song Title]
[ar:Artist Name]
[al:Album Name]
[au:Writer]
[length:03:25.50]
[by:someone]
[00:05.00]Lyrics here
`
	lyrics := Parse(input)

	if lyrics.Metadata.Title != "Song Title" {
		t.Errorf("Expected title %q, got %q", "Song Title", lyrics.Metadata.Title)
	}
	if lyrics.Metadata.Artist != "Artist Name" {
		t.Errorf("Expected artist %q, got %q", "Artist Name", lyrics.Metadata.Artist)
	}
	if lyrics.Metadata.Album != "Album Name" {
		t.Errorf("Expected album %q, got %q", "Album Name", lyrics.Metadata.Album)
	}
	if lyrics.Metadata.Author != "Writer" {
		t.Errorf("Expected author %q, got %q", "Writer", lyrics.Metadata.Author)
	}
	if lyrics.Metadata.Length != ms(205500) {
		t.Errorf("Expected length 3m25.5s, got %v", lyrics.Metadata.Length)
	}
	if len(lyrics.Lines) != 1 {
		t.Errorf("Expected 1 line (unknown tags skipped), got %d", len(lyrics.Lines))
	}
}

func TestParse_Offset(t *testing.T) {
	tests := []struct {
		name     string
		lrc      string
		expected time.Duration
	}{
		{"Positive offset", "[offset:500]\n[00:10.00]Line", ms(10500)},
		{"Explicit plus sign", "[offset:+500]\n[00:10.00]Line", ms(10500)},
		{"Negative offset", "[offset:-500]\n[00:10.00]Line", ms(9500)},
		{"Saturates at zero", "[offset:-5000]\n[00:01.00]Line", 0},
		{"Offset after lines", "[00:10.00]Line\n[offset:250]", ms(10250)},
		{"Invalid offset ignored", "[offset:abc]\n[00:10.00]Line", ms(10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lyrics := Parse(tt.lrc)
			if len(lyrics.Lines) != 1 {
				t.Fatalf("Expected 1 line, got %d", len(lyrics.Lines))
			}
			if lyrics.Lines[0].Start != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, lyrics.Lines[0].Start)
			}
		})
	}
}

func TestParse_OffsetNotReappliedOnReparse(t *testing.T) {
	first := Parse("[offset:500]\n[00:10.00]Line\n[00:12.00]<00:12.00>a <00:12.50>b")
	second := Parse(first.String())

	for i := range first.Lines {
		if first.Lines[i].Start != second.Lines[i].Start {
			t.Errorf("Line %d: start changed from %v to %v", i, first.Lines[i].Start, second.Lines[i].Start)
		}
	}
	if second.Lines[0].Start != ms(10500) {
		t.Errorf("Expected 10.5s after re-parse, got %v", second.Lines[0].Start)
	}
	if second.Lines[1].Words[1].Start != ms(13000) {
		t.Errorf("Expected word start 13s after re-parse, got %v", second.Lines[1].Words[1].Start)
	}
}

func TestParse_OffsetAppliedToWords(t *testing.T) {
	lyrics := Parse("[offset:-200]\n[00:01.00]<00:01.00>Hello <00:01.50>world")

	words := lyrics.Lines[0].Words
	if len(words) != 2 {
		t.Fatalf("Expected 2 words, got %d", len(words))
	}
	if words[0].Start != ms(800) {
		t.Errorf("Expected first word at 800ms, got %v", words[0].Start)
	}
	if words[0].End == nil || *words[0].End != ms(1300) {
		t.Errorf("Expected first word end 1300ms, got %v", words[0].End)
	}
	if words[1].End != nil {
		t.Errorf("Expected last word to have no end, got %v", *words[1].End)
	}
}

func TestParse_MultipleTimestamps(t *testing.T) {
	lyrics := Parse("[00:05.00][00:15.00]Same lyric")

	if len(lyrics.Lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lyrics.Lines))
	}
	if lyrics.Lines[0].Start != ms(5000) || lyrics.Lines[1].Start != ms(15000) {
		t.Errorf("Unexpected start times %v, %v", lyrics.Lines[0].Start, lyrics.Lines[1].Start)
	}
	for i, line := range lyrics.Lines {
		if line.Text != "Same lyric" {
			t.Errorf("Line %d: expected text %q, got %q", i, "Same lyric", line.Text)
		}
	}
}

func TestParse_SortsOutOfOrder(t *testing.T) {
	lyrics := Parse("[00:15.00]Third\n[00:05.00]First\n[00:10.00]Second\n[00:05.00]First again")

	expected := []string{"First", "First again", "Second", "Third"}
	if len(lyrics.Lines) != len(expected) {
		t.Fatalf("Expected %d lines, got %d", len(expected), len(lyrics.Lines))
	}
	for i, text := range expected {
		if lyrics.Lines[i].Text != text {
			t.Errorf("Line %d: expected %q, got %q", i, text, lyrics.Lines[i].Text)
		}
	}
}

func TestParse_EnhancedWords(t *testing.T) {
	lyrics := Parse("[00:01.00]<00:01.00>Hello <00:01.50>beautiful <00:02.20>world")

	line := lyrics.Lines[0]
	if line.Text != "Hello beautiful world" {
		t.Errorf("Expected joined text, got %q", line.Text)
	}
	if len(line.Words) != 3 {
		t.Fatalf("Expected 3 words, got %d", len(line.Words))
	}
	if *line.Words[0].End != line.Words[1].Start {
		t.Errorf("Expected word end to equal next word start")
	}
	if line.Words[2].Start != ms(2200) {
		t.Errorf("Expected last word at 2.2s, got %v", line.Words[2].Start)
	}
}

func TestParse_MalformedInput(t *testing.T) {
	tests := []struct {
		name          string
		lrc           string
		expectedCount int
	}{
		{"Empty input", "", 0},
		{"Whitespace only", "   \n\t\n", 0},
		{"No timestamps", "just some text", 0},
		{"Unclosed bracket", "[00:05.00 text", 0},
		{"Letters in timestamp", "[aa:bb.cc]text", 0},
		{"Negative minutes", "[-1:00.00]text", 0},
		{"Bad line among good", "[00:01.00]ok\n[xx:yy]bad\n[00:02.00]ok too", 2},
		{"Too many colons", "[00:01:02:03]text", 0},
		{"Broken word timestamp", "[00:01.00]<bad>word <00:02.00>ok", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lyrics := Parse(tt.lrc)
			if len(lyrics.Lines) != tt.expectedCount {
				t.Errorf("Expected %d lines, got %d", tt.expectedCount, len(lyrics.Lines))
			}
		})
	}
}

func TestParse_TextWithAngleBracketButNoTiming(t *testing.T) {
	lyrics := Parse("[00:01.00]a < b")

	if lyrics.Lines[0].Text != "a < b" {
		t.Errorf("Expected text preserved, got %q", lyrics.Lines[0].Text)
	}
	if lyrics.Lines[0].HasWords() {
		t.Error("Expected no words")
	}
}

func TestString_RoundTrip(t *testing.T) {
	input := `[ti:Title]
[ar:Artist]
[00:01.00]First
[00:03.50]Second
[00:07.25]Third`

	first := Parse(input)
	second := Parse(first.String())

	if len(first.Lines) != len(second.Lines) {
		t.Fatalf("Line count changed: %d -> %d", len(first.Lines), len(second.Lines))
	}
	for i := range first.Lines {
		if first.Lines[i].Text != second.Lines[i].Text {
			t.Errorf("Line %d text changed: %q -> %q", i, first.Lines[i].Text, second.Lines[i].Text)
		}
		if first.Lines[i].Start != second.Lines[i].Start {
			t.Errorf("Line %d start changed: %v -> %v", i, first.Lines[i].Start, second.Lines[i].Start)
		}
	}
	if second.Metadata.Title != "Title" || second.Metadata.Artist != "Artist" {
		t.Errorf("Metadata not preserved: %+v", second.Metadata)
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in       time.Duration
		expected string
	}{
		{0, "00:00.00"},
		{ms(12340), "00:12.34"},
		{ms(61005), "01:01.00"},
		{ms(599990), "09:59.99"},
		{-time.Second, "00:00.00"},
	}

	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.expected {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}
