package lrc

import (
	"fmt"
	"strings"
	"time"
)

// String serializes the lyrics back to LRC text.
//
// No [offset:] tag is written: line times already include the offset, so a re-parse
// must not shift them a second time.
func (ly *Lyrics) String() string {
	if ly == nil {
		return ""
	}

	var b strings.Builder

	writeTag := func(tag, value string) {
		if value != "" {
			fmt.Fprintf(&b, "[%s:%s]\n", tag, value)
		}
	}
	writeTag("ti", ly.Metadata.Title)
	writeTag("ar", ly.Metadata.Artist)
	writeTag("al", ly.Metadata.Album)
	writeTag("au", ly.Metadata.Author)

	for _, line := range ly.Lines {
		b.WriteString("[" + FormatTimestamp(line.Start) + "]")
		if line.HasWords() {
			for i, w := range line.Words {
				if i > 0 {
					b.WriteByte(' ')
				}
				b.WriteString("<" + FormatTimestamp(w.Start) + ">" + w.Text)
			}
		} else {
			b.WriteString(line.Text)
		}
		b.WriteByte('\n')
	}

	return b.String()
}

// FormatTimestamp renders d as mm:ss.xx
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d.%02d", ms/60000, (ms/1000)%60, (ms%1000)/10)
}
