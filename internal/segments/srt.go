package segments

import (
	"fmt"
	"math"
	"strings"

	"caption-studio/internal/domain"
)

// ComposeSRT renders the segment sequence as an SRT document: 1-based
// indices, HH:MM:SS,mmm timestamps, blank line between entries. The current
// (possibly edited) text is used, which is what makes local caption edits
// exportable without backend support.
func ComposeSRT(segs []domain.CaptionSegment) string {
	var b strings.Builder
	for i, seg := range segs {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(seg.Start), srtTimestamp(seg.End))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	millis := int64(math.Round(seconds * 1000))
	h := millis / 3_600_000
	millis -= h * 3_600_000
	m := millis / 60_000
	millis -= m * 60_000
	s := millis / 1000
	ms := millis % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
