package gateway

import (
	"fmt"
	"strings"

	"caption-studio/internal/domain"
)

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

// Error formats the failed operation with status and body excerpt.
func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, body)
}

// wire shapes mirror the backend's JSON exactly; loosely-typed payloads are
// coerced into domain records before leaving this package.

type styleListPayload struct {
	Styles []stylePayload `json:"styles"`
}

type stylePayload struct {
	ID                string  `json:"id"`
	Label             string  `json:"label"`
	Font              string  `json:"font"`
	PrimaryColor      string  `json:"primary_color"`
	EmphasisColor     string  `json:"emphasis_color"`
	StrokeColor       string  `json:"stroke_color"`
	StrokeWidth       int     `json:"stroke_width"`
	BackgroundOpacity float64 `json:"background_opacity"`
	Karaoke           bool    `json:"karaoke"`
	Uppercase         bool    `json:"uppercase"`
}

type uploadPayload struct {
	MediaID string `json:"media_id"`
	Path    string `json:"path"`
}

type transcribePayload struct {
	MediaID    string            `json:"media_id"`
	Transcript transcriptPayload `json:"transcript"`
}

type transcriptPayload struct {
	Language string           `json:"language"`
	Segments []segmentPayload `json:"segments"`
}

type segmentPayload struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []wordPayload `json:"words"`
}

type wordPayload struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type healthPayload struct {
	Status string `json:"status"`
}

// toDomainStyle converts one wire style, rejecting entries without an id.
func toDomainStyle(p stylePayload) (domain.CaptionStyle, error) {
	if strings.TrimSpace(p.ID) == "" {
		return domain.CaptionStyle{}, fmt.Errorf("style entry is missing an id")
	}

	return domain.CaptionStyle{
		ID:                p.ID,
		Label:             p.Label,
		Font:              p.Font,
		PrimaryColor:      p.PrimaryColor,
		EmphasisColor:     p.EmphasisColor,
		StrokeColor:       p.StrokeColor,
		StrokeWidth:       p.StrokeWidth,
		BackgroundOpacity: p.BackgroundOpacity,
		Karaoke:           p.Karaoke,
		Uppercase:         p.Uppercase,
	}, nil
}

// toDomainTranscript validates time windows and preserves server order.
func toDomainTranscript(p transcriptPayload) (domain.Transcript, error) {
	segments := make([]domain.CaptionSegment, 0, len(p.Segments))
	for i, seg := range p.Segments {
		if seg.Start < 0 {
			return domain.Transcript{}, fmt.Errorf("transcript segment %d has negative start %.3f", i, seg.Start)
		}
		if seg.End <= seg.Start {
			return domain.Transcript{}, fmt.Errorf("transcript segment %d has invalid window [%.3f, %.3f)", i, seg.Start, seg.End)
		}

		var words []domain.WordTiming
		if len(seg.Words) > 0 {
			words = make([]domain.WordTiming, 0, len(seg.Words))
			for _, w := range seg.Words {
				words = append(words, domain.WordTiming{Start: w.Start, End: w.End, Text: w.Text})
			}
		}

		segments = append(segments, domain.CaptionSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
			Words: words,
		})
	}

	return domain.Transcript{
		Language: p.Language,
		Segments: segments,
	}, nil
}
