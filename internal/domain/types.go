package domain

// PipelineState labels each stage of the captioning workflow.
type PipelineState string

const (
	StateIdle         PipelineState = "idle"
	StateFileSelected PipelineState = "file_selected"
	StateUploading    PipelineState = "uploading"
	StateTranscribing PipelineState = "transcribing"
	StateReady        PipelineState = "ready"
	StateRendering    PipelineState = "rendering"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	BackendURL string `json:"backendUrl"`
	Language   string `json:"language"`
	OutputDir  string `json:"outputDir"`
}

// FileSelection identifies a local media file chosen for upload.
type FileSelection struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
}

// MediaAsset identifies an uploaded file on the backend.
type MediaAsset struct {
	ID               string `json:"id"`
	OriginalFileName string `json:"originalFileName"`
	SizeBytes        int64  `json:"sizeBytes"`
	RemotePath       string `json:"remotePath,omitempty"`
}

// WordTiming is one word with its time window, present when the backend
// produced word-level timestamps.
type WordTiming struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// CaptionSegment is one time-coded transcript line. Only Text is mutable
// after transcription; Start, End, and Words are fixed.
type CaptionSegment struct {
	Start float64      `json:"start"`
	End   float64      `json:"end"`
	Text  string       `json:"text"`
	Words []WordTiming `json:"words,omitempty"`
}

// Transcript is the typed result of one transcription call.
type Transcript struct {
	Language string           `json:"language"`
	Segments []CaptionSegment `json:"segments"`
}

// CaptionStyle is an immutable presentation preset served by the backend.
type CaptionStyle struct {
	ID                string  `json:"id"`
	Label             string  `json:"label"`
	Font              string  `json:"font"`
	PrimaryColor      string  `json:"primaryColor"`
	EmphasisColor     string  `json:"emphasisColor"`
	StrokeColor       string  `json:"strokeColor,omitempty"`
	StrokeWidth       int     `json:"strokeWidth,omitempty"`
	BackgroundOpacity float64 `json:"backgroundOpacity,omitempty"`
	Karaoke           bool    `json:"karaoke,omitempty"`
	Uppercase         bool    `json:"uppercase,omitempty"`
}

// RenderRequest is the payload for one render call. SubtitleOnly selects a
// subtitle-file artifact instead of a burned-in video; Resolution is optional
// and defers to the backend default when empty.
type RenderRequest struct {
	MediaID      string `json:"media_id"`
	StyleID      string `json:"style_id"`
	Resolution   string `json:"resolution,omitempty"`
	SubtitleOnly bool   `json:"srt_only"`
}
