// Package render builds render requests and handles client-side delivery of
// the returned artifact.
package render

import (
	"fmt"
	"os"
	"path/filepath"

	"caption-studio/internal/domain"
)

// BuildRequest constructs the render payload from the current selection
// state. Pure and deterministic: no I/O, no defaulting beyond leaving an
// empty resolution for the backend to resolve.
func BuildRequest(mediaID, styleID string, subtitleOnly bool, resolution string) domain.RenderRequest {
	return domain.RenderRequest{
		MediaID:      mediaID,
		StyleID:      styleID,
		Resolution:   resolution,
		SubtitleOnly: subtitleOnly,
	}
}

// ArtifactFileName returns the deterministic name the saved artifact must
// carry: "{mediaID}.srt" for subtitle-only requests, "{mediaID}_{styleID}.mp4"
// for burned-in video.
func ArtifactFileName(mediaID, styleID string, subtitleOnly bool) string {
	if subtitleOnly {
		return mediaID + ".srt"
	}
	return fmt.Sprintf("%s_%s.mp4", mediaID, styleID)
}

// Saver writes render artifacts into a target directory.
type Saver struct {
	dir string
}

// NewSaver creates a saver targeting the given directory.
func NewSaver(dir string) *Saver {
	return &Saver{dir: dir}
}

// Save writes the artifact under its file name, creating the directory as
// needed, and returns the written path.
func (s *Saver) Save(fileName string, artifact []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(s.dir, fileName)
	if err := os.WriteFile(path, artifact, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
