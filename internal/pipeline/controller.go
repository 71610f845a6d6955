// Package pipeline implements the media pipeline controller: the state
// machine coordinating file selection, upload, transcription, and render
// requests against the captioning backend.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"caption-studio/internal/domain"
	"caption-studio/internal/logging"
	"caption-studio/internal/render"
	"caption-studio/internal/segments"
	"caption-studio/internal/styles"
)

var (
	// ErrNoFileSelected is returned when upload is requested without a file.
	ErrNoFileSelected = errors.New("no file selected")

	// ErrAlreadyTranscribed is returned when the current selection already
	// has an uploaded media asset; re-selecting the file allows a re-run.
	ErrAlreadyTranscribed = errors.New("selected file is already uploaded and transcribed")

	// ErrTranscribeInFlight is returned when upload and transcription are
	// already running; concurrent invocations are rejected, not queued.
	ErrTranscribeInFlight = errors.New("upload and transcription already in flight")

	// ErrRenderInFlight is returned while a render request is pending.
	ErrRenderInFlight = errors.New("render already in flight")

	// ErrNotReady is returned when render is requested before both a media
	// asset and a style selection exist. No network call is issued.
	ErrNotReady = errors.New("render requires an uploaded media asset and a selected style")
)

// Step names the backend-bound operation a failure occurred in.
type Step string

const (
	StepUpload     Step = "upload"
	StepTranscribe Step = "transcribe"
	StepRender     Step = "render"
)

// StepError tags a gateway failure with the pipeline step it aborted.
type StepError struct {
	Step Step
	Err  error
}

// Error formats the failed step for logs and UI.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Gateway is the backend boundary the controller drives.
type Gateway interface {
	FetchStyles(ctx context.Context) ([]domain.CaptionStyle, error)
	Upload(ctx context.Context, filePath string) (domain.MediaAsset, error)
	Transcribe(ctx context.Context, mediaID, language string) (domain.Transcript, error)
	Render(ctx context.Context, req domain.RenderRequest) ([]byte, error)
}

// ArtifactSaver delivers a rendered artifact to the user's device.
type ArtifactSaver interface {
	Save(fileName string, artifact []byte) (string, error)
}

// RenderOptions selects the artifact kind for one render call.
type RenderOptions struct {
	SubtitleOnly bool   `json:"subtitleOnly"`
	Resolution   string `json:"resolution,omitempty"`
}

// Snapshot is a consistent view of controller state for UI consumption.
type Snapshot struct {
	State              domain.PipelineState  `json:"state"`
	Selection          *domain.FileSelection `json:"selection,omitempty"`
	Asset              *domain.MediaAsset    `json:"asset,omitempty"`
	SelectedStyleID    string                `json:"selectedStyleId,omitempty"`
	SegmentCount       int                   `json:"segmentCount"`
	TranscriptLanguage string                `json:"transcriptLanguage,omitempty"`
	Transcribing       bool                  `json:"transcribing"`
	Rendering          bool                  `json:"rendering"`
}

// Controller owns transition timing: every backend call starts here, and at
// most one transcription and one render may be in flight at a time. The
// segment store and style catalog are passive holders it mutates.
type Controller struct {
	gw       Gateway
	saver    ArtifactSaver
	segments *segments.Store
	styles   *styles.Catalog
	log      zerolog.Logger
	onState  func(domain.PipelineState)

	mu           sync.Mutex
	selection    *domain.FileSelection
	asset        *domain.MediaAsset
	lang         string
	transcribing bool
	phase        domain.PipelineState
	rendering    bool
	generation   uint64
}

// NewController wires the controller to its collaborators.
func NewController(gw Gateway, saver ArtifactSaver, segs *segments.Store, catalog *styles.Catalog) *Controller {
	return &Controller{
		gw:       gw,
		saver:    saver,
		segments: segs,
		styles:   catalog,
		log:      logging.WithComponent("pipeline"),
	}
}

// SetStateListener registers a callback invoked after state transitions. The
// callback runs outside the controller lock.
func (c *Controller) SetStateListener(fn func(domain.PipelineState)) {
	c.onState = fn
}

// SelectFile records a new local selection, superseding any existing media
// asset and transcript. Valid in any state; an operation already in flight
// runs to completion but its result is discarded.
func (c *Controller) SelectFile(sel domain.FileSelection) error {
	if sel.Path == "" {
		return fmt.Errorf("file selection requires a path")
	}

	c.mu.Lock()
	c.generation++
	c.selection = &sel
	c.asset = nil
	c.lang = ""
	c.segments.Clear()
	c.mu.Unlock()

	c.log.Info().Str("file", sel.Name).Int64("sizeBytes", sel.SizeBytes).Msg("file selected")
	c.notifyState()
	return nil
}

// UploadAndTranscribe performs the two backend steps as one logical
// operation: upload the selected file, then request its transcription and
// load the returned segments. On failure the controller returns to the
// file-selected state with no media asset retained; a transcription failure
// discards the already-obtained media ID, so a retry re-uploads.
func (c *Controller) UploadAndTranscribe(ctx context.Context, language string) error {
	c.mu.Lock()
	if c.transcribing {
		c.mu.Unlock()
		return ErrTranscribeInFlight
	}
	if c.selection == nil {
		c.mu.Unlock()
		return ErrNoFileSelected
	}
	if c.asset != nil {
		c.mu.Unlock()
		return ErrAlreadyTranscribed
	}
	gen := c.generation
	sel := *c.selection
	c.transcribing = true
	c.phase = domain.StateUploading
	c.mu.Unlock()
	c.notifyState()

	asset, err := c.gw.Upload(ctx, sel.Path)
	if err != nil {
		c.finishTranscribe(gen, nil, domain.Transcript{})
		return &StepError{Step: StepUpload, Err: err}
	}

	c.mu.Lock()
	if c.generation == gen {
		c.phase = domain.StateTranscribing
	}
	c.mu.Unlock()
	c.notifyState()

	transcript, err := c.gw.Transcribe(ctx, asset.ID, language)
	if err != nil {
		// The uploaded media ID is discarded along with the failure.
		c.finishTranscribe(gen, nil, domain.Transcript{})
		return &StepError{Step: StepTranscribe, Err: err}
	}

	c.finishTranscribe(gen, &asset, transcript)
	return nil
}

// finishTranscribe clears the busy flag and commits the result unless a new
// file selection superseded this operation while it ran.
func (c *Controller) finishTranscribe(gen uint64, asset *domain.MediaAsset, transcript domain.Transcript) {
	c.mu.Lock()
	c.transcribing = false
	c.phase = ""
	superseded := c.generation != gen
	if !superseded && asset != nil {
		c.asset = asset
		c.lang = transcript.Language
		c.segments.Replace(transcript.Segments)
	}
	c.mu.Unlock()

	if superseded && asset != nil {
		c.log.Warn().Str("mediaId", asset.ID).Msg("discarding transcription result superseded by a new selection")
	}
	c.notifyState()
}

// EditSegmentText replaces the text of one caption segment. Timing and order
// are never touched; out-of-range indices fail without modifying anything.
func (c *Controller) EditSegmentText(index int, text string) error {
	return c.segments.EditText(index, text)
}

// LoadStyles fetches the style catalog and selects its first entry.
func (c *Controller) LoadStyles(ctx context.Context) error {
	list, err := c.gw.FetchStyles(ctx)
	if err != nil {
		return err
	}

	c.styles.Populate(list)
	return nil
}

// SelectStyle changes the local style selection to a catalog member.
func (c *Controller) SelectStyle(id string) error {
	return c.styles.Select(id)
}

// Render requests the artifact for the current media and style selection and
// saves it client-side under its deterministic file name, returning the
// saved path. Concurrent renders are rejected; failure returns the
// controller to the ready state.
func (c *Controller) Render(ctx context.Context, opts RenderOptions) (string, error) {
	c.mu.Lock()
	if c.rendering {
		c.mu.Unlock()
		return "", ErrRenderInFlight
	}
	styleID := c.styles.SelectedID()
	if c.asset == nil || styleID == "" {
		c.mu.Unlock()
		return "", ErrNotReady
	}
	mediaID := c.asset.ID
	c.rendering = true
	c.mu.Unlock()
	c.notifyState()

	req := render.BuildRequest(mediaID, styleID, opts.SubtitleOnly, opts.Resolution)
	artifact, err := c.gw.Render(ctx, req)
	if err != nil {
		c.finishRender()
		return "", &StepError{Step: StepRender, Err: err}
	}

	fileName := render.ArtifactFileName(mediaID, styleID, opts.SubtitleOnly)
	path, err := c.saver.Save(fileName, artifact)
	c.finishRender()
	if err != nil {
		return "", &StepError{Step: StepRender, Err: err}
	}

	c.log.Info().Str("artifact", path).Msg("render artifact saved")
	return path, nil
}

// finishRender clears the render busy flag.
func (c *Controller) finishRender() {
	c.mu.Lock()
	c.rendering = false
	c.mu.Unlock()
	c.notifyState()
}

// State derives the pipeline state from current bookkeeping.
func (c *Controller) State() domain.PipelineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Snapshot returns a consistent view for UI affordance derivation.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:              c.stateLocked(),
		SelectedStyleID:    c.styles.SelectedID(),
		SegmentCount:       c.segments.Len(),
		TranscriptLanguage: c.lang,
		Transcribing:       c.transcribing,
		Rendering:          c.rendering,
	}
	if c.selection != nil {
		sel := *c.selection
		snap.Selection = &sel
	}
	if c.asset != nil {
		asset := *c.asset
		snap.Asset = &asset
	}
	return snap
}

// stateLocked computes the derived state; callers hold the mutex.
func (c *Controller) stateLocked() domain.PipelineState {
	switch {
	case c.rendering:
		return domain.StateRendering
	case c.transcribing:
		return c.phase
	case c.asset != nil && c.segments.Len() > 0:
		return domain.StateReady
	case c.selection != nil:
		return domain.StateFileSelected
	default:
		return domain.StateIdle
	}
}

// notifyState pushes the derived state to the registered listener.
func (c *Controller) notifyState() {
	if c.onState == nil {
		return
	}
	c.onState(c.State())
}
