package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"caption-studio/internal/domain"
	"caption-studio/internal/segments"
	"caption-studio/internal/styles"
)

// fakeGateway records call counts and delegates to injected behavior.
type fakeGateway struct {
	mu              sync.Mutex
	uploadCalls     int32
	transcribeCalls int32
	renderCalls     int32

	fetchStyles func(ctx context.Context) ([]domain.CaptionStyle, error)
	upload      func(ctx context.Context, filePath string) (domain.MediaAsset, error)
	transcribe  func(ctx context.Context, mediaID, language string) (domain.Transcript, error)
	render      func(ctx context.Context, req domain.RenderRequest) ([]byte, error)
}

func (g *fakeGateway) FetchStyles(ctx context.Context) ([]domain.CaptionStyle, error) {
	if g.fetchStyles == nil {
		return nil, nil
	}
	return g.fetchStyles(ctx)
}

func (g *fakeGateway) Upload(ctx context.Context, filePath string) (domain.MediaAsset, error) {
	atomic.AddInt32(&g.uploadCalls, 1)
	if g.upload == nil {
		return domain.MediaAsset{ID: "media-1"}, nil
	}
	return g.upload(ctx, filePath)
}

func (g *fakeGateway) Transcribe(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
	atomic.AddInt32(&g.transcribeCalls, 1)
	if g.transcribe == nil {
		return domain.Transcript{}, nil
	}
	return g.transcribe(ctx, mediaID, language)
}

func (g *fakeGateway) Render(ctx context.Context, req domain.RenderRequest) ([]byte, error) {
	atomic.AddInt32(&g.renderCalls, 1)
	if g.render == nil {
		return []byte("artifact"), nil
	}
	return g.render(ctx, req)
}

// fakeSaver records saved artifacts in memory.
type fakeSaver struct {
	mu       sync.Mutex
	names    []string
	contents [][]byte
	err      error
}

func (s *fakeSaver) Save(fileName string, artifact []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.names = append(s.names, fileName)
	s.contents = append(s.contents, artifact)
	return "/out/" + fileName, nil
}

func newTestController(gw *fakeGateway, saver *fakeSaver) (*Controller, *segments.Store, *styles.Catalog) {
	segStore := segments.NewStore()
	catalog := styles.NewCatalog()
	return NewController(gw, saver, segStore, catalog), segStore, catalog
}

func selectTestFile(t *testing.T, c *Controller) {
	t.Helper()
	err := c.SelectFile(domain.FileSelection{Path: "/videos/clip.mp4", Name: "clip.mp4", SizeBytes: 1024})
	if err != nil {
		t.Fatalf("SelectFile() error = %v", err)
	}
}

func transcriptOf(texts ...string) domain.Transcript {
	segs := make([]domain.CaptionSegment, len(texts))
	for i, text := range texts {
		segs[i] = domain.CaptionSegment{Start: float64(i), End: float64(i) + 1, Text: text}
	}
	return domain.Transcript{Language: "en", Segments: segs}
}

// TestUploadAndTranscribeSuccess checks the happy path: both calls issued in
// order, segments match the transcript 1:1, state derives ready.
func TestUploadAndTranscribeSuccess(t *testing.T) {
	gw := &fakeGateway{
		upload: func(ctx context.Context, filePath string) (domain.MediaAsset, error) {
			if filePath != "/videos/clip.mp4" {
				t.Fatalf("upload path = %q", filePath)
			}
			return domain.MediaAsset{ID: "media-1", OriginalFileName: "clip.mp4"}, nil
		},
		transcribe: func(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
			if mediaID != "media-1" {
				t.Fatalf("transcribe media id = %q", mediaID)
			}
			if language != "en" {
				t.Fatalf("transcribe language = %q", language)
			}
			return transcriptOf("one", "two", "three"), nil
		},
	}
	c, segStore, _ := newTestController(gw, &fakeSaver{})
	selectTestFile(t, c)

	if err := c.UploadAndTranscribe(context.Background(), "en"); err != nil {
		t.Fatalf("UploadAndTranscribe() error = %v", err)
	}

	got := segStore.Segments()
	if len(got) != 3 {
		t.Fatalf("segment count = %d, want 3", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if got[i].Text != want {
			t.Fatalf("segment %d text = %q, want %q", i, got[i].Text, want)
		}
	}
	if state := c.State(); state != domain.StateReady {
		t.Fatalf("state = %s, want ready", state)
	}
	snap := c.Snapshot()
	if snap.Asset == nil || snap.Asset.ID != "media-1" {
		t.Fatalf("snapshot asset = %+v", snap.Asset)
	}
	if snap.TranscriptLanguage != "en" {
		t.Fatalf("transcript language = %q", snap.TranscriptLanguage)
	}
}

// TestUploadAndTranscribePreconditions covers missing selection and the
// duplicate-upload guard for an already transcribed selection.
func TestUploadAndTranscribePreconditions(t *testing.T) {
	gw := &fakeGateway{
		transcribe: func(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
			return transcriptOf("one"), nil
		},
	}
	c, _, _ := newTestController(gw, &fakeSaver{})

	if err := c.UploadAndTranscribe(context.Background(), ""); !errors.Is(err, ErrNoFileSelected) {
		t.Fatalf("error = %v, want ErrNoFileSelected", err)
	}

	selectTestFile(t, c)
	if err := c.UploadAndTranscribe(context.Background(), ""); err != nil {
		t.Fatalf("first run error = %v", err)
	}

	if err := c.UploadAndTranscribe(context.Background(), ""); !errors.Is(err, ErrAlreadyTranscribed) {
		t.Fatalf("error = %v, want ErrAlreadyTranscribed", err)
	}
	if n := atomic.LoadInt32(&gw.uploadCalls); n != 1 {
		t.Fatalf("upload calls = %d, want 1", n)
	}
}

// TestUploadFailureRevertsToFileSelected checks that an upload failure
// surfaces as an upload step error and retains no media asset.
func TestUploadFailureRevertsToFileSelected(t *testing.T) {
	gw := &fakeGateway{
		upload: func(ctx context.Context, filePath string) (domain.MediaAsset, error) {
			return domain.MediaAsset{}, fmt.Errorf("connection refused")
		},
	}
	c, segStore, _ := newTestController(gw, &fakeSaver{})
	selectTestFile(t, c)

	err := c.UploadAndTranscribe(context.Background(), "")
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepUpload {
		t.Fatalf("error = %v, want upload StepError", err)
	}
	if state := c.State(); state != domain.StateFileSelected {
		t.Fatalf("state = %s, want file_selected", state)
	}
	if snap := c.Snapshot(); snap.Asset != nil {
		t.Fatalf("asset retained after failure: %+v", snap.Asset)
	}
	if n := atomic.LoadInt32(&gw.transcribeCalls); n != 0 {
		t.Fatalf("transcribe calls = %d, want 0", n)
	}
	if segStore.Len() != 0 {
		t.Fatalf("segments retained after failure: %d", segStore.Len())
	}
}

// TestTranscribeFailureDiscardsMediaID checks transcription failure drops
// the obtained media ID so a retry re-uploads from scratch.
func TestTranscribeFailureDiscardsMediaID(t *testing.T) {
	fail := true
	gw := &fakeGateway{
		transcribe: func(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
			if fail {
				return domain.Transcript{}, fmt.Errorf("model crashed")
			}
			return transcriptOf("one"), nil
		},
	}
	c, _, _ := newTestController(gw, &fakeSaver{})
	selectTestFile(t, c)

	err := c.UploadAndTranscribe(context.Background(), "")
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepTranscribe {
		t.Fatalf("error = %v, want transcribe StepError", err)
	}
	if state := c.State(); state != domain.StateFileSelected {
		t.Fatalf("state = %s, want file_selected", state)
	}
	if snap := c.Snapshot(); snap.Asset != nil {
		t.Fatalf("media id retained after transcribe failure: %+v", snap.Asset)
	}

	fail = false
	if err := c.UploadAndTranscribe(context.Background(), ""); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if n := atomic.LoadInt32(&gw.uploadCalls); n != 2 {
		t.Fatalf("upload calls = %d, want 2 (retry re-uploads)", n)
	}
}

// TestUploadAndTranscribeRejectsConcurrent verifies the single-in-flight
// guard: a second invocation is rejected without a second upload request.
func TestUploadAndTranscribeRejectsConcurrent(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		upload: func(ctx context.Context, filePath string) (domain.MediaAsset, error) {
			close(started)
			<-release
			return domain.MediaAsset{ID: "media-1"}, nil
		},
		transcribe: func(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
			return transcriptOf("one"), nil
		},
	}
	c, _, _ := newTestController(gw, &fakeSaver{})
	selectTestFile(t, c)

	done := make(chan error, 1)
	go func() {
		done <- c.UploadAndTranscribe(context.Background(), "")
	}()

	<-started
	if err := c.UploadAndTranscribe(context.Background(), ""); !errors.Is(err, ErrTranscribeInFlight) {
		t.Fatalf("second call error = %v, want ErrTranscribeInFlight", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first call error = %v", err)
	}
	if n := atomic.LoadInt32(&gw.uploadCalls); n != 1 {
		t.Fatalf("upload calls = %d, want 1", n)
	}
}

// TestSelectFileClearsTranscript checks a new selection clears the media
// asset and segments before any new work starts.
func TestSelectFileClearsTranscript(t *testing.T) {
	gw := &fakeGateway{
		transcribe: func(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
			return transcriptOf("one", "two"), nil
		},
	}
	c, segStore, _ := newTestController(gw, &fakeSaver{})
	selectTestFile(t, c)
	if err := c.UploadAndTranscribe(context.Background(), ""); err != nil {
		t.Fatalf("UploadAndTranscribe() error = %v", err)
	}

	if err := c.SelectFile(domain.FileSelection{Path: "/videos/other.mp4", Name: "other.mp4"}); err != nil {
		t.Fatalf("SelectFile() error = %v", err)
	}

	if segStore.Len() != 0 {
		t.Fatalf("segments not cleared: %d", segStore.Len())
	}
	snap := c.Snapshot()
	if snap.Asset != nil {
		t.Fatalf("asset not cleared: %+v", snap.Asset)
	}
	if snap.State != domain.StateFileSelected {
		t.Fatalf("state = %s, want file_selected", snap.State)
	}
}

// TestSelectFileSupersedesInFlightResult checks a transcription that
// completes after a new selection does not resurrect the old transcript.
func TestSelectFileSupersedesInFlightResult(t *testing.T) {
	uploading := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		upload: func(ctx context.Context, filePath string) (domain.MediaAsset, error) {
			close(uploading)
			<-release
			return domain.MediaAsset{ID: "stale-media"}, nil
		},
		transcribe: func(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
			return transcriptOf("stale"), nil
		},
	}
	c, segStore, _ := newTestController(gw, &fakeSaver{})
	selectTestFile(t, c)

	done := make(chan error, 1)
	go func() {
		done <- c.UploadAndTranscribe(context.Background(), "")
	}()

	<-uploading
	if err := c.SelectFile(domain.FileSelection{Path: "/videos/new.mp4", Name: "new.mp4"}); err != nil {
		t.Fatalf("SelectFile() error = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight operation error = %v", err)
	}

	if segStore.Len() != 0 {
		t.Fatalf("stale segments committed: %d", segStore.Len())
	}
	snap := c.Snapshot()
	if snap.Asset != nil {
		t.Fatalf("stale asset committed: %+v", snap.Asset)
	}
	if snap.Selection == nil || snap.Selection.Name != "new.mp4" {
		t.Fatalf("selection = %+v, want new.mp4", snap.Selection)
	}
}

// readyController returns a controller with a transcribed asset and styles.
func readyController(t *testing.T, gw *fakeGateway, saver *fakeSaver) *Controller {
	t.Helper()
	if gw.transcribe == nil {
		gw.transcribe = func(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
			return transcriptOf("one"), nil
		}
	}
	if gw.upload == nil {
		gw.upload = func(ctx context.Context, filePath string) (domain.MediaAsset, error) {
			return domain.MediaAsset{ID: "abc123"}, nil
		}
	}
	c, _, catalog := newTestController(gw, saver)
	catalog.Populate([]domain.CaptionStyle{{ID: "neon"}, {ID: "pastel"}})
	selectTestFile(t, c)
	if err := c.UploadAndTranscribe(context.Background(), ""); err != nil {
		t.Fatalf("UploadAndTranscribe() error = %v", err)
	}
	return c
}

// TestRenderSavesVideoArtifact checks the burn-in path and file naming.
func TestRenderSavesVideoArtifact(t *testing.T) {
	var gotReq domain.RenderRequest
	gw := &fakeGateway{
		render: func(ctx context.Context, req domain.RenderRequest) ([]byte, error) {
			gotReq = req
			return []byte("mp4-bytes"), nil
		},
	}
	saver := &fakeSaver{}
	c := readyController(t, gw, saver)

	path, err := c.Render(context.Background(), RenderOptions{SubtitleOnly: false})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if path != "/out/abc123_neon.mp4" {
		t.Fatalf("artifact path = %q", path)
	}
	if gotReq.MediaID != "abc123" || gotReq.StyleID != "neon" || gotReq.SubtitleOnly {
		t.Fatalf("render request = %+v", gotReq)
	}
	if len(saver.names) != 1 || saver.names[0] != "abc123_neon.mp4" {
		t.Fatalf("saved names = %v", saver.names)
	}
	if string(saver.contents[0]) != "mp4-bytes" {
		t.Fatalf("saved content = %q", saver.contents[0])
	}
	if state := c.State(); state != domain.StateReady {
		t.Fatalf("state after render = %s, want ready", state)
	}
}

// TestRenderSubtitleOnlyNaming checks the subtitle artifact name.
func TestRenderSubtitleOnlyNaming(t *testing.T) {
	saver := &fakeSaver{}
	c := readyController(t, &fakeGateway{}, saver)

	path, err := c.Render(context.Background(), RenderOptions{SubtitleOnly: true})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if path != "/out/abc123.srt" {
		t.Fatalf("artifact path = %q", path)
	}
}

// TestRenderNotReadyIssuesNoCall checks the precondition guard fires before
// any network activity.
func TestRenderNotReadyIssuesNoCall(t *testing.T) {
	gw := &fakeGateway{}
	c, _, _ := newTestController(gw, &fakeSaver{})

	if _, err := c.Render(context.Background(), RenderOptions{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("error = %v, want ErrNotReady", err)
	}
	if n := atomic.LoadInt32(&gw.renderCalls); n != 0 {
		t.Fatalf("render calls = %d, want 0", n)
	}
}

// TestRenderNotReadyWithoutStyle checks media alone is not enough.
func TestRenderNotReadyWithoutStyle(t *testing.T) {
	gw := &fakeGateway{}
	c, _, _ := newTestController(gw, &fakeSaver{})
	selectTestFile(t, c)
	if err := c.UploadAndTranscribe(context.Background(), ""); err != nil {
		t.Fatalf("UploadAndTranscribe() error = %v", err)
	}

	if _, err := c.Render(context.Background(), RenderOptions{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("error = %v, want ErrNotReady", err)
	}
}

// TestRenderFailureReturnsToReady checks a backend failure clears the busy
// flag so the user can retry immediately.
func TestRenderFailureReturnsToReady(t *testing.T) {
	gw := &fakeGateway{
		render: func(ctx context.Context, req domain.RenderRequest) ([]byte, error) {
			return nil, fmt.Errorf("encoder exploded")
		},
	}
	c := readyController(t, gw, &fakeSaver{})

	_, err := c.Render(context.Background(), RenderOptions{})
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepRender {
		t.Fatalf("error = %v, want render StepError", err)
	}
	if state := c.State(); state != domain.StateReady {
		t.Fatalf("state = %s, want ready", state)
	}

	// Retry succeeds once the backend recovers.
	gw.render = nil
	if _, err := c.Render(context.Background(), RenderOptions{}); err != nil {
		t.Fatalf("retry error = %v", err)
	}
}

// TestRenderRejectsConcurrent verifies the single-in-flight render guard.
func TestRenderRejectsConcurrent(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		render: func(ctx context.Context, req domain.RenderRequest) ([]byte, error) {
			close(started)
			<-release
			return []byte("artifact"), nil
		},
	}
	c := readyController(t, gw, &fakeSaver{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Render(context.Background(), RenderOptions{})
		done <- err
	}()

	<-started
	if state := c.State(); state != domain.StateRendering {
		t.Fatalf("state = %s, want rendering", state)
	}
	if _, err := c.Render(context.Background(), RenderOptions{}); !errors.Is(err, ErrRenderInFlight) {
		t.Fatalf("second render error = %v, want ErrRenderInFlight", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first render error = %v", err)
	}
	if n := atomic.LoadInt32(&gw.renderCalls); n != 1 {
		t.Fatalf("render calls = %d, want 1", n)
	}
}

// TestEditSegmentTextDelegates checks edits reach the store and range
// errors pass through.
func TestEditSegmentTextDelegates(t *testing.T) {
	c := readyController(t, &fakeGateway{}, &fakeSaver{})

	if err := c.EditSegmentText(0, "edited"); err != nil {
		t.Fatalf("EditSegmentText() error = %v", err)
	}
	if err := c.EditSegmentText(5, "x"); !errors.Is(err, segments.ErrIndexOutOfRange) {
		t.Fatalf("error = %v, want ErrIndexOutOfRange", err)
	}
}

// TestLoadStylesPopulatesCatalog checks the one-shot catalog fetch and
// default selection.
func TestLoadStylesPopulatesCatalog(t *testing.T) {
	gw := &fakeGateway{
		fetchStyles: func(ctx context.Context) ([]domain.CaptionStyle, error) {
			return []domain.CaptionStyle{{ID: "neon"}, {ID: "pastel"}}, nil
		},
	}
	c, _, catalog := newTestController(gw, &fakeSaver{})

	if err := c.LoadStyles(context.Background()); err != nil {
		t.Fatalf("LoadStyles() error = %v", err)
	}
	if got := catalog.SelectedID(); got != "neon" {
		t.Fatalf("selected = %q, want neon", got)
	}
	if err := c.SelectStyle("ghost"); !errors.Is(err, styles.ErrUnknownStyle) {
		t.Fatalf("SelectStyle(ghost) error = %v, want ErrUnknownStyle", err)
	}
}

// TestStateTransitionsDuringOperation observes the derived states while an
// operation progresses through its phases.
func TestStateTransitionsDuringOperation(t *testing.T) {
	uploadStarted := make(chan struct{})
	uploadRelease := make(chan struct{})
	transcribeStarted := make(chan struct{})
	transcribeRelease := make(chan struct{})
	gw := &fakeGateway{
		upload: func(ctx context.Context, filePath string) (domain.MediaAsset, error) {
			close(uploadStarted)
			<-uploadRelease
			return domain.MediaAsset{ID: "media-1"}, nil
		},
		transcribe: func(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
			close(transcribeStarted)
			<-transcribeRelease
			return transcriptOf("one"), nil
		},
	}
	c, _, _ := newTestController(gw, &fakeSaver{})

	if state := c.State(); state != domain.StateIdle {
		t.Fatalf("initial state = %s, want idle", state)
	}
	selectTestFile(t, c)
	if state := c.State(); state != domain.StateFileSelected {
		t.Fatalf("state = %s, want file_selected", state)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.UploadAndTranscribe(context.Background(), "")
	}()

	<-uploadStarted
	if state := c.State(); state != domain.StateUploading {
		t.Fatalf("state = %s, want uploading", state)
	}
	close(uploadRelease)

	<-transcribeStarted
	waitForState(t, c, domain.StateTranscribing)
	close(transcribeRelease)

	if err := <-done; err != nil {
		t.Fatalf("UploadAndTranscribe() error = %v", err)
	}
	if state := c.State(); state != domain.StateReady {
		t.Fatalf("final state = %s, want ready", state)
	}
}

// waitForState polls briefly for a state that is set right after an
// unsynchronized release point.
func waitForState(t *testing.T, c *Controller, want domain.PipelineState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}
