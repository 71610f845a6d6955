// Package bootstrap wires configuration, the pipeline controller, and the
// desktop runtime into one application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"caption-studio/internal/config"
	"caption-studio/internal/diagnostics"
	"caption-studio/internal/domain"
	"caption-studio/internal/gateway"
	"caption-studio/internal/logging"
	"caption-studio/internal/pipeline"
	"caption-studio/internal/render"
	"caption-studio/internal/segments"
	"caption-studio/internal/styles"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const diagnosticsTimeout = 10 * time.Second

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// backendClient is the full surface the app needs from the gateway.
type backendClient interface {
	pipeline.Gateway
	diagnostics.HealthChecker
	SetBaseURL(string)
}

// App wires settings, the pipeline controller, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Controller  *pipeline.Controller
	Segments    *segments.Store
	Styles      *styles.Catalog
	Diagnostics domain.DiagnosticReport

	gw      backendClient
	checker *diagnostics.Checker
	events  *pipeline.EventBus
	log     zerolog.Logger

	mu         sync.Mutex
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".caption-studio", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	gw := gateway.NewClient(settings.BackendURL)
	segStore := segments.NewStore()
	catalog := styles.NewCatalog()

	app := &App{
		Settings: settings,
		Store:    store,
		Segments: segStore,
		Styles:   catalog,
		gw:       gw,
		checker:  diagnostics.NewChecker(gw),
		events:   pipeline.NewEventBus(1000),
		log:      logging.WithComponent("app"),
	}

	app.Controller = pipeline.NewController(gw, &settingsSaver{app: app}, segStore, catalog)
	app.Controller.SetStateListener(app.publishState)

	ctx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
	defer cancel()
	app.Diagnostics = app.checker.Run(ctx, settings)

	return app, nil
}

// settingsSaver saves artifacts into whatever output directory the current
// settings name, so a settings change applies to the next render.
type settingsSaver struct {
	app *App
}

// Save delegates to a render saver bound to the configured output dir.
func (s *settingsSaver) Save(fileName string, artifact []byte) (string, error) {
	return render.NewSaver(s.app.currentSettings().OutputDir).Save(fileName, artifact)
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	return wails.Run(&options.App{
		Title:  "Caption Studio",
		Width:  1180,
		Height: 780,
		AssetServer: &assetserver.Options{
			Handler: http.FileServer(http.Dir("./frontend")),
		},
		OnStartup: a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the runtime context and loads the style catalog once.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	go func() {
		loadCtx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
		defer cancel()
		if err := a.Controller.LoadStyles(loadCtx); err != nil {
			a.log.Warn().Err(err).Msg("style catalog load failed")
			a.publishEvent(pipeline.Event{
				Type:    pipeline.EventTypeError,
				Message: fmt.Sprintf("load styles: %v", err),
			})
			return
		}
		a.publishEvent(pipeline.Event{
			Type:    pipeline.EventTypeStatus,
			Message: fmt.Sprintf("Loaded %d caption styles", len(a.Styles.Styles())),
		})
	}()
}

// PickInputFile opens a native file dialog and records the selection.
func (a *App) PickInputFile() (pipeline.Snapshot, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return pipeline.Snapshot{}, err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return pipeline.Snapshot{}, err
	}

	path = strings.TrimSpace(path)
	if path == "" {
		// Dialog dismissed; keep current state.
		return a.Controller.Snapshot(), nil
	}
	return a.SelectFile(path)
}

// PickOutputDirectory opens a native directory picker for artifact downloads.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// SelectFile records a local file path (dialog or drag-and-drop) as the new
// selection, superseding any uploaded media and transcript.
func (a *App) SelectFile(path string) (pipeline.Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return pipeline.Snapshot{}, fmt.Errorf("access selected file: %w", err)
	}
	if info.IsDir() {
		return pipeline.Snapshot{}, fmt.Errorf("selected path is a directory: %s", path)
	}

	sel := domain.FileSelection{
		Path:      path,
		Name:      filepath.Base(path),
		SizeBytes: info.Size(),
	}
	if err := a.Controller.SelectFile(sel); err != nil {
		return pipeline.Snapshot{}, err
	}
	return a.Controller.Snapshot(), nil
}

// StartUploadAndTranscribe uploads the selected file and requests its
// transcription as one asynchronous operation. Rejected immediately when a
// precondition fails; progress and outcome arrive as events.
func (a *App) StartUploadAndTranscribe() (string, error) {
	snap := a.Controller.Snapshot()
	switch {
	case snap.Transcribing:
		return "", pipeline.ErrTranscribeInFlight
	case snap.Selection == nil:
		return "", pipeline.ErrNoFileSelected
	case snap.Asset != nil:
		return "", pipeline.ErrAlreadyTranscribed
	}

	settings := a.currentSettings()
	opID := uuid.NewString()

	go func() {
		err := a.Controller.UploadAndTranscribe(context.Background(), settings.Language)
		if err != nil {
			a.publishEvent(pipeline.Event{
				OpID:    opID,
				Type:    pipeline.EventTypeError,
				State:   a.Controller.State(),
				Message: err.Error(),
			})
			return
		}

		a.publishEvent(pipeline.Event{
			OpID:         opID,
			Type:         pipeline.EventTypeStatus,
			State:        a.Controller.State(),
			Message:      "Transcription complete",
			SegmentCount: a.Segments.Len(),
		})
	}()

	return opID, nil
}

// EditSegmentText replaces one caption line's text.
func (a *App) EditSegmentText(index int, text string) error {
	return a.Controller.EditSegmentText(index, text)
}

// GetSegments returns the current (possibly edited) caption sequence.
func (a *App) GetSegments() []domain.CaptionSegment {
	return a.Segments.Segments()
}

// GetStyles returns the loaded style catalog.
func (a *App) GetStyles() []domain.CaptionStyle {
	return a.Styles.Styles()
}

// SelectStyle changes the active caption style.
func (a *App) SelectStyle(id string) error {
	return a.Controller.SelectStyle(id)
}

// RenderVideo requests a burned-in video artifact asynchronously.
func (a *App) RenderVideo() (string, error) {
	return a.startRender(pipeline.RenderOptions{SubtitleOnly: false})
}

// DownloadSubtitles requests the subtitle-file artifact asynchronously.
func (a *App) DownloadSubtitles() (string, error) {
	return a.startRender(pipeline.RenderOptions{SubtitleOnly: true})
}

// startRender validates preconditions, then runs the render in the
// background, publishing the saved artifact path on success.
func (a *App) startRender(opts pipeline.RenderOptions) (string, error) {
	snap := a.Controller.Snapshot()
	switch {
	case snap.Rendering:
		return "", pipeline.ErrRenderInFlight
	case snap.Asset == nil || snap.SelectedStyleID == "":
		return "", pipeline.ErrNotReady
	}

	opID := uuid.NewString()
	go func() {
		path, err := a.Controller.Render(context.Background(), opts)
		if err != nil {
			a.publishEvent(pipeline.Event{
				OpID:    opID,
				Type:    pipeline.EventTypeError,
				State:   a.Controller.State(),
				Message: err.Error(),
			})
			return
		}

		a.publishEvent(pipeline.Event{
			OpID:         opID,
			Type:         pipeline.EventTypeArtifact,
			State:        a.Controller.State(),
			Message:      "Artifact saved",
			ArtifactPath: path,
		})
	}()

	return opID, nil
}

// ExportEditedCaptions writes the current edited sequence as an SRT file
// next to the rendered artifacts and returns the written path. Render output
// reflects the backend's stored transcript; this export is how local edits
// leave the app.
func (a *App) ExportEditedCaptions() (string, error) {
	snap := a.Controller.Snapshot()
	if snap.Asset == nil || snap.SegmentCount == 0 {
		return "", pipeline.ErrNotReady
	}

	doc := segments.ComposeSRT(a.Segments.Segments())
	saver := render.NewSaver(a.currentSettings().OutputDir)
	return saver.Save(snap.Asset.ID+"_edited.srt", []byte(doc))
}

// CopyTranscriptToClipboard places the edited transcript text on the system
// clipboard, one line per segment.
func (a *App) CopyTranscriptToClipboard() error {
	segs := a.Segments.Segments()
	if len(segs) == 0 {
		return fmt.Errorf("no transcript loaded")
	}

	lines := make([]string, 0, len(segs))
	for _, seg := range segs {
		lines = append(lines, strings.TrimSpace(seg.Text))
	}
	return clipboard.WriteAll(strings.Join(lines, "\n"))
}

// CurrentState returns the derived pipeline state.
func (a *App) CurrentState() domain.PipelineState {
	return a.Controller.State()
}

// Snapshot returns the full controller view for UI affordances.
func (a *App) Snapshot() pipeline.Snapshot {
	return a.Controller.Snapshot()
}

// Events returns all events with sequence greater than sinceSeq.
func (a *App) Events(sinceSeq int64) []pipeline.Event {
	return a.events.Since(sinceSeq)
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, repoints the gateway, and
// refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.mu.Unlock()
	a.gw.SetBaseURL(normalized.BackendURL)

	ctx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
	defer cancel()
	a.Diagnostics = a.checker.Run(ctx, normalized)

	return normalized, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns the checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
	defer cancel()

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()
	a.Diagnostics = a.checker.Run(ctx, settings)
	return a.Diagnostics, nil
}

// OpenOutputFolder opens the artifact directory in the platform file manager.
func (a *App) OpenOutputFolder() error {
	target := a.currentSettings().OutputDir
	if target == "" {
		return fmt.Errorf("output directory is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}
	return openInFileManager(openPath)
}

// publishState sends a status event for each controller state transition.
func (a *App) publishState(state domain.PipelineState) {
	a.publishEvent(pipeline.Event{
		Type:  pipeline.EventTypeStatus,
		State: state,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event pipeline.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "pipeline:event", published)
	}
}

// currentSettings returns a copy of the cached settings.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

// runtimeContext returns the Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and applies defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.BackendURL = strings.TrimRight(strings.TrimSpace(settings.BackendURL), "/")
	settings.Language = strings.TrimSpace(settings.Language)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)

	defaults := config.DefaultSettings()
	if settings.BackendURL == "" {
		settings.BackendURL = defaults.BackendURL
	}
	if settings.Language == "" {
		settings.Language = "auto"
	}
	if settings.OutputDir == "" {
		settings.OutputDir = defaults.OutputDir
	}
	return settings
}

// openInFileManager launches the platform file explorer for the given path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
