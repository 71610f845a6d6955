// Package gateway implements the HTTP client for the captioning backend:
// style catalog, media upload, transcription, and artifact rendering.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"caption-studio/internal/domain"
	"caption-studio/internal/logging"
)

const (
	// jsonCallTimeout bounds the catalog and health calls; upload,
	// transcription, and rendering are dominated by media size and model
	// latency and get a much longer window.
	jsonCallTimeout  = 15 * time.Second
	mediaCallTimeout = 30 * time.Minute

	maxJSONBody = 32 << 20
)

// Client talks to one captioning backend instance.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
		log:        logging.WithComponent("gateway"),
	}
}

// SetBaseURL repoints the client, applying to subsequent calls only.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

// base returns the current base URL.
func (c *Client) base() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// FetchStyles retrieves the caption style catalog.
func (c *Client) FetchStyles(ctx context.Context) ([]domain.CaptionStyle, error) {
	ctx, cancel := context.WithTimeout(ctx, jsonCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/styles", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch styles: new request: %w", err)
	}

	var payload styleListPayload
	if err := c.doJSON(req, "fetch styles", &payload); err != nil {
		return nil, err
	}

	styles := make([]domain.CaptionStyle, 0, len(payload.Styles))
	for _, p := range payload.Styles {
		style, err := toDomainStyle(p)
		if err != nil {
			return nil, fmt.Errorf("fetch styles: %w", err)
		}
		styles = append(styles, style)
	}

	c.log.Debug().Int("count", len(styles)).Msg("fetched style catalog")
	return styles, nil
}

// Upload sends the file as multipart form data and returns the media asset
// the backend assigned to it.
func (c *Client) Upload(ctx context.Context, filePath string) (domain.MediaAsset, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return domain.MediaAsset{}, fmt.Errorf("upload: stat input file: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return domain.MediaAsset{}, fmt.Errorf("upload: open input file: %w", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(ctx, mediaCallTimeout)
	defer cancel()

	// Stream the multipart body so large videos are not buffered in memory.
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/upload", pr)
	if err != nil {
		return domain.MediaAsset{}, fmt.Errorf("upload: new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var payload uploadPayload
	if err := c.doJSON(req, "upload", &payload); err != nil {
		return domain.MediaAsset{}, err
	}
	if strings.TrimSpace(payload.MediaID) == "" {
		return domain.MediaAsset{}, fmt.Errorf("upload: backend response is missing media_id")
	}

	c.log.Info().
		Str("mediaId", payload.MediaID).
		Int64("sizeBytes", info.Size()).
		Msg("uploaded media")

	return domain.MediaAsset{
		ID:               payload.MediaID,
		OriginalFileName: filepath.Base(filePath),
		SizeBytes:        info.Size(),
		RemotePath:       payload.Path,
	}, nil
}

// Transcribe requests a transcript for an uploaded media ID. The language
// hint is omitted when empty or "auto".
func (c *Client) Transcribe(ctx context.Context, mediaID, language string) (domain.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, mediaCallTimeout)
	defer cancel()

	form := url.Values{}
	if lang := strings.TrimSpace(language); lang != "" && lang != "auto" {
		form.Set("language", lang)
	}

	endpoint := c.base() + "/transcribe/" + url.PathEscape(mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("transcribe: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload transcribePayload
	if err := c.doJSON(req, "transcribe", &payload); err != nil {
		return domain.Transcript{}, err
	}

	transcript, err := toDomainTranscript(payload.Transcript)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}

	c.log.Info().
		Str("mediaId", mediaID).
		Int("segments", len(transcript.Segments)).
		Msg("transcription complete")
	return transcript, nil
}

// Render submits a render request and returns the binary artifact.
func (c *Client) Render(ctx context.Context, renderReq domain.RenderRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, mediaCallTimeout)
	defer cancel()

	body, err := json.Marshal(renderReq)
	if err != nil {
		return nil, fmt.Errorf("render: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("render: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Op: "render", StatusCode: resp.StatusCode, Body: string(excerpt)}
	}

	artifact, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("render: read artifact: %w", err)
	}

	c.log.Info().
		Str("mediaId", renderReq.MediaID).
		Str("styleId", renderReq.StyleID).
		Bool("subtitleOnly", renderReq.SubtitleOnly).
		Int("artifactBytes", len(artifact)).
		Msg("render complete")
	return artifact, nil
}

// Health checks backend reachability via the health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, jsonCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/health", nil)
	if err != nil {
		return fmt.Errorf("health: new request: %w", err)
	}

	var payload healthPayload
	if err := c.doJSON(req, "health", &payload); err != nil {
		return err
	}
	if payload.Status != "ok" {
		return fmt.Errorf("health: backend reported status %q", payload.Status)
	}
	return nil
}

// doJSON executes a request and decodes a 2xx JSON body into dst.
func (c *Client) doJSON(req *http.Request, op string, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Str("op", op).Err(err).Msg("backend request failed")
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("backend returned error status")
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(excerpt)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
