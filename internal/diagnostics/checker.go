// Package diagnostics validates the backend connection and required
// filesystem paths at startup.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"caption-studio/internal/domain"
)

// HealthChecker probes backend reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Checker runs startup checks against settings and the backend.
type Checker struct {
	health     HealthChecker
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(health HealthChecker) *Checker {
	return &Checker{
		health:     health,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkBackend(ctx, settings.BackendURL),
		c.checkOutputDir(settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkBackend verifies the captioning backend answers its health endpoint.
func (c *Checker) checkBackend(ctx context.Context, backendURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backend",
		Name: "Captioning backend",
	}

	if strings.TrimSpace(backendURL) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Backend URL is empty."
		item.Hint = "Set the backend address in settings."
		return item
	}

	if err := c.health.Health(ctx); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Backend not reachable at %s: %v", backendURL, err)
		item.Hint = "Start the captioning backend or correct the URL in settings."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Backend reachable at %s", backendURL)
	return item
}

// checkOutputDir validates the artifact download directory is writable.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Choose a directory for rendered videos and subtitle files."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Check permissions for the output directory."
		return item
	}

	probe, err := c.createTemp(outputDir, ".caption-studio-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Check permissions for the output directory."
		return item
	}
	probePath := probe.Name()
	_ = probe.Close()
	_ = c.remove(probePath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Output directory writable: %s", filepath.Clean(outputDir))
	return item
}
