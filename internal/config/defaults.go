package config

import (
	"os"
	"path/filepath"

	"caption-studio/internal/domain"
)

// DefaultBackendURL is the address of a locally running captioning backend.
const DefaultBackendURL = "http://127.0.0.1:8000"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		BackendURL: DefaultBackendURL,
		Language:   "auto",
		OutputDir:  filepath.Join(homeDir, "Documents", "Captions"),
	}
}
