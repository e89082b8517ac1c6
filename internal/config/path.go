package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default data directory based on the host OS.
// It prefers standard locations when available and falls back to a dotdir
// in the user's home directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	// XDG (Linux) override
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "tracebus")
	}

	// Common Linux/Unix system dir
	if isDir("/var/lib") {
		return "/var/lib/tracebus"
	}

	// macOS: ~/Library/Application Support/Tracebus
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "Tracebus")
	}

	// Windows: %USERPROFILE%/AppData/Local/Tracebus
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "Tracebus")
	}

	// Fallback: ~/.tracebus
	return filepath.Join(homeDir, ".tracebus")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// DefaultSocketPath returns where the control socket lives when not configured.
func DefaultSocketPath(name string) string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" && isDir(xdg) {
		return filepath.Join(xdg, name)
	}
	if isDir("/run") {
		return filepath.Join("/run", name)
	}
	return filepath.Join(os.TempDir(), name)
}
