package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFileName is the active log file written by the server.
const LogFileName = "server.log"

// DefaultLogDir returns the directory where Temoa writes its logs,
// honoring XDG_STATE_HOME and falling back to ~/.local/state/temoa.
func DefaultLogDir() string {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "temoa")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "temoa", "logs")
	}
	return filepath.Join(home, ".local", "state", "temoa")
}

// DefaultLogPath returns the full path of the active log file.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), LogFileName)
}

// FindLogFile locates the log file to view. An explicit path wins when
// given; otherwise the default path is checked. Used by `temoa logs`
// before tailing.
func FindLogFile(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no log file found at %s (has the server been started?)", path)
		}
		return "", fmt.Errorf("checking log file: %w", err)
	}
	return path, nil
}

// EnsureLogDir creates the log directory if needed.
func EnsureLogDir() error {
	if err := os.MkdirAll(DefaultLogDir(), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	return nil
}
