package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile is written to the index directory once preflight passes,
// so repeated index runs skip the checks. Its content is the pass time
// in RFC 3339.
const MarkerFile = ".preflight-passed"

func markerPath(indexDir string) string {
	return filepath.Join(indexDir, MarkerFile)
}

// NeedsCheck reports whether preflight should run: true when no marker
// exists under the index directory.
func NeedsCheck(indexDir string) bool {
	_, err := os.Stat(markerPath(indexDir))
	return os.IsNotExist(err)
}

// MarkPassed records a successful preflight run.
func MarkPassed(indexDir string) error {
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	stamp := time.Now().Format(time.RFC3339)
	return os.WriteFile(markerPath(indexDir), []byte(stamp), 0o644)
}

// ClearMarker removes the marker, forcing a re-check on the next run.
// A missing marker is not an error.
func ClearMarker(indexDir string) error {
	if err := os.Remove(markerPath(indexDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago preflight last passed, or zero when
// the marker is missing or unreadable.
func MarkerAge(indexDir string) time.Duration {
	content, err := os.ReadFile(markerPath(indexDir))
	if err != nil {
		return 0
	}
	passed, err := time.Parse(time.RFC3339, string(content))
	if err != nil {
		return 0
	}
	return time.Since(passed)
}
