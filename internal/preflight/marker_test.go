package preflight

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarker_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	assert.True(t, NeedsCheck(tmpDir), "fresh dir should need a check")

	require.NoError(t, MarkPassed(tmpDir))
	assert.False(t, NeedsCheck(tmpDir), "marked dir should skip the check")
	assert.Less(t, MarkerAge(tmpDir), time.Second)

	require.NoError(t, ClearMarker(tmpDir))
	assert.True(t, NeedsCheck(tmpDir), "cleared dir should need a check again")
}

func TestMarkPassed_WritesTimestamp(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, MarkPassed(tmpDir))

	content, err := os.ReadFile(filepath.Join(tmpDir, MarkerFile))
	require.NoError(t, err)

	_, err = time.Parse(time.RFC3339, string(content))
	assert.NoError(t, err, "marker should hold an RFC3339 stamp")
}

func TestMarkPassed_CreatesIndexDir(t *testing.T) {
	indexDir := filepath.Join(t.TempDir(), "vault", ".temoa")

	require.NoError(t, MarkPassed(indexDir))

	assert.DirExists(t, indexDir)
	assert.FileExists(t, filepath.Join(indexDir, MarkerFile))
}

func TestClearMarker_MissingFileIsFine(t *testing.T) {
	assert.NoError(t, ClearMarker(t.TempDir()))
}

func TestMarkerAge_NoMarker(t *testing.T) {
	assert.Equal(t, time.Duration(0), MarkerAge(t.TempDir()))
}
