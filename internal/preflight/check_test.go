package preflight

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/dense"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestResult_IsCritical(t *testing.T) {
	// Only a failed required check counts as critical.
	cases := map[string]struct {
		result Result
		want   bool
	}{
		"required pass": {Result{Status: StatusPass, Required: true}, false},
		"required fail": {Result{Status: StatusFail, Required: true}, true},
		"optional fail": {Result{Status: StatusFail, Required: false}, false},
		"required warn": {Result{Status: StatusWarn, Required: true}, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.result.IsCritical())
		})
	}
}

func TestChecker_NewWithOptions(t *testing.T) {
	buf := &bytes.Buffer{}
	checker := New(
		WithVerbose(true),
		WithOutput(buf),
		WithEmbedder("http://localhost:9999", "custom-model"),
	)

	assert.True(t, checker.verbose)
	assert.Equal(t, buf, checker.output)
	assert.Equal(t, "http://localhost:9999", checker.ollamaHost)
	assert.Equal(t, "custom-model", checker.ollamaModel)
}

func TestChecker_HasCriticalFailures(t *testing.T) {
	checker := New()
	pass := Result{Status: StatusPass, Required: true}

	assert.False(t, checker.HasCriticalFailures(nil))
	assert.False(t, checker.HasCriticalFailures([]Result{pass, pass}))
	assert.False(t, checker.HasCriticalFailures([]Result{pass, {Status: StatusWarn}}))
	assert.False(t, checker.HasCriticalFailures([]Result{pass, {Status: StatusFail}}),
		"optional failure is not critical")
	assert.True(t, checker.HasCriticalFailures([]Result{pass, {Status: StatusFail, Required: true}}))
}

func TestChecker_CheckVaultPath(t *testing.T) {
	checker := New()

	t.Run("existing directory passes", func(t *testing.T) {
		result := checker.CheckVaultPath(t.TempDir())
		assert.Equal(t, StatusPass, result.Status)
		assert.Equal(t, "vault_path", result.Name)
		assert.True(t, result.Required)
	})

	t.Run("missing path fails", func(t *testing.T) {
		result := checker.CheckVaultPath(filepath.Join(t.TempDir(), "nope"))
		assert.Equal(t, StatusFail, result.Status)
	})

	t.Run("regular file fails", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "note.md")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		result := checker.CheckVaultPath(file)
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "not a directory")
	})
}

func TestChecker_CheckIndexWrite_Writable(t *testing.T) {
	vault := t.TempDir()

	checker := New()
	result := checker.CheckIndexWrite(vault)

	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "index_write", result.Name)
	assert.True(t, result.Required)

	// The check creates the index directory as a side effect.
	info, err := os.Stat(filepath.Join(vault, dense.StoreDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestChecker_CheckIndexWrite_ReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("Skipping read-only test when running as root")
	}

	vault := t.TempDir()
	readOnlyDir := filepath.Join(vault, "readonly")
	require.NoError(t, os.Mkdir(readOnlyDir, 0o555))
	defer func() { _ = os.Chmod(readOnlyDir, 0o755) }()

	checker := New()
	result := checker.CheckIndexWrite(readOnlyDir)

	assert.Equal(t, StatusFail, result.Status)
}

func TestChecker_RunAll_ReturnsAllChecks(t *testing.T) {
	vault := t.TempDir()
	checker := New(WithEmbedder("http://127.0.0.1:1", "nomic-embed-text"))

	results := checker.RunAll(context.Background(), vault)
	assert.NotEmpty(t, results)

	checkNames := make(map[string]bool)
	for _, r := range results {
		checkNames[r.Name] = true
	}

	assert.True(t, checkNames["vault_path"], "vault_path check missing")
	assert.True(t, checkNames["index_write"], "index_write check missing")
	assert.True(t, checkNames["disk_space"], "disk_space check missing")
	assert.True(t, checkNames["memory"], "memory check missing")
	assert.True(t, checkNames["file_descriptors"], "file_descriptors check missing")
	assert.True(t, checkNames["embedder"], "embedder check missing")
}

func TestChecker_PrintResults(t *testing.T) {
	results := []Result{
		{Name: "disk_space", Status: StatusPass, Message: "50 GB free"},
		{Name: "embedder", Status: StatusWarn, Message: "Using static fallback"},
		{Name: "memory", Status: StatusFail, Message: "Insufficient", Required: true},
	}

	buf := &bytes.Buffer{}
	checker := New(WithOutput(buf))

	checker.PrintResults(results)

	output := buf.String()
	assert.Contains(t, output, "Temoa System Check")
	assert.Contains(t, output, "[PASS]")
	assert.Contains(t, output, "[WARN]")
	assert.Contains(t, output, "[FAIL]")
	assert.Contains(t, output, "disk_space")
	assert.Contains(t, output, "Status: FAILED")
}

func TestChecker_SummaryStatus(t *testing.T) {
	checker := New()
	pass := Result{Status: StatusPass}

	assert.Equal(t, "ready", checker.SummaryStatus([]Result{pass, pass}))
	assert.Equal(t, "ready_with_warnings",
		checker.SummaryStatus([]Result{pass, {Status: StatusWarn}}))
	assert.Equal(t, "ready_with_warnings",
		checker.SummaryStatus([]Result{pass, {Status: StatusFail}}),
		"optional failure only demotes")
	assert.Equal(t, "failed",
		checker.SummaryStatus([]Result{pass, {Status: StatusFail, Required: true}}))
}
