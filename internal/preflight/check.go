package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/temoa-dev/temoa/internal/dense"
)

// Status is the outcome of a single preflight check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON emits the lowercase status name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(s.String()))
}

// Result holds the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Required bool   `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r Result) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs preflight validation against a vault.
type Checker struct {
	verbose     bool
	output      io.Writer
	ollamaHost  string
	ollamaModel string
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables detail lines in printed output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer for PrintResults.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithEmbedder sets the Ollama endpoint and model to probe. When unset,
// the embedder check reports against the built-in defaults.
func WithEmbedder(host, model string) Option {
	return func(c *Checker) {
		c.ollamaHost = host
		c.ollamaModel = model
	}
}

// New creates a Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every preflight check against the vault and returns the results.
func (c *Checker) RunAll(ctx context.Context, vaultPath string) []Result {
	results := []Result{
		c.CheckVaultPath(vaultPath),
		c.CheckIndexWrite(vaultPath),
		c.CheckDiskSpace(vaultPath),
		c.CheckMemory(),
		c.CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []Result) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus reduces the results to one of "failed",
// "ready_with_warnings", or "ready". A single critical failure fails
// the whole run; warnings and optional failures only demote it.
func (c *Checker) SummaryStatus(results []Result) string {
	summary := "ready"
	for _, r := range results {
		switch {
		case r.IsCritical():
			return "failed"
		case r.Status == StatusWarn, r.Status == StatusFail && !r.Required:
			summary = "ready_with_warnings"
		}
	}
	return summary
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []Result) {
	_, _ = fmt.Fprintln(c.output, "Temoa System Check")
	_, _ = fmt.Fprintln(c.output, "==================")
	_, _ = fmt.Fprintln(c.output)

	var warnings, errors []string
	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}

		switch {
		case r.IsCritical():
			errors = append(errors, r.Name+": "+r.Message)
		case r.Status == StatusWarn:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	c.printGroup("error(s)", errors)
	c.printGroup("warning(s)", warnings)
}

func (c *Checker) printGroup(label string, items []string) {
	if len(items) == 0 {
		return
	}
	_, _ = fmt.Fprintf(c.output, "\n%d %s:\n", len(items), label)
	for _, item := range items {
		_, _ = fmt.Fprintf(c.output, "  - %s\n", item)
	}
}

// CheckVaultPath verifies the vault exists and is a readable directory.
func (c *Checker) CheckVaultPath(vaultPath string) Result {
	result := Result{
		Name:     "vault_path",
		Required: true,
	}

	info, err := os.Stat(vaultPath)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot access vault: %v", err)
		return result
	}
	if !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", vaultPath)
		return result
	}
	if _, err := os.ReadDir(vaultPath); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read vault: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = vaultPath
	return result
}

// CheckIndexWrite verifies the index directory under the vault is writable.
func (c *Checker) CheckIndexWrite(vaultPath string) Result {
	result := Result{
		Name:     "index_write",
		Required: true,
	}

	indexDir := filepath.Join(vaultPath, dense.StoreDirName)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create index directory: %v", err)
		return result
	}

	testFile := filepath.Join(indexDir, ".preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	result.Details = fmt.Sprintf("Index directory: %s", indexDir)
	return result
}
