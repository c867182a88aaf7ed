package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/preflight"
)

// doctorOptions holds CLI flags for doctor.
type doctorOptions struct {
	vault      string
	verbose    bool
	jsonOut    bool
	configPath string
}

func newDoctorCmd() *cobra.Command {
	var opts doctorOptions

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics against a vault.

Checks:
  - Vault path exists and is readable
  - Index directory under the vault is writable
  - Disk space on the vault filesystem (100MB minimum)
  - Memory availability (1GB minimum)
  - File descriptor limits (1024 minimum)
  - Ollama endpoint and embedding model

The embedder check is a non-critical warning. When Ollama is not
reachable, indexing falls back to static embeddings.

Examples:
  temoa doctor
  temoa doctor --vault notes --verbose
  temoa doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.vault, "vault", "", "Vault name or path (default from config)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a config file (merged over the user config)")

	return cmd
}

func runDoctor(cmd *cobra.Command, opts doctorOptions) error {
	ctx := cmd.Context()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	vaultPath, err := resolveVault(cfg, opts.vault)
	if err != nil {
		return err
	}

	checker := preflight.New(
		preflight.WithVerbose(opts.verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithEmbedder(cfg.Embedding.OllamaHost, cfg.Embedding.Model),
	)

	results := checker.RunAll(ctx, vaultPath)

	if opts.jsonOut {
		if err := printDoctorJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)

		indexDir := filepath.Join(vaultPath, dense.StoreDirName)
		if !preflight.NeedsCheck(indexDir) {
			if age := preflight.MarkerAge(indexDir); age > 0 {
				cmd.Printf("\nLast successful check: %s ago\n", formatAge(age))
			}
		}
	}

	if checker.HasCriticalFailures(results) {
		return errors.New("system check failed")
	}

	// Record the pass so 'temoa index' skips the silent re-check.
	indexDir := filepath.Join(vaultPath, dense.StoreDirName)
	if err := preflight.MarkPassed(indexDir); err != nil && !opts.jsonOut {
		cmd.Printf("note: could not record check result: %v\n", err)
	}

	return nil
}

// doctorReport is the JSON output shape for doctor.
type doctorReport struct {
	Status   string             `json:"status"`
	Checks   []preflight.Result `json:"checks"`
	Warnings []string           `json:"warnings,omitempty"`
	Errors   []string           `json:"errors,omitempty"`
}

func printDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.Result) error {
	report := doctorReport{
		Status: checker.SummaryStatus(results),
		Checks: results,
	}

	for _, r := range results {
		if r.IsCritical() {
			report.Errors = append(report.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			report.Warnings = append(report.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// formatAge renders a marker age in the largest sensible unit.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return fmt.Sprintf("%d minute(s)", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hour(s)", int(d.Hours()))
	default:
		return fmt.Sprintf("%d day(s)", int(d.Hours()/24))
	}
}
