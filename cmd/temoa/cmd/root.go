// Package cmd provides the CLI commands for Temoa.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/logging"
	"github.com/temoa-dev/temoa/internal/profiling"
	"github.com/temoa-dev/temoa/pkg/version"
)

// NewRootCmd creates the root command for the temoa CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "temoa",
		Short: "Local semantic search for Markdown note vaults",
		Long: `Temoa indexes Markdown note vaults and serves hybrid search
(BM25 + embeddings) over HTTP and MCP.

Everything runs locally. Embeddings come from Ollama when it is
reachable and fall back to a deterministic static embedder, so search
keeps working without a model server.

Start with 'temoa index --vault ~/notes', then 'temoa serve' or
'temoa search "that thing you half remember"'.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("temoa version {{.Version}}\n")

	prof := &profileHooks{profiler: profiling.New()}
	cmd.PersistentFlags().StringVar(&prof.cpuPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&prof.memPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&prof.tracePath, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentPreRunE = prof.start
	cmd.PersistentPostRunE = prof.stop

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// profileHooks starts and stops pprof collection around a command when
// the profiling flags are set.
type profileHooks struct {
	cpuPath   string
	memPath   string
	tracePath string

	profiler  *profiling.Profiler
	stopCPU   func()
	stopTrace func()
}

func (p *profileHooks) start(_ *cobra.Command, _ []string) error {
	if p.cpuPath != "" {
		stop, err := p.profiler.StartCPU(p.cpuPath)
		if err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
		p.stopCPU = stop
	}

	if p.tracePath != "" {
		stop, err := p.profiler.StartTrace(p.tracePath)
		if err != nil {
			if p.stopCPU != nil {
				p.stopCPU()
			}
			return fmt.Errorf("start trace: %w", err)
		}
		p.stopTrace = stop
	}

	return nil
}

func (p *profileHooks) stop(_ *cobra.Command, _ []string) error {
	if p.stopCPU != nil {
		p.stopCPU()
		p.stopCPU = nil
	}
	if p.stopTrace != nil {
		p.stopTrace()
		p.stopTrace = nil
	}

	if p.memPath != "" {
		if err := p.profiler.WriteHeap(p.memPath); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
	}

	return nil
}

// setupFileLogging initializes file-only logging for one-shot commands,
// keeping stdout clean for results. Setup failures are swallowed: the
// command still works without a log file.
func setupFileLogging(level string) func() {
	logCfg := logging.DefaultConfig()
	if level != "" {
		logCfg.Level = level
	}
	logCfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// resolveVault maps the --vault flag to an absolute vault path. A
// configured vault name wins; anything else is treated as a directory
// path. An empty flag falls through to default_vault.
func resolveVault(cfg *config.Config, flag string) (string, error) {
	if flag == "" {
		return cfg.VaultPath("")
	}
	if _, ok := cfg.Vaults[flag]; ok {
		return cfg.VaultPath(flag)
	}

	abs, err := config.ExpandPath(flag)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("vault %q is neither a configured vault nor a directory (known vaults: %v)", flag, cfg.VaultNames())
	}
	if !info.IsDir() {
		return "", fmt.Errorf("vault path %s is not a directory", abs)
	}
	return abs, nil
}
