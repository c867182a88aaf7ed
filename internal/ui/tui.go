package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer drives a live bubbletea view of an indexing run.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexModel
	tracker *ProgressTracker
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. Fails when the output is not a
// terminal; callers fall back to the plain renderer.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexModel(tracker, cfg.VaultDir)

	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// send forwards a message to the running program, if any. Callers hold
// the mutex.
func (r *TUIRenderer) send(msg tea.Msg) {
	if r.program != nil {
		r.program.Send(msg)
	}
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.CurrentFile)
	r.send(progressUpdateMsg(event))
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	r.send(errorMsg(event))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)
	r.send(completeMsg(stats))
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	if r.program != nil {
		r.program.Quit()

		// Bounded wait so an unresponsive program cannot hang Ctrl+C.
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}

	return nil
}

type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// indexStages lists the pipeline stages in display order with their
// short labels for the stage header.
var indexStages = []struct {
	stage Stage
	label string
}{
	{StageScanning, "Scan"},
	{StageChunking, "Chunk"},
	{StageEmbedding, "Embed"},
	{StageSaving, "Save"},
}

// indexModel is the bubbletea model behind the indexing view.
type indexModel struct {
	tracker     *ProgressTracker
	width       int
	height      int
	quitting    bool
	complete    bool
	stats       CompletionStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
	vaultDir    string
}

func newIndexModel(tracker *ProgressTracker, vaultDir string) *indexModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorViolet))

	p := progress.New(
		progress.WithSolidFill(ColorViolet),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &indexModel{
		tracker:     tracker,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
		height:      24,
		vaultDir:    vaultDir,
	}
}

// Init implements tea.Model.
func (m *indexModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *indexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progressBar.Width = max(msg.Width-20, 20)

	case progressUpdateMsg, errorMsg:
		// State lives in the tracker; the message only wakes the view.
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *indexModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	contentWidth := max(m.width-4, 40)

	blocks := []string{
		m.renderStages(),
		m.renderProgress() + "\n" + m.renderSpeed(),
		m.renderSparkline(contentWidth),
	}
	if file := m.tracker.Stats().CurrentFile; file != "" {
		blocks = append(blocks, m.styles.Dim.Render(truncatePath(file, contentWidth-2)))
	}

	divider := "\n" + m.styles.Border.Render(strings.Repeat("─", contentWidth)) + "\n"
	content := strings.Join(blocks, divider)

	title := "Temoa"
	if m.vaultDir != "" {
		title = fmt.Sprintf("Temoa • %s", m.vaultDir)
	}

	return m.wrapInPanel(title, content, contentWidth) + "\n" + m.renderStatusBar()
}

// renderStages draws the pipeline with the active stage spinning.
func (m *indexModel) renderStages() string {
	current := m.tracker.Stats().Stage

	parts := make([]string, 0, len(indexStages))
	for _, s := range indexStages {
		var cell string
		switch {
		case s.stage < current:
			cell = m.styles.Success.Render("● " + s.label)
		case s.stage == current:
			cell = m.styles.Active.Render(m.spinner.View() + " " + s.label)
		default:
			cell = m.styles.Dim.Render("○ " + s.label)
		}
		parts = append(parts, cell)
	}

	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *indexModel) renderProgress() string {
	stats := m.tracker.Stats()

	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...\n%s",
			m.spinner.View(),
			stats.Stage.String(),
			m.styles.Dim.Render("Preparing..."))
	}

	unit := stats.Stage.unit()
	if unit == "" {
		unit = "items"
	}

	return fmt.Sprintf("%s  %s\n%s",
		m.progressBar.ViewAs(stats.Progress),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100)),
		m.styles.Label.Render(fmt.Sprintf("%d / %d %s", stats.Current, stats.Total, unit)))
}

func (m *indexModel) renderSpeed() string {
	stats := m.tracker.Stats()

	speedStr := fmt.Sprintf("Speed: %.0f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speedStr += fmt.Sprintf(" (avg: %.0f, peak: %.0f)", stats.Speed.Avg, stats.Speed.Peak)
	}

	parts := []string{m.styles.Speed.Render(speedStr)}
	if e := stats.ETA; e > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(e)))
	}

	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *indexModel) renderSparkline(width int) string {
	spark := m.tracker.RenderSparkline(max(width-10, 10))
	return m.styles.Sparkline.Render(spark) + " " + m.styles.Dim.Render("throughput ─")
}

func (m *indexModel) wrapInPanel(title, content string, width int) string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(content),
	)
}

func (m *indexModel) renderStatusBar() string {
	stats := m.tracker.Stats()
	sep := m.styles.Dim.Render("  │  ")

	var parts []string
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}
	if len(parts) == 0 {
		return m.styles.Dim.Render("q to quit")
	}

	return strings.Join(parts, sep) + sep + m.styles.Dim.Render("q to quit")
}

func (m *indexModel) renderComplete() string {
	contentWidth := max(m.width-4, 40)

	type row struct{ label, value string }
	rows := []row{
		{"Notes", fmt.Sprintf("%d", m.stats.Notes)},
		{"Chunks", fmt.Sprintf("%d", m.stats.Chunks)},
		{"Duration", formatDuration(m.stats.Duration)},
	}
	if m.stats.New+m.stats.Modified+m.stats.Deleted > 0 {
		rows = append(rows, row{
			"Changes",
			fmt.Sprintf("%d new, %d modified, %d deleted", m.stats.New, m.stats.Modified, m.stats.Deleted),
		})
	}

	lines := []string{m.styles.Success.Render("✓ Indexing Complete"), ""}
	for _, r := range rows {
		label := m.styles.Label.Render(fmt.Sprintf("%-9s", r.label+":"))
		lines = append(lines, label+" "+m.styles.Active.Render(r.value))
	}

	if avg := m.tracker.SpeedStats().Avg; avg > 0 {
		label := m.styles.Label.Render(fmt.Sprintf("%-9s", "Speed:"))
		lines = append(lines, label+" "+m.styles.Speed.Render(fmt.Sprintf("%.0f chunks/sec", avg)))
	}

	if m.stats.Errors > 0 || m.stats.Warnings > 0 {
		lines = append(lines, "")
		if m.stats.Errors > 0 {
			lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", m.stats.Errors)))
		}
		if m.stats.Warnings > 0 {
			lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.stats.Warnings)))
		}
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorGreen)).
		Padding(1, 2).
		Width(contentWidth)

	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration renders a duration the way a human reads one, dropping
// zero tail components ("2m", "1m 30s", "1h 1m").
func formatDuration(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		if secs%60 == 0 {
			return fmt.Sprintf("%dm", secs/60)
		}
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

// truncatePath shortens a note path to fit maxLen by dropping leading
// directories; the filename always survives.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		candidate := ".../" + strings.Join(parts[i:], "/")
		if len(candidate) <= maxLen {
			return candidate
		}
	}

	// Even ".../filename" does not fit; keep the filename's tail.
	name := parts[len(parts)-1]
	if maxLen < 4 {
		return "..."
	}
	if len(name)+3 > maxLen {
		return "..." + name[len(name)-maxLen+3:]
	}
	return name
}

var _ Renderer = (*TUIRenderer)(nil)
