package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	m "refract.dev/pkg/refract/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	faintStyle    = lipgloss.NewStyle().Faint(true)
	helpStyle     = lipgloss.NewStyle().Faint(true).Italic(true)
)

// TUI implements UI using Bubble Tea for interactive display.
type TUI struct {
	output io.Writer
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// IsTTY reports whether the writer is an interactive terminal.
func IsTTY(output io.Writer) bool {
	f, ok := output.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start initializes the UI.
func (p *TUI) Start(ctx context.Context, _ ...StartOption) error {
	return ctx.Err()
}

// Close finalizes the UI.
func (p *TUI) Close(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// Wait blocks until the interactive view is dismissed. The paginated
// view runs inside DisplayReport, so there is nothing left to wait on.
func (p *TUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// DisplayConcurrencyInfo shows concurrency settings.
func (p *TUI) DisplayConcurrencyInfo(ctx context.Context, threads int, programs int) {
	if err := ctx.Err(); err != nil {
		return
	}

	fmt.Fprintf(p.output, "%s\n", faintStyle.Render(fmt.Sprintf("Mining %d program(s) with %d worker(s)", programs, threads)))
}

// DisplayEstimation shows the ranked candidates.
func (p *TUI) DisplayEstimation(ctx context.Context, candidates []m.Candidate, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		fmt.Fprintf(p.output, "%s\n", rejectedStyle.Render(fmt.Sprintf("estimation error: %v", err)))
		return err
	}

	lines := []string{titleStyle.Render("Candidate abstractions"), ""}

	for i, candidate := range candidates {
		lines = append(lines, fmt.Sprintf("  %2d. savings %d, %d occurrence(s), %d hole(s)  %s",
			i+1, candidate.Score, len(candidate.Template.Occurrences), len(candidate.Template.Holes),
			faintStyle.Render(truncate(string(candidate.Template.Sig), 48))))
	}

	if len(candidates) == 0 {
		lines = append(lines, faintStyle.Render("  no recurring structure worth extracting"))
	}

	return p.page(lines)
}

// DisplayReport shows the full run report, paginating when the content
// does not fit the terminal.
func (p *TUI) DisplayReport(ctx context.Context, report *m.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return p.page(reportLines(report))
}

func reportLines(report *m.Report) []string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Run %s", report.RunID)),
		faintStyle.Render(fmt.Sprintf("%d program(s), %d node(s), %d record(s) skipped",
			report.Corpus.Programs, report.Corpus.TotalNodes, report.Corpus.SkippedRecords)),
		"",
		titleStyle.Render("Abstractions"),
	}

	if len(report.Abstractions) == 0 {
		lines = append(lines, faintStyle.Render("  none"))
	}

	for _, abstraction := range report.Abstractions {
		style := acceptedStyle
		suffix := fmt.Sprintf("savings %d", abstraction.NetSavings)

		if abstraction.Status == m.AbstractionRejected {
			style = rejectedStyle
			suffix = abstraction.Reason
		}

		lines = append(lines, fmt.Sprintf("  %s (%s) %d occurrence(s), %s",
			style.Render(abstraction.Name), strings.Join(abstraction.Params, " "),
			abstraction.Occurrences, suffix))
		lines = append(lines, faintStyle.Render("    "+abstraction.Body))
	}

	lines = append(lines, "", titleStyle.Render("Programs"))

	for _, program := range report.Programs {
		style := acceptedStyle
		if program.Validation == m.ValidationFailed {
			style = rejectedStyle
		}

		lines = append(lines, fmt.Sprintf("  %s %d -> %d node(s), %s",
			program.ID, program.NodesBefore, program.NodesAfter,
			style.Render(string(program.Validation))))

		for _, diffLine := range strings.Split(strings.TrimRight(program.Diff, "\n"), "\n") {
			if diffLine != "" {
				lines = append(lines, faintStyle.Render("    "+diffLine))
			}
		}
	}

	for _, group := range report.CloneGroups {
		lines = append(lines, "", faintStyle.Render("Clone group: "+strings.Join(group, ", ")))
	}

	before, after := corpusNodeTotals(report)
	lines = append(lines, "",
		faintStyle.Render(fmt.Sprintf("Corpus: %d -> %d node(s) (%.1f%% smaller)", before, after, percentSmaller(before, after))),
		titleStyle.Render(fmt.Sprintf("Total savings: %d node(s)", report.TotalSavings)))

	return lines
}

// page prints short content directly and hands long content to a
// scrollable Bubble Tea program.
func (p *TUI) page(lines []string) error {
	model := newPagerModel(lines)

	if f, ok := p.output.(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			model.height = height
			model.width = width
		}
	}

	if !model.needsPagination() {
		_, err := fmt.Fprint(p.output, model.View())
		return err
	}

	program := tea.NewProgram(model, tea.WithOutput(p.output), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	return nil
}

// pagerModel is the Bubble Tea model scrolling a fixed set of lines.
type pagerModel struct {
	lines    []string
	height   int
	width    int
	offset   int
	quitting bool
}

func newPagerModel(lines []string) pagerModel {
	return pagerModel{lines: lines}
}

func (pm pagerModel) Init() tea.Cmd {
	return nil
}

func (pm pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		pm.height = msg.Height
		pm.width = msg.Width

		return pm, nil

	case tea.KeyMsg:
		return pm.handleKeyPress(msg)
	}

	return pm, nil
}

func (pm pagerModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	//nolint:exhaustive // We only handle specific navigation keys
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		pm.quitting = true
		return pm, tea.Quit
	default:
	}

	switch msg.String() {
	case "q":
		pm.quitting = true
		return pm, tea.Quit

	case "down", "j":
		pm.offset = clamp(pm.offset+1, 0, pm.maxOffset())

	case "up", "k":
		pm.offset = clamp(pm.offset-1, 0, pm.maxOffset())

	case "g", "home":
		pm.offset = 0

	case "G", "end":
		pm.offset = pm.maxOffset()

	case "d", "pgdown":
		pm.offset = clamp(pm.offset+pm.linesPerPage(), 0, pm.maxOffset())

	case "u", "pgup":
		pm.offset = clamp(pm.offset-pm.linesPerPage(), 0, pm.maxOffset())
	}

	return pm, nil
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}

	if value > high {
		return high
	}

	return value
}

func (pm pagerModel) linesPerPage() int {
	if pm.height == 0 {
		return 20
	}

	// Footer takes three lines: blank, position, key help.
	available := pm.height - 3
	if available < 1 {
		return 1
	}

	return available
}

func (pm pagerModel) maxOffset() int {
	max := len(pm.lines) - pm.linesPerPage()
	if max < 0 {
		return 0
	}

	return max
}

func (pm pagerModel) needsPagination() bool {
	return pm.height > 0 && len(pm.lines) > pm.linesPerPage()
}

func (pm pagerModel) View() string {
	var b strings.Builder

	lines := pm.lines
	paginated := pm.needsPagination()

	if paginated {
		end := clamp(pm.offset+pm.linesPerPage(), 0, len(lines))
		lines = lines[clamp(pm.offset, 0, end):end]
	}

	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if paginated {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s\n", faintStyle.Render(fmt.Sprintf("Lines %d-%d of %d",
			pm.offset+1, clamp(pm.offset+pm.linesPerPage(), 0, len(pm.lines)), len(pm.lines))))
		b.WriteString(helpStyle.Render("up/k: up | down/j: down | g: top | G: bottom | q: quit"))
		b.WriteByte('\n')
	}

	return b.String()
}
