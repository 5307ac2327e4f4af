package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"proctop/internal/models"
	"proctop/internal/monitor"
	"proctop/internal/system"
)

const (
	tickInterval = 300 * time.Millisecond

	highCPUThreshold     = 50.0
	veryHighCPUThreshold = 80.0

	maxSearchLength = 50
)

type tickMsg time.Time

type dataMsg struct {
	procs []models.ProcessRecord
	stats models.SystemStats
}

type threadsMsg struct {
	pid     int32
	name    string
	threads []models.ThreadRecord
	err     error
}

type exeMsg struct {
	pid  int32
	name string
	path string
	err  error
}

type killDoneMsg struct {
	pid  int32
	name string
	err  error
}

type dialogKind int

const (
	dialogNone dialogKind = iota
	dialogThreads
	dialogExe
	dialogKillConfirm
	dialogKillResult
)

type App struct {
	manager *monitor.Manager
	sys     *system.Reader

	procs []models.ProcessRecord
	stats models.SystemStats

	width       int
	height      int
	selectedRow int

	sortBy  models.SortKey
	reverse bool

	searching bool
	search    textinput.Model

	dialog      dialogKind
	dialogTitle string
	dialogLines []string
	killTarget  models.ProcessRecord

	cpuProgress progress.Model
	memProgress progress.Model
}

func NewApp(mgr *monitor.Manager, sys *system.Reader) *App {
	search := textinput.New()
	search.Prompt = "Search processes: "
	search.CharLimit = maxSearchLength

	return &App{
		manager:     mgr,
		sys:         sys,
		sortBy:      models.SortCPU,
		reverse:     true,
		search:      search,
		cpuProgress: progress.New(progress.WithDefaultGradient()),
		memProgress: progress.New(progress.WithDefaultGradient()),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.refresh(),
		a.tick(),
	)
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh queries the data layer once with the current sort, filter and
// viewport, and reads the system header stats.
func (a *App) refresh() tea.Cmd {
	start, end := a.rowWindow()
	opts := monitor.QueryOptions{
		SortBy:  a.sortBy,
		Reverse: a.reverse,
		Visible: models.VisibleRange{Start: start, End: end},
		Search:  a.search.Value(),
	}
	return func() tea.Msg {
		return dataMsg{
			procs: a.manager.Query(opts),
			stats: a.sys.Stats(),
		}
	}
}

// rowWindow is the slice of view rows currently on screen, derived from the
// selection the same way rendering does it.
func (a *App) rowWindow() (int, int) {
	rows := a.visibleRows()
	start := 0
	if a.selectedRow >= rows {
		start = a.selectedRow - rows + 1
	}
	return start, start + rows
}

func (a *App) visibleRows() int {
	// Title, header stats, sort line, table header and help each take a
	// line or two around the table.
	rows := a.height - 9
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (a *App) showThreads(p models.ProcessRecord) tea.Cmd {
	return func() tea.Msg {
		threads, err := a.manager.Threads(p.PID)
		return threadsMsg{pid: p.PID, name: p.Name, threads: threads, err: err}
	}
}

func (a *App) showExePath(p models.ProcessRecord) tea.Cmd {
	return func() tea.Msg {
		path, err := a.manager.ExePath(p.PID)
		return exeMsg{pid: p.PID, name: p.Name, path: path, err: err}
	}
}

func (a *App) killProcess(p models.ProcessRecord) tea.Cmd {
	return func() tea.Msg {
		err := a.manager.Kill(context.Background(), p.PID, true)
		// The table must reflect reality on the next query, success or not.
		_ = a.manager.ForceRefresh()
		return killDoneMsg{pid: p.PID, name: p.Name, err: err}
	}
}

func (a *App) selected() (models.ProcessRecord, bool) {
	if a.selectedRow < 0 || a.selectedRow >= len(a.procs) {
		return models.ProcessRecord{}, false
	}
	return a.procs[a.selectedRow], true
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		barWidth := min(40, max(10, a.width/2-10))
		a.cpuProgress.Width = barWidth
		a.memProgress.Width = barWidth
		return a, nil

	case tickMsg:
		return a, tea.Batch(a.refresh(), a.tick())

	case dataMsg:
		a.procs = msg.procs
		a.stats = msg.stats
		if a.selectedRow >= len(a.procs) {
			a.selectedRow = max(0, len(a.procs)-1)
		}
		return a, nil

	case threadsMsg:
		a.dialog = dialogThreads
		a.dialogTitle = "Threads"
		a.dialogLines = threadLines(msg)
		return a, nil

	case exeMsg:
		a.dialog = dialogExe
		a.dialogTitle = "Executable Path"
		a.dialogLines = exeLines(msg)
		return a, nil

	case killDoneMsg:
		a.dialog = dialogKillResult
		a.dialogTitle = "Result"
		if msg.err != nil {
			a.dialogLines = []string{
				ErrorStyle.Render("Failed to kill process:"),
				"",
				msg.err.Error(),
			}
		} else {
			a.dialogLines = []string{SuccessStyle.Render("Process terminated successfully")}
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.dialog != dialogNone {
		return a.handleDialogKey(msg)
	}

	if a.searching {
		switch msg.String() {
		case "esc":
			a.searching = false
			a.search.Reset()
			return a, a.refresh()
		case "enter":
			a.searching = false
			a.search.Blur()
			return a, a.refresh()
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			return a, tea.Batch(cmd, a.refresh())
		}
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return a, tea.Quit

	case "up", "k":
		if a.selectedRow > 0 {
			a.selectedRow--
		}
	case "down", "j":
		if a.selectedRow < len(a.procs)-1 {
			a.selectedRow++
		}
	case "pgup":
		a.selectedRow = max(0, a.selectedRow-a.visibleRows())
	case "pgdown":
		a.selectedRow = min(max(0, len(a.procs)-1), a.selectedRow+a.visibleRows())
	case "home":
		a.selectedRow = 0
	case "end":
		a.selectedRow = max(0, len(a.procs)-1)

	case "c":
		a.setSort(models.SortCPU)
	case "m":
		a.setSort(models.SortMemory)
	case "p":
		a.setSort(models.SortPID)
	case "n":
		a.setSort(models.SortName)
	case "r":
		a.reverse = !a.reverse
		return a, a.refresh()

	case "/":
		a.searching = true
		a.search.Focus()
		return a, textinput.Blink
	case "esc":
		if a.search.Value() != "" {
			a.search.Reset()
			return a, a.refresh()
		}

	case "t":
		if p, ok := a.selected(); ok {
			return a, a.showThreads(p)
		}
	case "e":
		if p, ok := a.selected(); ok {
			return a, a.showExePath(p)
		}
	case "K":
		if p, ok := a.selected(); ok {
			a.killTarget = p
			a.dialog = dialogKillConfirm
			a.dialogTitle = "Confirm Kill"
			a.dialogLines = []string{
				fmt.Sprintf("Kill process: %s?", p.Name),
				fmt.Sprintf("PID: %d (children included)", p.PID),
				"",
				"Press 'y' to confirm, any other key to cancel",
			}
		}
	}

	return a, nil
}

func (a *App) handleDialogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.dialog == dialogKillConfirm {
		a.dialog = dialogNone
		if msg.String() == "y" || msg.String() == "Y" {
			return a, a.killProcess(a.killTarget)
		}
		return a, nil
	}
	// Any key dismisses an informational dialog.
	a.dialog = dialogNone
	return a, nil
}

func (a *App) setSort(key models.SortKey) {
	if a.sortBy == key {
		a.reverse = !a.reverse
	} else {
		a.sortBy = key
		a.reverse = key != models.SortPID && key != models.SortName
	}
}

func threadLines(msg threadsMsg) []string {
	if msg.err != nil {
		return []string{ErrorStyle.Render("Error: " + msg.err.Error())}
	}
	if len(msg.threads) == 0 {
		return []string{"No threads found"}
	}
	lines := []string{fmt.Sprintf("Process: %s (PID: %d)", msg.name, msg.pid), ""}
	for _, th := range msg.threads {
		lines = append(lines, fmt.Sprintf("  Thread %7d  User: %.2fs  System: %.2fs",
			th.ThreadID, th.UserTime, th.SystemTime))
	}
	return lines
}

func exeLines(msg exeMsg) []string {
	if msg.err != nil {
		return []string{ErrorStyle.Render("Error: " + msg.err.Error())}
	}
	if msg.path == "" {
		return []string{"Executable path not available"}
	}
	return []string{
		fmt.Sprintf("Process: %s", msg.name),
		fmt.Sprintf("PID: %d", msg.pid),
		"",
		"Executable path:",
		msg.path,
	}
}

func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	title := TitleStyle.Width(a.width).Render("proctop")
	header := a.renderHeader()
	status := a.renderStatusLine()
	table := a.renderTable()
	help := HelpStyle.Render("↑/↓ k/j: navigate • c/m/p/n: sort • r: reverse • /: search • t: threads • e: exe path • K: kill • q: quit")

	if a.dialog != dialogNone {
		table = a.renderDialog()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		header,
		status,
		table,
		help,
	)
}

func (a *App) renderHeader() string {
	cpu := fmt.Sprintf("CPU %5.1f%% (%d cores)", a.stats.CPU.Usage, a.stats.CPU.Cores)
	mem := fmt.Sprintf("MEM %5.1f%% (%.1f/%.1f GB)",
		a.stats.Memory.UsagePercent,
		float64(a.stats.Memory.Used)/(1024*1024*1024),
		float64(a.stats.Memory.Total)/(1024*1024*1024))

	left := lipgloss.JoinVertical(lipgloss.Left,
		LabelStyle.Render(cpu),
		a.cpuProgress.ViewAs(a.stats.CPU.Usage/100.0),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		LabelStyle.Render(mem),
		a.memProgress.ViewAs(a.stats.Memory.UsagePercent/100.0),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "   ", right)
}

func (a *App) renderStatusLine() string {
	dir := "↓"
	if !a.reverse {
		dir = "↑"
	}
	parts := []string{
		fmt.Sprintf("Sort: %s %s", a.sortBy, dir),
		fmt.Sprintf("Processes: %d", len(a.procs)),
		fmt.Sprintf("Uptime: %s", a.stats.Uptime),
	}
	line := HeaderStyle.Render(strings.Join(parts, "  •  "))

	if a.searching || a.search.Value() != "" {
		return line + "\n" + SearchBarStyle.Render(a.search.View())
	}
	return line
}

func (a *App) renderTable() string {
	rows := a.visibleRows()
	startIdx, endIdx := a.rowWindow()
	if endIdx > len(a.procs) {
		endIdx = len(a.procs)
	}

	nameWidth := 30
	header := fmt.Sprintf("%8s  %s  %8s   %10s   %-12s",
		"PID", pad("NAME", nameWidth), "CPU%", "MEM", "STATUS")

	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(header))
	b.WriteString("\n")

	for i := startIdx; i < endIdx; i++ {
		p := a.procs[i]
		row := fmt.Sprintf("%8d  %s  %7.1f%s   %9s%s   %-12s",
			p.PID,
			pad(truncate(p.Name, nameWidth), nameWidth),
			p.CPUPercent, trendCell(p.CPUTrend),
			formatMemory(p.MemoryMB), trendCell(p.MemoryTrend),
			truncate(p.Status, 12))

		b.WriteString(a.rowStyle(i, p).Render(row))
		b.WriteString("\n")
	}

	if len(a.procs) > rows {
		b.WriteString(HelpStyle.Render(fmt.Sprintf("Showing %d-%d of %d processes",
			startIdx+1, endIdx, len(a.procs))))
	}
	return b.String()
}

func trendCell(t models.Trend) string {
	if ind := t.Indicator(); ind != "" {
		return ind
	}
	return " "
}

func (a *App) rowStyle(i int, p models.ProcessRecord) lipgloss.Style {
	switch {
	case i == a.selectedRow:
		return SelectedRowStyle
	case p.IsNew:
		return NewProcessStyle
	case p.CPUPercent >= veryHighCPUThreshold:
		return VeryHighCPUStyle
	case p.CPUPercent >= highCPUThreshold:
		return HighCPUStyle
	case i%2 == 0:
		return RowStyle
	default:
		return AltRowStyle
	}
}

func (a *App) renderDialog() string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{DialogTitleStyle.Render(a.dialogTitle), ""}, a.dialogLines...)...)
	box := DialogStyle.Render(body)
	return lipgloss.Place(a.width, a.visibleRows()+1, lipgloss.Center, lipgloss.Center, box)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
