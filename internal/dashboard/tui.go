package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/srg/altimon/internal/activitylog"
	"github.com/srg/altimon/internal/history"
	"github.com/srg/altimon/internal/session"
	"github.com/srg/altimon/internal/telemetry"
)

// Commander is the part of a session the TUI drives.
type Commander interface {
	SendCommand(ctx context.Context, text string) error
	ClearLog(ctx context.Context) error
}

// SnapshotMsg delivers a new snapshot to the model.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// CommandResultMsg reports the outcome of a SendCommand or ClearLog call.
type CommandResultMsg struct {
	Err error
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	connectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	offlineStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle     = lipgloss.NewStyle().Bold(true)
	risingStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	fallingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	driftStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	panelStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
	sparkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Model is the Bubble Tea model of the live dashboard.
type Model struct {
	ctx     context.Context
	cmd     Commander
	updates <-chan session.Snapshot

	snap    session.Snapshot
	hasSnap bool
	input   textinput.Model
	lastErr error

	width  int
	height int
}

// NewModel creates a dashboard model fed from updates.
func NewModel(ctx context.Context, cmd Commander, updates <-chan session.Snapshot) *Model {
	ti := textinput.New()
	ti.Placeholder = "command"
	ti.Prompt = "> "
	ti.CharLimit = 128

	return &Model{
		ctx:     ctx,
		cmd:     cmd,
		updates: updates,
		input:   ti,
	}
}

// Snapshot returns the last snapshot the model has seen.
func (m *Model) Snapshot() (session.Snapshot, bool) {
	return m.snap, m.hasSnap
}

func waitForSnapshot(updates <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return nil
		}
		return SnapshotMsg{Snapshot: s}
	}
}

// Init starts listening for snapshots.
func (m *Model) Init() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return waitForSnapshot(m.updates)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.hasSnap = true
		return m, waitForSnapshot(m.updates)

	case CommandResultMsg:
		m.lastErr = msg.Err
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.input.Focused() {
			return m.updateInput(msg)
		}
		switch msg.Type {
		case tea.KeyTab, tea.KeyEnter:
			return m, m.input.Focus()
		case tea.KeyRunes:
			switch string(msg.Runes) {
			case "q":
				return m, tea.Quit
			case "c":
				return m, m.clearLog()
			case "i", "/":
				return m, m.input.Focus()
			}
		}
	}
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyTab:
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		return m, m.send(text)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) send(text string) tea.Cmd {
	if m.cmd == nil {
		return nil
	}
	c, ctx := m.cmd, m.ctx
	return func() tea.Msg {
		return CommandResultMsg{Err: c.SendCommand(ctx, text)}
	}
}

func (m *Model) clearLog() tea.Cmd {
	if m.cmd == nil {
		return nil
	}
	c, ctx := m.cmd, m.ctx
	return func() tea.Msg {
		return CommandResultMsg{Err: c.ClearLog(ctx)}
	}
}

// View renders the dashboard.
func (m *Model) View() string {
	if !m.hasSnap {
		return "  Connecting..."
	}
	s := m.snap

	width := m.width
	if width <= 0 {
		width = 80
	}

	readouts := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(readout("Altitude", FormatAltitude(s.Readout.Altitude))),
		panelStyle.Render(readout("Change", FormatChange(s.Readout.Change))),
		panelStyle.Render(readout("Motion", FormatMotion(s.Readout.Motion))),
		panelStyle.Render(readout("Lights", tuiLEDs(s.Indicators))),
	)

	sections := []string{
		m.statusBar(s),
		readouts,
		m.chart(s, width),
		m.logPane(s.Log),
		m.input.View(),
		m.footer(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func readout(label, value string) string {
	return labelStyle.Render(label) + "\n" + valueStyle.Render(value)
}

func tuiLEDs(ind telemetry.Indicators) string {
	light := func(on bool, style lipgloss.Style) string {
		if on {
			return style.Render(ledGlyph)
		}
		return dimStyle.Render(ledGlyph)
	}
	return light(ind.Rising, risingStyle) + " " +
		light(ind.Falling, fallingStyle) + " " +
		light(ind.Drift, driftStyle)
}

func (m *Model) statusBar(s session.Snapshot) string {
	state := offlineStyle.Render("Disconnected")
	if s.Connected {
		state = connectedStyle.Render("Connected")
		if !s.ConnectedAt.IsZero() {
			state += dimStyle.Render(" since " + humanize.Time(s.ConnectedAt))
		}
	}
	counters := dimStyle.Render(fmt.Sprintf("frames %s  decoded %s  ignored %s  dropped %s",
		humanize.Comma(s.Counters.Frames),
		humanize.Comma(s.Counters.Decoded),
		humanize.Comma(s.Counters.Ignored),
		humanize.Comma(s.Counters.Dropped)))

	return titleStyle.Render("altimon") + "  " + s.Address + "  " + state + "  " + counters
}

func (m *Model) chart(s session.Snapshot, width int) string {
	w := width - 4
	if w < 10 {
		w = 10
	}
	line := Sparkline(s.History, w)
	if line == "" {
		return panelStyle.Render(dimStyle.Render("no altitude readings yet"))
	}
	caption := dimStyle.Render(fmt.Sprintf("%d readings", len(s.History)))
	if lo, hi, ok := history.Range(s.History); ok {
		caption = dimStyle.Render(fmt.Sprintf("%d readings  min %s m  max %s m",
			len(s.History), FormatFixed(lo), FormatFixed(hi)))
	}
	return panelStyle.Render(sparkStyle.Render(line) + "\n" + caption)
}

func (m *Model) logPane(entries []activitylog.Entry) string {
	rows := 10
	if m.height > 0 {
		// status, readouts (4), chart (4), input, footer, borders
		rows = m.height - 14
	}
	if rows < 3 {
		rows = 3
	}
	if len(entries) > rows {
		entries = entries[len(entries)-rows:]
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		msg := e.Message
		if e.IsError {
			msg = errorStyle.Render(msg)
		}
		lines = append(lines, dimStyle.Render(FormatTime(e.At))+" "+msg)
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) footer() string {
	hints := "c clear log  i command  q quit"
	if m.input.Focused() {
		hints = "enter send  esc done"
	}
	if m.lastErr != nil {
		return errorStyle.Render(m.lastErr.Error()) + "  " + dimStyle.Render(hints)
	}
	return dimStyle.Render(hints)
}

// TUI runs the model as a Bubble Tea program and implements
// session.Display without ever blocking the session loop.
type TUI struct {
	program *tea.Program
	model   *Model
	updates chan session.Snapshot
}

// NewTUI creates a TUI that sends commands through cmd.
func NewTUI(ctx context.Context, cmd Commander, opts ...tea.ProgramOption) *TUI {
	updates := make(chan session.Snapshot, 1)
	model := NewModel(ctx, cmd, updates)
	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
		updates: updates,
	}
}

// Render implements session.Display. When the UI has not consumed the
// previous snapshot yet it is replaced by s.
func (t *TUI) Render(s session.Snapshot) {
	for {
		select {
		case t.updates <- s:
			return
		default:
		}
		select {
		case <-t.updates:
		default:
		}
	}
}

// Run blocks until the user quits.
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Quit asks the program to exit.
func (t *TUI) Quit() {
	t.program.Quit()
}
