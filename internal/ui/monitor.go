package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ubxrelay/internal/protocol"
	"github.com/muurk/ubxrelay/internal/relay"
)

// DefaultRefresh is how often the monitor polls relay statistics
const DefaultRefresh = 500 * time.Millisecond

// MonitorConfig describes what the dashboard shows
type MonitorConfig struct {
	Input   string             // e.g., "/dev/ttyACM0 @ 38400"
	Output  string             // e.g., "same port"
	Stats   func() relay.Stats // Polled every Refresh
	Clients func() int         // Websocket subscribers; nil hides the row
	Refresh time.Duration
	OnQuit  func() // Called once when the user quits
}

// Message types for the dashboard
type (
	recordMsg  struct{ msg protocol.Message }
	tickMsg    time.Time
	stoppedMsg struct{ err error }
)

type monitorKeyMap struct {
	Clear key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Clear, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Clear, k.Quit}}
}

var monitorKeys = monitorKeyMap{
	Clear: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear records")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

// MonitorModel is the Bubble Tea model of the live relay dashboard
type MonitorModel struct {
	config MonitorConfig

	Width   int
	Spinner spinner.Model
	Bar     progress.Model
	Help    help.Model

	PVT     *protocol.NavPVT
	PosECEF *protocol.NavPosECEF
	VelECEF *protocol.NavVelECEF
	TimeUTC *protocol.NavTimeUTC
	Sol     *protocol.NavSol
	Records int

	Stats   relay.Stats
	Clients int
	Stopped bool
	Err     error

	quitting bool
}

// NewMonitorModel creates the dashboard model
func NewMonitorModel(config MonitorConfig) MonitorModel {
	if config.Refresh <= 0 {
		config.Refresh = DefaultRefresh
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30

	return MonitorModel{
		config:  config,
		Width:   GetTerminalWidth(),
		Spinner: s,
		Bar:     bar,
		Help:    help.New(),
	}
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.config.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, m.tick())
}

// Update implements tea.Model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, monitorKeys.Quit):
			if !m.quitting {
				m.quitting = true
				if m.config.OnQuit != nil {
					m.config.OnQuit()
				}
			}
			return m, tea.Quit
		case key.Matches(msg, monitorKeys.Clear):
			m.PVT, m.PosECEF, m.VelECEF, m.TimeUTC, m.Sol = nil, nil, nil, nil, nil
			m.Records = 0
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.Help.Width = m.Width
		return m, nil

	case recordMsg:
		m.Records++
		switch r := msg.msg.(type) {
		case *protocol.NavPVT:
			m.PVT = r
		case *protocol.NavPosECEF:
			m.PosECEF = r
		case *protocol.NavVelECEF:
			m.VelECEF = r
		case *protocol.NavTimeUTC:
			m.TimeUTC = r
		case *protocol.NavSol:
			m.Sol = r
		}
		return m, nil

	case tickMsg:
		m.poll()
		return m, m.tick()

	case stoppedMsg:
		m.poll()
		m.Stopped = true
		m.Err = msg.err
		return m, nil

	case spinner.TickMsg:
		if m.Stopped {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *MonitorModel) poll() {
	if m.config.Stats != nil {
		m.Stats = m.config.Stats()
	}
	if m.config.Clients != nil {
		m.Clients = m.config.Clients()
	}
}

// SolutionCoverage is the share of NAV-VELECEF triggers that produced a
// NAV-SOL
func (m MonitorModel) SolutionCoverage() float64 {
	total := m.Stats.SolutionsBuilt + m.Stats.SolutionsSkipped
	if total == 0 {
		return 0
	}
	return float64(m.Stats.SolutionsBuilt) / float64(total)
}

// View implements tea.Model
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	width := m.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	panelWidth := width - 4

	status := m.Spinner.View() + " relaying"
	if m.Stopped {
		status = lipgloss.NewStyle().Foreground(MutedColor).Render("■ stopped")
		if m.Err != nil {
			status = ErrorMessageStyle.Render(FailureMarker + " " + m.Err.Error())
		}
	}

	header := NewHeader("UBX Relay Monitor", status,
		Param{"Input", m.config.Input},
		Param{"Output", m.config.Output},
	).SetWidth(width).Render()

	sections := []string{
		header,
		PanelStyle(panelWidth).Render(m.fixPanel()),
		PanelStyle(panelWidth).Render(m.solutionPanel()),
		PanelStyle(panelWidth).Render(m.statsPanel()),
		"  " + m.Help.View(monitorKeys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func row(k, v string) string {
	return ResultKeyStyle.Render(k) + " " + ResultValueStyle.Render(v)
}

func (m MonitorModel) fixPanel() string {
	lines := []string{TroubleshootingTitleStyle.Render("Fix")}
	if m.PVT == nil {
		return strings.Join(append(lines, row("NAV-PVT", "waiting...")), "\n")
	}

	p := m.PVT
	lines = append(lines,
		row("Fix", FixStyle(p.FixType).Render(FixTypeName(p.FixType))),
		row("Satellites", fmt.Sprintf("%d", p.NumSV)),
		row("UTC", fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", p.Year, p.Month, p.Day, p.Hour, p.Min, p.Sec)),
		row("Lat / Lon", fmt.Sprintf("%.7f / %.7f", float64(p.Lat)*1e-7, float64(p.Lon)*1e-7)),
		row("Height MSL", fmt.Sprintf("%.3f m (±%.3f m)", mm(p.HMSL), mmU(p.HAcc))),
		row("Ground speed", fmt.Sprintf("%.3f m/s", mm(p.GSpeed))),
		row("pDOP", fmt.Sprintf("%.2f", float64(p.PDOP)*0.01)),
		row("Flags", joinFlags(PVTFlagNames(p.Flags))),
	)
	if m.TimeUTC != nil {
		lines = append(lines, row("TIMEUTC valid", joinFlags(TimeUTCValidNames(m.TimeUTC.Valid))))
	}
	return strings.Join(lines, "\n")
}

func (m MonitorModel) solutionPanel() string {
	lines := []string{TroubleshootingTitleStyle.Render("NAV-SOL")}
	if m.Sol == nil {
		lines = append(lines, row("Last", "none yet"))
	} else {
		s := m.Sol
		lines = append(lines,
			row("iTOW / week", fmt.Sprintf("%d / %d", s.ITOW, s.Week)),
			row("ECEF", fmt.Sprintf("%.2f, %.2f, %.2f m (±%.2f m)", cm(s.EcefX), cm(s.EcefY), cm(s.EcefZ), cmU(s.PAcc))),
			row("Velocity", fmt.Sprintf("%.2f, %.2f, %.2f m/s", cm(s.EcefVX), cm(s.EcefVY), cm(s.EcefVZ))),
			row("Flags", joinFlags(SolFlagNames(s.Flags))),
		)
	}
	lines = append(lines, row("Coverage", m.Bar.ViewAs(m.SolutionCoverage())))
	return strings.Join(lines, "\n")
}

func (m MonitorModel) statsPanel() string {
	s := m.Stats
	lines := []string{
		TroubleshootingTitleStyle.Render("Stream"),
		row("Bytes in / out", fmt.Sprintf("%d / %d", s.BytesRead, s.BytesWritten)),
		row("Frames", fmt.Sprintf("%d extracted, %d forwarded, %d dropped", s.FramesExtracted, s.FramesForwarded, s.FramesDropped)),
		row("Discarded", fmt.Sprintf("%d bytes, %d checksum errors", s.BytesDiscarded, s.ChecksumMismatches)),
		row("Decode errors", fmt.Sprintf("%d", s.DecodeErrors)),
		row("Records", fmt.Sprintf("%d", m.Records)),
	}
	if m.config.Clients != nil {
		lines = append(lines, row("Clients", fmt.Sprintf("%d", m.Clients)))
	}
	return strings.Join(lines, "\n")
}

// Monitor runs the dashboard and receives records from the relay.
// It implements relay.RecordSink.
type Monitor struct {
	program *tea.Program
}

// NewMonitor creates a dashboard rendering to out. Pass extra program
// options (e.g. tea.WithInput) for tests.
func NewMonitor(config MonitorConfig, out io.Writer, opts ...tea.ProgramOption) *Monitor {
	opts = append([]tea.ProgramOption{tea.WithOutput(out), tea.WithAltScreen()}, opts...)
	return &Monitor{
		program: tea.NewProgram(NewMonitorModel(config), opts...),
	}
}

// Run blocks until the user quits or Quit is called
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Display implements relay.RecordSink
func (m *Monitor) Display(msg protocol.Message) {
	m.program.Send(recordMsg{msg: msg})
}

// Stopped tells the dashboard the relay has ended
func (m *Monitor) Stopped(err error) {
	m.program.Send(stoppedMsg{err: err})
}

// Quit closes the dashboard
func (m *Monitor) Quit() {
	m.program.Quit()
}
