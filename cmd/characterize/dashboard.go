package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/dashboard"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

type DashboardCommand struct {
	HTTP  string  `long:"http" description:"Also serve the web dashboard on this address, e.g. :8080"`
	Range float64 `long:"range" default:"10" description:"Encoder rate shown at the top of the chart"`
	Step  float64 `long:"step" default:"0.05" description:"Autospeed change per key press"`
}

const (
	headerHeight = 3 // title + values + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Rate colors, one per encoder.
var rateColors = map[string]string{
	"encoder_rate":   "46",  // green
	"l_encoder_rate": "208", // orange
	"r_encoder_rate": "51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	modeStyles  = map[characterize.Mode]lipgloss.Style{
		characterize.ModeDisabled:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		characterize.ModeAutonomous: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		characterize.ModeTeleop:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		characterize.ModeTest:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
	}
)

// watcher turns table updates into messages for the TUI.
type watcher struct {
	table   nt.Table
	samples chan map[string]float64
	logs    characterize.LogChannel

	mu     sync.Mutex
	values map[string]float64
}

func newWatcher(table nt.Table, logs characterize.LogChannel) *watcher {
	w := &watcher{
		table:   table,
		samples: make(chan map[string]float64, 1),
		logs:    logs,
		values:  make(map[string]float64),
	}
	table.AddListener(nt.DashboardPrefix, w.onDashboard)
	table.AddListener(nt.ControlWordKey, w.onControlWord)
	return w
}

func (w *watcher) onDashboard(key string, v nt.Value) {
	w.mu.Lock()
	w.values[strings.TrimPrefix(key, nt.DashboardPrefix)] = v.Number
	snapshot := make(map[string]float64, len(w.values))
	for k, x := range w.values {
		snapshot[k] = x
	}
	w.mu.Unlock()

	// Keep only the latest sample.
	select {
	case <-w.samples:
	default:
	}
	select {
	case w.samples <- snapshot:
	default:
	}
}

func (w *watcher) onControlWord(_ string, v nt.Value) {
	w.logs.Logf("Control word: %s", characterize.DecodeControlWord(int(v.Number)))
}

func (w *watcher) mode() characterize.Mode {
	return characterize.DecodeControlWord(int(w.table.Number(nt.ControlWordKey, 0)))
}

func (w *watcher) setMode(m characterize.Mode) {
	w.table.SetNumber(nt.ControlWordKey, float64(characterize.ControlWord(m)))
}

// Messages from the watcher
type sampleMsg map[string]float64
type logMsg string

func waitForSample(w *watcher) tea.Cmd {
	return func() tea.Msg {
		return sampleMsg(<-w.samples)
	}
}

func waitForLog(w *watcher) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-w.logs)
	}
}

type dashboardModel struct {
	watcher  *watcher
	title    string
	rates    []string
	step     float64
	chart    *streamlinechart.Model
	width    int                // terminal width
	height   int                // terminal height
	values   map[string]float64 // latest dashboard values
	logs     []string           // last N log messages
	quitting bool
}

func (m *dashboardModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *dashboardModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *dashboardModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

// rateKeys are the dashboard rate values charted for a variant.
func rateKeys(variant robot.Variant) []string {
	if variant == robot.VariantDrive {
		return []string{"l_encoder_rate", "r_encoder_rate"}
	}
	return []string{"encoder_rate"}
}

func initialDashboardModel(w *watcher, title string, variant robot.Variant, yRange, step float64) dashboardModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-yRange, yRange),
	)

	rates := rateKeys(variant)
	for _, name := range rates {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(rateColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return dashboardModel{
		watcher: w,
		title:   title,
		rates:   rates,
		step:    step,
		chart:   &chart,
		values:  make(map[string]float64),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSample(m.watcher),
		waitForLog(m.watcher),
	)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.watcher.setMode(characterize.ModeDisabled)
			m.quitting = true
			return m, tea.Quit
		case "a":
			m.watcher.setMode(characterize.ModeAutonomous)
		case "t":
			m.watcher.setMode(characterize.ModeTeleop)
		case "d", " ":
			m.watcher.setMode(characterize.ModeDisabled)
			m.watcher.table.SetNumber(nt.AutoSpeedKey, 0)
		case "up", "+":
			m.nudgeAutoSpeed(m.step)
		case "down", "-":
			m.nudgeAutoSpeed(-m.step)
		}
		return m, nil

	case sampleMsg:
		m.values = msg
		for _, name := range m.rates {
			m.chart.PushDataSet(name, msg[name])
		}
		m.chart.DrawAll()
		return m, waitForSample(m.watcher)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.watcher)
	}

	return m, nil
}

func (m *dashboardModel) nudgeAutoSpeed(delta float64) {
	speed := robot.Limit(m.watcher.table.Number(nt.AutoSpeedKey, 0) + delta)
	m.watcher.table.SetNumber(nt.AutoSpeedKey, speed)
	m.addLog(fmt.Sprintf("Autospeed %.2f", speed))
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Dashboard closed, robot disabled.\n"
	}

	var sb strings.Builder

	// Header
	mode := m.watcher.mode()
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("  ")
	sb.WriteString(modeStyles[mode].Render(strings.ToUpper(mode.String())))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  autospeed %.2f", m.watcher.table.Number(nt.AutoSpeedKey, 0))))
	sb.WriteString("\n")
	sb.WriteString(renderValues(m.values))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend(m.rates))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4)

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("a auto · t teleop · d/space disable · ↑/↓ autospeed · q quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderValues(values map[string]float64) string {
	var items []string
	for _, name := range []string{"encoder_pos", "l_encoder_pos", "r_encoder_pos", "gyro_angle"} {
		if v, ok := values[name]; ok {
			items = append(items, fmt.Sprintf("%s %.3f", name, v))
		}
	}
	return statusStyle.Render(strings.Join(items, "  "))
}

func renderLegend(rates []string) string {
	var items []string
	for _, name := range rates {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(rateColors[name])).Bold(true)
		item := colorStyle.Render("━━") + " " + name
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *DashboardCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := openTable(cfg, "dashboard")
	if err != nil {
		return fmt.Errorf("open table: %w", err)
	}
	defer table.Close()

	logs := characterize.NewLogChannel(100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	title := "Characterization Dashboard"
	if cfg.Transport.Broker == "" {
		// Nothing else can reach an in-process table: run the robot here.
		stopRobot, err := startLocalRobot(ctx, cfg, table, logs)
		if err != nil {
			return err
		}
		defer stopRobot()
		title += " (local " + cfg.Backend + ")"
	}

	if c.HTTP != "" {
		srv := dashboard.New(table, logs.Logf)
		httpServer := &http.Server{Addr: c.HTTP, Handler: srv.Router()}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logs.Logf("HTTP server: %v", err)
			}
		}()
		defer func() {
			srv.Close()
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			httpServer.Shutdown(shutdownCtx)
		}()
		logs.Logf("Web dashboard on %s", c.HTTP)
	}

	w := newWatcher(table, logs)
	p := tea.NewProgram(initialDashboardModel(w, title, cfg.Variant, c.Range, c.Step), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}

	return nil
}

// startLocalRobot runs the robot program against table until the returned
// stop function is called.
func startLocalRobot(ctx context.Context, cfg *robot.Config, table nt.Table, logs characterize.LogChannel) (stop func(), err error) {
	rig, err := buildRig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s rig: %w", cfg.Backend, err)
	}
	rig.Joystick = nt.Joystick{Table: table}

	loop, err := characterize.NewLoop(rig, table, characterize.Options{
		SquareInputs: cfg.SquareInputs,
		Logf:         logs.Logf,
	})
	if err != nil {
		rig.Close()
		return nil, err
	}
	driver := characterize.NewDriver(loop, characterize.DriverConfig{
		Hz:    cfg.Hz,
		Modes: characterize.ControlWordSource{Table: table},
		Logs:  logs,
	})

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := driver.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logs.Logf("Robot error: %v", err)
		}
	}()

	return func() {
		cancel()
		<-done
		rig.Close()
	}, nil
}
