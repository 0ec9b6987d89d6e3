package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.bug.st/serial"

	"github.com/wpilibsuite/frc-characterization/pkg/hardware/servo"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

type SetupCommand struct {
	MaxServoID int `long:"max-servo-id" default:"12" description:"Highest servo ID probed when scanning a serial bus"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Characterization Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	// Step 1: Mechanism and backend
	cfg, err := askMechanism()
	if err != nil {
		return err
	}

	// Step 2: Wiring
	if cfg.Backend == robot.BackendGPIO {
		for i, side := range cfg.Sides() {
			name := cfg.SideNames()[i]
			fmt.Println()
			fmt.Println(subHeaderStyle.Render("━━━ " + strings.Title(name) + " Side ━━━"))
			fmt.Println()
			if err := c.askSide(name, side); err != nil {
				return err
			}
		}
	}

	// Step 3: Units
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Encoder Units ━━━"))
	fmt.Println()
	if err := askUnits(cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	// Step 4: Check the encoders count the right way
	if cfg.Backend == robot.BackendGPIO && confirm("Check encoder directions now?") {
		if err := checkEncoders(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Encoder check failed: %v\n", err)
		} else if err := cfg.SaveTo(opts.Config); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the robot with: " + headerStyle.Render("characterize robot"))
	fmt.Println("Then collect data with: " + headerStyle.Render("characterize logger"))

	return nil
}

func askMechanism() (*robot.Config, error) {
	var (
		variant = string(robot.VariantArm)
		backend = robot.BackendSim
		broker  string
		heading bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What are you characterizing?").
				Options(
					huh.NewOption("Arm (one motor group, degrees)", string(robot.VariantArm)),
					huh.NewOption("Drivetrain (left and right sides)", string(robot.VariantDrive)),
				).
				Value(&variant),
			huh.NewSelect[string]().
				Title("Where does it run?").
				Options(
					huh.NewOption("Simulation", robot.BackendSim),
					huh.NewOption("Raspberry Pi GPIO", robot.BackendGPIO),
				).
				Value(&backend),
			huh.NewInput().
				Title("MQTT broker").
				Description("Leave empty to run everything in one process").
				Placeholder("tcp://localhost:1883").
				Value(&broker),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	cfg := robot.DefaultConfig(robot.Variant(variant))
	cfg.Backend = backend
	cfg.Transport.Broker = strings.TrimSpace(broker)

	if cfg.Variant == robot.VariantDrive && backend == robot.BackendSim {
		heading = confirm("Record the simulated gyro heading?")
		if heading {
			cfg.Heading = true
			cfg.Gyro = "sim"
		}
	}
	return cfg, nil
}

func (c *SetupCommand) askSide(name string, side *robot.SideConfig) error {
	motors := joinInts(motorPorts(side))
	encoderType := robot.EncoderQuadrature
	channels := joinInts(side.Encoder.Channels)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("%s motor pins", name)).
				Description("BCM pin numbers, leader first. PWM pins are 12, 13, 18 and 19").
				Value(&motors).
				Validate(validateInts),
			huh.NewSelect[string]().
				Title(fmt.Sprintf("%s encoder", name)).
				Options(
					huh.NewOption("Quadrature encoder on two GPIO pins", robot.EncoderQuadrature),
					huh.NewOption("Feetech servo on a serial bus", robot.EncoderFeetech),
				).
				Value(&encoderType),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	ports, _ := parseInts(motors)
	inverted := make(map[int]bool)
	for _, m := range side.Motors {
		inverted[m.Port] = m.Inverted
	}
	side.Motors = side.Motors[:0]
	for _, p := range ports {
		side.Motors = append(side.Motors, robot.MotorConfig{Port: p, Inverted: inverted[p]})
	}

	side.Encoder.Type = encoderType
	if encoderType == robot.EncoderQuadrature {
		side.Encoder.SerialPort, side.Encoder.ServoID = "", 0
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title(fmt.Sprintf("%s encoder pins", name)).
					Description("Channel A, channel B").
					Value(&channels).
					Validate(func(s string) error {
						v, err := parseInts(s)
						if err == nil && len(v) != 2 {
							err = errors.New("need exactly two pins")
						}
						return err
					}),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
		side.Encoder.Channels, _ = parseInts(channels)
		return nil
	}

	side.Encoder.Channels = nil
	port, id, err := c.findServo(name)
	if err != nil {
		return err
	}
	side.Encoder.SerialPort = port
	side.Encoder.ServoID = id
	side.Encoder.PulsesPerRev = servo.DefaultResolution
	return nil
}

// findServo lets the user pick a serial port and one of the servos found on it.
func (c *SetupCommand) findServo(name string) (string, int, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", 0, fmt.Errorf("list serial ports: %w", err)
	}

	var options []huh.Option[string]
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		options = append(options, huh.NewOption(port, port))
	}
	if len(options) == 0 {
		return "", 0, errors.New("no serial ports found, is the servo bus plugged in?")
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Serial port of the %s servo", name)).
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", 0, err
	}

	fmt.Printf("Scanning %s for servos...\n", port)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	found, err := servo.Scan(ctx, port, c.MaxServoID)
	cancel()
	if err != nil {
		return "", 0, fmt.Errorf("scan %s: %w", port, err)
	}
	if len(found) == 0 {
		return "", 0, fmt.Errorf("no servos answered on %s", port)
	}

	var ids []huh.Option[int]
	for _, s := range found {
		label := fmt.Sprintf("ID %d", s.ID)
		if s.Model != nil {
			label += " (" + s.Model.Name + ")"
		}
		ids = append(ids, huh.NewOption(label, s.ID))
	}

	id := found[0].ID
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(fmt.Sprintf("Which servo measures the %s?", name)).
				Options(ids...).
				Value(&id),
		),
	)
	if err := form.Run(); err != nil {
		return "", 0, err
	}
	return port, id, nil
}

func askUnits(cfg *robot.Config) error {
	first := cfg.Sides()[0].Encoder
	ppr := formatFloat(first.PulsesPerRev)
	gearing := formatFloat(first.Gearing)
	diameter := formatFloat(first.WheelDiameter)

	fields := []huh.Field{
		huh.NewInput().
			Title("Encoder pulses per revolution").
			Description("Counts per turn of the encoder shaft, after 4x decoding").
			Value(&ppr).
			Validate(validatePositive),
	}
	if cfg.Variant == robot.VariantDrive {
		fields = append(fields, huh.NewInput().
			Title("Wheel diameter").
			Description("Distances are reported in the same unit").
			Value(&diameter).
			Validate(validatePositive))
	} else {
		fields = append(fields, huh.NewInput().
			Title("Gearing").
			Description("Encoder turns per arm turn").
			Value(&gearing).
			Validate(validatePositive))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}

	for _, side := range cfg.Sides() {
		cal := &side.Encoder.EncoderCalibration
		cal.PulsesPerRev, _ = strconv.ParseFloat(ppr, 64)
		if cfg.Variant == robot.VariantDrive {
			cal.WheelDiameter, _ = strconv.ParseFloat(diameter, 64)
		} else {
			cal.Gearing, _ = strconv.ParseFloat(gearing, 64)
		}
	}
	return nil
}

func confirm(title string) bool {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return ok
}

func motorPorts(side *robot.SideConfig) []int {
	ports := make([]int, 0, len(side.Motors))
	for _, m := range side.Motors {
		ports = append(ports, m.Port)
	}
	return ports
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = strconv.Itoa(x)
	}
	return strings.Join(s, ", ")
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%q is not a pin number", field)
		}
		out = append(out, n)
	}
	return out, nil
}

func validateInts(s string) error {
	v, err := parseInts(s)
	if err == nil && len(v) == 0 {
		err = errors.New("need at least one pin")
	}
	return err
}

func validatePositive(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return errors.New("must be a positive number")
	}
	return nil
}

func formatFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// checkEncoders shows live positions while the user pushes each side
// forward, then flips the phase of encoders that counted backwards.
func checkEncoders(cfg *robot.Config) error {
	rig, err := buildRig(cfg)
	if err != nil {
		return err
	}
	defer rig.Close()

	for _, side := range rig.Sides {
		if err := side.Encoder.Reset(); err != nil {
			return fmt.Errorf("reset %s encoder: %w", side.Name, err)
		}
	}

	fmt.Println("Push every side forward by hand, then press Enter.")
	p := tea.NewProgram(newEncoderCheckModel(rig))
	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	em := finalModel.(encoderCheckModel)
	for i, side := range cfg.Sides() {
		if em.positions[i] < 0 {
			side.Encoder.Inverted = !side.Encoder.Inverted
			fmt.Printf("Inverted the %s encoder.\n", cfg.SideNames()[i])
		}
	}
	return nil
}

// Encoder check TUI model
type encoderCheckModel struct {
	rig       *robot.Rig
	positions []float64
	rates     []float64
	errs      []error
	quitting  bool
}

type tickMsg time.Time

func newEncoderCheckModel(rig *robot.Rig) encoderCheckModel {
	return encoderCheckModel{
		rig:       rig,
		positions: make([]float64, len(rig.Sides)),
		rates:     make([]float64, len(rig.Sides)),
		errs:      make([]error, len(rig.Sides)),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m encoderCheckModel) Init() tea.Cmd {
	return tick()
}

func (m encoderCheckModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		for i, side := range m.rig.Sides {
			pos, err := side.Encoder.Position()
			if err != nil {
				m.errs[i] = err
				continue
			}
			rate, err := side.Encoder.Rate()
			if err != nil {
				m.errs[i] = err
				continue
			}
			m.positions[i], m.rates[i], m.errs[i] = pos, rate, nil
		}
		return m, tick()
	}

	return m, nil
}

func (m encoderCheckModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	// Table styles
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableSideStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableBadStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.rig.Sides))
	for i, side := range m.rig.Sides {
		direction := "forward"
		switch {
		case m.errs[i] != nil:
			direction = m.errs[i].Error()
		case m.positions[i] < 0:
			direction = "backward, will invert"
		case m.positions[i] == 0:
			direction = "not moved"
		}
		rows = append(rows, []string{
			side.Name,
			fmt.Sprintf("%.3f", m.positions[i]),
			fmt.Sprintf("%.3f", m.rates[i]),
			direction,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Side", "Position", "Rate", "Direction").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableSideStyle
			case 3:
				if row >= 0 && row < len(m.positions) && m.errs[row] == nil && m.positions[row] > 0 {
					return tableGoodStyle
				}
				return tableBadStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
