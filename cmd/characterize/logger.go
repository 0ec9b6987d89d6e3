package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/datalog"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type LoggerCommand struct {
	Fast         float64       `long:"fast" default:"0.5" description:"Autospeed of the dynamic tests"`
	Ramp         float64       `long:"ramp" default:"0.001" description:"Autospeed increase per ramp interval in the quasistatic tests"`
	RampInterval time.Duration `long:"ramp-interval" default:"50ms" description:"How often the quasistatic autospeed grows"`
	AutoEnable   bool          `long:"auto-enable" description:"Switch the robot into autonomous instead of waiting for an operator"`
	Duration     time.Duration `long:"duration" default:"5s" description:"Length of each test with --auto-enable"`
	Out          string        `long:"out" default:"." description:"Directory the data file is written to"`
}

func (c *LoggerCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := needBroker(cfg, "logger"); err != nil {
		return err
	}

	t, err := openTable(cfg, "logger")
	if err != nil {
		return fmt.Errorf("open table: %w", err)
	}
	defer t.Close()

	layout := configLayout(cfg)
	tests := datalog.DefaultTests(c.Fast)
	for i := range tests {
		switch {
		case tests[i].Ramp > 0:
			tests[i].Ramp = c.Ramp
		case tests[i].Ramp < 0:
			tests[i].Ramp = -c.Ramp
		}
	}

	fmt.Println(headerStyle.Render("Characterization Logger"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Printf("Broker %s, %s layout, %d tests\n\n", cfg.Transport.Broker, layout, len(tests))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := datalog.New(t, datalog.Config{
		Layout:       layout,
		Tests:        tests,
		RampInterval: c.RampInterval,
		AutoEnable:   c.AutoEnable,
		Duration:     c.Duration,
		Logf:         log.Printf,
	})
	results, err := logger.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println(warnStyle.Render("Cancelled, no data saved."))
			return nil
		}
		if errors.Is(err, datalog.ErrDisconnected) {
			fmt.Println(warnStyle.Render("Giving up, no data saved."))
		}
		return err
	}

	fmt.Println()
	fmt.Println(summaryTable(layout, results))

	path, err := results.Save(c.Out, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Data saved to " + path))
	return nil
}

// configLayout is the telemetry layout a rig built from cfg publishes.
func configLayout(cfg *robot.Config) characterize.Layout {
	return characterize.LayoutFor(&robot.Rig{Variant: cfg.Variant, Heading: cfg.Heading})
}

// summaryTable shows the record count and distance travelled per test.
func summaryTable(layout characterize.Layout, results datalog.Results) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := []string{"Test", "Records"}
	if layout == characterize.LayoutArm {
		headers = append(headers, "Travel")
	} else {
		headers = append(headers, "Left", "Right")
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		data := results[name]
		row := []string{name, fmt.Sprintf("%d", len(data))}
		for _, d := range datalog.Distances(layout, data) {
			row = append(row, fmt.Sprintf("%.3f", d))
		}
		rows = append(rows, row)
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return subHeaderStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Render()
}
