package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/datalog"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
)

type RobotCommand struct {
	Hz   int    `long:"hz" description:"Loop rate, overrides the config"`
	Mode string `long:"mode" description:"Run in a fixed mode instead of following the control word (disabled, auto, teleop, test)"`
	Log  bool   `long:"log" description:"Run the data logger in this process and exit when it is done"`
	Out  string `long:"out" default:"." description:"Directory for data files written by --log"`
}

func (c *RobotCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Hz > 0 {
		cfg.Hz = c.Hz
	}

	table, err := openTable(cfg, "robot")
	if err != nil {
		return fmt.Errorf("open table: %w", err)
	}
	defer table.Close()

	rig, err := buildRig(cfg)
	if err != nil {
		return fmt.Errorf("build %s rig: %w", cfg.Backend, err)
	}
	defer rig.Close()
	rig.Joystick = nt.Joystick{Table: table}

	logs := characterize.NewLogChannel(100)
	loop, err := characterize.NewLoop(rig, table, characterize.Options{
		SquareInputs: cfg.SquareInputs,
		Logf:         logs.Logf,
	})
	if err != nil {
		return err
	}

	var modes characterize.ModeSource = characterize.ControlWordSource{Table: table}
	if c.Mode != "" {
		if c.Log {
			return errors.New("--mode and --log cannot be combined")
		}
		m, err := characterize.ParseMode(c.Mode)
		if err != nil {
			return err
		}
		modes = characterize.FixedMode(m)
	}

	driver := characterize.NewDriver(loop, characterize.DriverConfig{
		Hz:    cfg.Hz,
		Modes: modes,
		Logs:  logs,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for line := range logs {
			log.Println(line)
		}
	}()

	log.Printf("Characterizing %s on the %s backend (%s layout)", cfg.Variant, cfg.Backend, loop.Layout())

	if !c.Log {
		err = driver.Start(ctx)
		drainLogs(logs)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	robotCtx, stopRobot := context.WithCancel(ctx)
	robotDone := make(chan error, 1)
	go func() { robotDone <- driver.Start(robotCtx) }()

	logger := datalog.New(table, datalog.Config{
		Layout:     loop.Layout(),
		AutoEnable: true,
		Logf:       logs.Logf,
	})
	results, runErr := logger.Run(ctx)

	stopRobot()
	<-robotDone
	drainLogs(logs)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return nil
		}
		return runErr
	}
	path, err := results.Save(c.Out, time.Now())
	if err != nil {
		return err
	}
	log.Printf("Data saved to %s", path)
	return nil
}

// drainLogs gives the printer a moment to flush the final lines.
func drainLogs(logs characterize.LogChannel) {
	deadline := time.After(100 * time.Millisecond)
	for len(logs) > 0 {
		select {
		case <-deadline:
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}
