package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/wpilibsuite/frc-characterization/pkg/dashboard"
	"github.com/wpilibsuite/frc-characterization/pkg/hardware/gpio"
	"github.com/wpilibsuite/frc-characterization/pkg/hardware/sim"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

type Options struct {
	Config string `short:"c" long:"config" default:"characterize.json" description:"Robot config file (JSON, or YAML by extension)"`

	Setup     SetupCommand     `command:"setup" description:"Describe the mechanism and write the config file"`
	Robot     RobotCommand     `command:"robot" description:"Run the characterization robot program"`
	Logger    LoggerCommand    `command:"logger" description:"Run the characterization tests and save the data"`
	Mode      ModeCommand      `command:"mode" description:"Switch the robot between disabled, auto, teleop and test"`
	Dashboard DashboardCommand `command:"dashboard" alias:"dash" description:"Watch the robot live in the terminal or a browser"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "frc-characterization - collect feedforward characterization data from arms and drivetrains"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads and validates the config named by --config, with the
// transport overridden from the environment.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no config at %s, run setup first", opts.Config)
		}
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openTable connects to the configured broker, or returns an in-process
// table when none is set.
func openTable(cfg *robot.Config, role string) (dashboard.Table, error) {
	if cfg.Transport.Broker == "" {
		return nt.NewMemTable(), nil
	}
	clientID := cfg.Transport.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("characterize-%s-%d", role, time.Now().Unix())
	} else {
		clientID += "-" + role
	}
	table, err := nt.DialMQTT(nt.MQTTConfig{
		Broker:   cfg.Transport.Broker,
		ClientID: clientID,
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// needBroker fails for commands that only make sense across processes.
func needBroker(cfg *robot.Config, command string) error {
	if cfg.Transport.Broker == "" {
		return fmt.Errorf("%s needs transport.broker in %s or CHARACTERIZE_BROKER", command, opts.Config)
	}
	return nil
}

func buildRig(cfg *robot.Config) (*robot.Rig, error) {
	switch cfg.Backend {
	case robot.BackendSim, "":
		return sim.NewRig(cfg, nil)
	case robot.BackendGPIO:
		return gpio.NewRig(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", robot.ErrUnknownBackend, cfg.Backend)
	}
}
