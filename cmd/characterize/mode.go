package main

import (
	"fmt"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
)

type ModeCommand struct {
	Args struct {
		Mode string `positional-arg-name:"mode" description:"disabled, auto, teleop or test"`
	} `positional-args:"yes" required:"yes"`
}

func (c *ModeCommand) Execute(args []string) error {
	mode, err := characterize.ParseMode(c.Args.Mode)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := needBroker(cfg, "mode"); err != nil {
		return err
	}

	t, err := openTable(cfg, "mode")
	if err != nil {
		return fmt.Errorf("open table: %w", err)
	}
	// Close flushes the pending write.
	defer t.Close()

	t.SetNumber(nt.ControlWordKey, float64(characterize.ControlWord(mode)))
	fmt.Printf("Robot mode set to %s\n", mode)
	return nil
}
