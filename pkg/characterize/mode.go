package characterize

import (
	"fmt"
	"strings"

	"github.com/wpilibsuite/frc-characterization/pkg/nt"
)

// Mode is the robot operating mode chosen by the driver station.
type Mode int

const (
	ModeNone Mode = iota
	ModeDisabled
	ModeAutonomous
	ModeTeleop
	ModeTest
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeAutonomous:
		return "auto"
	case ModeTeleop:
		return "teleop"
	case ModeTest:
		return "test"
	}
	return "none"
}

// ParseMode accepts the names printed by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "disabled", "disable":
		return ModeDisabled, nil
	case "auto", "autonomous":
		return ModeAutonomous, nil
	case "teleop":
		return ModeTeleop, nil
	case "test":
		return ModeTest, nil
	}
	return ModeNone, fmt.Errorf("unknown mode %q", s)
}

// Control word bits, as sent by the field management system.
const (
	EnabledBit       = 1 << 0
	AutoBit          = 1 << 1
	TestBit          = 1 << 2
	EmergencyStopBit = 1 << 3
	FMSAttachedBit   = 1 << 4
	DSAttachedBit    = 1 << 5
)

// DecodeControlWord maps a control word to a mode.
func DecodeControlWord(word int) Mode {
	if word&EnabledBit == 0 || word&EmergencyStopBit != 0 {
		return ModeDisabled
	}
	if word&AutoBit != 0 {
		return ModeAutonomous
	}
	if word&TestBit != 0 {
		return ModeTest
	}
	return ModeTeleop
}

// ControlWord encodes a mode with the driver station attached.
func ControlWord(m Mode) int {
	word := DSAttachedBit
	switch m {
	case ModeAutonomous:
		word |= EnabledBit | AutoBit
	case ModeTeleop:
		word |= EnabledBit
	case ModeTest:
		word |= EnabledBit | TestBit
	}
	return word
}

// ModeSource reports the current operating mode.
type ModeSource interface {
	Mode() Mode
}

// FixedMode always reports the same mode.
type FixedMode Mode

func (m FixedMode) Mode() Mode { return Mode(m) }

// ControlWordSource reads the mode from the control word in a table.
// A missing word means disabled.
type ControlWordSource struct {
	Table nt.Table
}

func (s ControlWordSource) Mode() Mode {
	return DecodeControlWord(int(s.Table.Number(nt.ControlWordKey, 0)))
}
