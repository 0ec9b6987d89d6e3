package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const DefaultConfigFile = "characterize.json"

var (
	ErrInvalidConfig  = errors.New("invalid config")
	ErrUnknownBackend = errors.New("unknown backend")
)

// Variant is the kind of mechanism being characterized. Elevators and
// simple motors use VariantArm with linear or rotation encoder units.
type Variant string

const (
	VariantArm   Variant = "arm"
	VariantDrive Variant = "drive"
)

// Backend names.
const (
	BackendSim  = "sim"
	BackendGPIO = "gpio"
)

// Encoder source types.
const (
	EncoderQuadrature = "quadrature"
	EncoderFeetech    = "feetech"
)

// Config holds the robot configuration
type Config struct {
	Variant Variant `json:"variant" yaml:"variant"`
	Backend string  `json:"backend" yaml:"backend"`
	Hz      int     `json:"hz,omitempty" yaml:"hz,omitempty"`
	// SquareInputs squares the stick axes in teleop arcade drive.
	SquareInputs bool `json:"square_inputs" yaml:"square_inputs"`
	// Heading appends the gyro heading to drivetrain telemetry.
	Heading bool `json:"heading,omitempty" yaml:"heading,omitempty"`
	// Gyro is "none" or "sim".
	Gyro string `json:"gyro,omitempty" yaml:"gyro,omitempty"`
	// BatteryVoltage is reported by backends that cannot sense the battery.
	BatteryVoltage float64 `json:"battery_voltage,omitempty" yaml:"battery_voltage,omitempty"`

	Arm   *SideConfig `json:"arm,omitempty" yaml:"arm,omitempty"`
	Left  *SideConfig `json:"left,omitempty" yaml:"left,omitempty"`
	Right *SideConfig `json:"right,omitempty" yaml:"right,omitempty"`

	Transport TransportConfig `json:"transport" yaml:"transport"`
	Sim       SimConfig       `json:"sim,omitempty" yaml:"sim,omitempty"`
}

// SideConfig holds configuration for one driven side
type SideConfig struct {
	Motors  []MotorConfig `json:"motors" yaml:"motors"`
	Encoder EncoderConfig `json:"encoder" yaml:"encoder"`
}

// MotorConfig identifies one motor controller. The first motor of a side
// is the leader.
type MotorConfig struct {
	Port     int  `json:"port" yaml:"port"`
	Inverted bool `json:"inverted,omitempty" yaml:"inverted,omitempty"`
}

// EncoderConfig identifies the raw source of a side's encoder.
type EncoderConfig struct {
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Channels are the A and B GPIO pins of a quadrature encoder.
	Channels []int `json:"channels,omitempty" yaml:"channels,omitempty"`
	// SerialPort and ServoID locate a Feetech servo used as an encoder.
	SerialPort string `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	ServoID    int    `json:"servo_id,omitempty" yaml:"servo_id,omitempty"`

	EncoderCalibration `yaml:",inline"`
}

// TransportConfig locates the network table broker.
type TransportConfig struct {
	Broker   string `json:"broker,omitempty" yaml:"broker,omitempty" env:"CHARACTERIZE_BROKER"`
	ClientID string `json:"client_id,omitempty" yaml:"client_id,omitempty" env:"CHARACTERIZE_CLIENT_ID"`
}

// SimConfig describes the simulated mechanism, in volts per revolution units.
type SimConfig struct {
	KS float64 `json:"ks,omitempty" yaml:"ks,omitempty"`
	KV float64 `json:"kv,omitempty" yaml:"kv,omitempty"`
	KA float64 `json:"ka,omitempty" yaml:"ka,omitempty"`
	// TrackWidth feeds the simulated gyro, in wheel units.
	TrackWidth float64 `json:"track_width,omitempty" yaml:"track_width,omitempty"`
	// Smart makes the simulated controllers report their output voltage.
	Smart bool `json:"smart,omitempty" yaml:"smart,omitempty"`
}

// DefaultConfig returns a simulated rig of the given variant.
func DefaultConfig(variant Variant) *Config {
	cfg := &Config{
		Variant:        variant,
		Backend:        BackendSim,
		Hz:             50,
		SquareInputs:   true,
		Gyro:           "none",
		BatteryVoltage: 12,
		Sim: SimConfig{
			KS:         0.5,
			KV:         1.8,
			KA:         0.3,
			TrackWidth: 2,
			Smart:      true,
		},
	}

	switch variant {
	case VariantDrive:
		wheel := EncoderCalibration{PulsesPerRev: 360, WheelDiameter: 0.5}
		cfg.Left = &SideConfig{
			Motors:  []MotorConfig{{Port: 1}, {Port: 3}},
			Encoder: EncoderConfig{Type: EncoderQuadrature, Channels: []int{5, 6}, EncoderCalibration: wheel},
		}
		// The right gearbox is mirrored: its motors and encoder run backwards.
		wheel.Inverted = true
		cfg.Right = &SideConfig{
			Motors:  []MotorConfig{{Port: 2, Inverted: true}, {Port: 4, Inverted: true}},
			Encoder: EncoderConfig{Type: EncoderQuadrature, Channels: []int{16, 20}, EncoderCalibration: wheel},
		}
	default:
		cfg.Arm = &SideConfig{
			Motors: []MotorConfig{{Port: 1}},
			Encoder: EncoderConfig{
				Type:               EncoderQuadrature,
				Channels:           []int{5, 6},
				EncoderCalibration: EncoderCalibration{PulsesPerRev: 360, Gearing: 1},
			},
		}
	}

	return cfg
}

// Sides returns the configured sides in telemetry order.
func (c *Config) Sides() []*SideConfig {
	if c.Variant == VariantDrive {
		return []*SideConfig{c.Left, c.Right}
	}
	return []*SideConfig{c.Arm}
}

// SideNames returns the names matching Sides.
func (c *Config) SideNames() []string {
	if c.Variant == VariantDrive {
		return []string{"left", "right"}
	}
	return []string{"arm"}
}

// Validate checks the configuration is complete enough to build a rig.
func (c *Config) Validate() error {
	switch c.Variant {
	case VariantArm, VariantDrive:
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, c.Variant)
	}
	if c.Hz < 0 {
		return fmt.Errorf("%w: negative hz", ErrInvalidConfig)
	}
	if c.Heading && c.Variant != VariantDrive {
		return fmt.Errorf("%w: heading is only recorded for drivetrains", ErrInvalidConfig)
	}

	for i, side := range c.Sides() {
		name := c.SideNames()[i]
		if side == nil {
			return fmt.Errorf("%w: missing %s side", ErrInvalidConfig, name)
		}
		if len(side.Motors) == 0 {
			return fmt.Errorf("%w: %s side has no motors", ErrInvalidConfig, name)
		}
		if side.Encoder.PulsesPerRev <= 0 {
			return fmt.Errorf("%w: %s encoder needs pulses_per_rev", ErrInvalidConfig, name)
		}
	}
	return nil
}

// ApplyEnv overrides the transport settings from the environment, reading
// a .env file first when one exists.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(&c.Transport); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Files ending in
// .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
