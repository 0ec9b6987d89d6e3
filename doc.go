// Package characterization collects the data needed to fit feedforward
// gains (kS, kV, kA) for FRC arms and drivetrains.
//
// A robot program drives the mechanism at a commanded "autospeed" and
// publishes a telemetry record every tick. A host-side logger ramps the
// command slowly (quasistatic) and steps it (dynamic) in both directions,
// records the telemetry of each test and saves it as JSON for analysis.
//
// # Installation
//
//	go install github.com/wpilibsuite/frc-characterization/cmd/characterize@latest
//
// # Usage
//
// First, describe the mechanism and its wiring:
//
//	characterize setup
//
// Then run the robot program and the logger, connected by an MQTT broker:
//
//	characterize robot
//	characterize logger --auto-enable
//
// Without a broker everything runs in one process:
//
//	characterize robot --log
//	characterize dashboard --http :8080
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/characterize: CLI with setup, robot, logger, mode and dashboard commands
//   - pkg/robot: Motor groups, encoder calibration, rig and configuration
//   - pkg/characterize: Characterization loop, telemetry layouts and the fixed-rate driver
//   - pkg/datalog: Test sequencing and data files
//   - pkg/nt: Network table over MQTT or in memory
//   - pkg/dashboard: HTTP and websocket mirror of the table
//   - pkg/hardware/sim: Simulated mechanisms
//   - pkg/hardware/gpio: Raspberry Pi PWM motor controllers and quadrature encoders
//   - pkg/hardware/servo: Feetech servos used as absolute encoders
package characterization
