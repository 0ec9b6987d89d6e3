package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/datalog"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

func TestParseInts(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"12", []int{12}, false},
		{"12, 13", []int{12, 13}, false},
		{"5 6", []int{5, 6}, false},
		{"", nil, false},
		{"12, x", nil, true},
	}

	for _, tt := range tests {
		got, err := parseInts(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseInts(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseInts(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseInts(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}

	if joinInts([]int{5, 6}) != "5, 6" {
		t.Errorf("joinInts = %q", joinInts([]int{5, 6}))
	}
	if validateInts("") == nil {
		t.Error("empty pin list accepted")
	}
	if validatePositive("0") == nil || validatePositive("0.5") != nil {
		t.Error("validatePositive")
	}
}

func TestConfigLayout(t *testing.T) {
	drive := robot.DefaultConfig(robot.VariantDrive)
	if got := configLayout(drive); got != characterize.LayoutDrive {
		t.Errorf("drive layout = %v", got)
	}
	drive.Heading = true
	if got := configLayout(drive); got != characterize.LayoutDriveHeading {
		t.Errorf("drive heading layout = %v", got)
	}
	if got := configLayout(robot.DefaultConfig(robot.VariantArm)); got != characterize.LayoutArm {
		t.Errorf("arm layout = %v", got)
	}
}

func TestBuildRig(t *testing.T) {
	cfg := robot.DefaultConfig(robot.VariantDrive)
	rig, err := buildRig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer rig.Close()
	if len(rig.Sides) != 2 {
		t.Errorf("sides = %d, want 2", len(rig.Sides))
	}

	cfg.Backend = "roborio"
	if _, err := buildRig(cfg); !errors.Is(err, robot.ErrUnknownBackend) {
		t.Errorf("unknown backend error = %v", err)
	}
}

func TestLoadConfigAndTable(t *testing.T) {
	t.Setenv("CHARACTERIZE_BROKER", "")
	path := filepath.Join(t.TempDir(), "robot.yaml")
	if err := robot.DefaultConfig(robot.VariantArm).SaveTo(path); err != nil {
		t.Fatal(err)
	}

	old := opts.Config
	opts.Config = path
	defer func() { opts.Config = old }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Variant != robot.VariantArm {
		t.Errorf("variant = %q", cfg.Variant)
	}
	if err := needBroker(cfg, "logger"); err == nil {
		t.Error("logger allowed without a broker")
	}

	table, err := openTable(cfg, "robot")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := table.(*nt.MemTable); !ok {
		t.Errorf("table = %T, want in-process table", table)
	}

	opts.Config = filepath.Join(t.TempDir(), "missing.json")
	if _, err := loadConfig(); err == nil || !strings.Contains(err.Error(), "run setup") {
		t.Errorf("missing config error = %v", err)
	}
}

func TestSummaryTable(t *testing.T) {
	results := datalog.Results{
		"fast-forward": {
			{0, 12, 0.5, 6, 6, 0, 0, 0, 0},
			{1, 12, 0.5, 6, 6, 2, 3, 0, 0},
		},
	}
	out := summaryTable(characterize.LayoutDrive, results)
	for _, want := range []string{"fast-forward", "Left", "Right", "2.000", "3.000"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
