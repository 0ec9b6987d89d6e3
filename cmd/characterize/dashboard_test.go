package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

func TestWatcher(t *testing.T) {
	table := nt.NewMemTable()
	logs := characterize.NewLogChannel(10)
	w := newWatcher(table, logs)

	table.SetNumber(nt.DashboardKey("encoder_pos"), 1)
	table.SetNumber(nt.DashboardKey("encoder_rate"), 2.5)

	select {
	case s := <-w.samples:
		if s["encoder_pos"] != 1 || s["encoder_rate"] != 2.5 {
			t.Errorf("sample = %v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample")
	}

	w.setMode(characterize.ModeAutonomous)
	if w.mode() != characterize.ModeAutonomous {
		t.Errorf("mode = %v", w.mode())
	}
	select {
	case line := <-logs:
		if !strings.Contains(line, "auto") {
			t.Errorf("log = %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("no log line")
	}
}

func TestDashboardKeys(t *testing.T) {
	table := nt.NewMemTable()
	w := newWatcher(table, characterize.NewLogChannel(10))
	m := initialDashboardModel(w, "test", robot.VariantArm, 10, 0.25)

	press := func(key string) {
		var msg tea.KeyMsg
		switch key {
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}
		next, _ := m.Update(msg)
		m = next.(dashboardModel)
	}

	press("t")
	if w.mode() != characterize.ModeTeleop {
		t.Errorf("mode after t = %v", w.mode())
	}

	press("up")
	press("up")
	press("down")
	if got := table.Number(nt.AutoSpeedKey, 0); got != 0.25 {
		t.Errorf("autospeed = %v, want 0.25", got)
	}
	for i := 0; i < 10; i++ {
		press("up")
	}
	if got := table.Number(nt.AutoSpeedKey, 0); got != 1 {
		t.Errorf("autospeed = %v, want clamped to 1", got)
	}

	press("d")
	if w.mode() != characterize.ModeDisabled || table.Number(nt.AutoSpeedKey, -1) != 0 {
		t.Errorf("disable left mode %v autospeed %v", w.mode(), table.Number(nt.AutoSpeedKey, -1))
	}

	next, _ := m.Update(sampleMsg{"encoder_pos": 3, "encoder_rate": 1})
	m = next.(dashboardModel)
	if !strings.Contains(m.View(), "encoder_pos 3.000") {
		t.Errorf("view does not show the position:\n%s", m.View())
	}
}
