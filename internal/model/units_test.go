package model

import "testing"

func TestToMilliliters(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		units  Units
		want   int
	}{
		{"ml passes through", 300, UnitsMl, 300},
		{"ml rounds fractions", 249.6, UnitsMl, 250},
		{"one ounce", 1, UnitsOz, 30},
		{"eight ounces", 8, UnitsOz, 237},
		{"sixteen ounces", 16, UnitsOz, 473},
		{"tiny ounce rounds to zero", 0.01, UnitsOz, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToMilliliters(tt.amount, tt.units); got != tt.want {
				t.Errorf("ToMilliliters(%v, %s) = %d, want %d", tt.amount, tt.units, got, tt.want)
			}
		})
	}
}

func TestParseUnits(t *testing.T) {
	for _, s := range []string{"ml", "oz"} {
		if _, err := ParseUnits(s); err != nil {
			t.Errorf("ParseUnits(%q) error = %v", s, err)
		}
	}
	for _, s := range []string{"", "ML", "litre"} {
		if _, err := ParseUnits(s); err == nil {
			t.Errorf("ParseUnits(%q) should fail", s)
		}
	}
}

func TestIntakeOnAndRollForward(t *testing.T) {
	p := NewProfile("u1", "2026-10-18")
	p.TodayIntake = 1250

	if got := p.IntakeOn("2026-10-18"); got != 1250 {
		t.Errorf("IntakeOn(same day) = %d, want 1250", got)
	}
	if got := p.IntakeOn("2026-10-19"); got != 0 {
		t.Errorf("IntakeOn(next day) = %d, want 0", got)
	}

	if p.RollForward("2026-10-18") {
		t.Error("RollForward(same day) reported a change")
	}
	if !p.RollForward("2026-10-19") {
		t.Error("RollForward(next day) reported no change")
	}
	if p.TodayIntake != 0 || p.LastLogDate != "2026-10-19" {
		t.Errorf("after RollForward: intake=%d date=%s", p.TodayIntake, p.LastLogDate)
	}
}

func TestNewProfileDefaults(t *testing.T) {
	p := NewProfile("u1", "2026-10-19")

	if p.DailyGoal != 2000 || p.Units != UnitsMl || p.RemindersEnabled || p.ReminderHours != 2 {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if p.TodayIntake != 0 || p.LastLogDate != "2026-10-19" {
		t.Errorf("unexpected day state: %+v", p)
	}
}
