// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. The `json:"..."` tags control the
// HTTP encoding and the `firestore:"..."` tags control how the Firestore backend
// stores the same struct as a document.
package model

import "time"

// DateLayout is the calendar-day format used for LastLogDate and history buckets.
// Go layouts are written against the reference time Mon Jan 2 15:04:05 MST 2006.
const DateLayout = "2006-01-02"

// Profile defaults applied on first authenticated access.
const (
	DefaultDailyGoal     = 2000 // ml
	DefaultReminderHours = 2.0
)

// UserProfile holds a user's preferences and the running intake for one day.
//
// TodayIntake only means something for LastLogDate. Once the caller's calendar
// date moves past LastLogDate the total is stale and must be read as 0 (see IntakeOn).
type UserProfile struct {
	ID               string  `json:"id"               firestore:"id"`
	Email            string  `json:"email"            firestore:"email"`
	DailyGoal        int     `json:"dailyGoal"        firestore:"dailyGoal"` // ml
	Units            Units   `json:"units"            firestore:"units"`
	RemindersEnabled bool    `json:"remindersEnabled" firestore:"remindersEnabled"`
	ReminderHours    float64 `json:"reminderHours"    firestore:"reminderHours"`
	TodayIntake      int     `json:"todayIntake"      firestore:"todayIntake"` // ml
	LastLogDate      string  `json:"lastLogDate"      firestore:"lastLogDate"` // YYYY-MM-DD
}

// NewProfile returns the profile a brand new user starts with.
func NewProfile(userID, today string) *UserProfile {
	return &UserProfile{
		ID:               userID,
		DailyGoal:        DefaultDailyGoal,
		Units:            UnitsMl,
		RemindersEnabled: false,
		ReminderHours:    DefaultReminderHours,
		TodayIntake:      0,
		LastLogDate:      today,
	}
}

// IntakeOn returns the running total that applies to the given day:
// TodayIntake when the profile was last written on that day, otherwise 0.
func (p *UserProfile) IntakeOn(day string) int {
	if p.LastLogDate != day {
		return 0
	}
	return p.TodayIntake
}

// RollForward resets the running total when day is not LastLogDate.
// It reports whether anything changed.
func (p *UserProfile) RollForward(day string) bool {
	if p.LastLogDate == day {
		return false
	}
	p.TodayIntake = 0
	p.LastLogDate = day
	return true
}

// Progress is TodayIntake as a fraction of DailyGoal, clamped to [0, 1].
func (p *UserProfile) Progress() float64 {
	if p.DailyGoal <= 0 {
		return 0
	}
	f := float64(p.TodayIntake) / float64(p.DailyGoal)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// DayString formats t as a calendar day in loc.
// A nil loc means UTC.
func DayString(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}
