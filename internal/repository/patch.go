package repository

import (
	"strings"

	"github.com/sakif/hydrate/internal/model"
)

// ProfilePatch is a partial profile update. Nil fields are left untouched,
// which is how "update only what the settings dialog changed" and the
// read-path rollover reset share one code path.
type ProfilePatch struct {
	Email            *string
	DailyGoal        *int
	Units            *model.Units
	RemindersEnabled *bool
	ReminderHours    *float64
	TodayIntake      *int
	LastLogDate      *string
}

// RolloverPatch resets the running total for day.
func RolloverPatch(day string) ProfilePatch {
	zero := 0
	return ProfilePatch{TodayIntake: &zero, LastLogDate: &day}
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Apply writes the non-nil fields onto profile.
func (p ProfilePatch) Apply(profile *model.UserProfile) {
	if p.Email != nil {
		profile.Email = *p.Email
	}
	if p.DailyGoal != nil {
		profile.DailyGoal = *p.DailyGoal
	}
	if p.Units != nil {
		profile.Units = *p.Units
	}
	if p.RemindersEnabled != nil {
		profile.RemindersEnabled = *p.RemindersEnabled
	}
	if p.ReminderHours != nil {
		profile.ReminderHours = *p.ReminderHours
	}
	if p.TodayIntake != nil {
		profile.TodayIntake = *p.TodayIntake
	}
	if p.LastLogDate != nil {
		profile.LastLogDate = *p.LastLogDate
	}
}

// Field is one column/value pair of a patch.
//
// Column is the SQL column name; Doc is the Firestore field path. Both come
// from this fixed list, never from user input, so the SQL backends can splice
// Column into a statement while still binding Value as a parameter.
type Field struct {
	Column string
	Doc    string
	Value  any
}

// Fields returns the set fields in a stable order.
func (p ProfilePatch) Fields() []Field {
	var fields []Field
	if p.Email != nil {
		fields = append(fields, Field{"email", "email", *p.Email})
	}
	if p.DailyGoal != nil {
		fields = append(fields, Field{"daily_goal", "dailyGoal", *p.DailyGoal})
	}
	if p.Units != nil {
		fields = append(fields, Field{"units", "units", string(*p.Units)})
	}
	if p.RemindersEnabled != nil {
		fields = append(fields, Field{"reminders_enabled", "remindersEnabled", *p.RemindersEnabled})
	}
	if p.ReminderHours != nil {
		fields = append(fields, Field{"reminder_hours", "reminderHours", *p.ReminderHours})
	}
	if p.TodayIntake != nil {
		fields = append(fields, Field{"today_intake", "todayIntake", *p.TodayIntake})
	}
	if p.LastLogDate != nil {
		fields = append(fields, Field{"last_log_date", "lastLogDate", *p.LastLogDate})
	}
	return fields
}

// String lists the changed fields, for log lines.
func (p ProfilePatch) String() string {
	fields := p.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Doc
	}
	return "{" + strings.Join(names, ",") + "}"
}

// ProfilePath and LogPath build the document paths reported in permission errors.
func ProfilePath(userID string) string {
	return "users/" + userID
}

func LogPath(userID, logID string) string {
	if logID == "" {
		return ProfilePath(userID) + "/waterLogs"
	}
	return ProfilePath(userID) + "/waterLogs/" + logID
}
