// Package reminder nudges a user to drink when too long has passed since their
// last water log.
//
// Reminders are scoped to an open client session: a Session exists while the
// client holds its notification stream open, and nothing is persisted or sent
// once it goes away. Each session owns at most one pending one-shot timer that
// is re-armed whenever the user's latest log or reminder settings change.
package reminder

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/notify"
)

const Title = "Stay Hydrated!"

// Settings is the reminder part of a profile.
type Settings struct {
	Enabled bool
	Hours   float64
}

func SettingsFrom(p *model.UserProfile) Settings {
	if p == nil {
		return Settings{}
	}
	return Settings{Enabled: p.RemindersEnabled, Hours: p.ReminderHours}
}

// Active reports whether a timer should exist at all.
func (s Settings) Active() bool {
	return s.Enabled && s.Hours > 0
}

// Delay returns how long to wait before reminding, or fireNow when the
// threshold has already passed. Without any log the reference point is the
// Unix epoch, so a user who never logged is reminded immediately.
func Delay(now, last time.Time, hasLog bool, hours float64) (wait time.Duration, fireNow bool) {
	if !hasLog {
		last = time.Unix(0, 0)
	}
	threshold := time.Duration(hours * float64(time.Hour))
	since := now.Sub(last)
	if since >= threshold {
		return 0, true
	}
	return threshold - since, false
}

// Message builds the notification shown when the timer fires.
func Message(hours float64, at time.Time) notify.Notification {
	return notify.Notification{
		Title: Title,
		Body:  fmt.Sprintf("It's been over %s hours. Time to log some water!", strconv.FormatFloat(hours, 'f', -1, 64)),
		At:    at,
	}
}
