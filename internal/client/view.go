package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sakif/hydrate/internal/model"
)

// ErrNotLoaded is returned by View methods that need a profile before Refresh
// has succeeded once.
var ErrNotLoaded = errors.New("client: view has no profile yet")

// View is a local copy of the signed-in user's profile that applies a log
// before the server confirms it.
//
// View.LogWater adds the amount to the local total right away. When the
// request fails the profile goes back to the snapshot taken before the call;
// when it succeeds the server's TodayIntake and LastLogDate replace the local
// guess.
type View struct {
	client *Client
	loc    *time.Location
	now    func() time.Time

	mu      sync.Mutex
	profile *model.UserProfile
}

// NewView returns an empty view; call Refresh to load it. loc decides the
// local calendar day for optimistic updates and should match the client's
// timezone. A nil loc means time.Local.
func NewView(c *Client, loc *time.Location) *View {
	if loc == nil {
		loc = time.Local
	}
	return &View{client: c, loc: loc, now: time.Now}
}

// WithClock overrides the clock used to pick the local day.
func (v *View) WithClock(now func() time.Time) *View {
	v.now = now
	return v
}

// Refresh replaces the local copy with the server's.
func (v *View) Refresh(ctx context.Context) error {
	resp, err := v.client.Profile(ctx)
	if err != nil {
		return err
	}
	p := *resp.UserProfile

	v.mu.Lock()
	v.profile = &p
	v.mu.Unlock()
	return nil
}

// Profile returns a copy of the local profile and whether one is loaded.
func (v *View) Profile() (model.UserProfile, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.profile == nil {
		return model.UserProfile{}, false
	}
	return *v.profile, true
}

// LogWater applies the log locally, sends it, and settles the local copy with
// the outcome.
func (v *View) LogWater(ctx context.Context, amount float64, units model.Units) error {
	ml := model.ToMilliliters(amount, units)
	today := model.DayString(v.now(), v.loc)

	v.mu.Lock()
	if v.profile == nil {
		v.mu.Unlock()
		return ErrNotLoaded
	}
	snapshot := *v.profile
	v.profile.TodayIntake = v.profile.IntakeOn(today) + ml
	v.profile.LastLogDate = today
	v.mu.Unlock()

	resp, err := v.client.LogWater(ctx, amount, units)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.profile = &snapshot
		return err
	}
	v.profile.TodayIntake = resp.TodayIntake
	v.profile.LastLogDate = resp.LastLogDate
	return nil
}
