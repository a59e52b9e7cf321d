package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/hydrate/internal/model"
)

var errBusy = errors.New("busy")

func isBusy(err error) bool { return errors.Is(err, errBusy) }

var errFatal = errors.New("fatal")

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first time", 0, errBusy, 1, nil},
		{"retries busy then succeeds", 2, errBusy, 3, nil},
		{"gives up after max attempts", 10, errBusy, MaxAtomicAttempts, errBusy},
		{"does not retry other errors", 10, errFatal, 1, errFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), MaxAtomicAttempts, isBusy, func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.failures == 0 && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
		})
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, MaxAtomicAttempts, isBusy, func() error {
		calls++
		return errBusy
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ReturnsRejectedErrorUnwrapped(t *testing.T) {
	err := Retry(context.Background(), MaxAtomicAttempts, isBusy, func() error {
		return errFatal
	})
	if err != errFatal {
		t.Errorf("err = %#v, want errFatal itself", err)
	}
}

func TestRetry_AtLeastOneAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 0, isBusy, func() error {
		calls++
		return errBusy
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, errBusy) {
		t.Errorf("err = %v, want errBusy", err)
	}
}

func TestProfilePatch(t *testing.T) {
	p := model.NewProfile("u1", "2024-05-01")
	p.TodayIntake = 900

	patch := RolloverPatch("2024-05-02")
	if patch.Empty() {
		t.Fatal("RolloverPatch should not be empty")
	}
	if got := patch.String(); got != "{todayIntake,lastLogDate}" {
		t.Errorf("String() = %q", got)
	}

	patch.Apply(p)
	if p.TodayIntake != 0 || p.LastLogDate != "2024-05-02" {
		t.Errorf("after Apply: %+v", p)
	}
	if p.DailyGoal != model.DefaultDailyGoal {
		t.Errorf("Apply touched DailyGoal: %d", p.DailyGoal)
	}

	if !(ProfilePatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
}

func TestPaths(t *testing.T) {
	if got := ProfilePath("abc"); got != "users/abc" {
		t.Errorf("ProfilePath = %q", got)
	}
	if got := LogPath("abc", "x1"); got != "users/abc/waterLogs/x1" {
		t.Errorf("LogPath = %q", got)
	}
}
