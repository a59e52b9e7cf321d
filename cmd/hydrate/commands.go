package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sakif/hydrate/internal/client"
	"github.com/sakif/hydrate/internal/handler"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/service"
)

const requestTimeout = 15 * time.Second

func signUpCommand(env *Env, args []string) error {
	return sessionCommand(env, "signup", args, (*client.Client).SignUp)
}

func signInCommand(env *Env, args []string) error {
	return sessionCommand(env, "signin", args, (*client.Client).SignIn)
}

type sessionFunc func(c *client.Client, ctx context.Context, email, password string) (*handler.SessionResponse, error)

func sessionCommand(env *Env, name string, args []string, call sessionFunc) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	email := fs.String("email", "", "account email (required)")
	password := fs.String("password", "", "password; read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}
	if *password == "" {
		p, err := env.readLine("Password: ")
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		*password = p
	}

	c, err := env.Client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	session, err := call(c, ctx, *email, *password)
	if err != nil {
		return explain(err)
	}
	if err := env.saveToken(session.Token); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Signed in as %s (session valid until %s)\n",
		session.User.Email, session.ExpiresAt.In(env.loc).Format(time.RFC1123))
	return nil
}

func signOutCommand(env *Env, args []string) error {
	if err := env.forgetToken(); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, "Signed out.")
	return nil
}

func statusCommand(env *Env, args []string) error {
	c, err := env.Client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	p, err := c.Profile(ctx)
	if err != nil {
		return explain(err)
	}

	fmt.Fprintf(env.Stdout, "Today (%s): %s of %s (%.0f%%)\n",
		p.LastLogDate,
		formatAmount(p.TodayIntake, p.Units),
		formatAmount(p.DailyGoal, p.Units),
		p.Progress*100,
	)
	if p.GoalReached {
		fmt.Fprintln(env.Stdout, "Goal reached. Nice work!")
	}
	if p.RemindersEnabled {
		fmt.Fprintf(env.Stdout, "Reminders: every %s hours\n", strconv.FormatFloat(p.ReminderHours, 'f', -1, 64))
	} else {
		fmt.Fprintln(env.Stdout, "Reminders: off")
	}
	return nil
}

func logCommand(env *Env, args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	unitsFlag := fs.String("units", "", "ml or oz (default: your profile's units)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: hydrate log [-units ml|oz] <amount>")
	}
	amount, err := strconv.ParseFloat(fs.Arg(0), 64)
	if err != nil || amount <= 0 {
		return fmt.Errorf("amount must be a positive number, got %q", fs.Arg(0))
	}

	c, err := env.Client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	view := client.NewView(c, env.loc)
	if err := view.Refresh(ctx); err != nil {
		return explain(err)
	}
	before, _ := view.Profile()

	units := before.Units
	if *unitsFlag != "" {
		if units, err = model.ParseUnits(*unitsFlag); err != nil {
			return err
		}
	}

	if err := view.LogWater(ctx, amount, units); err != nil {
		return explain(err)
	}
	after, _ := view.Profile()
	fmt.Fprintf(env.Stdout, "Logged %s. Today: %s of %s\n",
		formatAmount(model.ToMilliliters(amount, units), units),
		formatAmount(after.TodayIntake, after.Units),
		formatAmount(after.DailyGoal, after.Units),
	)
	return nil
}

func historyCommand(env *Env, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	days := fs.Int("days", service.DefaultHistoryDays, fmt.Sprintf("number of days, up to %d", service.MaxHistoryDays))
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := env.Client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	p, err := c.Profile(ctx)
	if err != nil {
		return explain(err)
	}
	totals, err := c.History(ctx, *days)
	if err != nil {
		return explain(err)
	}

	tw := tabwriter.NewWriter(env.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTOTAL\tGOAL")
	for _, d := range totals {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Date, formatAmount(d.Total, p.Units), bar(d.Total, p.DailyGoal))
	}
	return tw.Flush()
}

func settingsCommand(env *Env, args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	goal := fs.Int("goal", 0, "daily goal in ml")
	units := fs.String("units", "", "display units: ml or oz")
	reminders := fs.Bool("reminders", false, "enable reminders")
	hours := fs.Float64("hours", 0, "hours between reminders")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch service.SettingsPatch
	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "goal":
			patch.DailyGoal = goal
		case "units":
			u, err := model.ParseUnits(*units)
			if err != nil {
				parseErr = err
				return
			}
			patch.Units = &u
		case "reminders":
			patch.RemindersEnabled = reminders
		case "hours":
			patch.ReminderHours = hours
		}
	})
	if parseErr != nil {
		return parseErr
	}
	if patch == (service.SettingsPatch{}) {
		return errors.New("nothing to change; see 'hydrate settings -h'")
	}

	c, err := env.Client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := c.UpdateSettings(ctx, patch); err != nil {
		return explain(err)
	}
	return statusCommand(env, nil)
}

// explain turns API errors into a line a person can act on.
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Type == "unauthorized" {
		return errors.New("not signed in; run 'hydrate signin -email <email>'")
	}
	if apiErr.Message != "" {
		return errors.New(apiErr.Message)
	}
	return err
}

func formatAmount(ml int, u model.Units) string {
	if u == model.UnitsOz {
		return fmt.Sprintf("%.1f oz", model.FromMilliliters(ml, u))
	}
	return fmt.Sprintf("%d ml", ml)
}

// bar draws progress toward the goal in 20 cells.
func bar(total, goal int) string {
	const width = 20
	if goal <= 0 {
		return ""
	}
	filled := total * width / goal
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
