// Command hydrate is a terminal client for the hydrate server.
//
//	hydrate signin -email ana@example.com
//	hydrate log 250
//	hydrate log -units oz 8
//	hydrate status
//	hydrate history -days 14
package main

import (
	"fmt"
	"os"
)

func main() {
	env, err := LoadEnv(os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	registry := NewCommandRegistry()
	registerCommands(registry)

	if err := registry.Execute(env, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func registerCommands(r *CommandRegistry) {
	r.Register(&Command{
		Name:        "signup",
		Description: "Create an account and save the session",
		Usage:       "hydrate signup -email <email> [-password <password>]",
		Examples:    []string{"hydrate signup -email ana@example.com"},
		Run:         signUpCommand,
	})
	r.Register(&Command{
		Name:        "signin",
		Description: "Sign in and save the session",
		Usage:       "hydrate signin -email <email> [-password <password>]",
		Examples:    []string{"hydrate signin -email ana@example.com"},
		Run:         signInCommand,
	})
	r.Register(&Command{
		Name:        "signout",
		Description: "Forget the saved session",
		Usage:       "hydrate signout",
		Run:         signOutCommand,
	})
	r.Register(&Command{
		Name:        "status",
		Description: "Show today's intake against the daily goal",
		Usage:       "hydrate status",
		Run:         statusCommand,
	})
	r.Register(&Command{
		Name:        "log",
		Description: "Log a drink",
		Usage:       "hydrate log [-units ml|oz] <amount>",
		Examples:    []string{"hydrate log 250", "hydrate log -units oz 8"},
		Run:         logCommand,
	})
	r.Register(&Command{
		Name:        "history",
		Description: "Show daily totals for recent days",
		Usage:       "hydrate history [-days N]",
		Examples:    []string{"hydrate history", "hydrate history -days 30"},
		Run:         historyCommand,
	})
	r.Register(&Command{
		Name:        "settings",
		Description: "Change goal, units or reminders",
		Usage:       "hydrate settings [-goal ml] [-units ml|oz] [-reminders=true|false] [-hours N]",
		Examples: []string{
			"hydrate settings -goal 2500",
			"hydrate settings -reminders=true -hours 1.5",
		},
		Run: settingsCommand,
	})
}
