package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
)

// Command is one hydrate subcommand.
type Command struct {
	Name        string
	Description string
	Usage       string
	Examples    []string
	Run         func(env *Env, args []string) error
}

func (c *Command) PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", c.Description)
	fmt.Fprintf(w, "USAGE:\n    %s\n", c.Usage)
	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nEXAMPLES:\n")
		for _, example := range c.Examples {
			fmt.Fprintf(w, "    %s\n", example)
		}
	}
}

// CommandRegistry dispatches os.Args to commands.
type CommandRegistry struct {
	commands map[string]*Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]*Command)}
}

func (r *CommandRegistry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
}

// Execute runs the command named by args[0].
func (r *CommandRegistry) Execute(env *Env, args []string) error {
	if len(args) < 1 {
		r.PrintHelp(env.Stderr)
		return fmt.Errorf("no command specified")
	}

	switch args[0] {
	case "help", "-h", "--help":
		r.PrintHelp(env.Stdout)
		return nil
	}

	cmd, ok := r.commands[args[0]]
	if !ok {
		r.PrintHelp(env.Stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
	err := cmd.Run(env, args[1:])
	if errors.Is(err, flag.ErrHelp) {
		cmd.PrintUsage(env.Stdout)
		return nil
	}
	return err
}

func (r *CommandRegistry) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "hydrate - track your daily water intake")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "    hydrate <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %-10s %s\n", name, r.commands[name].Description)
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "ENVIRONMENT:")
	fmt.Fprintln(w, "    HYDRATE_URL     server base URL (default http://localhost:8080)")
	fmt.Fprintln(w, "    HYDRATE_TOKEN   session token; overrides the saved one")
	fmt.Fprintln(w, "    HYDRATE_TZ      IANA timezone sent with every request (default local)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'hydrate <command> -h' for more information on a command.")
}

