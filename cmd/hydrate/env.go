package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sakif/hydrate/internal/client"
)

// Settings come from HYDRATE_* environment variables.
type Settings struct {
	URL       string `envconfig:"URL" default:"http://localhost:8080"`
	Token     string `envconfig:"TOKEN"`
	TZ        string `envconfig:"TZ"`
	TokenFile string `envconfig:"TOKEN_FILE"` // default: <user config dir>/hydrate/token
}

// Env is what every command runs against.
type Env struct {
	Settings
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	loc *time.Location
}

func LoadEnv(stdin io.Reader, stdout, stderr io.Writer) (*Env, error) {
	var s Settings
	if err := envconfig.Process("hydrate", &s); err != nil {
		return nil, fmt.Errorf("reading HYDRATE_* settings: %w", err)
	}
	if s.TokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locating config dir (set HYDRATE_TOKEN_FILE): %w", err)
		}
		s.TokenFile = filepath.Join(dir, "hydrate", "token")
	}
	return NewEnv(s, stdin, stdout, stderr)
}

func NewEnv(s Settings, stdin io.Reader, stdout, stderr io.Writer) (*Env, error) {
	loc := time.Local
	if s.TZ != "" {
		l, err := time.LoadLocation(s.TZ)
		if err != nil {
			return nil, fmt.Errorf("HYDRATE_TZ: %w", err)
		}
		loc = l
	}
	return &Env{Settings: s, Stdin: stdin, Stdout: stdout, Stderr: stderr, loc: loc}, nil
}

// Client builds an API client carrying the session token, if any.
func (e *Env) Client() (*client.Client, error) {
	token := e.Token
	if token == "" {
		saved, err := e.savedToken()
		if err != nil {
			return nil, err
		}
		token = saved
	}

	opts := []client.Option{client.WithTimezone(e.timezone())}
	if token != "" {
		opts = append(opts, client.WithToken(token))
	}
	return client.New(e.URL, opts...), nil
}

// timezone is the zone name sent to the server.
func (e *Env) timezone() string {
	if e.TZ != "" {
		return e.TZ
	}
	if name := e.loc.String(); name != "Local" {
		return name
	}
	return "UTC"
}

func (e *Env) savedToken() (string, error) {
	b, err := os.ReadFile(e.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (e *Env) saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(e.TokenFile), 0o700); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := os.WriteFile(e.TokenFile, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

func (e *Env) forgetToken() error {
	if err := os.Remove(e.TokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token: %w", err)
	}
	return nil
}

// readLine prompts on stderr and reads one line from stdin.
func (e *Env) readLine(prompt string) (string, error) {
	fmt.Fprint(e.Stderr, prompt)
	line, err := bufio.NewReader(e.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
