package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// DefaultAPIKeyEnv lists the environment variables checked for the upstream API key.
var DefaultAPIKeyEnv = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}

// DefaultDotEnvFile is read for API keys when the environment has none.
const DefaultDotEnvFile = ".env"

// ErrNoAPIKey is returned when no source yields a non-empty API key.
var ErrNoAPIKey = errors.New("no API key provided")

// KeyResolver resolves the upstream API key through the chain:
//  1. Explicit (usually the --api-key flag)
//  2. environment variables in EnvVars
//  3. the same variables in DotEnvFile
//  4. an interactive prompt on In
type KeyResolver struct {
	Explicit   string
	EnvVars    []string
	DotEnvFile string

	// Interactive enables the prompt step.
	Interactive bool
	In          *os.File
	Out         io.Writer

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// NewKeyResolver returns a resolver reading the process environment and stdin.
func NewKeyResolver(explicit string, envVars []string) *KeyResolver {
	if len(envVars) == 0 {
		envVars = DefaultAPIKeyEnv
	}
	return &KeyResolver{
		Explicit:    explicit,
		EnvVars:     envVars,
		DotEnvFile:  DefaultDotEnvFile,
		Interactive: true,
		In:          os.Stdin,
		Out:         os.Stderr,
		Getenv:      os.Getenv,
	}
}

// Resolve returns the first non-empty key found.
func (r *KeyResolver) Resolve() (string, error) {
	if key := strings.TrimSpace(r.Explicit); key != "" {
		return key, nil
	}

	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range r.EnvVars {
		if key := strings.TrimSpace(getenv(name)); key != "" {
			return key, nil
		}
	}

	if r.DotEnvFile != "" {
		if env, err := godotenv.Read(r.DotEnvFile); err == nil {
			for _, name := range r.EnvVars {
				if key := strings.TrimSpace(env[name]); key != "" {
					return key, nil
				}
			}
		}
	}

	if !r.Interactive || r.In == nil {
		return "", ErrNoAPIKey
	}
	return r.prompt()
}

func (r *KeyResolver) prompt() (string, error) {
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	_, _ = fmt.Fprint(out, "Please enter your Google API key: ")

	var key string
	fd := int(r.In.Fd()) //nolint:gosec // file descriptors fit in int
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		key = string(raw)
	} else {
		line, err := bufio.NewReader(r.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		key = line
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}
