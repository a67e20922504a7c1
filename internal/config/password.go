package config

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ResolvePassword returns the password named by cfg.PasswordEnv, if set and
// present in the environment. It never prompts.
func ResolvePassword(cfg HostConfig, lookup LookupFunc) (string, bool) {
	if cfg.PasswordEnv == "" {
		return "", false
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return lookup(cfg.PasswordEnv)
}

// Prompter asks the operator for a password.
type Prompter func(prompt string) (string, error)

// TerminalPrompter reads a password from stdin without echo.
func TerminalPrompter(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
