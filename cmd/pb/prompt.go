package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readSecret returns value when set, otherwise prompts for it. On a
// terminal the input is not echoed.
func readSecret(cmd *cobra.Command, prompt, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(prompt, ": "), err)
		}
		return requireValue(string(b), prompt)
	}

	line, err := readLine(cmd.InOrStdin())
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	return requireValue(line, prompt)
}

// confirm asks a yes/no question, defaulting to no.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	line, _ := readLine(cmd.InOrStdin())
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// readLine reads up to and excluding the next newline. It reads one byte at
// a time so that consecutive prompts on a pipe do not lose buffered input.
func readLine(r io.Reader) (string, error) {
	var (
		sb  strings.Builder
		buf [1]byte
	)
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			return sb.String(), err
		}
	}
}

func requireValue(s, prompt string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New(strings.TrimSuffix(prompt, ": ") + " is required")
	}
	return s, nil
}
