package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrEmptyEdit is returned when the editor leaves the file empty.
var ErrEmptyEdit = errors.New("editor returned no text")

const defaultEditor = "vim"

// Command builds the command that runs line in the user's shell: $SHELL -c on
// Unix-like systems, PowerShell or cmd.exe on Windows.
func Command(ctx context.Context, line string) *exec.Cmd {
	args := commandArgs(runtime.GOOS, os.Getenv, line)
	return exec.CommandContext(ctx, args[0], args[1:]...)
}

func commandArgs(goos string, getenv func(string) string, line string) []string {
	if goos == "windows" {
		// PowerShell sets PSModulePath to at least three entries.
		if len(strings.Split(getenv("PSModulePath"), ";")) >= 3 {
			return []string{"powershell.exe", "-Command", line}
		}
		return []string{"cmd.exe", "/c", line}
	}
	sh := getenv("SHELL")
	if sh == "" {
		sh = "/bin/sh"
	}
	return []string{sh, "-c", line}
}

// Run executes line in the user's shell attached to the current terminal.
// A non-zero exit status is returned as an *exec.ExitError.
func Run(ctx context.Context, line string) error {
	cmd := Command(ctx, line)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Edit opens initial in $EDITOR (vim when unset) and returns the saved text.
func Edit(ctx context.Context, initial string) (string, error) {
	f, err := os.CreateTemp("", "sgptr-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(initial); err != nil {
		f.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing temp file: %w", err)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = defaultEditor
	}
	// EDITOR may carry arguments ("code --wait"), so it goes through the shell.
	if err := Run(ctx, editor+" "+quote(path)); err != nil {
		return "", fmt.Errorf("running editor %q: %w", editor, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading edited file: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyEdit
	}
	return string(data), nil
}

// quote makes path safe to splice into a shell command line.
func quote(path string) string {
	if runtime.GOOS == "windows" {
		return `"` + path + `"`
	}
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// Name returns the base name of the user's login shell, e.g. "zsh".
func Name() string {
	sh := os.Getenv("SHELL")
	if sh == "" {
		return ""
	}
	return filepath.Base(sh)
}
