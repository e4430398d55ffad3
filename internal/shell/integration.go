package shell

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	markerStart = "# >>> sgptr shell integration >>>"
	markerEnd   = "# <<< sgptr shell integration <<<"
)

// ErrUnsupportedShell is returned for shells without an integration snippet.
var ErrUnsupportedShell = errors.New("unsupported shell")

// bashSnippet binds Ctrl+I (Tab) to replace the current line with its completion.
const bashSnippet = `_sgptr_bash() {
if [[ -n "$READLINE_LINE" ]]; then
    READLINE_LINE=$(sgptr <<< "$READLINE_LINE")
    READLINE_POINT=${#READLINE_LINE}
fi
}
bind -x '"\C-i": _sgptr_bash'
`

const zshSnippet = `_sgptr_zsh() {
if [[ -n "$BUFFER" ]]; then
    _sgptr_prev_cmd=$BUFFER
    BUFFER+="⌛"
    zle -I && zle redisplay
    BUFFER=$(sgptr <<< "$_sgptr_prev_cmd")
    zle end-of-line
fi
}
zle -N _sgptr_zsh
bindkey ^i _sgptr_zsh
`

// Snippet returns the marker-delimited integration section for shell.
func Snippet(shell string) (string, error) {
	var body string
	switch shell {
	case "bash":
		body = bashSnippet
	case "zsh":
		body = zshSnippet
	default:
		return "", fmt.Errorf("%w: %q (bash and zsh are supported)", ErrUnsupportedShell, shell)
	}
	return markerStart + "\n" + body + markerEnd + "\n", nil
}

// ProfilePath returns the rc file the integration is installed into.
func ProfilePath(shell, home string) (string, error) {
	switch shell {
	case "bash":
		return filepath.Join(home, ".bashrc"), nil
	case "zsh":
		return filepath.Join(home, ".zshrc"), nil
	default:
		return "", fmt.Errorf("%w: %q (bash and zsh are supported)", ErrUnsupportedShell, shell)
	}
}

// Install adds the integration for shell to profile, replacing an earlier
// installation in place.
func Install(profile, shell string) error {
	section, err := Snippet(shell)
	if err != nil {
		return err
	}

	mode := fs.FileMode(0o644)
	existing, err := os.ReadFile(profile)
	switch {
	case err == nil:
		if info, statErr := os.Stat(profile); statErr == nil {
			mode = info.Mode().Perm()
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("reading %s: %w", profile, err)
	}

	content := replaceSection(string(existing), section)
	if err := os.WriteFile(profile, []byte(content), mode); err != nil {
		return fmt.Errorf("writing %s: %w", profile, err)
	}
	return nil
}

// Uninstall removes the integration from profile. It reports whether a
// section was found.
func Uninstall(profile string) (bool, error) {
	existing, err := os.ReadFile(profile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", profile, err)
	}

	content, found := removeSection(string(existing))
	if !found {
		return false, nil
	}
	info, err := os.Stat(profile)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", profile, err)
	}
	if err := os.WriteFile(profile, []byte(content), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("writing %s: %w", profile, err)
	}
	return true, nil
}

func replaceSection(existing, section string) string {
	startIdx := strings.Index(existing, markerStart)
	endIdx := strings.Index(existing, markerEnd)

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		if existing != "" && !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(markerEnd):], "\n")
	return before + section + after
}

func removeSection(existing string) (string, bool) {
	startIdx := strings.Index(existing, markerStart)
	endIdx := strings.Index(existing, markerEnd)

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return existing, false
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(markerEnd):], "\n")
	return before + after, true
}
