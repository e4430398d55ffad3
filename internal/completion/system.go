package completion

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// SystemInfo reports the user's shell and operating system names, sent with
// every request so the service can tailor commands to them.
func SystemInfo() (shell, osName string) {
	return shellName(runtime.GOOS, os.Getenv), osDisplayName(runtime.GOOS)
}

func shellName(goos string, getenv func(string) string) string {
	if goos == "windows" {
		// PowerShell sets PSModulePath to at least three entries.
		if len(strings.Split(getenv("PSModulePath"), ";")) >= 3 {
			return "powershell.exe"
		}
		return "cmd.exe"
	}
	if sh := getenv("SHELL"); sh != "" {
		return filepath.Base(sh)
	}
	return "sh"
}

func osDisplayName(goos string) string {
	switch goos {
	case "linux":
		if f, err := os.Open("/etc/os-release"); err == nil {
			defer f.Close()
			if name := prettyName(f); name != "" {
				return "Linux/" + name
			}
		}
		return "Linux"
	case "darwin":
		return "Darwin/MacOS"
	case "windows":
		return "Windows"
	default:
		return goos
	}
}

// prettyName extracts PRETTY_NAME from an os-release file.
func prettyName(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		value, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "PRETTY_NAME=")
		if !ok {
			continue
		}
		return strings.Trim(value, `"'`)
	}
	return ""
}
