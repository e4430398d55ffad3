package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// colorCodes maps the color names accepted in DEFAULT_COLOR to ANSI colors.
// Any other value is passed to lipgloss as is, so "212" and "#ff79c6" work.
var colorCodes = map[string]string{
	"black":          "0",
	"red":            "1",
	"green":          "2",
	"yellow":         "3",
	"blue":           "4",
	"magenta":        "5",
	"cyan":           "6",
	"white":          "7",
	"bright_black":   "8",
	"bright_red":     "9",
	"bright_green":   "10",
	"bright_yellow":  "11",
	"bright_blue":    "12",
	"bright_magenta": "13",
	"bright_cyan":    "14",
	"bright_white":   "15",
}

// Printer writes completion text, bold and colored when w is a terminal.
type Printer struct {
	w      io.Writer
	style  lipgloss.Style
	styled bool
	err    error
}

// NewPrinter returns a Printer for w using the named color.
func NewPrinter(w io.Writer, color string) *Printer {
	return newPrinter(w, color, IsTerminal(w))
}

func newPrinter(w io.Writer, color string, styled bool) *Printer {
	code, ok := colorCodes[strings.ToLower(color)]
	if !ok {
		code = color
	}
	style := lipgloss.NewRenderer(w).NewStyle().
		Bold(true).
		TabWidth(lipgloss.NoTabConversion)
	if code != "" {
		style = style.Foreground(lipgloss.Color(code))
	}
	return &Printer{w: w, style: style, styled: styled}
}

// Chunk writes a piece of streamed text without adding a newline.
func (p *Printer) Chunk(s string) {
	if p.err != nil || s == "" {
		return
	}
	if !p.styled {
		_, p.err = io.WriteString(p.w, s)
		return
	}
	// Render line by line: a multi-line render would pad every line to the
	// widest one.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = p.style.Render(line)
		}
	}
	_, p.err = io.WriteString(p.w, strings.Join(lines, "\n"))
}

// Line writes s followed by a newline.
func (p *Printer) Line(s string) {
	p.Chunk(s)
	p.Newline()
}

// Newline ends the current line.
func (p *Printer) Newline() {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w)
}

// Err returns the first write error, if any.
func (p *Printer) Err() error {
	return p.err
}

// IsTerminal reports whether v is a file attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
