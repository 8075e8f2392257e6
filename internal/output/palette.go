package output

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	red       = "\033[31m"
	green     = "\033[32m"
	bold      = "\033[1m"
	underline = "\033[4m"
	reset     = "\033[0m"
)

// Palette applies ANSI styles when enabled.
type Palette struct {
	enabled bool
}

// NewPalette resolves a color mode for w. In auto mode colors are used only
// when w is a terminal and NO_COLOR is unset.
func NewPalette(mode string, w io.Writer) Palette {
	switch mode {
	case "always":
		return Palette{enabled: true}
	case "never":
		return Palette{}
	}
	if os.Getenv("NO_COLOR") != "" {
		return Palette{}
	}
	f, ok := w.(*os.File)
	if !ok {
		return Palette{}
	}
	return Palette{enabled: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())}
}

// Enabled reports whether styles are emitted.
func (p Palette) Enabled() bool { return p.enabled }

func (p Palette) wrap(code, s string) string {
	if !p.enabled {
		return s
	}
	return code + s + reset
}

func (p Palette) Red(s string) string       { return p.wrap(red, s) }
func (p Palette) Green(s string) string     { return p.wrap(green, s) }
func (p Palette) Bold(s string) string      { return p.wrap(bold, s) }
func (p Palette) Underline(s string) string { return p.wrap(underline, s) }
