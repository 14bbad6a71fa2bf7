// Package term provides ANSI color state and terminal detection.
//
// Colors are package-level variables shared by the logger, the banner and
// the dry-run table. [Configure] resolves them against the stream the
// logger writes to; when colors are disabled the variables are empty
// strings, making string concatenation a no-op.
package term

import (
	"io"
	"os"
	"strings"

	"github.com/backmassage/patchshard/internal/config"
)

// ANSI color codes. Empty when colors are disabled.
var (
	Red     = ""
	Green   = ""
	Yellow  = ""
	Orange  = ""
	Blue    = ""
	Cyan    = ""
	Magenta = ""
	NC      = "" // Reset sequence.
)

// Configure resolves the color mode for output written to w and sets the
// package-level ANSI variables. Called by the logger whenever its console
// stream is set.
func Configure(mode config.ColorMode, w io.Writer) {
	if resolve(mode, w) {
		Red = "\033[1;91m"
		Green = "\033[1;92m"
		Yellow = "\033[1;93m"
		Orange = "\033[1;38;5;208m"
		Blue = "\033[1;94m"
		Cyan = "\033[1;96m"
		Magenta = "\033[1;95m"
		NC = "\033[0m"
	} else {
		Red, Green, Yellow, Orange, Blue, Cyan, Magenta, NC = "", "", "", "", "", "", "", ""
	}
}

// Enabled reports whether ANSI colors are currently active.
func Enabled() bool { return NC != "" }

// resolve determines whether colors should be enabled for w based on the
// configured mode, TTY detection, and the NO_COLOR env var
// (https://no-color.org). In auto mode anything but a terminal file, such
// as a log buffer or a pipe, gets plain text.
func resolve(mode config.ColorMode, w io.Writer) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default: // ColorAuto
		return IsTerminal(w) &&
			os.Getenv("NO_COLOR") == "" &&
			strings.ToLower(os.Getenv("TERM")) != "dumb"
	}
}

// IsTerminal reports whether w is a file attached to a TTY (character
// device).
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
