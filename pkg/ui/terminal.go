package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔════════════════════════════════════════════════════════╗
    ║  ███████╗██████╗ ███╗   ███╗ █████╗                    ║
    ║  ██╔════╝██╔══██╗████╗ ████║██╔══██╗                   ║
    ║  █████╗  ██████╔╝██╔████╔██║███████║                   ║
    ║  ██╔══╝  ██╔═══╝ ██║╚██╔╝██║██╔══██║                   ║
    ║  ███████╗██║     ██║ ╚═╝ ██║██║  ██║                   ║
    ║  ╚══════╝╚═╝     ╚═╝     ╚═╝╚═╝  ╚═╝                   ║
    ║        ORDER DRUG NOTE SUPPRESSION UTILITY             ║
    ╚════════════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

var (
	modeMu       sync.RWMutex
	quietMode    bool
	progressOnly bool
	noColor      bool
	out          io.Writer = os.Stdout
)

// SetQuietMode suppresses everything except errors
func SetQuietMode(quiet bool) {
	modeMu.Lock()
	defer modeMu.Unlock()
	quietMode = quiet
}

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return quietMode
}

// SetProgressOnlyMode limits output to the progress line and results
func SetProgressOnlyMode(on bool) {
	modeMu.Lock()
	defer modeMu.Unlock()
	progressOnly = on
}

// IsProgressOnlyMode reports whether progress-only mode is on
func IsProgressOnlyMode() bool {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return progressOnly
}

// SetNoColor disables ANSI colours
func SetNoColor(disabled bool) {
	modeMu.Lock()
	defer modeMu.Unlock()
	noColor = disabled
}

// SetOutput redirects terminal output and returns the previous writer
func SetOutput(w io.Writer) io.Writer {
	modeMu.Lock()
	defer modeMu.Unlock()
	prev := out
	out = w
	return prev
}

// Output returns the writer used for terminal output
func Output() io.Writer {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return out
}

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		modeMu.RLock()
		plain := noColor
		modeMu.RUnlock()
		if plain {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	if IsQuietMode() {
		return
	}
	fmt.Fprint(Output(), Cyan(ASCIILogo))
}

// PrintError prints an error message in red. It is shown even in quiet mode.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Output(), Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output(), Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(Output(), Green(msg))
}

// PrintInfo prints an info message in cyan
func PrintInfo(label string, value string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(Output(), "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(Output(), Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output(), Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(Output(), Magenta(msg))
}
