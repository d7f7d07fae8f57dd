package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ASCIILogo is printed at the start of interactive commands
const ASCIILogo = `
    ╔═══════════════════════════════════════════════════════════╗
    ║ ██╗    ██╗███████╗██╗██████╗  ██████╗                     ║
    ║ ██║    ██║██╔════╝██║██╔══██╗██╔═══██╗                    ║
    ║ ██║ █╗ ██║█████╗  ██║██████╔╝██║   ██║                    ║
    ║ ██║███╗██║██╔══╝  ██║██╔══██╗██║   ██║                    ║
    ║ ╚███╔███╔╝███████╗██║██████╔╝╚██████╔╝                    ║
    ║  ╚══╝╚══╝ ╚══════╝╚═╝╚═════╝  ╚═════╝   TIMELINE CRAWLER  ║
    ╚═══════════════════════════════════════════════════════════╝
`

var (
	mu           sync.RWMutex
	out          io.Writer = os.Stdout
	quietMode    bool
	colorEnabled = true
)

// SetOutput redirects everything the package prints; nil restores stdout
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetQuietMode suppresses everything but errors
func SetQuietMode(quiet bool) {
	mu.Lock()
	defer mu.Unlock()
	quietMode = quiet
}

func IsQuietMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return quietMode
}

// SetColorEnabled turns ANSI colors on or off
func SetColorEnabled(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	colorEnabled = enabled
}

func output() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return out
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

func colorize(colorString string) func(string) string {
	return func(text string) string {
		mu.RLock()
		enabled := colorEnabled
		mu.RUnlock()
		if !enabled {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

func PrintLogo() {
	if IsQuietMode() {
		return
	}
	fmt.Fprint(output(), Cyan(ASCIILogo))
}

// PrintError prints in red, even in quiet mode
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(output(), Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(output(), Red(msg))
	}
}

func PrintSuccess(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(output(), Green(msg))
}

func PrintInfo(label string, value string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(output(), "%s: %s\n", Cyan(label), Yellow(value))
}

func PrintWarning(msg string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(output(), Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(output(), Yellow(msg))
	}
}

func PrintHighlight(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(output(), Magenta(msg))
}
