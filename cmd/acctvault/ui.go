package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	infoPrefix    = color.New(color.FgCyan).Sprint("[info]")
	warnPrefix    = color.New(color.FgYellow).Sprint("[warn]")
	errorPrefix   = color.New(color.FgRed).Sprint("[error]")
	successPrefix = color.New(color.FgGreen).Sprint("[ok]")
)

func printInfo(format string, a ...any) {
	fmt.Fprintln(os.Stderr, infoPrefix, fmt.Sprintf(format, a...))
}

func printWarn(format string, a ...any) {
	fmt.Fprintln(os.Stderr, warnPrefix, fmt.Sprintf(format, a...))
}

func printError(format string, a ...any) {
	fmt.Fprintln(os.Stderr, errorPrefix, fmt.Sprintf(format, a...))
}

func printSuccess(format string, a ...any) {
	fmt.Fprintln(os.Stderr, successPrefix, fmt.Sprintf(format, a...))
}

// startSpinner shows a spinner on stderr when it is a terminal and returns
// a function that stops it.
func startSpinner(message string) func() {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	_ = s.Color("cyan")
	s.Start()
	return s.Stop
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// orDash renders empty values as "-".
func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
