package main

import (
	"fmt"
	"io"
	"os"
)

// ANSI styling for the CLI's stderr reporting. Color is suppressed by
// --no-color or by the NO_COLOR convention (https://no-color.org).
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

// outW receives all CLI reporting; tests swap it for a buffer.
var outW io.Writer = os.Stderr

func colorsEnabled() bool {
	if noColor {
		return false
	}
	_, disabled := os.LookupEnv("NO_COLOR")
	return !disabled
}

func paint(code, text string) string {
	if !colorsEnabled() {
		return text
	}
	return code + text + ansiReset
}

// styled prints one glyph-prefixed line, the shared shape of all
// progress and result reporting.
func styled(code, glyph, format string, args ...any) {
	fmt.Fprintln(outW, paint(code, glyph+" "+fmt.Sprintf(format, args...)))
}

func printStep(format string, args ...any)    { styled(ansiCyan, "→", format, args...) }
func printSuccess(format string, args ...any) { styled(ansiGreen, "✓", format, args...) }
func printWarning(format string, args ...any) { styled(ansiYellow, "⚠", format, args...) }
func printError(format string, args ...any)   { styled(ansiRed, "✗", format, args...) }

// printStatus prints an indented "label: value" row for the status
// view and the session summary.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(outW, "  %s %s\n", paint(ansiBold, label+":"), fmt.Sprintf(format, args...))
}

// printRate renders a session compliance rate with a color band:
// green from 90%, yellow from 70%, red below that.
func printRate(label string, rate float64) {
	code := ansiRed
	switch {
	case rate >= 0.9:
		code = ansiGreen
	case rate >= 0.7:
		code = ansiYellow
	}
	fmt.Fprintf(outW, "  %s %s\n", paint(ansiBold, label+":"), paint(code, fmt.Sprintf("%.0f%%", rate*100)))
}
