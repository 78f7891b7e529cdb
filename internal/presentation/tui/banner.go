package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the totml banner to w, colored for the detected terminal profile.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"  _        _             _ ", "#34d399"},
		{" | |_ ___ | |_ _ __ ___ | |", "#2dd4bf"},
		{" | __/ _ \\| __| '_ ` _ \\| |", "#22d3ee"},
		{" | || (_) | |_| | | | | | |", "#38bdf8"},
		{"  \\__\\___/ \\__|_| |_| |_|_|", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Status colors a status word: green for success, red for failure, yellow otherwise.
func Status(s string) string {
	p := termenv.ColorProfile()
	color := "#facc15"
	switch s {
	case "completed", "good", "ok":
		color = "#22c55e"
	case "failed", "buggy":
		color = "#ef4444"
	}
	return termenv.String(s).Foreground(p.Color(color)).Bold().String()
}
