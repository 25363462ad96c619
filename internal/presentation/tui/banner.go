package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the formbridge banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	lines := []struct {
		text  string
		color string
	}{
		{"   __                      _          _     _            ", "#38bdf8"},
		{"  / _| ___  _ __ _ __ ___ | |__  _ __(_) __| | __ _  ___ ", "#22d3ee"},
		{" | |_ / _ \\| '__| '_ ` _ \\| '_ \\| '__| |/ _` |/ _` |/ _ \\", "#2dd4bf"},
		{" |  _| (_) | |  | | | | | | |_) | |  | | (_| | (_| |  __/", "#34d399"},
		{" |_|  \\___/|_|  |_| |_| |_|_.__/|_|  |_|\\__,_|\\__, |\\___|", "#4ade80"},
		{"                                              |___/      ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
