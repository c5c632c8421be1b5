// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bodaay/ckptdl/pkg/ckpt"
)

// LineRenderer prints run events to a console. Transfer progress is a single
// line redrawn in place with a carriage return; every other event gets a line
// of its own.
type LineRenderer struct {
	out         io.Writer
	interactive bool

	// Interval is the minimum time between two progress redraws. The final
	// 100% line is always drawn.
	Interval time.Duration

	lastDraw time.Time
	onLine   bool // a progress line is on screen without a trailing newline

	warn *color.Color
	ok   *color.Color
}

// NewLineRenderer creates a renderer writing to out. Colour and a fast
// redraw rate are used only when out is a terminal.
func NewLineRenderer(out io.Writer) *LineRenderer {
	lr := &LineRenderer{
		out:         out,
		interactive: isInteractive(out),
		warn:        color.New(color.FgYellow),
		ok:          color.New(color.FgGreen),
	}
	lr.Interval = time.Second
	if lr.interactive {
		lr.Interval = 100 * time.Millisecond
	}
	if !lr.interactive || os.Getenv("NO_COLOR") != "" {
		lr.warn.DisableColor()
		lr.ok.DisableColor()
	}
	return lr
}

// Handler returns a ProgressFunc that renders events synchronously.
func (lr *LineRenderer) Handler() ckpt.ProgressFunc {
	return lr.apply
}

// Close terminates a progress line left open by an interrupted transfer.
func (lr *LineRenderer) Close() {
	lr.endLine()
}

func (lr *LineRenderer) apply(ev ckpt.ProgressEvent) {
	switch ev.Event {
	case ckpt.EventDestination:
		lr.println(fmt.Sprintf("Downloading path: %s", ev.Path))
	case ckpt.EventDeleted:
		lr.println(fmt.Sprintf("Deleted: %s", ev.Path))
	case ckpt.EventDeleteError:
		lr.println(lr.warn.Sprintf("Error while deleting %s: %s", ev.Path, ev.Message))
	case ckpt.EventProgress:
		final := ev.Total > 0 && ev.Downloaded >= ev.Total
		if !final && time.Since(lr.lastDraw) < lr.Interval {
			return
		}
		lr.drawProgress(ev.Progress())
	case ckpt.EventDone:
		// Redraw so the line reflects the final count even when throttled.
		lr.drawProgress(ev.Progress())
		lr.println(lr.ok.Sprintf("Download complete: %s", ev.Path))
	}
}

func (lr *LineRenderer) drawProgress(p ckpt.Progress) {
	fmt.Fprintf(lr.out, "\rProgress: %s", p)
	lr.lastDraw = time.Now()
	lr.onLine = true
}

func (lr *LineRenderer) println(s string) {
	lr.endLine()
	fmt.Fprintln(lr.out, s)
}

func (lr *LineRenderer) endLine() {
	if lr.onLine {
		fmt.Fprintln(lr.out)
		lr.onLine = false
	}
}

// QuietHandler prints only events that need attention: deletions and
// deletion failures. Progress is not drawn.
func QuietHandler(out io.Writer) ckpt.ProgressFunc {
	return func(ev ckpt.ProgressEvent) {
		switch ev.Event {
		case ckpt.EventDeleted:
			fmt.Fprintf(out, "Deleted: %s\n", ev.Path)
		case ckpt.EventDeleteError:
			fmt.Fprintf(out, "Error while deleting %s: %s\n", ev.Path, ev.Message)
		case ckpt.EventDone:
			fmt.Fprintf(out, "Download complete: %s\n", ev.Path)
		}
	}
}

// ReportErrors writes one line per description in err, in red on a terminal.
func ReportErrors(out io.Writer, err error) {
	c := color.New(color.FgRed)
	if !isInteractive(out) || os.Getenv("NO_COLOR") != "" {
		c.DisableColor()
	}
	for _, line := range ckpt.Descriptions(err) {
		c.Fprintln(out, strings.TrimRight(line, "\n"))
	}
}

func isInteractive(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	if strings.ToLower(os.Getenv("TERM")) == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
