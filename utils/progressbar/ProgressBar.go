// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ProgressBar prints training progress to the terminal. The bar is
// width characters wide and reaches 100% after max Increment calls.
// Redraws are rate limited so that tight training loops do not spend
// their time printing.
type ProgressBar struct {
	width   int
	max     int
	current int

	out       io.Writer
	start     time.Time
	lastDraw  time.Time
	drawEvery time.Duration
	closed    bool
}

// New returns a new progress bar that is width characters wide,
// reaches 100% after max Increment calls, and redraws at most once
// per drawEvery
func New(width, max int, drawEvery time.Duration) *ProgressBar {
	return &ProgressBar{
		width:     width,
		max:       max,
		out:       os.Stdout,
		start:     time.Now(),
		drawEvery: drawEvery,
	}
}

// Increment records one completed iteration, redrawing the bar if a
// redraw is due
func (p *ProgressBar) Increment() {
	if p.closed || p.current >= p.max {
		return
	}
	p.current++

	if time.Since(p.lastDraw) >= p.drawEvery || p.current == p.max {
		p.draw()
		p.lastDraw = time.Now()
	}
}

// Close draws the final state of the bar and moves to the next line.
// The bar should not be used after it is closed.
func (p *ProgressBar) Close() {
	if p.closed {
		return
	}
	p.draw()
	p.closed = true
	fmt.Fprintln(p.out)
}

// draw renders the bar in place, overwriting the previous render
func (p *ProgressBar) draw() {
	var bar strings.Builder
	bar.WriteString("|")

	progress := float64(p.current) / float64(p.max)
	filled := int(progress * float64(p.width))
	for i := 0; i < p.width; i++ {
		if i < filled {
			bar.WriteString("█")
		} else {
			bar.WriteString(" ")
		}
	}

	bar.WriteString(fmt.Sprintf("| [%.2f%% | elapsed: %v]",
		progress*100, time.Since(p.start).Round(time.Second)))

	fmt.Fprintf(p.out, "\r\033[K%v", bar.String())
}
