package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	barWidth  = 30
	clearLine = "\r\033[K"
)

// LiveRenderer redraws a single progress line in place and prints a
// styled summary panel at the end.
type LiveRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	styles   Styles
	progress *ProgressTracker
	errors   []ErrorEvent
	drawn    bool
}

// NewLiveRenderer creates a renderer for interactive terminals.
func NewLiveRenderer(cfg Config) *LiveRenderer {
	return &LiveRenderer{
		out:      cfg.Output,
		styles:   GetStyles(cfg.NoColor),
		progress: NewProgressTracker(),
	}
}

// Start implements Renderer.
func (r *LiveRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer.
func (r *LiveRenderer) UpdateProgress(event ProgressEvent) {
	r.progress.Update(event)
	st := r.progress.Stats()

	r.mu.Lock()
	defer r.mu.Unlock()
	line := fmt.Sprintf("%s %s %s %d/%d",
		r.styles.Header.Render(st.Index),
		r.styles.Progress.Render(Bar(st.Progress, barWidth)),
		r.styles.Label.Render(fmt.Sprintf("%3.0f%%", st.Progress*100)),
		st.Done, st.Total)
	if st.Rate > 0 {
		line += r.styles.Label.Render(fmt.Sprintf("  %.1f/s", st.Rate))
	}
	if st.ETA > 0 {
		line += r.styles.Label.Render("  ETA " + st.ETA.Round(time.Second).String())
	}
	if st.Rejected > 0 {
		line += "  " + r.styles.Warning.Render(fmt.Sprintf("%d rejected", st.Rejected))
	}
	_, _ = fmt.Fprint(r.out, clearLine+line)
	r.drawn = true
}

// AddError implements Renderer.
func (r *LiveRenderer) AddError(event ErrorEvent) {
	r.progress.AddError(event)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, event)
	r.endLine()
	style, prefix := r.styles.Error, "ERROR"
	if event.IsWarn {
		style, prefix = r.styles.Warning, "WARN"
	}
	msg := fmt.Sprintf("%s: %v", prefix, event.Err)
	if event.Index != "" {
		msg = fmt.Sprintf("%s: %s: %v", prefix, event.Index, event.Err)
	}
	_, _ = fmt.Fprintln(r.out, style.Render(msg))
}

// Complete implements Renderer.
func (r *LiveRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()

	style := r.styles.Success
	if stats.Rejected > 0 || stats.Errors > 0 {
		style = r.styles.Warning
	}
	_, _ = fmt.Fprintln(r.out, r.styles.Panel.Render(style.Render(summary(stats))))
}

// Stop implements Renderer.
func (r *LiveRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	return nil
}

func (r *LiveRenderer) endLine() {
	if r.drawn {
		_, _ = fmt.Fprintln(r.out)
		r.drawn = false
	}
}

// Bar renders a progress bar of width cells for a fraction in [0, 1].
func Bar(fraction float64, width int) string {
	fraction = max(0, min(fraction, 1))
	filled := int(fraction * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
