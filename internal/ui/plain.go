package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PlainRenderer writes one line per update, for CI and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d", event.Index, event.Done, event.Total)
		if event.Rejected > 0 {
			_, _ = fmt.Fprintf(r.out, " (%d rejected)", event.Rejected)
		}
		if event.Message != "" {
			_, _ = fmt.Fprintf(r.out, " - %s", event.Message)
		}
		_, _ = fmt.Fprintln(r.out)
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Index, event.Message)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Index != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Index, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, summary(stats))
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

// summary formats the completion line shared by every renderer.
func summary(stats CompletionStats) string {
	s := fmt.Sprintf("Complete: %d of %d item(s) indexed", stats.Succeeded, stats.Total)
	if stats.Indexes > 1 {
		s += fmt.Sprintf(" across %d indexes", stats.Indexes)
	}
	s += fmt.Sprintf(" in %s", stats.Duration.Round(100*time.Millisecond))

	var extra []string
	if stats.Filtered > 0 {
		extra = append(extra, fmt.Sprintf("%d filtered", stats.Filtered))
	}
	if stats.Missing > 0 {
		extra = append(extra, fmt.Sprintf("%d removed", stats.Missing))
	}
	if stats.Rejected > 0 {
		extra = append(extra, fmt.Sprintf("%d rejected", stats.Rejected))
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		extra = append(extra, fmt.Sprintf("%d errors, %d warnings", stats.Errors, stats.Warnings))
	}
	if len(extra) > 0 {
		s += " (" + strings.Join(extra, ", ") + ")"
	}
	return s
}
