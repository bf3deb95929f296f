package ui

import (
	"sync"
	"time"
)

// ProgressTracker keeps the state of a run for the live renderer. It is
// safe for concurrent use.
type ProgressTracker struct {
	mu        sync.Mutex
	index     string
	done      int
	total     int
	rejected  int
	start     time.Time
	lastETA   time.Duration
	errors    int
	warnings  int
	now       func() time.Time
	perIndex  map[string]int
	indexList []string
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Index    string
	Done     int
	Total    int
	Rejected int
	Progress float64
	Rate     float64 // items per second
	ETA      time.Duration
	Errors   int
	Warnings int
}

// NewProgressTracker creates a tracker starting now.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	return &ProgressTracker{start: now(), now: now, perIndex: make(map[string]int)}
}

// Update records a progress event. Switching to another index resets the
// ETA smoothing.
func (p *ProgressTracker) Update(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.Index != p.index {
		p.index = event.Index
		p.lastETA = 0
		p.start = p.now()
		if _, ok := p.perIndex[event.Index]; !ok {
			p.indexList = append(p.indexList, event.Index)
		}
	}
	p.done = event.Done
	p.total = event.Total
	p.rejected += event.Rejected
	p.perIndex[event.Index] = event.Done
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Indexes returns the indexes seen so far, in order.
func (p *ProgressTracker) Indexes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.indexList...)
}

// etaSmoothing is the weight of a new ETA estimate.
const etaSmoothing = 0.3

// Stats returns a snapshot of the current index's progress.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := ProgressStats{
		Index:    p.index,
		Done:     p.done,
		Total:    p.total,
		Rejected: p.rejected,
		Errors:   p.errors,
		Warnings: p.warnings,
	}
	if p.total > 0 {
		st.Progress = min(float64(p.done)/float64(p.total), 1)
	}
	elapsed := p.now().Sub(p.start)
	if elapsed > 0 && p.done > 0 {
		st.Rate = float64(p.done) / elapsed.Seconds()
	}
	if st.Progress > 0 && st.Progress < 1 {
		raw := time.Duration(float64(elapsed)/st.Progress) - elapsed
		if p.lastETA > 0 {
			raw = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
		}
		p.lastETA = raw
		st.ETA = raw
	}
	return st
}
