package index

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/searchapi/internal/item"
	"github.com/Aman-CERP/searchapi/internal/tracker"
)

// Report summarizes an indexing call.
type Report struct {
	Index string `json:"index"`
	// Total is the number of items the call attempted.
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	// Filtered counts items a processor excluded from the index. They are
	// tracked as indexed.
	Filtered int `json:"filtered"`
	// Rejected counts items that failed extraction or were not confirmed by
	// the backend. They stay pending.
	Rejected    int       `json:"rejected"`
	RejectedIDs []item.ID `json:"-"`
	// Missing counts items their datasource no longer provides. They are
	// untracked and removed from the backend.
	Missing  int           `json:"missing"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Processed is the number of items that left the pending state.
func (r Report) Processed() int { return r.Succeeded + r.Filtered + r.Missing }

func (r *Report) add(o Report) {
	r.Total += o.Total
	r.Succeeded += o.Succeeded
	r.Filtered += o.Filtered
	r.Rejected += o.Rejected
	r.RejectedIDs = append(r.RejectedIDs, o.RejectedIDs...)
	r.Missing += o.Missing
	r.Duration += o.Duration
	for _, w := range o.Warnings {
		r.warn(w)
	}
}

func (r *Report) warn(msg string) {
	for _, w := range r.Warnings {
		if w == msg {
			return
		}
	}
	r.Warnings = append(r.Warnings, msg)
}

func (r *Report) finish() {
	if r.Rejected > 0 {
		r.warn(fmt.Sprintf("%d item(s) could not be indexed. Check the logs for details.", r.Rejected))
	}
}

// Status is a snapshot of an index's state.
type Status struct {
	Index       string                    `json:"index"`
	Name        string                    `json:"name"`
	Server      string                    `json:"server,omitempty"`
	Enabled     bool                      `json:"enabled"`
	ReadOnly    bool                      `json:"read_only"`
	Tracker     tracker.Status            `json:"tracker"`
	Datasources map[string]tracker.Status `json:"datasources"`
	Warnings    []string                  `json:"warnings,omitempty"`
}

// Progress is reported after each batch of an indexing run.
type Progress struct {
	Index string
	Done  int
	Total int
	Last  Report
}
