package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/searchapi/internal/index"
)

// StatusRenderer displays the state of indexes.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes one block per index.
func (r *StatusRenderer) Render(statuses []index.Status) error {
	if len(statuses) == 0 {
		_, err := fmt.Fprintln(r.out, "No indexes configured.")
		return err
	}
	blocks := make([]string, 0, len(statuses))
	for _, st := range statuses {
		blocks = append(blocks, r.block(st))
	}
	_, err := fmt.Fprintln(r.out, strings.Join(blocks, "\n"))
	return err
}

func (r *StatusRenderer) block(st index.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.styles.Header.Render(st.Name), r.styles.Dim.Render("("+st.Index+")"))

	server := st.Server
	if server == "" {
		server = "none"
	}
	fmt.Fprintf(&b, "  %s %s\n", r.styles.Label.Render("Server: "), server)
	fmt.Fprintf(&b, "  %s %s\n", r.styles.Label.Render("State:  "), r.state(st))

	t := st.Tracker
	fmt.Fprintf(&b, "  %s %d/%d indexed %s\n", r.styles.Label.Render("Items:  "), t.Indexed, t.Total,
		r.styles.Progress.Render(Bar(fraction(t.Indexed, t.Total), 20)))
	if t.Pending() > 0 {
		fmt.Fprintf(&b, "  %s %d (%d queued)\n", r.styles.Label.Render("Pending:"), t.Pending(), t.Queued)
	}

	names := make([]string, 0, len(st.Datasources))
	for ds := range st.Datasources {
		names = append(names, ds)
	}
	sort.Strings(names)
	rows := make([]string, 0, len(names))
	for _, ds := range names {
		s := st.Datasources[ds]
		rows = append(rows, fmt.Sprintf("    %-16s %d/%d", ds, s.Indexed, s.Total))
	}
	if len(rows) > 0 {
		fmt.Fprintf(&b, "  %s\n%s\n", r.styles.Label.Render("Datasources:"), lipgloss.JoinVertical(lipgloss.Left, rows...))
	}
	for _, w := range st.Warnings {
		fmt.Fprintf(&b, "  %s\n", r.styles.Warning.Render("! "+w))
	}
	return b.String()
}

func (r *StatusRenderer) state(st index.Status) string {
	switch {
	case !st.Enabled:
		return r.styles.Dim.Render("disabled")
	case st.ReadOnly:
		return r.styles.Warning.Render("read-only")
	case st.Tracker.Pending() > 0:
		return r.styles.Warning.Render("pending")
	default:
		return r.styles.Success.Render("up to date")
	}
}

// RenderJSON writes the statuses as JSON.
func (r *StatusRenderer) RenderJSON(statuses []index.Status) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(statuses)
}

func fraction(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// FormatBytes formats a size for display.
func FormatBytes(n int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1f GB", float64(n)/float64(GB))
	case n >= MB:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(MB))
	case n >= KB:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(KB))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
