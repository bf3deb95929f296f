// Package output provides consistent CLI output formatting for messages,
// search results and field listings.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/searchapi/internal/backend"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/mapping"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	title    lipgloss.Style
	dim      lipgloss.Style
}

// New creates a new output Writer without colors.
func New(out io.Writer) *Writer {
	return NewColored(out, false)
}

// NewColored creates a Writer, coloring result titles when useColor is set.
func NewColored(out io.Writer, useColor bool) *Writer {
	w := &Writer{out: out, useColor: useColor, title: lipgloss.NewStyle(), dim: lipgloss.NewStyle()}
	if useColor {
		w.title = w.title.Bold(true).Foreground(lipgloss.Color("154"))
		w.dim = w.dim.Foreground(lipgloss.Color("245"))
	}
	return w
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// maxValueWidth bounds the width of a field value in result listings.
const maxValueWidth = 80

// Results prints a result set: a header line, then one block per hit with
// the requested field values and the excerpt.
func (w *Writer) Results(rs *query.ResultSet) {
	items := rs.Items()
	switch {
	case rs.ResultCount() == 0:
		_, _ = fmt.Fprintln(w.out, "No results found.")
	case len(items) < rs.ResultCount():
		_, _ = fmt.Fprintf(w.out, "Showing %d of %d result(s)\n", len(items), rs.ResultCount())
	default:
		_, _ = fmt.Fprintf(w.out, "%d result(s)\n", rs.ResultCount())
	}

	for i, it := range items {
		_, _ = fmt.Fprintf(w.out, "\n%d. %s %s\n", i+1, w.title.Render(it.ID.String()),
			w.dim.Render(fmt.Sprintf("(score %.3f)", it.Score)))
		keys := make([]string, 0, len(it.Fields))
		for k := range it.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w.out, "   %s: %s\n", k, truncate(display(it.Fields[k]), maxValueWidth))
		}
		if it.Excerpt != "" {
			_, _ = fmt.Fprintf(w.out, "   %s\n", w.dim.Render(it.Excerpt))
		}
	}

	for _, warning := range rs.Warnings() {
		w.Warning(warning)
	}
	if ignored := rs.IgnoredKeys(); len(ignored) > 0 {
		w.Statusf("", "Ignored keys: %s", strings.Join(ignored, ", "))
	}
}

// Facets prints facet value counts, one block per field.
func (w *Writer) Facets(facets map[string][]backend.FacetValue) {
	keys := make([]string, 0, len(facets))
	for k := range facets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w.out, "\n%s\n", w.title.Render(k))
		for _, v := range facets[k] {
			value := v.Value
			if value == "" {
				value = "(none)"
			}
			_, _ = fmt.Fprintf(w.out, "   %-30s %d\n", value, v.Count)
		}
	}
}

// Fields prints the fields an index could be configured with, marking the
// ones already indexed.
func (w *Writer) Fields(m *mapping.Mapping, indexed []field.Definition) {
	used := make(map[string]string, len(indexed))
	for _, d := range indexed {
		used[d.Datasource+"/"+d.Property] = d.Key
	}

	entries := m.Sorted()
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w.out, "No fields available.")
	}
	for _, e := range entries {
		mark, suffix := " ", ""
		if key, ok := used[e.Datasource+"/"+e.Property]; ok {
			mark = "*"
			if key != e.Key {
				suffix = " (as " + key + ")"
			}
		}
		_, _ = fmt.Fprintf(w.out, "%s %-30s %-16s %-10s %s%s\n", mark, e.Label, e.Datasource, e.Type, e.Property, suffix)
	}

	natives := make([]string, 0, len(m.Unmapped))
	for native := range m.Unmapped {
		natives = append(natives, native)
	}
	sort.Strings(natives)
	for _, native := range natives {
		w.Warningf("no field type for %s: %s", native, strings.Join(m.Unmapped[native], ", "))
	}
	if len(m.Expandable) > 0 {
		w.Statusf("", "Add to additional_fields to expand: %s", strings.Join(m.Expandable, ", "))
	}
}

func display(v field.Value) string {
	return strings.Join(v.Texts(), ", ")
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}
