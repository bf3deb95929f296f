package builtin

import (
	"slices"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/processor"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// Highlight defaults.
const (
	DefaultPrefix        = "<strong>"
	DefaultSuffix        = "</strong>"
	DefaultExcerptLength = 256
	excerptContext       = 60
	excerptEllipsis      = " … "
)

// highlight builds excerpts around the (preprocessed) search keys from the
// preloaded fulltext fields of each result.
type highlight struct {
	id      string
	prefix  string
	suffix  string
	length  int
	exclude map[string]bool
}

func newHighlight(_ field.Schema, cfg processor.Config) (processor.Processor, error) {
	p := &highlight{
		id:      Highlight,
		prefix:  cfg.String("prefix", DefaultPrefix),
		suffix:  cfg.String("suffix", DefaultSuffix),
		length:  cfg.Int("excerpt_length", DefaultExcerptLength),
		exclude: make(map[string]bool),
	}
	for _, f := range cfg.Strings("exclude_fields") {
		p.exclude[f] = true
	}
	return p, nil
}

func (p *highlight) ID() string { return p.id }

// SupportsIndex requires at least one fulltext field.
func (p *highlight) SupportsIndex(schema field.Schema) bool {
	return len(field.FulltextFields(schema)) > 0
}

func (p *highlight) PostprocessSearchResults(results *query.ResultSet, q *query.Query) {
	keys := q.Keys().Terms()
	if len(keys) == 0 {
		return
	}
	fields := q.Fields()
	for _, it := range results.Items() {
		if it.Excerpt != "" || it.Fields == nil {
			continue
		}
		var texts []string
		for _, key := range fields {
			if p.exclude[key] {
				continue
			}
			if v, ok := it.Fields[key]; ok {
				texts = append(texts, v.Text())
			}
		}
		it.Excerpt = p.Excerpt(strings.Join(texts, " "), keys)
	}
}

// span is a match in rune offsets of the original text.
type span struct{ start, end int }

// Excerpt returns fragments of text around matches of keys, with matches
// wrapped in prefix and suffix. Keys match word prefixes, case-insensitively,
// so stemmed keys still find inflected words.
func (p *highlight) Excerpt(text string, keys []string) string {
	if text == "" {
		return ""
	}
	fold := cases.Fold()
	runes := []rune(text)
	folded, origin := foldRunes(fold, runes)

	var matches []span
	for _, k := range keys {
		key := []rune(fold.String(strings.TrimSpace(k)))
		if len(key) == 0 {
			continue
		}
		for from := 0; from < len(folded); {
			start := indexRunes(folded, key, from)
			if start < 0 {
				break
			}
			end := start + len(key)
			if start == 0 || !isWordRune(folded[start-1]) {
				for end < len(folded) && isWordRune(folded[end]) {
					end++
				}
				matches = append(matches, span{origin[start], origin[end-1] + 1})
			}
			from = start + len(key)
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	var b strings.Builder
	budget := p.length
	prevEnd := -1
	for i := 0; i < len(matches) && budget > 0; i++ {
		m := matches[i]
		if m.start < prevEnd {
			continue
		}
		from := max(m.start-excerptContext, prevEnd, 0)
		to := min(m.end+excerptContext, len(runes))
		// merge following matches inside this window
		last := i
		for last+1 < len(matches) && matches[last+1].start < to {
			last++
			if matches[last].end > to {
				to = min(matches[last].end+excerptContext, len(runes))
			}
		}
		if b.Len() > 0 || from > 0 {
			b.WriteString(excerptEllipsis)
		}
		cursor := from
		for _, mm := range matches[i : last+1] {
			if mm.start < cursor {
				continue
			}
			b.WriteString(string(runes[cursor:mm.start]))
			b.WriteString(p.prefix)
			b.WriteString(string(runes[mm.start:mm.end]))
			b.WriteString(p.suffix)
			cursor = mm.end
		}
		b.WriteString(string(runes[cursor:to]))
		budget -= to - from
		prevEnd = to
		i = last
	}
	if prevEnd < len(runes) {
		b.WriteString(excerptEllipsis)
	}
	return strings.TrimSpace(b.String())
}

// foldRunes case-folds text rune by rune. A rune may fold to several
// (ß to ss); origin maps every folded rune to its rune in text.
func foldRunes(fold cases.Caser, text []rune) ([]rune, []int) {
	folded := make([]rune, 0, len(text))
	origin := make([]int, 0, len(text))
	for i, r := range text {
		for _, f := range fold.String(string(r)) {
			folded = append(folded, f)
			origin = append(origin, i)
		}
	}
	return folded, origin
}

// indexRunes returns the first index of sub in s at or after from, or -1.
func indexRunes(s, sub []rune, from int) int {
	for i := from; i+len(sub) <= len(s); i++ {
		if slices.Equal(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
