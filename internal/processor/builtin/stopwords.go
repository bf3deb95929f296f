package builtin

import (
	"bufio"
	"bytes"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"golang.org/x/text/cases"

	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/processor"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// ignoredKeysOption carries the keys removed from one query to postprocessing.
const ignoredKeysOption = "stopwords.ignored"

// englishStopwords parses bleve's snowball list ("word | comment" lines).
func englishStopwords() []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(en.EnglishStopWords))
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "|")
		out = append(out, strings.Fields(line)...)
	}
	return out
}

// stopwords removes common words from fulltext values and search keys and
// tells the user which keys were ignored.
type stopwords struct {
	processor.Base
	words map[string]struct{}
}

func newStopwords(_ field.Schema, cfg processor.Config) (processor.Processor, error) {
	list := cfg.Strings("stopwords")
	if len(list) == 0 {
		list = englishStopwords()
	}
	p := &stopwords{
		Base:  processor.NewBase(Stopwords, cfg.Fields, processor.FulltextTypes),
		words: make(map[string]struct{}, len(list)),
	}
	for _, w := range list {
		p.words[cases.Fold().String(w)] = struct{}{}
	}
	return p, nil
}

func (p *stopwords) isStopword(s string) bool {
	_, ok := p.words[cases.Fold().String(strings.TrimSpace(s))]
	return ok
}

func (p *stopwords) Process(s string) field.Value {
	if p.isStopword(s) {
		return field.Scalar("")
	}
	return field.Scalar(s)
}

// PreprocessSearchQuery removes stopwords from keys and conditions and
// records the removed keys on the query.
func (p *stopwords) PreprocessSearchQuery(q *query.Query) {
	sel := p.Selection()
	var ignored []string
	if keys := q.Keys(); keys != nil && sel.SelectsFulltext(q.Index()) {
		processor.ProcessKeys(keys, func(s string) field.Value {
			if p.isStopword(s) {
				ignored = append(ignored, s)
				return field.Scalar("")
			}
			return field.Scalar(s)
		})
	}
	processor.ProcessFilter(q.Filter(), q.Index(), sel, p.Process)
	if len(ignored) > 0 {
		q.SetOption(ignoredKeysOption, ignored)
	}
}

// PostprocessSearchResults reports the ignored keys.
func (p *stopwords) PostprocessSearchResults(results *query.ResultSet, q *query.Query) {
	v, ok := q.Option(ignoredKeysOption)
	if !ok {
		return
	}
	ignored, _ := v.([]string)
	if len(ignored) == 0 {
		return
	}
	results.AddIgnoredKeys(ignored...)
	list := append([]string(nil), results.IgnoredKeys()...)
	sort.Strings(list)
	results.AddWarning("The following search keys are too common and were ignored: " + strings.Join(list, ", "))
}
