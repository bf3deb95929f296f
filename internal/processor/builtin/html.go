package builtin

import (
	"html"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	htmlchar "github.com/blevesearch/bleve/v2/analysis/char/html"

	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/processor"
)

// DefaultTagBoosts weights text inside emphasising tags.
var DefaultTagBoosts = map[string]float64{
	"h1": 5, "h2": 3, "h3": 2, "strong": 2, "b": 2, "em": 1.5,
}

var (
	attrPattern    = regexp.MustCompile(`(?i)\b(title|alt)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	boostedPattern = regexp.MustCompile(`(?is)<(h[1-6]|strong|b|em|i|u)\b[^>]*>(.*?)</(h[1-6]|strong|b|em|i|u)\s*>`)
	spacePattern   = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// htmlFilter strips markup. Text inside boosted tags becomes tokens with
// the tag's boost; title and alt attributes can be kept as text.
type htmlFilter struct {
	processor.Base
	strip analysis.CharFilter
	title bool
	alt   bool
	boost map[string]float64
}

func newHTMLFilter(_ field.Schema, cfg processor.Config) (processor.Processor, error) {
	strip, err := htmlchar.CharFilterConstructor(nil, nil)
	if err != nil {
		return nil, err
	}
	p := &htmlFilter{
		Base:  processor.NewBase(HTMLFilter, cfg.Fields, processor.FulltextTypes),
		strip: strip,
		title: cfg.Bool("title", false),
		alt:   cfg.Bool("alt", true),
		boost: DefaultTagBoosts,
	}
	if tags, ok := cfg.Settings["tags"].(map[string]any); ok {
		p.boost = make(map[string]float64, len(tags))
		for tag, v := range tags {
			sub := processor.Config{Settings: map[string]any{"v": v}}
			if b := sub.Float("v", 0); b > 0 {
				p.boost[strings.ToLower(tag)] = b
			}
		}
	}
	return p, nil
}

func (p *htmlFilter) Process(s string) field.Value {
	if !strings.Contains(s, "<") {
		return field.Scalar(p.clean(s))
	}

	var attrs []string
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		name := strings.ToLower(m[1])
		if (name == "title" && p.title) || (name == "alt" && p.alt) {
			attrs = append(attrs, m[2]+m[3])
		}
	}

	var tokens []field.Token
	boosted := false
	last := 0
	for _, m := range boostedPattern.FindAllStringSubmatchIndex(s, -1) {
		open, closing := strings.ToLower(s[m[2]:m[3]]), strings.ToLower(s[m[6]:m[7]])
		score, ok := p.boost[open]
		if !ok || open != closing {
			continue
		}
		tokens = p.appendText(tokens, s[last:m[0]], 1)
		tokens = p.appendText(tokens, s[m[4]:m[5]], score)
		last = m[1]
		boosted = true
	}
	tokens = p.appendText(tokens, s[last:], 1)
	for _, a := range attrs {
		tokens = p.appendText(tokens, a, 1)
	}

	if !boosted {
		parts := make([]string, len(tokens))
		for i, t := range tokens {
			parts[i] = t.Value
		}
		return field.Scalar(strings.Join(parts, " "))
	}
	return field.TokenList(tokens)
}

func (p *htmlFilter) appendText(tokens []field.Token, fragment string, score float64) []field.Token {
	text := p.clean(string(p.strip.Filter([]byte(fragment))))
	if text == "" {
		return tokens
	}
	return append(tokens, field.Token{Value: text, Score: score})
}

func (p *htmlFilter) clean(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(html.UnescapeString(s), " "))
}
