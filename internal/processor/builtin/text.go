package builtin

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/processor"
)

// ignoreCase folds case so searches are case-insensitive.
type ignoreCase struct {
	processor.Base
}

func newIgnoreCase(_ field.Schema, cfg processor.Config) (processor.Processor, error) {
	return &ignoreCase{Base: processor.NewBase(IgnoreCase, cfg.Fields, nil)}, nil
}

func (p *ignoreCase) Process(s string) field.Value {
	// Casers are stateful and the pipeline may be shared.
	return field.Scalar(cases.Fold().String(s))
}

// transliteration strips diacritics (é -> e).
type transliteration struct {
	processor.Base
}

func newTransliteration(_ field.Schema, cfg processor.Config) (processor.Processor, error) {
	return &transliteration{Base: processor.NewBase(Transliteration, cfg.Fields, nil)}, nil
}

func (p *transliteration) Process(s string) field.Value {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return field.Scalar(s)
	}
	return field.Scalar(out)
}

// DefaultIgnorable is the default ignore_characters pattern.
const DefaultIgnorable = `['¿¡!?,.:;]`

// ignoreCharacters removes configured characters and Unicode categories.
type ignoreCharacters struct {
	processor.Base
	ignorable  *regexp.Regexp
	categories []*unicode.RangeTable
}

func newIgnoreCharacters(_ field.Schema, cfg processor.Config) (processor.Processor, error) {
	re, err := regexp.Compile(cfg.String("ignorable", DefaultIgnorable))
	if err != nil {
		return nil, fmt.Errorf("ignorable: %w", err)
	}
	p := &ignoreCharacters{Base: processor.NewBase(IgnoreCharacters, cfg.Fields, nil), ignorable: re}
	for _, name := range cfg.Strings("strip_categories") {
		table, ok := unicode.Categories[name]
		if !ok {
			return nil, fmt.Errorf("unknown unicode category %q", name)
		}
		p.categories = append(p.categories, table)
	}
	return p, nil
}

func (p *ignoreCharacters) Process(s string) field.Value {
	s = p.ignorable.ReplaceAllString(s, "")
	if len(p.categories) > 0 {
		s = strings.Map(func(r rune) rune {
			if unicode.IsOneOf(p.categories, r) {
				return -1
			}
			return r
		}, s)
	}
	return field.Scalar(s)
}

// Tokenizer defaults.
const (
	DefaultSpaces    = `[^\p{L}\p{N}]+`
	DefaultTokenIgn  = `['’]`
	DefaultMinLength = 1
)

// tokenizer splits fulltext values into tokens.
type tokenizer struct {
	processor.Base
	spaces    *regexp.Regexp
	ignorable *regexp.Regexp
	minLength int
}

func newTokenizer(_ field.Schema, cfg processor.Config) (processor.Processor, error) {
	spaces, err := regexp.Compile(cfg.String("spaces", DefaultSpaces))
	if err != nil {
		return nil, fmt.Errorf("spaces: %w", err)
	}
	ignorable, err := regexp.Compile(cfg.String("ignorable", DefaultTokenIgn))
	if err != nil {
		return nil, fmt.Errorf("ignorable: %w", err)
	}
	return &tokenizer{
		Base:      processor.NewBase(Tokenizer, cfg.Fields, processor.FulltextTypes),
		spaces:    spaces,
		ignorable: ignorable,
		minLength: cfg.Int("minimum_word_size", DefaultMinLength),
	}, nil
}

func (p *tokenizer) Process(s string) field.Value {
	s = p.ignorable.ReplaceAllString(s, "")
	var tokens []field.Token
	for _, w := range p.spaces.Split(s, -1) {
		if w == "" || len([]rune(w)) < p.minLength {
			continue
		}
		tokens = append(tokens, field.NewToken(w))
	}
	return field.TokenList(tokens)
}
