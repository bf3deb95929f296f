package builtin

import (
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"

	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/processor"
)

// stemmer reduces English words to their Porter stem. Exceptions map words
// to fixed stems.
type stemmer struct {
	processor.Base
	exceptions map[string]string
}

func newStemmer(_ field.Schema, cfg processor.Config) (processor.Processor, error) {
	p := &stemmer{
		Base:       processor.NewBase(Stemmer, cfg.Fields, processor.FulltextTypes),
		exceptions: map[string]string{"news": "news", "texas": "texas"},
	}
	if ex, ok := cfg.Settings["exceptions"].(map[string]any); ok {
		for word, stem := range ex {
			if s, ok := stem.(string); ok {
				p.exceptions[strings.ToLower(word)] = s
			}
		}
	}
	return p, nil
}

func (p *stemmer) Process(s string) field.Value {
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		if stem, ok := p.exceptions[lower]; ok {
			words[i] = stem
			continue
		}
		words[i] = porterstemmer.StemString(lower)
	}
	return field.Scalar(strings.Join(words, " "))
}
