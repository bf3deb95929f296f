// Package builtin provides the processors shipped with searchapi.
package builtin

import (
	"github.com/Aman-CERP/searchapi/internal/processor"
)

// Processor ids.
const (
	HTMLFilter       = "html_filter"
	IgnoreCase       = "ignorecase"
	Transliteration  = "transliteration"
	IgnoreCharacters = "ignore_characters"
	Tokenizer        = "tokenizer"
	Stopwords        = "stopwords"
	Stemmer          = "stemmer"
	Highlight        = "highlight"
	PropertyFilter   = "property_filter"
)

// Register adds every built-in processor to reg.
func Register(reg *processor.Registry) {
	reg.Register(HTMLFilter, newHTMLFilter)
	reg.Register(IgnoreCase, newIgnoreCase)
	reg.Register(Transliteration, newTransliteration)
	reg.Register(IgnoreCharacters, newIgnoreCharacters)
	reg.Register(Tokenizer, newTokenizer)
	reg.Register(Stopwords, newStopwords)
	reg.Register(Stemmer, newStemmer)
	reg.Register(Highlight, newHighlight)
	reg.Register(PropertyFilter, newPropertyFilter)
}

// NewRegistry returns a registry holding the built-in processors.
func NewRegistry() *processor.Registry {
	reg := processor.NewRegistry()
	Register(reg)
	return reg
}
