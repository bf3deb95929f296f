package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Conjunction joins sibling keys or filter children.
type Conjunction string

const (
	And Conjunction = "AND"
	Or  Conjunction = "OR"
)

// ParseConjunction validates s (case-insensitive). Empty means AND.
func ParseConjunction(s string) (Conjunction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AND":
		return And, nil
	case "OR":
		return Or, nil
	}
	return "", fmt.Errorf("unknown conjunction %q", s)
}

// ParseMode selects how raw search keys are parsed.
type ParseMode string

const (
	// ParseDirect passes keys to the backend unparsed.
	ParseDirect ParseMode = "direct"
	// ParseSingle treats the whole input as one phrase.
	ParseSingle ParseMode = "single"
	// ParseTerms splits on whitespace, honouring double-quoted phrases.
	ParseTerms ParseMode = "terms"
)

// ParseParseMode validates s. Empty means terms.
func ParseParseMode(s string) (ParseMode, error) {
	switch m := ParseMode(strings.TrimSpace(s)); m {
	case "":
		return ParseTerms, nil
	case ParseDirect, ParseSingle, ParseTerms:
		return m, nil
	}
	return "", fmt.Errorf("unknown parse mode %q", s)
}

// Key is a node of a parsed key tree: a Term or a nested *Keys group.
type Key interface {
	isKey()
}

// Term is a leaf search key: a word or a phrase.
type Term string

func (Term) isKey() {}

// Keys is a parsed key tree.
type Keys struct {
	Conjunction Conjunction
	Negation    bool
	Children    []Key
}

func (*Keys) isKey() {}

// NewKeys builds a group of terms.
func NewKeys(conj Conjunction, terms ...string) *Keys {
	k := &Keys{Conjunction: conj}
	for _, t := range terms {
		k.Children = append(k.Children, Term(t))
	}
	return k
}

// ParseKeys parses raw keys in single or terms mode. Direct mode has no
// tree; callers keep the raw string instead.
func ParseKeys(raw string, mode ParseMode, conj Conjunction) *Keys {
	if conj == "" {
		conj = And
	}
	k := &Keys{Conjunction: conj}
	switch mode {
	case ParseSingle:
		if s := strings.TrimSpace(raw); s != "" {
			k.Children = []Key{Term(s)}
		}
	default:
		for _, t := range splitTerms(raw) {
			k.Children = append(k.Children, Term(t))
		}
	}
	return k
}

// splitTerms splits on whitespace. A term starting with a double quote opens
// a phrase that runs until a term ending with one; an unterminated phrase
// takes the rest of the input.
func splitTerms(raw string) []string {
	var out []string
	words := strings.Fields(raw)
	for i := 0; i < len(words); i++ {
		w := words[i]
		if !strings.HasPrefix(w, `"`) {
			out = append(out, w)
			continue
		}
		phrase := []string{w}
		closed := len(w) > 1 && strings.HasSuffix(w, `"`)
		for !closed && i+1 < len(words) {
			i++
			phrase = append(phrase, words[i])
			closed = strings.HasSuffix(words[i], `"`)
		}
		term := strings.Join(phrase, " ")
		term = strings.TrimPrefix(term, `"`)
		if closed {
			term = strings.TrimSuffix(term, `"`)
		}
		if term = strings.TrimSpace(term); term != "" {
			out = append(out, term)
		}
	}
	return out
}

// Terms returns every leaf term in tree order.
func (k *Keys) Terms() []string {
	if k == nil {
		return nil
	}
	var out []string
	for _, c := range k.Children {
		switch x := c.(type) {
		case Term:
			out = append(out, string(x))
		case *Keys:
			out = append(out, x.Terms()...)
		}
	}
	return out
}

// IsEmpty reports whether the tree has no terms.
func (k *Keys) IsEmpty() bool {
	return len(k.Terms()) == 0
}

// Clone returns a deep copy.
func (k *Keys) Clone() *Keys {
	if k == nil {
		return nil
	}
	c := &Keys{Conjunction: k.Conjunction, Negation: k.Negation, Children: make([]Key, len(k.Children))}
	for i, child := range k.Children {
		if nested, ok := child.(*Keys); ok {
			c.Children[i] = nested.Clone()
		} else {
			c.Children[i] = child
		}
	}
	return c
}

func (k *Keys) String() string {
	if k == nil {
		return ""
	}
	parts := make([]string, 0, len(k.Children))
	for _, c := range k.Children {
		switch x := c.(type) {
		case Term:
			s := string(x)
			if strings.ContainsAny(s, " \t") {
				s = strconv.Quote(s)
			}
			parts = append(parts, s)
		case *Keys:
			parts = append(parts, "("+x.String()+")")
		}
	}
	s := strings.Join(parts, " "+string(k.Conjunction)+" ")
	if k.Negation {
		s = "NOT " + s
	}
	return s
}

// MarshalJSON encodes the tree as {"#conjunction": ..., "#negation": ..., "0": ..., "1": ...}.
func (k *Keys) MarshalJSON() ([]byte, error) {
	m := map[string]any{"#conjunction": k.Conjunction}
	if k.Negation {
		m["#negation"] = true
	}
	for i, c := range k.Children {
		m[strconv.Itoa(i)] = c
	}
	return json.Marshal(m)
}
