package bleveindex

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/searchapi/internal/field"
)

const (
	// TextAnalyzerName splits on Unicode word boundaries and lowercases.
	// Stop words and stemming are left to the index's processors.
	TextAnalyzerName = "searchapi_text"

	fieldDatasource = "search_api_datasource"
	// fieldPresent lists the keys of the fields that have a value, for
	// NULL conditions.
	fieldPresent = "search_api_present"
	// storedPrefix names the stored-only copy of a field's original value.
	storedPrefix = "search_api_stored_"

	// maxTokenRepeat caps how often a boosted token is repeated.
	maxTokenRepeat = 10
)

// buildMapping maps every field of schema twice: once indexed, typed for
// searching, and once stored, holding the unprocessed value for display.
func buildMapping(schema field.Schema) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	im.DefaultAnalyzer = TextAnalyzerName

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(fieldDatasource, keyword())
	doc.AddFieldMappingsAt(fieldPresent, keyword())
	for _, def := range schema.Fields() {
		doc.AddFieldMappingsAt(def.Key, indexedMapping(def.Type))
		doc.AddFieldMappingsAt(storedPrefix+def.Key, storedMapping(def.Type))
	}
	im.DefaultMapping = doc
	return im, nil
}

func keyword() *mapping.FieldMapping {
	fm := bleve.NewKeywordFieldMapping()
	fm.Store = false
	fm.IncludeInAll = false
	return fm
}

func typedMapping(t field.Type) *mapping.FieldMapping {
	switch {
	case t.IsFulltext():
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = TextAnalyzerName
		return fm
	case t.IsNumeric():
		return bleve.NewNumericFieldMapping()
	}
	switch t.Base() {
	case field.Date:
		return bleve.NewDateTimeFieldMapping()
	case field.Boolean:
		return bleve.NewBooleanFieldMapping()
	}
	return bleve.NewKeywordFieldMapping()
}

func indexedMapping(t field.Type) *mapping.FieldMapping {
	fm := typedMapping(t)
	fm.Store = false
	fm.IncludeInAll = false
	// Phrase queries need positions.
	fm.IncludeTermVectors = t.IsFulltext()
	return fm
}

func storedMapping(t field.Type) *mapping.FieldMapping {
	fm := typedMapping(t)
	fm.Index = false
	fm.Store = true
	fm.IncludeInAll = false
	fm.IncludeTermVectors = false
	fm.DocValues = false
	return fm
}

// document converts an extracted item into the map Bleve indexes.
func document(schema field.Schema, it *field.Item) map[string]interface{} {
	doc := map[string]interface{}{fieldDatasource: it.ID.Datasource()}

	var present []string
	for key, f := range it.Fields {
		if _, ok := schema.Field(key); !ok {
			continue
		}
		v := native(f.Value)
		if v == nil {
			continue
		}
		doc[key] = v
		present = append(present, key)
		if orig := native(f.Original); orig != nil {
			doc[storedPrefix+key] = orig
		}
	}
	sort.Strings(present)
	if len(present) > 0 {
		doc[fieldPresent] = present
	}
	return doc
}

// native converts a value into what Bleve's mapping understands. Tokens
// become text, each token repeated according to its score.
func native(v field.Value) interface{} {
	switch v.Kind() {
	case field.KindScalar:
		return nativeScalar(v.Scalar())
	case field.KindTokens:
		if len(v.Tokens()) == 0 {
			return nil
		}
		return tokenText(v.Tokens())
	case field.KindList:
		out := make([]interface{}, 0, len(v.List()))
		for _, e := range v.List() {
			if n := native(e); n != nil {
				out = append(out, n)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

func nativeScalar(s any) interface{} {
	switch x := s.(type) {
	case nil:
		return nil
	case string, float64, bool, time.Time:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case time.Duration:
		return x.Seconds()
	}
	return field.FormatScalar(s)
}

func tokenText(tokens []field.Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		n := int(math.Round(t.Score))
		if n < 1 {
			n = 1
		}
		if n > maxTokenRepeat {
			n = maxTokenRepeat
		}
		for i := 0; i < n; i++ {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(t.Value)
		}
	}
	return sb.String()
}

// decodeStored converts a stored field read back from Bleve into a value of
// type t.
func decodeStored(t field.Type, raw interface{}) field.Value {
	if raw == nil {
		return field.Null()
	}
	if arr, ok := raw.([]interface{}); ok {
		if !t.IsList() {
			if len(arr) == 0 {
				return field.Null()
			}
			return decodeStored(t, arr[0])
		}
		out := make([]field.Value, 0, len(arr))
		for _, e := range arr {
			out = append(out, decodeStored(t.Elem(), e))
		}
		return field.List(out)
	}
	if t.IsList() {
		return field.List([]field.Value{decodeStored(t.Elem(), raw)})
	}

	v, err := field.Coerce(raw, storedType(t))
	if err != nil {
		return field.Scalar(field.FormatScalar(raw))
	}
	return v
}

// storedType is the type a stored value is decoded as. Tokens fields store
// their original text.
func storedType(t field.Type) field.Type {
	if t.Base() == field.Tokens {
		return field.Text
	}
	return t
}
