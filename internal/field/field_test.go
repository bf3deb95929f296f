package field

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_Helpers(t *testing.T) {
	nested := ListOf(ListOf(Tokens))

	assert.Equal(t, Type("list<list<tokens>>"), nested)
	assert.True(t, nested.IsList())
	assert.Equal(t, ListOf(Tokens), nested.Elem())
	assert.Equal(t, Tokens, nested.Base())
	assert.Equal(t, 2, nested.Depth())
	assert.True(t, nested.Valid())
	assert.True(t, nested.IsFulltext())
	assert.False(t, nested.IsSortable())
	assert.Equal(t, ListOf(ListOf(String)), nested.WithBase(String))

	assert.True(t, String.IsSortable())
	assert.True(t, Date.IsSortable())
	assert.False(t, Text.IsSortable())
	assert.False(t, ListOf(String).IsSortable())
	assert.True(t, Duration.IsNumeric())
	assert.False(t, Type("list<blob>").Valid())
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" list<integer> ")
	require.NoError(t, err)
	assert.Equal(t, ListOf(Integer), typ)

	_, err = ParseType("geo")
	assert.Error(t, err)
}

func TestValue_Shapes(t *testing.T) {
	assert.True(t, Null().IsNull())
	assert.True(t, Scalar(nil).IsNull())
	assert.True(t, TokenList(nil).IsNull())
	assert.True(t, List([]Value{Null()}).IsNull())
	assert.False(t, Scalar(0).IsNull())

	v := List([]Value{Scalar("a"), TokenList([]Token{{"b", 2}, {"c", 1}})})
	assert.Equal(t, KindList, v.Kind())
	assert.Equal(t, []string{"a", "b", "c"}, v.Texts())
	assert.Equal(t, "a b c", v.Text())
	assert.Equal(t, "(a, [b^2 c^1])", v.String())
}

func TestCoerce(t *testing.T) {
	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		native any
		typ    Type
		want   Value
	}{
		{"nil", nil, String, Null()},
		{"int to string", 42, String, Scalar("42")},
		{"string to integer", "17", Integer, Scalar(int64(17))},
		{"float to integer truncates", 3.9, Integer, Scalar(int64(3))},
		{"int to decimal", 2, Decimal, Scalar(2.0)},
		{"yes to boolean", "yes", Boolean, Scalar(true)},
		{"date string", "2024-03-01", Date, Scalar(when)},
		{"unix seconds", when.Unix(), Date, Scalar(when)},
		{"duration string", "90s", Duration, Scalar(90 * time.Second)},
		{"seconds to duration", 60, Duration, Scalar(time.Minute)},
		{"text to tokens", "hello world", Tokens, TokenList([]Token{NewToken("hello world")})},
		{"slice to single keeps first", []string{"a", "b"}, String, Scalar("a")},
		{"scalar to list", "a", ListOf(String), Strings("a")},
		{"slice to list", []any{1, "2"}, ListOf(Integer), List([]Value{Scalar(int64(1)), Scalar(int64(2))})},
		{"list drops nulls", []any{"a", nil}, ListOf(String), Strings("a")},
		{"uint within range", uint64(math.MaxInt64), Integer, Scalar(int64(math.MaxInt64))},
		{"large uint to decimal", uint64(math.MaxUint64), Decimal, Scalar(float64(math.MaxUint64))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.native, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Errors(t *testing.T) {
	_, err := Coerce("abc", Integer)
	assert.Error(t, err)
	_, err = Coerce("maybe", Boolean)
	assert.Error(t, err)
	_, err = Coerce("yesterday", Date)
	assert.Error(t, err)
}

func TestCoerce_IntegerOverflow(t *testing.T) {
	for name, native := range map[string]any{
		"uint64":       uint64(math.MaxUint64),
		"float":        1e20,
		"negative":     -1e20,
		"nan":          math.NaN(),
		"float string": "1e30",
		"list element": []any{1, uint64(math.MaxInt64) + 1},
	} {
		t.Run(name, func(t *testing.T) {
			typ := Integer
			if _, ok := native.([]any); ok {
				typ = ListOf(Integer)
			}
			_, err := Coerce(native, typ)
			assert.Error(t, err)
		})
	}
}

func TestSchema(t *testing.T) {
	s := NewSchema("idx",
		Definition{Key: "title", Type: Text},
		Definition{Key: "body", Type: Tokens},
		Definition{Key: "tags", Type: ListOf(String)},
	)

	assert.Equal(t, "idx", s.IndexID())
	assert.Equal(t, []string{"body", "title"}, FulltextFields(s))
	assert.Len(t, s.Fields(), 3)
	assert.Equal(t, "body", s.Fields()[0].Key)
	_, ok := s.Field("tags")
	assert.True(t, ok)
	_, ok = s.Field("missing")
	assert.False(t, ok)
}
